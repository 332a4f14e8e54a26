package netutils

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstIPv4(t *testing.T) {
	t.Parallel()

	addrs := []net.Addr{
		&net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)},
		&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)},
		&net.IPNet{IP: net.ParseIP("10.0.0.5"), Mask: net.CIDRMask(24, 32)},
	}
	assert.Equal(t, "10.0.0.5", firstIPv4(addrs))
	assert.Empty(t, firstIPv4(addrs[:2]))
}
