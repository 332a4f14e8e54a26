package cliconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKebabCase(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"etcd":              "etcd",
		"debugLog":          "debug-log",
		"nodeIP":            "node-ip",
		"sessionTTLSeconds": "session-ttl-seconds",
		"dialTimeout2":      "dial-timeout2",
		"HTTPListen":        "http-listen",
	}
	for in, expected := range cases {
		assert.Equal(t, expected, kebabCase(in), in)
	}
}
