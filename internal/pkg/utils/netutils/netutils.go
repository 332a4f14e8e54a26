package netutils

import (
	"net"

	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

// LocalIP returns the first non-loopback IPv4 address of the host.
func LocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", errors.PrefixError(err, "cannot list network interfaces")
	}
	if ip := firstIPv4(addrs); ip != "" {
		return ip, nil
	}
	return "", errors.New("no non-loopback IPv4 address found")
}

func firstIPv4(addrs []net.Addr) string {
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
