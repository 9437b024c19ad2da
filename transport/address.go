package transport

import "strings"

// ParseAddress splits a worker address into a net.Dial network and address.
// "tcp://host:port" selects TCP; anything else (optionally prefixed with
// "unix://") is a unix socket path.
func ParseAddress(addr string) (network, address string) {
	switch {
	case strings.HasPrefix(addr, "tcp://"):
		return "tcp", strings.TrimPrefix(addr, "tcp://")
	case strings.HasPrefix(addr, "unix://"):
		return "unix", strings.TrimPrefix(addr, "unix://")
	default:
		return "unix", addr
	}
}
