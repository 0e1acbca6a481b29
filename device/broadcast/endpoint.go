package broadcast

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"
)

// ErrUnsupportedFamily is returned when a sender address is neither IPv4 nor IPv6.
var ErrUnsupportedFamily = errors.New("unsupported address family")

// Endpoint is the host and port a datagram was sent from.
type Endpoint struct {
	Host string
	Port int
}

// String renders the endpoint as host:port, bracketing IPv6 hosts.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ResolveEndpoint extracts the sender host and port from a socket address
// returned by recvfrom. The unix package has already converted the port from
// network to host byte order.
func ResolveEndpoint(sa unix.Sockaddr) (Endpoint, error) {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return Endpoint{
			Host: netip.AddrFrom4(addr.Addr).String(),
			Port: addr.Port,
		}, nil
	case *unix.SockaddrInet6:
		return Endpoint{
			Host: netip.AddrFrom16(addr.Addr).String(),
			Port: addr.Port,
		}, nil
	case nil:
		return Endpoint{}, fmt.Errorf("%w: no address", ErrUnsupportedFamily)
	default:
		return Endpoint{}, fmt.Errorf("%w: %T", ErrUnsupportedFamily, sa)
	}
}
