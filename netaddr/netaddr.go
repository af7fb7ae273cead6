// Package netaddr converts between socket addresses and the immutable
// Address triple reported to callers.
package netaddr

import (
	"net"
	"net/netip"
	"strconv"

	"github.com/joeycumines/go-uvio/ioerr"
	"golang.org/x/sys/unix"
)

const (
	FamilyIPv4 = "IPv4"
	FamilyIPv6 = "IPv6"
)

// Address is a socket address, as reported to callers.
type Address struct {
	IP     string
	Family string
	Port   int
}

// String formats the address as host:port, bracketing IPv6 literals.
func (a Address) String() string {
	return net.JoinHostPort(a.IP, strconv.Itoa(a.Port))
}

// FromSockaddr converts an IPv4 or IPv6 socket address. It returns false
// for any other kind, including nil.
func FromSockaddr(sa unix.Sockaddr) (Address, bool) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return Address{
			IP:     netip.AddrFrom4(sa.Addr).String(),
			Port:   sa.Port,
			Family: FamilyIPv4,
		}, true
	case *unix.SockaddrInet6:
		addr := netip.AddrFrom16(sa.Addr)
		if sa.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(sa.ZoneId)); err == nil {
				addr = addr.WithZone(ifi.Name)
			} else {
				addr = addr.WithZone(strconv.FormatUint(uint64(sa.ZoneId), 10))
			}
		}
		return Address{
			IP:     addr.String(),
			Port:   sa.Port,
			Family: FamilyIPv6,
		}, true
	default:
		return Address{}, false
	}
}

// Inet4 parses an IPv4 literal, for use with bind, connect, or send. The
// syscall is used to build the EINVAL error for an invalid literal or port.
func Inet4(syscall, ip string, port int) (*unix.SockaddrInet4, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() || !validPort(port) {
		return nil, ioerr.Build(ioerr.EINVAL, syscall, ``, ``)
	}
	return &unix.SockaddrInet4{Port: port, Addr: addr.As4()}, nil
}

// Inet6 parses an IPv6 literal, which may carry a zone (interface name or
// index), for use with bind, connect, or send.
func Inet6(syscall, ip string, port int) (*unix.SockaddrInet6, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is6() || !validPort(port) {
		return nil, ioerr.Build(ioerr.EINVAL, syscall, ``, ``)
	}
	sa := &unix.SockaddrInet6{Port: port, Addr: addr.As16()}
	if zone := addr.Zone(); zone != `` {
		if ifi, err := net.InterfaceByName(zone); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		} else if n, err := strconv.ParseUint(zone, 10, 32); err == nil {
			sa.ZoneId = uint32(n)
		} else {
			return nil, ioerr.Build(ioerr.EINVAL, syscall, ``, ``)
		}
	}
	return sa, nil
}

func validPort(port int) bool {
	return port >= 0 && port <= 0xffff
}
