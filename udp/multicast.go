package udp

import (
	"net"
	"net/netip"
	"strconv"

	"github.com/joeycumines/go-uvio/ioerr"
	"golang.org/x/sys/unix"
)

// SetMembership joins or leaves the multicast group. The iface is the
// local interface address for IPv4, or the interface name or index for
// IPv6, and may be empty to let the OS choose.
func (x *UDP) SetMembership(group, iface string, m Membership) error {
	const syscall = `setsockopt`
	addr, err := netip.ParseAddr(group)
	if err != nil || !addr.IsMulticast() {
		return ioerr.Build(ioerr.EINVAL, syscall, ``, ``)
	}
	if addr.Is4() {
		if err := x.socket(unix.AF_INET, syscall); err != nil {
			return err
		}
		mreq := &unix.IPMreq{Multiaddr: addr.As4()}
		if iface != `` {
			local, err := netip.ParseAddr(iface)
			if err != nil || !local.Is4() {
				return ioerr.Build(ioerr.EINVAL, syscall, ``, ``)
			}
			mreq.Interface = local.As4()
		}
		opt := unix.IP_DROP_MEMBERSHIP
		if m == JoinGroup {
			opt = unix.IP_ADD_MEMBERSHIP
		}
		return ioerr.New(unix.SetsockoptIPMreq(x.fd, unix.IPPROTO_IP, opt, mreq), syscall, ``)
	}
	if err := x.socket(unix.AF_INET6, syscall); err != nil {
		return err
	}
	mreq := &unix.IPv6Mreq{Multiaddr: addr.As16()}
	if iface != `` {
		idx, err := interfaceIndex(iface)
		if err != nil {
			return ioerr.Build(ioerr.EINVAL, syscall, ``, ``)
		}
		mreq.Interface = idx
	}
	opt := unix.IPV6_LEAVE_GROUP
	if m == JoinGroup {
		opt = unix.IPV6_JOIN_GROUP
	}
	return ioerr.New(unix.SetsockoptIPv6Mreq(x.fd, unix.IPPROTO_IPV6, opt, mreq), syscall, ``)
}

func interfaceIndex(iface string) (uint32, error) {
	if n, err := strconv.ParseUint(iface, 10, 32); err == nil {
		return uint32(n), nil
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return 0, err
	}
	return uint32(ifi.Index), nil
}

// SetMulticastLoop toggles local delivery of sent multicast datagrams.
func (x *UDP) SetMulticastLoop(on bool) error {
	return x.setFamilyOption(`set_multicast_loop`, boolInt(on), unix.IP_MULTICAST_LOOP, unix.IPV6_MULTICAST_LOOP)
}

// SetMulticastTTL sets the hop limit for sent multicast datagrams, 0 to
// 255.
func (x *UDP) SetMulticastTTL(ttl int) error {
	if ttl < 0 || ttl > 255 {
		return ioerr.Build(ioerr.EINVAL, `set_multicast_ttl`, ``, ``)
	}
	return x.setFamilyOption(`set_multicast_ttl`, ttl, unix.IP_MULTICAST_TTL, unix.IPV6_MULTICAST_HOPS)
}

// SetTTL sets the hop limit for sent unicast datagrams, 1 to 255.
func (x *UDP) SetTTL(ttl int) error {
	if ttl < 1 || ttl > 255 {
		return ioerr.Build(ioerr.EINVAL, `set_ttl`, ``, ``)
	}
	if x.fd < 0 {
		return ioerr.Build(ioerr.EBADF, `set_ttl`, ``, ``)
	}
	var err error
	if x.domain == unix.AF_INET6 {
		err = unix.SetsockoptInt(x.fd, unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS, ttl)
	} else {
		err = unix.SetsockoptInt(x.fd, unix.IPPROTO_IP, unix.IP_TTL, ttl)
	}
	return ioerr.New(err, `set_ttl`, ``)
}

// SetBroadcast toggles permission to send to broadcast addresses.
func (x *UDP) SetBroadcast(on bool) error {
	if x.fd < 0 {
		return ioerr.Build(ioerr.EBADF, `set_broadcast`, ``, ``)
	}
	return ioerr.New(unix.SetsockoptInt(x.fd, unix.SOL_SOCKET, unix.SO_BROADCAST, boolInt(on)), `set_broadcast`, ``)
}

// setFamilyOption sets an IP level option, which for IPv4 multicast may be
// a char sized value, depending on the platform.
func (x *UDP) setFamilyOption(syscall string, v, opt4, opt6 int) error {
	if x.fd < 0 {
		return ioerr.Build(ioerr.EBADF, syscall, ``, ``)
	}
	var err error
	if x.domain == unix.AF_INET6 {
		err = unix.SetsockoptInt(x.fd, unix.IPPROTO_IPV6, opt6, v)
	} else {
		err = setsockoptMaybeChar(x.fd, unix.IPPROTO_IP, opt4, v)
	}
	return ioerr.New(err, syscall, ``)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
