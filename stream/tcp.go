package stream

import (
	"time"

	"github.com/joeycumines/go-uvio/eventloop"
	"github.com/joeycumines/go-uvio/internal/sock"
	"github.com/joeycumines/go-uvio/ioerr"
	"github.com/joeycumines/go-uvio/netaddr"
	"golang.org/x/sys/unix"
)

// TCP is a TCP stream handle. The socket is created on first use, by Bind,
// Connect, or Listen, or adopted via Open or Accept.
type TCP struct {
	Stream
	keepAliveDelay time.Duration
	noDelay        bool
	keepAlive      bool
}

// NewTCP creates a TCP handle bound to loop.
func NewTCP(loop *eventloop.Loop) *TCP {
	x := &TCP{}
	x.init(loop, eventloop.KindTCP, x, false)
	x.configure = x.applyOptions
	return x
}

// Open adopts fd, a TCP socket. A connected socket is readable and
// writable, a listening one may be passed to Listen, and any other may be
// bound or connected.
func (x *TCP) Open(fd int) error { return x.openInherited(fd) }

// Bind binds to an IPv4 address.
func (x *TCP) Bind(ip string, port int) error {
	sa, err := netaddr.Inet4(`bind`, ip, port)
	if err != nil {
		return err
	}
	return x.bind(unix.AF_INET, sa, false)
}

// Bind6 binds to an IPv6 address. If ipv6Only is set, the socket will not
// accept IPv4 mapped connections.
func (x *TCP) Bind6(ip string, port int, ipv6Only bool) error {
	sa, err := netaddr.Inet6(`bind`, ip, port)
	if err != nil {
		return err
	}
	return x.bind(unix.AF_INET6, sa, ipv6Only)
}

func (x *TCP) bind(domain int, sa unix.Sockaddr, ipv6Only bool) error {
	if err := x.socket(domain); err != nil {
		return err
	}
	if err := unix.SetsockoptInt(x.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return ioerr.New(err, `bind`, ``)
	}
	if domain == unix.AF_INET6 {
		v := 0
		if ipv6Only {
			v = 1
		}
		if err := unix.SetsockoptInt(x.fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, v); err != nil {
			return ioerr.New(err, `bind`, ``)
		}
	}
	if err := unix.Bind(x.fd, sa); err != nil {
		return ioerr.New(err, `bind`, ``)
	}
	return nil
}

// Connect connects to an IPv4 address.
func (x *TCP) Connect(ip string, port int, ctx any, cb Callback) error {
	sa, err := netaddr.Inet4(`connect`, ip, port)
	if err != nil {
		return err
	}
	if err := x.socket(unix.AF_INET); err != nil {
		return err
	}
	return x.connect(sa, ``, ctx, cb)
}

// Connect6 connects to an IPv6 address.
func (x *TCP) Connect6(ip string, port int, ctx any, cb Callback) error {
	sa, err := netaddr.Inet6(`connect`, ip, port)
	if err != nil {
		return err
	}
	if err := x.socket(unix.AF_INET6); err != nil {
		return err
	}
	return x.connect(sa, ``, ctx, cb)
}

// Listen is [Stream.Listen], creating an IPv4 socket if there is none,
// which the OS binds to an ephemeral port. An existing socket, of either
// family, is used as is.
func (x *TCP) Listen(backlog int, cb ConnectionCallback) error {
	if err := x.CheckOpen(); err != nil {
		return err
	}
	if x.fd < 0 {
		if err := x.socket(unix.AF_INET); err != nil {
			return err
		}
	}
	return x.Stream.Listen(backlog, cb)
}

// socket lazily creates the socket. An existing socket must be of the same
// family.
func (x *TCP) socket(domain int) error {
	if err := x.CheckOpen(); err != nil {
		return err
	}
	if x.fd >= 0 {
		if d, err := sock.Domain(x.fd); err == nil && d != domain && d != unix.AF_UNSPEC {
			return ioerr.Build(ioerr.EINVAL, `socket`, ``, ``)
		}
		return nil
	}
	fd, err := sock.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return ioerr.New(err, `socket`, ``)
	}
	if err := x.open(fd, 0); err != nil {
		_ = unix.Close(fd)
		return err
	}
	return nil
}

// SocketName returns the local address.
func (x *TCP) SocketName() (netaddr.Address, error) {
	return address(x.fd, `getsockname`, unix.Getsockname)
}

// PeerName returns the remote address.
func (x *TCP) PeerName() (netaddr.Address, error) {
	return address(x.fd, `getpeername`, unix.Getpeername)
}

func address(fd int, syscall string, get func(int) (unix.Sockaddr, error)) (netaddr.Address, error) {
	if fd < 0 {
		return netaddr.Address{}, ioerr.Build(ioerr.EBADF, syscall, ``, ``)
	}
	sa, err := get(fd)
	if err != nil {
		return netaddr.Address{}, ioerr.New(err, syscall, ``)
	}
	addr, ok := netaddr.FromSockaddr(sa)
	if !ok {
		return netaddr.Address{}, ioerr.Build(ioerr.EINVAL, syscall, ``, ``)
	}
	return addr, nil
}

// SetNoDelay toggles Nagle's algorithm. It is retained, and applied to any
// socket created or adopted later.
func (x *TCP) SetNoDelay(enable bool) error {
	x.noDelay = enable
	if x.fd < 0 {
		return nil
	}
	return x.setNoDelay(x.fd)
}

// SetKeepAlive toggles TCP keep-alive, with delay as the idle time before the
// first keep-alive packet. It is retained, and applied to any socket created or adopted
// later.
func (x *TCP) SetKeepAlive(enable bool, delay time.Duration) error {
	x.keepAlive = enable
	x.keepAliveDelay = delay
	if x.fd < 0 {
		return nil
	}
	return x.setKeepAlive(x.fd)
}

// SetSimultaneousAccepts is a no-op on unix, where accepts are always
// serialized through the loop.
func (x *TCP) SetSimultaneousAccepts(bool) error { return nil }

func (x *TCP) applyOptions(fd int) error {
	if x.noDelay {
		if err := x.setNoDelay(fd); err != nil {
			return err
		}
	}
	if x.keepAlive {
		return x.setKeepAlive(fd)
	}
	return nil
}

func (x *TCP) setNoDelay(fd int) error {
	v := 0
	if x.noDelay {
		v = 1
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v); err != nil {
		return ioerr.New(err, `setsockopt`, ``)
	}
	return nil
}

func (x *TCP) setKeepAlive(fd int) error {
	v := 0
	if x.keepAlive {
		v = 1
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, v); err != nil {
		return ioerr.New(err, `setsockopt`, ``)
	}
	if !x.keepAlive {
		return nil
	}
	secs := max(int(x.keepAliveDelay/time.Second), 1)
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, keepIdleOption, secs); err != nil {
		return ioerr.New(err, `setsockopt`, ``)
	}
	return nil
}
