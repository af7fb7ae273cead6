// Package udp implements datagram socket handles, driven by an
// [eventloop.Loop].
//
// The socket is created on first use, by Bind, Send, or RecvStart, with the
// address family of that call. Receiving on a socket that is not yet bound
// binds it to 0.0.0.0:0 first.
package udp

import (
	"github.com/eapache/queue"
	"github.com/joeycumines/go-uvio/eventloop"
	"github.com/joeycumines/go-uvio/internal/sock"
	"github.com/joeycumines/go-uvio/ioerr"
	"github.com/joeycumines/go-uvio/netaddr"
	"golang.org/x/sys/unix"
)

type (
	// UDP is a datagram socket handle.
	UDP struct {
		eventloop.HandleBase
		loop     *eventloop.Loop
		watcher  *eventloop.IOWatcher
		sends    *queue.Queue
		recvCb   RecvCallback
		recvSize int
		fd       int
		domain   int
		bound    bool
		reading  bool
	}

	// RecvCallback receives a datagram, and the address it came from. The
	// data is library owned scratch, which is reused for the next datagram
	// once the callback returns, so it must be copied (e.g. with
	// [bytes.Clone]) to be retained. An empty datagram is delivered as empty
	// data, with a non-nil addr.
	RecvCallback func(data []byte, addr *netaddr.Address, flags RecvFlags, err error)

	// SendCallback receives the outcome of a send.
	SendCallback func(ctx any, err error)

	// RecvFlags describe a received datagram.
	RecvFlags uint8

	// BindFlags modify Bind and Bind6.
	BindFlags uint8

	// Membership selects joining or leaving a multicast group.
	Membership uint8
)

const (
	// Partial indicates the datagram was truncated to the receive buffer.
	Partial RecvFlags = 1 << iota
)

const (
	// ReuseAddr sets SO_REUSEADDR before binding.
	ReuseAddr BindFlags = 1 << iota
	// IPv6Only disables IPv4 mapped addresses, for Bind6.
	IPv6Only
)

const (
	LeaveGroup Membership = iota
	JoinGroup
)

// New creates a UDP handle bound to loop.
func New(loop *eventloop.Loop, opts ...Option) (*UDP, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	x := &UDP{
		loop:     loop,
		sends:    queue.New(),
		recvSize: cfg.recvBufferSize,
		fd:       -1,
	}
	x.Init(loop, eventloop.KindUDP, x)
	return x, nil
}

// Open adopts fd, an existing datagram socket, which may already be bound.
func (x *UDP) Open(fd int) error {
	if err := x.CheckOpen(); err != nil {
		return err
	}
	if x.fd >= 0 {
		return ioerr.Build(ioerr.EBUSY, `open`, ``, ``)
	}
	if err := sock.Prepare(fd); err != nil {
		return ioerr.New(err, `open`, ``)
	}
	domain, err := sock.Domain(fd)
	if err != nil {
		return ioerr.New(err, `open`, ``)
	}
	x.adopt(fd, domain)
	if addr, err := x.SocketName(); err == nil && addr.Port != 0 {
		x.bound = true
	}
	return nil
}

func (x *UDP) adopt(fd, domain int) {
	x.fd = fd
	x.domain = domain
	x.watcher = x.loop.NewIOWatcher(fd, x.onIO)
}

// Fileno returns the underlying descriptor, which remains owned by the
// handle.
func (x *UDP) Fileno() (int, error) {
	if x.fd < 0 {
		return -1, ioerr.Build(ioerr.EBADF, `fileno`, ``, ``)
	}
	return x.fd, nil
}

// socket lazily creates the socket. An existing socket must be of the same
// family.
func (x *UDP) socket(domain int, syscall string) error {
	if err := x.CheckOpen(); err != nil {
		return err
	}
	if x.fd >= 0 {
		if x.domain != domain {
			return ioerr.Build(ioerr.EINVAL, syscall, ``, ``)
		}
		return nil
	}
	fd, err := sock.Socket(domain, unix.SOCK_DGRAM, 0)
	if err != nil {
		return ioerr.New(err, `socket`, ``)
	}
	x.adopt(fd, domain)
	return nil
}

// Bind binds to an IPv4 address.
func (x *UDP) Bind(ip string, port int, flags BindFlags) error {
	if flags&IPv6Only != 0 {
		return ioerr.Build(ioerr.EINVAL, `bind`, ``, ``)
	}
	sa, err := netaddr.Inet4(`bind`, ip, port)
	if err != nil {
		return err
	}
	return x.bind(unix.AF_INET, sa, flags)
}

// Bind6 binds to an IPv6 address.
func (x *UDP) Bind6(ip string, port int, flags BindFlags) error {
	sa, err := netaddr.Inet6(`bind`, ip, port)
	if err != nil {
		return err
	}
	return x.bind(unix.AF_INET6, sa, flags)
}

func (x *UDP) bind(domain int, sa unix.Sockaddr, flags BindFlags) error {
	if err := x.socket(domain, `bind`); err != nil {
		return err
	}
	if flags&ReuseAddr != 0 {
		if err := reuseAddr(x.fd); err != nil {
			return ioerr.New(err, `bind`, ``)
		}
	}
	if domain == unix.AF_INET6 {
		v := 0
		if flags&IPv6Only != 0 {
			v = 1
		}
		if err := unix.SetsockoptInt(x.fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, v); err != nil {
			return ioerr.New(err, `bind`, ``)
		}
	}
	if err := unix.Bind(x.fd, sa); err != nil {
		return ioerr.New(err, `bind`, ``)
	}
	x.bound = true
	return nil
}

// SocketName returns the local address.
func (x *UDP) SocketName() (netaddr.Address, error) {
	if x.fd < 0 {
		return netaddr.Address{}, ioerr.Build(ioerr.EBADF, `getsockname`, ``, ``)
	}
	sa, err := unix.Getsockname(x.fd)
	if err != nil {
		return netaddr.Address{}, ioerr.New(err, `getsockname`, ``)
	}
	addr, ok := netaddr.FromSockaddr(sa)
	if !ok {
		return netaddr.Address{}, ioerr.Build(ioerr.EINVAL, `getsockname`, ``, ``)
	}
	return addr, nil
}

// Close closes the handle. Queued sends complete with ECANCELED before cb
// is called.
func (x *UDP) Close(cb func()) {
	if x.IsClosing() {
		return
	}
	if x.watcher != nil {
		_ = x.watcher.Close()
		x.watcher = nil
	}
	if x.fd >= 0 {
		if err := unix.Close(x.fd); err != nil {
			x.loop.Logger().Warning().
				Int("fd", x.fd).
				Err(err).
				Log("udp: close failed")
		}
		x.fd = -1
	}
	x.reading = false
	x.recvCb = nil
	_ = x.BeginClose(cb, x.cancelSends)
}

func (x *UDP) updateWatcher(syscall string) error {
	x.SetActive(x.reading)
	if x.watcher == nil {
		return nil
	}
	var events eventloop.IOEvents
	if x.reading {
		events |= eventloop.EventRead
	}
	if x.sends.Length() > 0 {
		events |= eventloop.EventWrite
	}
	if err := x.watcher.Set(events); err != nil {
		return ioerr.New(err, syscall, ``)
	}
	return nil
}

func (x *UDP) refresh() {
	if err := x.updateWatcher(`poll`); err != nil {
		x.loop.Logger().Err().
			Int("fd", x.fd).
			Err(err).
			Log("udp: failed to update watcher")
	}
}

func (x *UDP) onIO(events eventloop.IOEvents) {
	if events&(eventloop.EventRead|eventloop.EventError) != 0 && x.reading {
		x.onReadable()
	}
	if events&(eventloop.EventWrite|eventloop.EventError) != 0 && !x.IsClosing() && x.sends.Length() > 0 {
		x.flushSends()
	}
}
