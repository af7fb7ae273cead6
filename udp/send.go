package udp

import (
	"fmt"

	"github.com/joeycumines/go-uvio/buffer"
	"github.com/joeycumines/go-uvio/eventloop"
	"github.com/joeycumines/go-uvio/internal/sock"
	"github.com/joeycumines/go-uvio/ioerr"
	"github.com/joeycumines/go-uvio/netaddr"
	"golang.org/x/sys/unix"
)

type sendReq struct {
	req   *eventloop.Request
	lease *buffer.Lease
	to    unix.Sockaddr
}

// Send queues the bytes of r to be sent to an IPv4 address. A copied region
// is snapshot before Send returns, a pinned region must not be modified
// until cb is called. Sends complete in submission order.
func (x *UDP) Send(r buffer.Region, ip string, port int, ctx any, cb SendCallback) error {
	sa, err := netaddr.Inet4(`send`, ip, port)
	if err != nil {
		return err
	}
	if err := x.socket(unix.AF_INET, `send`); err != nil {
		return err
	}
	return x.send(r, sa, ctx, cb)
}

// Send6 is Send, to an IPv6 address.
func (x *UDP) Send6(r buffer.Region, ip string, port int, ctx any, cb SendCallback) error {
	sa, err := netaddr.Inet6(`send`, ip, port)
	if err != nil {
		return err
	}
	if err := x.socket(unix.AF_INET6, `send`); err != nil {
		return err
	}
	return x.send(r, sa, ctx, cb)
}

// SendQueueSize returns the number of sends not yet attempted.
func (x *UDP) SendQueueSize() int { return x.sends.Length() }

func (x *UDP) send(r buffer.Region, to unix.Sockaddr, ctx any, cb SendCallback) error {
	lease, err := buffer.Default.Stage(r)
	if err != nil {
		return fmt.Errorf("udp: send: %w", err)
	}
	s := &sendReq{lease: lease, to: to}
	s.req = x.loop.NewRequest(eventloop.OpSend, ctx, func(c eventloop.Completion) {
		lease.Release()
		if cb != nil {
			cb(c.Context, c.Err)
		}
	})
	s.req.Handle = x
	s.req.FD = x.fd
	x.sends.Add(s)
	if x.sends.Length() == 1 {
		x.flushSends()
		return nil
	}
	return x.updateWatcher(`send`)
}

func (x *UDP) flushSends() {
	for x.sends.Length() > 0 && x.fd >= 0 {
		s := x.sends.Peek().(*sendReq)
		var err error
		for {
			err = unix.Sendto(x.fd, s.lease.Bytes(), sock.SendFlags, s.to)
			if err != unix.EINTR {
				break
			}
		}
		if err != nil && sock.Temporary(err) {
			break
		}
		x.sends.Remove()
		req := s.req
		err = ioerr.New(err, `send`, ``)
		_ = x.loop.SubmitInternal(func() { req.Complete(nil, err) })
	}
	x.refresh()
}

// cancelSends runs from the close phase.
func (x *UDP) cancelSends() {
	for x.sends.Length() > 0 {
		s := x.sends.Remove().(*sendReq)
		if s.req.Pending() {
			s.req.Cancel(nil)
		}
	}
}
