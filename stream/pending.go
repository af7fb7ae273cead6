package stream

import (
	"fmt"

	"github.com/joeycumines/go-uvio/eventloop"
	"github.com/joeycumines/go-uvio/internal/sock"
	"github.com/joeycumines/go-uvio/ioerr"
	"github.com/joeycumines/go-uvio/udp"
	"golang.org/x/sys/unix"
)

type (
	// Pending is a handle received from the peer of an ipc pipe. It is one
	// of *PendingTCP, *PendingPipe, or *PendingUDP. The wrapped handle is
	// open, bound to the receiving loop, and owned by the receiver.
	Pending interface {
		// Handle returns the wrapped handle.
		Handle() eventloop.Handle
		isPending()
	}

	// PendingTCP is a received TCP connection or listener.
	PendingTCP struct{ TCP *TCP }

	// PendingPipe is a received unix domain stream socket.
	PendingPipe struct{ Pipe *Pipe }

	// PendingUDP is a received datagram socket.
	PendingUDP struct{ UDP *udp.UDP }
)

func (p *PendingTCP) Handle() eventloop.Handle  { return p.TCP }
func (p *PendingPipe) Handle() eventloop.Handle { return p.Pipe }
func (p *PendingUDP) Handle() eventloop.Handle  { return p.UDP }

func (*PendingTCP) isPending()  {}
func (*PendingPipe) isPending() {}
func (*PendingUDP) isPending()  {}

// adopt wraps a received descriptor in a new handle of the matching kind.
// The descriptor is closed on failure.
func adopt(loop *eventloop.Loop, fd int) (Pending, error) {
	kind, err := sock.KindOf(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, ioerr.New(err, `read`, ``)
	}
	switch kind {
	case sock.KindTCP:
		h := NewTCP(loop)
		if err := h.Open(fd); err != nil {
			return nil, abandon(h, fd, err)
		}
		return &PendingTCP{TCP: h}, nil
	case sock.KindUnix:
		h := NewPipe(loop, false)
		if err := h.Open(fd); err != nil {
			return nil, abandon(h, fd, err)
		}
		return &PendingPipe{Pipe: h}, nil
	case sock.KindUDP:
		h, err := udp.New(loop)
		if err != nil {
			_ = unix.Close(fd)
			return nil, err
		}
		if err := h.Open(fd); err != nil {
			return nil, abandon(h, fd, err)
		}
		return &PendingUDP{UDP: h}, nil
	case sock.KindUnknown:
		_ = unix.Close(fd)
		return nil, ioerr.Build(ioerr.EINVAL, `read`, ``, ``)
	}
	panic(fmt.Sprintf("stream: unhandled socket kind %d", kind))
}

func abandon(h eventloop.Handle, fd int, err error) error {
	h.Close(nil)
	_ = unix.Close(fd)
	return err
}
