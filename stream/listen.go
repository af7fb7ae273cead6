package stream

import (
	"github.com/joeycumines/go-uvio/eventloop"
	"github.com/joeycumines/go-uvio/internal/sock"
	"github.com/joeycumines/go-uvio/ioerr"
	"golang.org/x/sys/unix"
)

// streamer is implemented by every handle embedding Stream.
type streamer interface {
	eventloop.Handle
	stream() *Stream
}

// Listen starts listening for connections, calling cb each time one is
// ready. Each call holds exactly one connection for Accept, and no more are
// taken from the backlog until it is accepted.
func (x *Stream) Listen(backlog int, cb ConnectionCallback) error {
	if err := x.CheckOpen(); err != nil {
		return err
	}
	if cb == nil || x.fd < 0 {
		return ioerr.Build(ioerr.EINVAL, `listen`, ``, ``)
	}
	if x.flags&(flagReadable|flagWritable) != 0 || x.connectReq != nil {
		return ioerr.Build(ioerr.EISCONN, `listen`, ``, ``)
	}
	if err := unix.Listen(x.fd, backlog); err != nil {
		return ioerr.New(err, `listen`, ``)
	}
	x.listenCb = cb
	x.flags |= flagListening
	return x.updateWatcher(`listen`)
}

func (x *Stream) onConnection() {
	if x.accepted >= 0 {
		x.refresh()
		return
	}
	var (
		fd  int
		err error
	)
	for {
		fd, _, err = sock.Accept(x.fd)
		if err != unix.EINTR {
			break
		}
	}
	switch {
	case err == nil:
		x.accepted = fd
		x.refresh()
	case sock.Temporary(err), err == unix.ECONNABORTED:
		return
	default:
		err = ioerr.New(err, `accept`, ``)
	}
	if cb := x.listenCb; cb != nil {
		cb(err)
	}
}

// Accept moves the connection held by a listening stream onto client, which
// must be a new handle of the same kind as x.
func (x *Stream) Accept(client eventloop.Handle) error {
	if x.flags&flagListening == 0 {
		return ioerr.Build(ioerr.EINVAL, `accept`, ``, ``)
	}
	if x.accepted < 0 {
		return ioerr.Build(ioerr.EAGAIN, `accept`, ``, ``)
	}
	s, ok := client.(streamer)
	if !ok || s.Kind() != x.Kind() {
		return ioerr.Build(ioerr.EINVAL, `accept`, ``, ``)
	}
	if err := s.stream().open(x.accepted, flagReadable|flagWritable); err != nil {
		return err
	}
	x.accepted = -1
	return x.updateWatcher(`accept`)
}

// connect starts a non-blocking connect to sa. The outcome is always
// delivered to cb, from a later loop task or readiness notification.
func (x *Stream) connect(sa unix.Sockaddr, path string, ctx any, cb Callback) error {
	if x.connectReq != nil {
		return ioerr.Build(ioerr.EALREADY, `connect`, ``, path)
	}
	if x.flags&(flagReadable|flagWritable|flagListening) != 0 {
		return ioerr.Build(ioerr.EISCONN, `connect`, ``, path)
	}
	var err error
	for {
		err = unix.Connect(x.fd, sa)
		if err != unix.EINTR {
			break
		}
	}
	req := x.newRequest(eventloop.OpConnect, ctx, func(c eventloop.Completion) {
		if cb != nil {
			cb(c.Context, c.Err)
		}
	})
	req.Path = path
	switch err {
	case nil:
		x.flags |= flagReadable | flagWritable
		x.completeLater(req, nil)
	case unix.EINPROGRESS:
		x.connectReq = req
		return x.updateWatcher(`connect`)
	default:
		x.completeLater(req, ioerr.New(err, `connect`, path))
	}
	return nil
}

func (x *Stream) finishConnect() {
	req := x.connectReq
	x.connectReq = nil
	err := sock.PendingError(x.fd)
	if err == nil {
		x.flags |= flagReadable | flagWritable
	}
	x.refresh()
	req.Complete(nil, ioerr.New(err, `connect`, req.Path))
	if x.IsClosing() {
		return
	}
	if x.writes.Length() > 0 {
		x.flushWrites()
	} else if x.shutdownReq != nil {
		x.later(x.maybeShutdown)
	}
}
