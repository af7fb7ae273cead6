package stream

import (
	"fmt"

	"github.com/joeycumines/go-uvio/buffer"
	"github.com/joeycumines/go-uvio/eventloop"
	"github.com/joeycumines/go-uvio/internal/sock"
	"github.com/joeycumines/go-uvio/ioerr"
	"golang.org/x/sys/unix"
)

type (
	writeReq struct {
		req   *eventloop.Request
		lease *buffer.Lease
		// buf is the unwritten remainder
		buf []byte
		// sendFD is the descriptor to pass with the first byte, or -1
		sendFD int
	}

	// filer is implemented by every handle that may be passed via Write2.
	filer interface {
		Fileno() (int, error)
	}
)

// Write queues the bytes of r to be written. A copied region is snapshot
// before Write returns, a pinned region must not be modified until cb is
// called.
func (x *Stream) Write(r buffer.Region, ctx any, cb WriteCallback) error {
	return x.write(r, -1, ctx, cb)
}

// Write2 is Write, additionally passing send to the peer, which must be a
// [*TCP], [*Pipe], or a UDP handle. It is only supported by ipc pipes. The
// sending side keeps its own handle open.
func (x *Stream) Write2(r buffer.Region, send eventloop.Handle, ctx any, cb WriteCallback) error {
	if !x.ipc {
		return ioerr.Build(ioerr.EINVAL, `write2`, ``, ``)
	}
	f, ok := send.(filer)
	if !ok {
		return ioerr.Build(ioerr.EINVAL, `write2`, ``, ``)
	}
	fd, err := f.Fileno()
	if err != nil {
		return err
	}
	if r.Len() == 0 {
		// the descriptor must ride on at least one byte
		return ioerr.Build(ioerr.EINVAL, `write2`, ``, ``)
	}
	return x.write(r, fd, ctx, cb)
}

func (x *Stream) write(r buffer.Region, sendFD int, ctx any, cb WriteCallback) error {
	if err := x.CheckOpen(); err != nil {
		return err
	}
	if x.flags&flagShutdown != 0 {
		return ioerr.Build(ioerr.EPIPE, `write`, ``, ``)
	}
	if x.fd < 0 || (x.flags&flagWritable == 0 && x.connectReq == nil) {
		return ioerr.Build(ioerr.ENOTCONN, `write`, ``, ``)
	}
	lease, err := buffer.Default.Stage(r)
	if err != nil {
		return fmt.Errorf("stream: write: %w", err)
	}
	var pinned []byte
	if lease.Pinned() {
		pinned = r.Bytes()
	}
	w := &writeReq{lease: lease, buf: lease.Bytes(), sendFD: sendFD}
	w.req = x.newRequest(eventloop.OpStreamWrite, ctx, func(c eventloop.Completion) {
		lease.Release()
		if cb != nil {
			cb(c.Context, pinned, c.Err)
		}
	})
	x.writes.Add(w)
	x.queued += len(w.buf)
	if x.writes.Length() == 1 && x.connectReq == nil {
		x.flushWrites()
		return nil
	}
	return x.updateWatcher(`write`)
}

// flushWrites writes as much of the queue as the socket accepts, in order.
func (x *Stream) flushWrites() {
	for x.writes.Length() > 0 && x.fd >= 0 {
		w := x.writes.Peek().(*writeReq)
		n, err := x.send(w)
		if n > 0 {
			w.buf = w.buf[n:]
			x.queued -= n
		}
		if err != nil && sock.Temporary(err) {
			break
		}
		if err == nil && len(w.buf) > 0 {
			if n == 0 {
				break
			}
			continue
		}
		x.writes.Remove()
		x.queued -= len(w.buf)
		x.completeLater(w.req, ioerr.New(err, `write`, ``))
	}
	x.refresh()
	if x.writes.Length() == 0 && x.shutdownReq != nil {
		x.later(x.maybeShutdown)
	}
}

func (x *Stream) send(w *writeReq) (int, error) {
	for {
		var (
			n   int
			err error
		)
		if w.sendFD >= 0 {
			n, err = unix.SendmsgN(x.fd, w.buf, unix.UnixRights(w.sendFD), nil, sock.SendFlags)
			if err == nil {
				w.sendFD = -1
			}
		} else {
			n, err = unix.Write(x.fd, w.buf)
		}
		if err != unix.EINTR {
			return max(n, 0), err
		}
	}
}
