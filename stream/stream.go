package stream

import (
	"github.com/eapache/queue"
	"github.com/joeycumines/go-uvio/buffer"
	"github.com/joeycumines/go-uvio/eventloop"
	"github.com/joeycumines/go-uvio/internal/sock"
	"github.com/joeycumines/go-uvio/ioerr"
	"golang.org/x/sys/unix"
)

type (
	// Stream is the core shared by all stream handles. It is not used
	// directly, see [TCP] and [Pipe].
	Stream struct {
		eventloop.HandleBase
		loop        *eventloop.Loop
		self        eventloop.Handle
		watcher     *eventloop.IOWatcher
		writes      *queue.Queue
		readCb      ReadCallback
		listenCb    ConnectionCallback
		connectReq  *eventloop.Request
		shutdownReq *eventloop.Request
		// configure is applied to every fd the stream adopts
		configure func(fd int) error
		fd        int
		// accepted is the connection held for Accept, or -1
		accepted int
		queued   int
		flags    streamFlags
		ipc      bool
	}

	// ReadCallback receives data, a handle passed by the peer, or an error.
	// Only one of data and pending is set per call, and data is never empty.
	// End of stream is delivered as an error matching io.EOF.
	//
	// The data is library owned scratch, which is reused for later reads once
	// the callback returns, so it must be copied (e.g. with [bytes.Clone]) to
	// be retained.
	ReadCallback func(data []byte, pending Pending, err error)

	// WriteCallback receives the outcome of a write. The data is the
	// caller's bytes, if the write used a pinned region, or nil.
	WriteCallback func(ctx any, data []byte, err error)

	// Callback receives the outcome of a connect or shutdown.
	Callback func(ctx any, err error)

	// ConnectionCallback is called when a listening stream has a connection
	// ready for Accept.
	ConnectionCallback func(err error)

	streamFlags uint16
)

const (
	flagReadable streamFlags = 1 << iota
	flagWritable
	flagReading
	flagListening
	flagShutdown
	flagBlocking
)

// readsPerEvent bounds the reads performed per readiness notification, so a
// fast peer cannot starve the rest of the loop.
const readsPerEvent = 32

func (x *Stream) init(loop *eventloop.Loop, kind eventloop.HandleKind, self eventloop.Handle, ipc bool) {
	x.loop = loop
	x.self = self
	x.fd = -1
	x.accepted = -1
	x.writes = queue.New()
	x.ipc = ipc
	x.Init(loop, kind, self)
}

func (x *Stream) stream() *Stream { return x }

// open adopts fd, which must already be non-blocking.
func (x *Stream) open(fd int, flags streamFlags) error {
	if err := x.CheckOpen(); err != nil {
		return err
	}
	if x.fd >= 0 {
		return ioerr.Build(ioerr.EBUSY, `open`, ``, ``)
	}
	if x.configure != nil {
		if err := x.configure(fd); err != nil {
			return err
		}
	}
	x.fd = fd
	x.watcher = x.loop.NewIOWatcher(fd, x.onIO)
	x.flags |= flags
	return nil
}

// openInherited prepares an inherited or received fd, and opens the stream
// with it. Only a connected socket is readable and writable, so a listener
// may still Listen, and an unconnected socket may still Connect.
func (x *Stream) openInherited(fd int) error {
	if err := sock.Prepare(fd); err != nil {
		return ioerr.New(err, `open`, ``)
	}
	var flags streamFlags
	listening, err := sock.Listening(fd)
	if err != nil {
		return ioerr.New(err, `open`, ``)
	}
	if _, err := unix.Getpeername(fd); !listening && err != unix.ENOTCONN {
		// an address that fails to decode still has a peer
		flags = flagReadable | flagWritable
	}
	return x.open(fd, flags)
}

// Fileno returns the underlying descriptor, which remains owned by the
// stream.
func (x *Stream) Fileno() (int, error) {
	if x.fd < 0 {
		return -1, ioerr.Build(ioerr.EBADF, `fileno`, ``, ``)
	}
	return x.fd, nil
}

// IsReadable reports whether the stream is connected, and has not reached
// end of stream.
func (x *Stream) IsReadable() bool { return x.fd >= 0 && x.flags&flagReadable != 0 }

// IsWritable reports whether the stream is connected, and has not been
// shut down.
func (x *Stream) IsWritable() bool {
	return x.fd >= 0 && x.flags&flagWritable != 0 && x.flags&flagShutdown == 0
}

// WriteQueueSize returns the number of bytes queued, but not yet written.
func (x *Stream) WriteQueueSize() int { return x.queued }

// SetBlocking toggles blocking mode on the descriptor. A blocking stream
// blocks the loop on every read and write, and is intended for handing
// descriptors to code that expects blocking I/O.
func (x *Stream) SetBlocking(blocking bool) error {
	if x.fd < 0 {
		return ioerr.Build(ioerr.EBADF, `set_blocking`, ``, ``)
	}
	if err := unix.SetNonblock(x.fd, !blocking); err != nil {
		return ioerr.New(err, `set_blocking`, ``)
	}
	if blocking {
		x.flags |= flagBlocking
	} else {
		x.flags &^= flagBlocking
	}
	return nil
}

// ReadStart starts delivering data to cb. Calling ReadStart while reading
// replaces the callback.
func (x *Stream) ReadStart(cb ReadCallback) error {
	if err := x.CheckOpen(); err != nil {
		return err
	}
	if cb == nil {
		return ioerr.Build(ioerr.EINVAL, `read_start`, ``, ``)
	}
	if !x.IsReadable() {
		return ioerr.Build(ioerr.ENOTCONN, `read_start`, ``, ``)
	}
	x.readCb = cb
	x.flags |= flagReading
	return x.updateWatcher(`read_start`)
}

// ReadStop stops delivering data. Stopping a stream that is not reading is
// a no-op.
func (x *Stream) ReadStop() error {
	if x.flags&flagReading == 0 {
		return nil
	}
	x.flags &^= flagReading
	x.readCb = nil
	return x.updateWatcher(`read_stop`)
}

// Shutdown closes the write side of the stream, once every queued write has
// been attempted. Reads continue until end of stream.
func (x *Stream) Shutdown(ctx any, cb Callback) error {
	if err := x.CheckOpen(); err != nil {
		return err
	}
	if !x.IsWritable() || x.shutdownReq != nil {
		return ioerr.Build(ioerr.ENOTCONN, `shutdown`, ``, ``)
	}
	req := x.newRequest(eventloop.OpShutdown, ctx, func(c eventloop.Completion) {
		if cb != nil {
			cb(c.Context, c.Err)
		}
	})
	x.shutdownReq = req
	x.flags |= flagShutdown
	if x.writes.Length() == 0 && x.connectReq == nil {
		x.later(x.maybeShutdown)
	}
	return nil
}

func (x *Stream) maybeShutdown() {
	req := x.shutdownReq
	if req == nil || x.fd < 0 || x.writes.Length() > 0 || x.connectReq != nil {
		return
	}
	x.shutdownReq = nil
	err := unix.Shutdown(x.fd, unix.SHUT_WR)
	x.flags &^= flagWritable
	req.Complete(nil, ioerr.New(err, `shutdown`, ``))
}

// Close closes the stream. Queued writes, and any pending shutdown or
// connect, complete with ECANCELED before cb is called.
func (x *Stream) Close(cb func()) {
	if x.IsClosing() {
		return
	}
	if x.watcher != nil {
		_ = x.watcher.Close()
		x.watcher = nil
	}
	if x.accepted >= 0 {
		_ = unix.Close(x.accepted)
		x.accepted = -1
	}
	if x.fd >= 0 {
		if err := unix.Close(x.fd); err != nil {
			x.loop.Logger().Warning().
				Stringer("kind", x.Kind()).
				Int("fd", x.fd).
				Err(err).
				Log("stream: close failed")
		}
		x.fd = -1
	}
	x.flags = 0
	x.readCb = nil
	x.listenCb = nil
	_ = x.BeginClose(cb, x.cancelAll)
}

// cancelAll runs from the close phase.
func (x *Stream) cancelAll() {
	if req := x.connectReq; req != nil {
		x.connectReq = nil
		req.Cancel(nil)
	}
	for x.writes.Length() > 0 {
		w := x.writes.Remove().(*writeReq)
		if w.req.Pending() {
			w.req.Cancel(nil)
		}
	}
	x.queued = 0
	if req := x.shutdownReq; req != nil {
		x.shutdownReq = nil
		req.Cancel(nil)
	}
}

func (x *Stream) newRequest(kind eventloop.OpKind, ctx any, fn func(eventloop.Completion)) *eventloop.Request {
	req := x.loop.NewRequest(kind, ctx, fn)
	req.Handle = x.self
	req.FD = x.fd
	return req
}

// later runs fn from a loop task. Open handles imply a live loop, so the
// submit cannot fail.
func (x *Stream) later(fn func()) {
	_ = x.loop.SubmitInternal(fn)
}

func (x *Stream) completeLater(req *eventloop.Request, err error) {
	x.later(func() { req.Complete(nil, err) })
}

// updateWatcher syncs the watched events, and the handle's active state,
// with the stream's flags and queues.
func (x *Stream) updateWatcher(syscall string) error {
	active := x.flags&(flagReading|flagListening) != 0
	x.SetActive(active)
	if x.watcher == nil {
		return nil
	}
	var events eventloop.IOEvents
	if x.flags&flagReading != 0 || (x.flags&flagListening != 0 && x.accepted < 0) {
		events |= eventloop.EventRead
	}
	if x.connectReq != nil || x.writes.Length() > 0 {
		events |= eventloop.EventWrite
	}
	if err := x.watcher.Set(events); err != nil {
		return ioerr.New(err, syscall, ``)
	}
	return nil
}

// refresh is updateWatcher, from a context with no caller to report to.
func (x *Stream) refresh() {
	if err := x.updateWatcher(`poll`); err != nil {
		x.loop.Logger().Err().
			Stringer("kind", x.Kind()).
			Int("fd", x.fd).
			Err(err).
			Log("stream: failed to update watcher")
	}
}

func (x *Stream) onIO(events eventloop.IOEvents) {
	const (
		readable = eventloop.EventRead | eventloop.EventError | eventloop.EventHangup
		writable = eventloop.EventWrite | eventloop.EventError | eventloop.EventHangup
	)
	if events&writable != 0 && x.connectReq != nil {
		x.finishConnect()
	}
	if events&readable != 0 && !x.IsClosing() {
		switch {
		case x.flags&flagListening != 0:
			x.onConnection()
		case x.flags&flagReading != 0:
			x.onReadable()
		}
	}
	if events&writable != 0 && !x.IsClosing() && x.connectReq == nil && x.writes.Length() > 0 {
		x.flushWrites()
	}
}

func (x *Stream) onReadable() {
	for i := 0; i < readsPerEvent; i++ {
		if x.flags&flagReading == 0 || x.IsClosing() || !x.readOnce() {
			return
		}
	}
}

// readOnce performs a single read, returning true if another may follow.
func (x *Stream) readOnce() bool {
	lease := buffer.Default.Scratch(buffer.StreamSize)
	defer lease.Release()

	n, fds, err := x.recv(lease.Bytes())
	switch {
	case err != nil && sock.Temporary(err):
		return false
	case err != nil:
		x.endRead()
		x.deliver(nil, nil, ioerr.New(err, `read`, ``))
		return false
	case n == 0 && len(fds) == 0:
		x.endRead()
		x.deliver(nil, nil, ioerr.Build(ioerr.EOF, `read`, ``, ``))
		return false
	}

	if n > 0 {
		x.deliver(lease.Commit(n), nil, nil)
	}
	for _, fd := range fds {
		if x.IsClosing() {
			_ = unix.Close(fd)
			continue
		}
		p, err := adopt(x.loop, fd)
		if err != nil {
			x.deliver(nil, nil, err)
			continue
		}
		x.loop.Logger().Debug().
			Stringer("kind", p.Handle().Kind()).
			Int("fd", fd).
			Log("stream: received pending handle")
		x.deliver(nil, p, nil)
	}
	return true
}

func (x *Stream) endRead() {
	x.flags &^= flagReadable | flagReading
	x.refresh()
}

func (x *Stream) deliver(data []byte, pending Pending, err error) {
	if cb := x.readCb; cb != nil {
		cb(data, pending, err)
	} else if pending != nil {
		// reading stopped by an earlier callback, nobody owns it
		pending.Handle().Close(nil)
	}
}

// maxFDsPerRead bounds the descriptors accepted from a single message.
const maxFDsPerRead = 16

func (x *Stream) recv(b []byte) (int, []int, error) {
	if !x.ipc {
		for {
			n, err := unix.Read(x.fd, b)
			if err != unix.EINTR {
				return max(n, 0), nil, err
			}
		}
	}
	oob := make([]byte, unix.CmsgSpace(4*maxFDsPerRead))
	var (
		n, oobn int
		err     error
	)
	for {
		n, oobn, _, _, err = unix.Recvmsg(x.fd, b, oob, sock.RecvmsgFlags)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return 0, nil, err
	}
	return n, receivedFDs(oob[:oobn]), nil
}

// receivedFDs extracts SCM_RIGHTS descriptors, preparing each for use.
func receivedFDs(oob []byte) []int {
	if len(oob) == 0 {
		return nil
	}
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil
	}
	var fds []int
	for i := range msgs {
		rights, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}
		for _, fd := range rights {
			if err := sock.Prepare(fd); err != nil {
				_ = unix.Close(fd)
				continue
			}
			fds = append(fds, fd)
		}
	}
	return fds
}
