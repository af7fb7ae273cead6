package stream

import (
	"github.com/joeycumines/go-uvio/eventloop"
	"github.com/joeycumines/go-uvio/internal/sock"
	"github.com/joeycumines/go-uvio/ioerr"
	"golang.org/x/sys/unix"
)

// Pipe is a unix domain stream socket handle. An ipc pipe may pass handles
// to its peer, see [Stream.Write2].
type Pipe struct {
	Stream
	// bound is the path created by Bind, removed on close
	bound string
}

// NewPipe creates a pipe handle bound to loop.
func NewPipe(loop *eventloop.Loop, ipc bool) *Pipe {
	x := &Pipe{}
	x.init(loop, eventloop.KindPipe, x, ipc)
	return x
}

// NewPipePair creates two connected pipes, for communication within a
// process (or with a child, via Fileno).
func NewPipePair(loop *eventloop.Loop, ipc bool) (*Pipe, *Pipe, error) {
	fds, err := sock.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM)
	if err != nil {
		return nil, nil, ioerr.New(err, `socketpair`, ``)
	}
	a, b := NewPipe(loop, ipc), NewPipe(loop, ipc)
	if err := a.open(fds[0], flagReadable|flagWritable); err != nil {
		return nil, nil, err
	}
	if err := b.open(fds[1], flagReadable|flagWritable); err != nil {
		a.Close(nil)
		return nil, nil, err
	}
	return a, b, nil
}

// IPC reports whether the pipe supports handle passing.
func (x *Pipe) IPC() bool { return x.ipc }

// Open adopts fd, a unix domain stream socket. As with [TCP.Open], only a
// connected socket is readable and writable.
func (x *Pipe) Open(fd int) error { return x.openInherited(fd) }

// Bind creates, and binds to, the socket at name.
func (x *Pipe) Bind(name string) error {
	if err := x.CheckOpen(); err != nil {
		return err
	}
	if x.fd >= 0 {
		return ioerr.Build(ioerr.EINVAL, `bind`, ``, name)
	}
	if err := x.socket(); err != nil {
		return err
	}
	if err := unix.Bind(x.fd, &unix.SockaddrUnix{Name: name}); err != nil {
		err = ioerr.New(err, `bind`, name)
		x.discard()
		return err
	}
	x.bound = name
	return nil
}

// Connect connects to the socket at name.
func (x *Pipe) Connect(name string, ctx any, cb Callback) error {
	if err := x.CheckOpen(); err != nil {
		return err
	}
	if x.fd < 0 {
		if err := x.socket(); err != nil {
			return err
		}
	}
	return x.connect(&unix.SockaddrUnix{Name: name}, name, ctx, cb)
}

// SocketName returns the path the pipe is bound to, if any.
func (x *Pipe) SocketName() (string, error) {
	return pipeName(x.fd, `getsockname`, unix.Getsockname)
}

// PeerName returns the path of the peer, if it is bound.
func (x *Pipe) PeerName() (string, error) {
	return pipeName(x.fd, `getpeername`, unix.Getpeername)
}

// Close is [Stream.Close], also removing the socket created by Bind.
func (x *Pipe) Close(cb func()) {
	if x.IsClosing() {
		return
	}
	if x.bound != `` {
		_ = unix.Unlink(x.bound)
		x.bound = ``
	}
	x.Stream.Close(cb)
}

func (x *Pipe) socket() error {
	fd, err := sock.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return ioerr.New(err, `socket`, ``)
	}
	if err := x.open(fd, 0); err != nil {
		_ = unix.Close(fd)
		return err
	}
	return nil
}

// discard closes the socket, leaving the handle open for another attempt.
func (x *Pipe) discard() {
	if x.watcher != nil {
		_ = x.watcher.Close()
		x.watcher = nil
	}
	_ = unix.Close(x.fd)
	x.fd = -1
	x.flags = 0
}

func pipeName(fd int, syscall string, get func(int) (unix.Sockaddr, error)) (string, error) {
	if fd < 0 {
		return ``, ioerr.Build(ioerr.EBADF, syscall, ``, ``)
	}
	sa, err := get(fd)
	if err != nil {
		return ``, ioerr.New(err, syscall, ``)
	}
	if sa, ok := sa.(*unix.SockaddrUnix); ok {
		return sa.Name, nil
	}
	return ``, ioerr.Build(ioerr.EINVAL, syscall, ``, ``)
}
