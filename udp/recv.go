package udp

import (
	"github.com/joeycumines/go-uvio/buffer"
	"github.com/joeycumines/go-uvio/internal/sock"
	"github.com/joeycumines/go-uvio/ioerr"
	"github.com/joeycumines/go-uvio/netaddr"
	"golang.org/x/sys/unix"
)

// recvsPerEvent bounds the datagrams read per readiness notification.
const recvsPerEvent = 32

// RecvStart starts delivering datagrams to cb, first binding to 0.0.0.0:0 if
// the socket is not yet bound. Calling RecvStart while already receiving is
// a no-op.
func (x *UDP) RecvStart(cb RecvCallback) error {
	if err := x.CheckOpen(); err != nil {
		return err
	}
	if cb == nil {
		return ioerr.Build(ioerr.EINVAL, `recv_start`, ``, ``)
	}
	if x.reading {
		return nil
	}
	if !x.bound {
		var err error
		if x.fd >= 0 && x.domain == unix.AF_INET6 {
			err = x.Bind6(`::`, 0, 0)
		} else {
			err = x.Bind(`0.0.0.0`, 0, 0)
		}
		if err != nil && ioerr.Code(err) != ioerr.EINVAL {
			// EINVAL means already bound, e.g. implicitly by a send
			return err
		}
		x.bound = true
	}
	x.recvCb = cb
	x.reading = true
	return x.updateWatcher(`recv_start`)
}

// RecvStop stops delivering datagrams.
func (x *UDP) RecvStop() error {
	if !x.reading {
		return nil
	}
	x.reading = false
	x.recvCb = nil
	return x.updateWatcher(`recv_stop`)
}

func (x *UDP) onReadable() {
	for i := 0; i < recvsPerEvent && x.reading && !x.IsClosing(); i++ {
		if !x.recvOnce() {
			return
		}
	}
}

func (x *UDP) recvOnce() bool {
	lease := buffer.Default.Scratch(x.recvSize)
	defer lease.Release()

	var (
		n, flags int
		from     unix.Sockaddr
		err      error
	)
	for {
		n, _, flags, from, err = unix.Recvmsg(x.fd, lease.Bytes(), nil, 0)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		if sock.Temporary(err) {
			return false
		}
		x.deliver(nil, nil, 0, ioerr.New(err, `recv`, ``))
		return true
	}
	addr, rf, ok := datagramOf(n, flags, from)
	if ok {
		x.deliver(lease.Commit(n), addr, rf, nil)
	}
	return true
}

// datagramOf interprets the result of a successful recvmsg. An empty read
// with no sender carries nothing, and is not delivered, while an empty
// datagram from a known sender is.
func datagramOf(n, flags int, from unix.Sockaddr) (*netaddr.Address, RecvFlags, bool) {
	addr, known := netaddr.FromSockaddr(from)
	if n == 0 && !known {
		return nil, 0, false
	}
	var rf RecvFlags
	if flags&unix.MSG_TRUNC != 0 {
		rf |= Partial
	}
	if !known {
		return nil, rf, true
	}
	return &addr, rf, true
}

func (x *UDP) deliver(data []byte, addr *netaddr.Address, flags RecvFlags, err error) {
	if cb := x.recvCb; cb != nil {
		cb(data, addr, flags, err)
	}
}
