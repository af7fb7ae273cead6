// Package sock wraps the socket syscalls shared by the stream and udp
// packages. Every descriptor it returns is non-blocking and close-on-exec.
package sock

import (
	"golang.org/x/sys/unix"
)

// Kind classifies a socket received via descriptor passing.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindTCP
	KindUnix
	KindUDP
)

// KindOf determines the kind of socket fd is, from its SO_TYPE and its
// address family.
func KindOf(fd int) (Kind, error) {
	typ, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TYPE)
	if err != nil {
		return KindUnknown, err
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return KindUnknown, err
	}
	switch sa.(type) {
	case *unix.SockaddrUnix:
		if typ == unix.SOCK_STREAM {
			return KindUnix, nil
		}
	case *unix.SockaddrInet4, *unix.SockaddrInet6:
		switch typ {
		case unix.SOCK_STREAM:
			return KindTCP, nil
		case unix.SOCK_DGRAM:
			return KindUDP, nil
		}
	}
	return KindUnknown, nil
}

// Domain returns the address family fd was bound or connected with.
func Domain(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, err
	}
	switch sa.(type) {
	case *unix.SockaddrInet4:
		return unix.AF_INET, nil
	case *unix.SockaddrInet6:
		return unix.AF_INET6, nil
	case *unix.SockaddrUnix:
		return unix.AF_UNIX, nil
	default:
		return unix.AF_UNSPEC, nil
	}
}

// Listening reports whether fd is a listening socket, per SO_ACCEPTCONN.
func Listening(fd int) (bool, error) {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ACCEPTCONN)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// PendingError returns (and clears) the socket's SO_ERROR, as a
// unix.Errno, or nil.
func PendingError(fd int) error {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if v != 0 {
		return unix.Errno(v)
	}
	return nil
}

// Prepare makes an inherited or received descriptor non-blocking and
// close-on-exec.
func Prepare(fd int) error {
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		return err
	}
	return noSigPipe(fd)
}

// Temporary reports whether err means the operation should be retried once
// the socket is ready.
func Temporary(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR
}
