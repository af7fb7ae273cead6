//go:build darwin

package sock

import (
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	// SendFlags is zero, as SO_NOSIGPIPE is set on every socket.
	SendFlags = 0
	// RecvmsgFlags is zero, darwin has no MSG_CMSG_CLOEXEC, see Prepare.
	RecvmsgFlags = 0
)

// Socket creates a socket. Darwin lacks SOCK_NONBLOCK and SOCK_CLOEXEC, so
// the flags are set after creation, under the fork lock.
func Socket(domain, typ, proto int) (int, error) {
	syscall.ForkLock.RLock()
	fd, err := unix.Socket(domain, typ, proto)
	if err == nil {
		unix.CloseOnExec(fd)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return -1, err
	}
	if err := Prepare(fd); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Socketpair creates a connected pair of sockets.
func Socketpair(domain, typ int) ([2]int, error) {
	syscall.ForkLock.RLock()
	fds, err := unix.Socketpair(domain, typ, 0)
	if err == nil {
		unix.CloseOnExec(fds[0])
		unix.CloseOnExec(fds[1])
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return fds, err
	}
	for _, fd := range fds {
		if err := Prepare(fd); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return [2]int{-1, -1}, err
		}
	}
	return fds, nil
}

// Accept accepts a connection.
func Accept(fd int) (int, unix.Sockaddr, error) {
	syscall.ForkLock.RLock()
	nfd, sa, err := unix.Accept(fd)
	if err == nil {
		unix.CloseOnExec(nfd)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return -1, nil, err
	}
	if err := Prepare(nfd); err != nil {
		_ = unix.Close(nfd)
		return -1, nil, err
	}
	return nfd, sa, nil
}

func noSigPipe(fd int) error {
	err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_NOSIGPIPE, 1)
	if err == unix.ENOTSOCK {
		return nil
	}
	return err
}
