//go:build linux

package sock

import (
	"golang.org/x/sys/unix"
)

const (
	// SendFlags suppresses SIGPIPE on a write to a closed peer.
	SendFlags = unix.MSG_NOSIGNAL
	// RecvmsgFlags marks received descriptors close-on-exec.
	RecvmsgFlags = unix.MSG_CMSG_CLOEXEC
)

// Socket creates a socket.
func Socket(domain, typ, proto int) (int, error) {
	return unix.Socket(domain, typ|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, proto)
}

// Socketpair creates a connected pair of sockets.
func Socketpair(domain, typ int) ([2]int, error) {
	return unix.Socketpair(domain, typ|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
}

// Accept accepts a connection.
func Accept(fd int) (int, unix.Sockaddr, error) {
	return unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
}

func noSigPipe(int) error { return nil }
