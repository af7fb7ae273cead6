//go:build darwin

package udp

import (
	"golang.org/x/sys/unix"
)

// reuseAddr also sets SO_REUSEPORT, which BSD derived systems require for
// multiple sockets to share a multicast address.
func reuseAddr(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

// setsockoptMaybeChar sets IPv4 multicast options, which are char sized.
func setsockoptMaybeChar(fd, level, opt, v int) error {
	return unix.SetsockoptByte(fd, level, opt, byte(v))
}
