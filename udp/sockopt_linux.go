//go:build linux

package udp

import (
	"golang.org/x/sys/unix"
)

func reuseAddr(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

func setsockoptMaybeChar(fd, level, opt, v int) error {
	return unix.SetsockoptInt(fd, level, opt, v)
}
