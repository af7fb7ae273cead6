//go:build linux

package stream

import (
	"golang.org/x/sys/unix"
)

const keepIdleOption = unix.TCP_KEEPIDLE
