package ioerr

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// Codes are negated errno values. EOF and ECHARSET have no errno equivalent,
// and use values outside the errno range.
const (
	EOF      = -4095
	ECHARSET = -4080

	E2BIG           = -int(unix.E2BIG)
	EACCES          = -int(unix.EACCES)
	EADDRINUSE      = -int(unix.EADDRINUSE)
	EADDRNOTAVAIL   = -int(unix.EADDRNOTAVAIL)
	EAFNOSUPPORT    = -int(unix.EAFNOSUPPORT)
	EAGAIN          = -int(unix.EAGAIN)
	EALREADY        = -int(unix.EALREADY)
	EBADF           = -int(unix.EBADF)
	EBUSY           = -int(unix.EBUSY)
	ECANCELED       = -int(unix.ECANCELED)
	ECONNABORTED    = -int(unix.ECONNABORTED)
	ECONNREFUSED    = -int(unix.ECONNREFUSED)
	ECONNRESET      = -int(unix.ECONNRESET)
	EEXIST          = -int(unix.EEXIST)
	EINVAL          = -int(unix.EINVAL)
	EIO             = -int(unix.EIO)
	EISCONN         = -int(unix.EISCONN)
	EISDIR          = -int(unix.EISDIR)
	EMFILE          = -int(unix.EMFILE)
	ENAMETOOLONG    = -int(unix.ENAMETOOLONG)
	ENOBUFS         = -int(unix.ENOBUFS)
	ENOENT          = -int(unix.ENOENT)
	ENOMEM          = -int(unix.ENOMEM)
	ENOSPC          = -int(unix.ENOSPC)
	ENOSYS          = -int(unix.ENOSYS)
	ENOTCONN        = -int(unix.ENOTCONN)
	ENOTDIR         = -int(unix.ENOTDIR)
	ENOTEMPTY       = -int(unix.ENOTEMPTY)
	ENOTSOCK        = -int(unix.ENOTSOCK)
	ENOTSUP         = -int(unix.ENOTSUP)
	EPERM           = -int(unix.EPERM)
	EPIPE           = -int(unix.EPIPE)
	EPROTONOSUPPORT = -int(unix.EPROTONOSUPPORT)
	ETIMEDOUT       = -int(unix.ETIMEDOUT)
	EXDEV           = -int(unix.EXDEV)
)

// extra holds the codes that are not errno values.
var extra = map[int][2]string{
	EOF:      {`EOF`, `end of file`},
	ECHARSET: {`ECHARSET`, `invalid Unicode character`},
}

// Describe returns the symbolic name and message for a negative error code.
// Unknown codes describe as UNKNOWN.
func Describe(code int) (name, message string) {
	if v, ok := extra[code]; ok {
		return v[0], v[1]
	}
	if code < 0 {
		errno := syscall.Errno(-code)
		if name = unix.ErrnoName(errno); name != `` {
			return name, errno.Error()
		}
	}
	return `UNKNOWN`, `unknown error`
}

// Name is the symbolic half of [Describe].
func Name(code int) string {
	name, _ := Describe(code)
	return name
}

// Errno returns the errno for code, and false for a code that has none.
func Errno(code int) (syscall.Errno, bool) {
	if code >= 0 {
		return 0, false
	}
	if _, ok := extra[code]; ok || code == unknownCode {
		return 0, false
	}
	return syscall.Errno(-code), true
}
