// Package ioerr maps OS error codes to structured errors.
//
// Every OS or argument failure surfaced by the go-uvio packages is an
// [*Error], carrying the negative error code, its symbolic name, a human
// readable message, and (where known) the failed syscall and the offending
// path. The text returned by [Error.Error] is stable, and is considered part
// of the observable contract:
//
//	ENOENT, no such file or directory '/tmp/missing'
//
// Loop and handle lifecycle conditions are not OS failures, and are reported
// as the eventloop sentinels instead, such as eventloop.ErrHandleClosing and
// eventloop.ErrLoopTerminated, matched with [errors.Is]. They never match an
// [*Error] target, and [Code] reports them as UNKNOWN.
package ioerr

import (
	"errors"
	"io"
	"os"
	"strings"
	"syscall"
)

type (
	// Error is the structured form of an OS or library failure.
	Error struct {
		// cause is the original error, if any, for Unwrap
		cause error
		// Name is the symbolic name, e.g. ENOENT.
		Name string
		// Message is the human readable message, either the mapped message
		// for Code, or the override passed to Build.
		Message string
		// Syscall is the name of the failed operation, may be empty.
		Syscall string
		// Path is the offending path, may be empty.
		Path string
		// Code is the negative error code.
		Code int
	}
)

var (
	// ErrUnknown is matched by errors.Is for any Error that has no errno.
	ErrUnknown = errors.New("ioerr: unknown error")
)

// Build composes an Error. An empty message uses the mapped message for code.
// A non-empty path is cleaned, quoted into the error text, and retained on the
// Path field.
func Build(code int, syscall, message, path string) *Error {
	name, mapped := Describe(code)
	if message == `` {
		message = mapped
	}
	return &Error{
		Code:    code,
		Name:    name,
		Message: message,
		Syscall: syscall,
		Path:    CleanPath(path),
	}
}

// New converts err to an *Error, returning nil if err is nil. Errors that are
// already an *Error are returned as is, unless they lack a syscall or path,
// in which case a copy with those filled in is returned.
func New(err error, syscall, path string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if (e.Syscall != `` || syscall == ``) && (e.Path != `` || path == ``) {
			return e
		}
		c := *e
		if c.Syscall == `` {
			c.Syscall = syscall
		}
		if c.Path == `` {
			c.Path = CleanPath(path)
		}
		return &c
	}
	r := Build(Code(err), syscall, ``, path)
	r.cause = err
	return r
}

// Code returns the negative error code for err, 0 for nil, or the code for
// UNKNOWN if err has no errno.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, io.EOF) {
		return EOF
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && errno != 0 {
		return -int(errno)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ETIMEDOUT
	}
	return unknownCode
}

// unknownCode is outside the errno range, and has no name.
const unknownCode = -4094

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.Grow(len(e.Name) + len(e.Message) + len(e.Path) + 5)
	b.WriteString(e.Name)
	b.WriteString(`, `)
	b.WriteString(e.Message)
	if e.Path != `` {
		b.WriteString(` '`)
		b.WriteString(e.Path)
		b.WriteString(`'`)
	}
	return b.String()
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is supports errors.Is against syscall.Errno values (and therefore the
// golang.org/x/sys/unix constants), io.EOF, other *Error values, by code,
// and ErrUnknown.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case syscall.Errno:
		errno, ok := Errno(e.Code)
		return ok && errno == t
	case *Error:
		return t != nil && t.Code == e.Code
	}
	switch target {
	case io.EOF:
		return e.Code == EOF
	case ErrUnknown:
		return e.Code == unknownCode
	}
	return false
}

// Errno returns the errno equivalent of e, if any.
func (e *Error) Errno() (syscall.Errno, bool) { return Errno(e.Code) }
