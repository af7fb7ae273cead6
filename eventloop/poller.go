package eventloop

import (
	"errors"
)

// maxFDs is the initial size of the per-fd callback table.
const maxFDs = 4096

// maxFDLimit is the maximum FD value supported by dynamic growth.
const maxFDLimit = 100000000

// IOEvents represents the type of I/O events to monitor.
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

// Standard errors.
var (
	ErrFDOutOfRange        = errors.New("eventloop: fd out of range (max 100000000)")
	ErrFDAlreadyRegistered = errors.New("eventloop: fd already registered")
	ErrFDNotRegistered     = errors.New("eventloop: fd not registered")
	ErrPollerClosed        = errors.New("eventloop: poller closed")
)

// ioCallback is the callback type for I/O events.
type ioCallback func(IOEvents)

// fdInfo stores per-FD callback information.
type fdInfo struct {
	callback ioCallback
	events   IOEvents
	active   bool
}

// growFDs ensures fds can be indexed by fd. Must be called with the lock held.
func growFDs(fds []fdInfo, fd int) []fdInfo {
	if fd < len(fds) {
		return fds
	}
	newSize := max(fd*2+1, maxFDs)
	if newSize > maxFDLimit {
		newSize = maxFDLimit + 1
	}
	newFds := make([]fdInfo, newSize)
	copy(newFds, fds)
	return newFds
}
