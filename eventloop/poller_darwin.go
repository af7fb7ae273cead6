//go:build darwin

package eventloop

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// fastPoller manages I/O event registration using kqueue (Darwin).
//
// kqueue reports read and write readiness as separate events, so a single
// PollIO may invoke the callback for an fd twice.
type fastPoller struct { // betteralign:ignore
	_        [sizeOfCacheLine]byte     // Cache line padding //nolint:unused
	kq       int32                     // kqueue file descriptor
	_        [sizeOfCacheLine - 4]byte // Pad to cache line //nolint:unused
	eventBuf [256]unix.Kevent_t        // Preallocated event buffer
	fds      []fdInfo                  // Dynamic slice, grows on demand
	fdMu     sync.RWMutex              // Protects fds array access
	closed   atomic.Bool               // Closed flag
}

// Init initializes the kqueue instance.
func (p *fastPoller) Init() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = int32(kq)
	p.fds = make([]fdInfo, maxFDs)
	return nil
}

// Close closes the kqueue instance.
func (p *fastPoller) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	if p.kq > 0 {
		return unix.Close(int(p.kq))
	}
	return nil
}

// RegisterFD registers a file descriptor for I/O event monitoring.
func (p *fastPoller) RegisterFD(fd int, events IOEvents, cb ioCallback) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= maxFDLimit {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	defer p.fdMu.Unlock()
	p.fds = growFDs(p.fds, fd)
	if p.fds[fd].active {
		return ErrFDAlreadyRegistered
	}
	if kevents := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE); len(kevents) > 0 {
		if _, err := unix.Kevent(int(p.kq), kevents, nil, nil); err != nil {
			return err
		}
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	return nil
}

// UnregisterFD removes a file descriptor from monitoring.
func (p *fastPoller) UnregisterFD(fd int) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	defer p.fdMu.Unlock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		return ErrFDNotRegistered
	}
	if kevents := eventsToKevents(fd, p.fds[fd].events, unix.EV_DELETE); len(kevents) > 0 {
		_, _ = unix.Kevent(int(p.kq), kevents, nil, nil) // fd may already be closed
	}
	p.fds[fd] = fdInfo{}
	return nil
}

// ModifyFD updates the events being monitored for a file descriptor.
func (p *fastPoller) ModifyFD(fd int, events IOEvents) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	oldEvents := p.fds[fd].events
	p.fds[fd].events = events
	p.fdMu.Unlock()

	if removed := oldEvents &^ events; removed != 0 {
		_, _ = unix.Kevent(int(p.kq), eventsToKevents(fd, removed, unix.EV_DELETE), nil, nil)
	}
	if added := events &^ oldEvents; added != 0 {
		if _, err := unix.Kevent(int(p.kq), eventsToKevents(fd, added, unix.EV_ADD|unix.EV_ENABLE), nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// PollIO polls for I/O events, blocking for at most timeoutMs (-1 blocks
// indefinitely). Returns the number of events processed.
func (p *fastPoller) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64((timeoutMs % 1000) * 1000000),
		}
	}

	n, err := unix.Kevent(int(p.kq), nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	p.dispatchEvents(n)

	return n, nil
}

// dispatchEvents executes callbacks inline.
// RACE SAFETY: fdInfo is copied under the read lock, then called outside it.
func (p *fastPoller) dispatchEvents(n int) {
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		if fd < 0 {
			continue
		}

		p.fdMu.RLock()
		var info fdInfo
		if fd < len(p.fds) {
			info = p.fds[fd]
		}
		p.fdMu.RUnlock()

		if info.active && info.callback != nil {
			info.callback(keventToEvents(&p.eventBuf[i]))
		}
	}
}

// eventsToKevents converts IOEvents to kqueue kevent structures.
func eventsToKevents(fd int, events IOEvents, flags uint16) []unix.Kevent_t {
	var kevents []unix.Kevent_t
	if events&EventRead != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_READ,
			Flags:  flags,
		})
	}
	if events&EventWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  flags,
		})
	}
	return kevents
}

// keventToEvents converts a kqueue event to IOEvents.
func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}
