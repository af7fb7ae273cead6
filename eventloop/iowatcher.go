package eventloop

// IOWatcher delivers readiness events for a single file descriptor. It is
// the building block for handles backed by an fd, and does not itself keep
// the loop alive, see HandleBase.SetActive.
//
// The callback runs on the loop goroutine, and a panic is recovered and
// logged.
type IOWatcher struct {
	loop       *Loop
	cb         func(IOEvents)
	fd         int
	events     IOEvents
	registered bool
}

// NewIOWatcher returns a watcher for fd, with no events started.
func (l *Loop) NewIOWatcher(fd int, cb func(IOEvents)) *IOWatcher {
	return &IOWatcher{loop: l, cb: cb, fd: fd}
}

// FD returns the watched file descriptor.
func (w *IOWatcher) FD() int { return w.fd }

// Events returns the events currently started.
func (w *IOWatcher) Events() IOEvents { return w.events }

// Active reports whether any events are started.
func (w *IOWatcher) Active() bool { return w.events != 0 }

// Start adds events to the set being watched.
func (w *IOWatcher) Start(events IOEvents) error {
	return w.set(w.events | events)
}

// Stop removes events from the set being watched.
func (w *IOWatcher) Stop(events IOEvents) error {
	return w.set(w.events &^ events)
}

// Set replaces the set being watched.
func (w *IOWatcher) Set(events IOEvents) error {
	return w.set(events)
}

// Close stops all events. The watcher must not be used after, and the fd
// must be closed by the caller only after Close returns.
func (w *IOWatcher) Close() error {
	err := w.set(0)
	w.cb = nil
	return err
}

func (w *IOWatcher) set(events IOEvents) error {
	events &= EventRead | EventWrite
	if events == w.events && (events != 0) == w.registered {
		return nil
	}
	p := &w.loop.poller
	switch {
	case events == 0:
		if !w.registered {
			w.events = 0
			return nil
		}
		w.registered = false
		w.events = 0
		if err := p.UnregisterFD(w.fd); err != nil && err != ErrFDNotRegistered {
			return err
		}
	case !w.registered:
		if err := p.RegisterFD(w.fd, events, w.dispatch); err != nil {
			return err
		}
		w.registered = true
		w.events = events
	default:
		if err := p.ModifyFD(w.fd, events); err != nil {
			return err
		}
		w.events = events
	}
	return nil
}

func (w *IOWatcher) dispatch(events IOEvents) {
	cb := w.cb
	if cb == nil {
		return
	}
	defer w.loop.recoverPanic("io")
	cb(events)
}
