package eventloop

import (
	"maps"
	"slices"
)

type (
	// Handle is a long-lived resource bound to exactly one Loop.
	//
	// Handle methods are not safe for concurrent use, and must be called from
	// the goroutine driving the loop (including from within callbacks), or
	// while the loop is not running.
	Handle interface {
		// Loop returns the loop the handle is bound to.
		Loop() *Loop
		// Kind returns the handle's kind.
		Kind() HandleKind
		// State returns the handle's lifecycle state.
		State() HandleState
		// Close requests the handle be closed. The callback, which may be
		// nil, is called exactly once, from the close phase of a later loop
		// iteration. Closing an already closing handle is a no-op.
		Close(cb func())
		// Ref marks the handle as keeping the loop alive while active.
		// Handles are referenced by default.
		Ref()
		// Unref marks the handle as not keeping the loop alive.
		Unref()
		// HasRef reports whether the handle is referenced.
		HasRef() bool

		base() *HandleBase
	}

	// HandleBase implements the lifecycle common to all handles, and must be
	// embedded by every Handle implementation.
	HandleBase struct {
		loop     *Loop
		self     Handle
		closeCb  func()
		finalize func()
		id       uint64
		kind     HandleKind
		state    HandleState
		unref    bool
		counted  bool
	}

	// HandleKind identifies the concrete type of a Handle.
	HandleKind uint8

	// HandleState is the lifecycle state of a Handle.
	HandleState uint8
)

const (
	KindUnknown HandleKind = iota
	KindTimer
	KindTCP
	KindPipe
	KindUDP
	KindSignal
	KindFSEvent
	KindFSPoll
)

const (
	// HandleIdle indicates the handle is open, but not doing anything that
	// keeps the loop alive.
	HandleIdle HandleState = iota
	// HandleActive indicates the handle is reading, listening, or otherwise
	// waiting on events.
	HandleActive
	// HandleClosing indicates Close was called, and the close callback is pending.
	HandleClosing
	// HandleClosed indicates resources were released, and the close callback ran.
	HandleClosed
)

var kindNames = [...]string{
	KindUnknown: "unknown",
	KindTimer:   "timer",
	KindTCP:     "tcp",
	KindPipe:    "pipe",
	KindUDP:     "udp",
	KindSignal:  "signal",
	KindFSEvent: "fs_event",
	KindFSPoll:  "fs_poll",
}

func (k HandleKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

func (s HandleState) String() string {
	switch s {
	case HandleIdle:
		return "idle"
	case HandleActive:
		return "active"
	case HandleClosing:
		return "closing"
	case HandleClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Init binds the handle to loop. It must be called once, by the constructor
// of the embedding type, passing the embedding value as h.
func (x *HandleBase) Init(loop *Loop, kind HandleKind, h Handle) {
	if h.base() != x {
		panic("eventloop: handle does not embed this HandleBase")
	}
	x.loop = loop
	x.self = h
	x.kind = kind
	x.state = HandleIdle
	loop.nextHandleID++
	x.id = loop.nextHandleID
	loop.handles[x.id] = h
	if m := loop.metrics; m != nil {
		m.handlesOpened.Add(1)
	}
	loop.logger.Trace().
		Stringer("kind", kind).
		Uint64("handle", x.id).
		Log("eventloop: handle opened")
}

func (x *HandleBase) base() *HandleBase { return x }

// Loop returns the loop the handle is bound to.
func (x *HandleBase) Loop() *Loop { return x.loop }

// Kind returns the handle's kind.
func (x *HandleBase) Kind() HandleKind { return x.kind }

// State returns the handle's lifecycle state.
func (x *HandleBase) State() HandleState { return x.state }

// IsActive reports whether the handle is active.
func (x *HandleBase) IsActive() bool { return x.state == HandleActive }

// IsClosing reports whether the handle is closing or closed.
func (x *HandleBase) IsClosing() bool { return x.state >= HandleClosing }

// Release removes the handle from the loop's registry. A released handle
// keeps working, but is not visited by Walk, List, or CloseAll, and does not
// make Destroy fail. It has no effect on a closing or closed handle.
func (x *HandleBase) Release() {
	if x.IsClosing() {
		return
	}
	delete(x.loop.handles, x.id)
}

// Retain reverses Release.
func (x *HandleBase) Retain() {
	if x.IsClosing() {
		return
	}
	x.loop.handles[x.id] = x.self
}

// Released reports whether the handle is absent from the loop's registry.
func (x *HandleBase) Released() bool {
	_, ok := x.loop.handles[x.id]
	return !ok
}

// CheckOpen returns ErrHandleClosing if the handle is closing or closed.
func (x *HandleBase) CheckOpen() error {
	if x.IsClosing() {
		return ErrHandleClosing
	}
	return nil
}

// Ref marks the handle as keeping the loop alive while active.
func (x *HandleBase) Ref() {
	x.unref = false
	x.recount()
}

// Unref marks the handle as not keeping the loop alive.
func (x *HandleBase) Unref() {
	x.unref = true
	x.recount()
}

// HasRef reports whether the handle is referenced.
func (x *HandleBase) HasRef() bool { return !x.unref }

// SetActive moves the handle between idle and active. It has no effect on a
// closing or closed handle.
func (x *HandleBase) SetActive(active bool) {
	if x.IsClosing() {
		return
	}
	if active {
		x.state = HandleActive
	} else {
		x.state = HandleIdle
	}
	x.recount()
}

func (x *HandleBase) recount() {
	want := x.state == HandleActive && !x.unref
	if want == x.counted {
		return
	}
	x.counted = want
	if want {
		x.loop.activeHandles.Add(1)
	} else {
		x.loop.activeHandles.Add(-1)
	}
}

// BeginClose moves the handle to closing, and queues it for the loop's close
// phase, where finalize (if non-nil) runs before cb (if non-nil). It returns
// ErrHandleClosing if the handle was already closing or closed, in which
// case neither function will be called.
func (x *HandleBase) BeginClose(cb, finalize func()) error {
	if x.IsClosing() {
		return ErrHandleClosing
	}
	x.state = HandleClosing
	x.recount()
	x.closeCb = cb
	x.finalize = finalize
	x.loop.closing = append(x.loop.closing, x)
	return nil
}

// finishClose runs from the loop's close phase.
func (x *HandleBase) finishClose() {
	finalize, cb := x.finalize, x.closeCb
	x.finalize, x.closeCb = nil, nil
	if finalize != nil {
		x.loop.safeCall("finalize", finalize)
	}
	x.state = HandleClosed
	delete(x.loop.handles, x.id)
	if m := x.loop.metrics; m != nil {
		m.handlesClosed.Add(1)
	}
	x.loop.logger.Trace().
		Stringer("kind", x.kind).
		Uint64("handle", x.id).
		Log("eventloop: handle closed")
	if cb != nil {
		x.loop.safeCall("close", cb)
	}
}

// Walk calls fn for every handle bound to the loop that is not yet closed,
// in creation order. Must be called from the loop goroutine, or while the
// loop is not running.
func (l *Loop) Walk(fn func(h Handle)) {
	for _, id := range slices.Sorted(maps.Keys(l.handles)) {
		if h, ok := l.handles[id]; ok {
			fn(h)
		}
	}
}

// List describes every handle bound to the loop, as "<kind> <state>".
func (l *Loop) List() []string {
	var out []string
	l.Walk(func(h Handle) {
		out = append(out, h.Kind().String()+" "+h.State().String())
	})
	return out
}

// CloseAll closes every handle that is not already closing, with no close
// callback. If the loop is not running, CloseAll also drains the close
// phase (and anything it triggers) before returning.
func (l *Loop) CloseAll() {
	l.Walk(func(h Handle) {
		if h.State() < HandleClosing {
			l.safeCall("close all", func() { h.Close(nil) })
		}
	})
	if l.loopGoroutineID.Load() == 0 {
		l.drain()
	}
}
