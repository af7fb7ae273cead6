package eventloop

import (
	"runtime/debug"

	"github.com/joeycumines/logiface"
)

// Logger returns the logger configured via WithLogger, which may be nil.
// A nil logger is safe to use, all builders it returns are no-ops, so
// handle implementations in other packages may log unconditionally.
func (l *Loop) Logger() *logiface.Logger[logiface.Event] {
	return l.logger
}

// recoverPanic must be deferred directly. It logs and counts a recovered
// panic from a callback, without propagating it.
func (l *Loop) recoverPanic(source string) {
	r := recover()
	if r == nil {
		return
	}
	if m := l.metrics; m != nil {
		m.panics.Add(1)
	}
	l.logger.Err().
		Str("source", source).
		Any("panic", r).
		Str("stack", string(debug.Stack())).
		Uint64("loop", l.id).
		Log("eventloop: callback panicked")
}

// logPollError reports a failed PollIO call.
func (l *Loop) logPollError(err error) {
	l.logger.Err().
		Err(err).
		Uint64("loop", l.id).
		Log("eventloop: poll failed")
}
