package eventloop

import (
	"github.com/joeycumines/go-uvio/ioerr"
)

type (
	// Request is a single in-flight asynchronous operation. It completes
	// exactly once, after which it is removed from its loop.
	Request struct {
		loop *Loop
		fn   func(Completion)

		// Context is the caller's opaque value, echoed back on completion.
		Context any
		// Handle is the owning handle, if any.
		Handle Handle
		// Path is the request's own copy of the path operated on, if any.
		Path string

		id uint64
		// FD is the target file descriptor, or -1.
		FD    int
		Kind  OpKind
		state requestState
	}

	// Completion is the terminal outcome of a Request. Exactly one of Payload
	// and Err is non-nil. Operations with no result complete with the Done
	// payload.
	Completion struct {
		Context any
		Payload any
		Err     error
		Kind    OpKind
	}

	// NoPayload is the type of Done.
	NoPayload struct{}

	requestState uint8
)

// Done is the payload of a successful operation that has no result.
var Done = NoPayload{}

const (
	requestPending requestState = iota
	requestCompleted
	requestCancelled
)

// NewRequest registers a pending request. The fn will be called exactly
// once, on the loop goroutine, when the request is completed or cancelled.
// Must be called from the loop goroutine, or while the loop is not running.
func (l *Loop) NewRequest(kind OpKind, context any, fn func(Completion)) *Request {
	r := &Request{
		loop:    l,
		fn:      fn,
		Context: context,
		FD:      -1,
		Kind:    kind,
	}
	l.registry.add(r)
	return r
}

// Pending reports whether r has yet to complete.
func (r *Request) Pending() bool { return r.state == requestPending }

// Complete delivers the outcome of r. A nil payload with a nil err delivers
// Done, and a non-nil err discards payload. Returns false, without calling
// anything, if r already completed.
func (r *Request) Complete(payload any, err error) bool {
	return r.finish(requestCompleted, payload, err)
}

// Cancel completes r with err, or ECANCELED if err is nil.
func (r *Request) Cancel(err error) bool {
	if err == nil {
		err = ioerr.Build(ioerr.ECANCELED, r.Kind.String(), ``, r.Path)
	}
	return r.finish(requestCancelled, nil, err)
}

func (r *Request) finish(state requestState, payload any, err error) bool {
	if r.state != requestPending {
		if m := r.loop.metrics; m != nil {
			m.requestsLate.Add(1)
		}
		r.loop.logger.Debug().
			Stringer("op", r.Kind).
			Err(err).
			Log("eventloop: dropped late completion")
		return false
	}
	r.state = state
	r.loop.registry.done()
	if m := r.loop.metrics; m != nil {
		if state == requestCancelled {
			m.requestsCancelled.Add(1)
		} else {
			m.requestsCompleted.Add(1)
		}
	}
	c := Completion{Kind: r.Kind, Context: r.Context}
	switch {
	case err != nil:
		c.Err = err
	case payload == nil:
		c.Payload = Done
	default:
		c.Payload = payload
	}
	fn := r.fn
	r.fn = nil
	if fn != nil {
		r.loop.safeCall("request", func() { fn(c) })
	}
	return true
}
