package eventloop

// QueueWork runs work on the loop's bounded worker pool, then completes the
// returned request on the loop goroutine, with work's result. The
// request's fn receives the completion. The request counts as in-flight,
// keeping the loop alive, until fn has been called.
//
// This is the only mechanism by which the loop runs code off the loop
// goroutine. A panic in work completes the request with a PanicError.
//
// Must be called from the loop goroutine, or while the loop is not running.
// Returns ErrLoopTerminated if the loop has been destroyed.
func (l *Loop) QueueWork(kind OpKind, context any, work func() (any, error), fn func(Completion)) (*Request, error) {
	if l.state.IsTerminal() {
		return nil, ErrLoopTerminated
	}
	req := l.NewRequest(kind, context, fn)
	l.workWg.Add(1)
	go l.runWork(req, work)
	return req, nil
}

func (l *Loop) runWork(req *Request, work func() (any, error)) {
	defer l.workWg.Done()

	if err := l.workers.Acquire(l.workCtx, 1); err != nil {
		// the loop was destroyed, the request was already cancelled
		return
	}
	defer l.workers.Release(1)

	var (
		payload   any
		err       error
		completed bool
	)
	// deferred, so the completion is also submitted after a panic, or
	// runtime.Goexit
	defer func() {
		if r := recover(); r != nil {
			payload, err = nil, PanicError{Value: r}
		} else if !completed {
			payload, err = nil, ErrGoexit
		}
		if submitErr := l.SubmitInternal(func() {
			req.Complete(payload, err)
		}); submitErr != nil {
			l.logger.Debug().
				Stringer("op", req.Kind).
				Err(submitErr).
				Log("eventloop: work finished after loop terminated")
		}
	}()

	payload, err = work()
	completed = true
}
