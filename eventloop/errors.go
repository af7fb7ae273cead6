package eventloop

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when Run() is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a destroyed loop.
	ErrLoopTerminated = errors.New("eventloop: loop has been terminated")

	// ErrReentrantRun is returned when Run() is called from within the loop itself.
	ErrReentrantRun = errors.New("eventloop: cannot call Run() from within the loop")

	// ErrLoopBusy is returned by Destroy while handles or requests remain.
	ErrLoopBusy = errors.New("eventloop: loop has open handles or requests")

	// ErrHandleClosing is returned by operations on a closing or closed handle.
	// Like the other sentinels here, it is not an *ioerr.Error.
	ErrHandleClosing = errors.New("eventloop: handle is closing")

	// ErrTimerNotStarted is returned by Timer.Again for a timer that was never started.
	ErrTimerNotStarted = errors.New("eventloop: timer was never started")
)

// PanicError wraps a value recovered from a panicking work function.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("eventloop: work panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ErrGoexit completes a work request whose function called runtime.Goexit.
var ErrGoexit = errors.New("eventloop: work exited via runtime.Goexit")
