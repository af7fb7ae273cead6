// Package files implements the filesystem operation set, on top of an
// [eventloop.Loop].
//
// Every primitive has a synchronous form, which runs on the calling
// goroutine and returns its result directly, and an asynchronous form
// (suffixed Async), which runs on the loop's worker pool, then calls a typed
// callback on the loop goroutine. An Async method's returned error only
// reports whether the operation was queued. If it is non-nil the callback
// will never be called.
//
// All failures are [*ioerr.Error] values, naming the primitive as the
// syscall, and carrying the path where one applies. For descriptor based
// primitives, the path is the one the descriptor was opened with, if it
// was opened via the same FS.
package files

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-uvio/buffer"
	"github.com/joeycumines/go-uvio/eventloop"
	"github.com/joeycumines/go-uvio/ioerr"
)

type (
	// FS performs filesystem operations for a single loop.
	FS struct {
		loop  *eventloop.Loop
		pool  *buffer.Pool
		paths map[int]string
		mu    sync.Mutex
	}

	// Callback receives the outcome of a primitive with no payload.
	Callback func(ctx any, err error)

	// OpenCallback receives the new descriptor, and the path it was opened
	// with.
	OpenCallback func(ctx any, fd int, path string, err error)

	// ReadCallback receives the number of bytes read, and the filled prefix
	// of the caller's region.
	ReadCallback func(ctx any, n int, data []byte, err error)

	// WriteCallback receives the number of bytes written.
	WriteCallback func(ctx any, n int, err error)

	// ReaddirCallback receives the directory's entry names, in OS order.
	ReaddirCallback func(ctx any, names []string, err error)

	// StatCallback receives a stat snapshot.
	StatCallback func(ctx any, st *Stat, err error)

	// ReadlinkCallback receives the link's target.
	ReadlinkCallback func(ctx any, target string, err error)

	// UtimeCallback receives the modification time that was set.
	UtimeCallback func(ctx any, mtime time.Time, err error)

	openResult struct {
		path string
		fd   int
	}

	// sharedLease releases a lease once both the worker and the completion
	// are done with it, as a cancelled completion may run before the worker
	// finishes, or before it starts.
	sharedLease struct {
		lease *buffer.Lease
		refs  atomic.Int32
		state atomic.Int32
	}
)

// New returns an FS that runs asynchronous operations on loop.
func New(loop *eventloop.Loop) *FS {
	return &FS{
		loop:  loop,
		pool:  buffer.Default,
		paths: make(map[int]string),
	}
}

// Loop returns the loop asynchronous operations run on.
func (x *FS) Loop() *eventloop.Loop { return x.loop }

// Path returns the path fd was opened with, or "" if fd was not opened via
// x, or has since been closed.
func (x *FS) Path(fd int) string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.paths[fd]
}

func (x *FS) track(fd int, path string) {
	x.mu.Lock()
	x.paths[fd] = path
	x.mu.Unlock()
}

func (x *FS) untrack(fd int) {
	x.mu.Lock()
	delete(x.paths, fd)
	x.mu.Unlock()
}

// submit queues work, delivering its typed result to cb. Errors from work
// are mapped with the op's name, and path.
func submit[T any](x *FS, kind eventloop.OpKind, fd int, path string, ctx any, work func() (T, error), cb func(ctx any, v T, err error)) error {
	req, err := x.loop.QueueWork(kind, ctx, func() (any, error) {
		v, err := work()
		if err != nil {
			return nil, ioerr.New(err, kind.String(), path)
		}
		return v, nil
	}, func(c eventloop.Completion) {
		if cb == nil {
			return
		}
		var v T
		if c.Err == nil {
			v, _ = c.Payload.(T)
		}
		cb(c.Context, v, c.Err)
	})
	if err != nil {
		return err
	}
	req.FD = fd
	req.Path = path
	return nil
}

// noPayload adapts a Callback to submit.
func noPayload(cb Callback) func(ctx any, v eventloop.NoPayload, err error) {
	if cb == nil {
		return nil
	}
	return func(ctx any, _ eventloop.NoPayload, err error) { cb(ctx, err) }
}

func done(err error) (eventloop.NoPayload, error) {
	return eventloop.Done, err
}

func newSharedLease(lease *buffer.Lease) *sharedLease {
	s := &sharedLease{lease: lease}
	s.refs.Store(2)
	return s
}

const (
	leaseIdle int32 = iota
	leaseBusy
	leaseAbandoned
)

// begin claims the lease for the worker, returning false if the completion
// already abandoned it. The worker must call release only if begin succeeded.
func (s *sharedLease) begin() bool {
	return s.state.CompareAndSwap(leaseIdle, leaseBusy)
}

// finish is called by the completion. If the worker never began, its
// reference is dropped too.
func (s *sharedLease) finish() {
	if s.state.CompareAndSwap(leaseIdle, leaseAbandoned) {
		s.release()
	}
	s.release()
}

func (s *sharedLease) release() {
	if s.refs.Add(-1) == 0 {
		s.lease.Release()
	}
}
