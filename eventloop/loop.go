package eventloop

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/joeycumines/logiface"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"
)

// RunMode selects how long a single call to Loop.Run drives the loop.
type RunMode uint8

const (
	// RunDefault runs until there are no live handles or requests, or Stop
	// is called.
	RunDefault RunMode = iota
	// RunOnce runs a single iteration, blocking for I/O if there is nothing
	// already pending.
	RunOnce
	// RunNoWait runs a single iteration, without blocking.
	RunNoWait
)

func (m RunMode) String() string {
	switch m {
	case RunDefault:
		return "default"
	case RunOnce:
		return "once"
	case RunNoWait:
		return "nowait"
	default:
		return "unknown"
	}
}

// taskBudget bounds the tasks run per queue, per iteration.
const taskBudget = 1024

// loopTestHooks provides injection points for deterministic race testing.
type loopTestHooks struct {
	PrePollSleep func() // Called before CAS to StateSleeping
	PrePollAwake func() // Called before CAS back to StateRunning
}

// Loop is a single-threaded event loop, multiplexing I/O readiness, timers,
// and queued work.
//
// A loop is driven by one goroutine at a time, via Run, and every callback
// runs on that goroutine. Handles, requests, and most methods must only be
// used from that goroutine, or while Run is not in progress. The methods
// that are safe to call from any goroutine are Submit, SubmitInternal,
// ScheduleTimer, Stop, Wake, State, and Metrics.
type Loop struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	registry *registry

	// HOOKS: Test hooks for deterministic race testing
	testHooks *loopTestHooks

	logger  *logiface.Logger[logiface.Event]
	metrics *loopMetrics

	// State machine (cache-line padded internally)
	state *FastState

	// Ingress queues
	external taskQueue // Submit
	internal taskQueue // SubmitInternal, processed first

	handles      map[uint64]Handle
	nextHandleID uint64
	closing      []*HandleBase

	timers   timerHeap
	timerSeq uint64

	poller fastPoller

	// Worker pool for QueueWork
	workers    *semaphore.Weighted
	workCtx    context.Context
	workCancel context.CancelFunc
	workWg     sync.WaitGroup

	// Wake-up mechanism
	wakePipe      int
	wakePipeWrite int
	wakeBuf       [8]byte
	wakePending   atomic.Uint32

	// Timing
	tickAnchor      time.Time    // Reference time for monotonicity (initialized once, never changes)
	tickElapsedTime atomic.Int64 // Nanoseconds offset from anchor (monotonic, atomic for thread safety)

	activeHandles atomic.Int64

	// Goroutine tracking
	loopGoroutineID atomic.Uint64

	stopFlag atomic.Bool

	// Loop ID
	id uint64

	// Task batch buffer (avoid allocation)
	batchBuf [taskBudget]func()
}

var loopIDCounter atomic.Uint64

// New creates a new event loop.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	wakeFd, wakeWriteFd, err := createWakeFd()
	if err != nil {
		return nil, err
	}

	loop := &Loop{
		id:         loopIDCounter.Add(1),
		state:      NewFastState(),
		registry:   newRegistry(),
		logger:     cfg.logger,
		handles:    make(map[uint64]Handle),
		workers:    semaphore.NewWeighted(int64(cfg.workerPoolSize)),
		tickAnchor: time.Now(),

		wakePipe:      wakeFd,
		wakePipeWrite: wakeWriteFd,
	}
	if cfg.metricsEnabled {
		loop.metrics = new(loopMetrics)
	}
	loop.workCtx, loop.workCancel = context.WithCancel(context.Background())

	closeWake := func() {
		_ = unix.Close(wakeFd)
		if wakeWriteFd != wakeFd {
			_ = unix.Close(wakeWriteFd)
		}
	}

	if err := loop.poller.Init(); err != nil {
		closeWake()
		return nil, err
	}

	if err := loop.poller.RegisterFD(wakeFd, EventRead, func(IOEvents) {
		loop.drainWakeUpPipe()
	}); err != nil {
		_ = loop.poller.Close()
		closeWake()
		return nil, err
	}

	return loop, nil
}

// ID returns a process-unique identifier for the loop.
func (l *Loop) ID() uint64 { return l.id }

// State returns the current loop state.
func (l *Loop) State() LoopState {
	return l.state.Load()
}

// Run drives the loop, per mode, returning whether there are still live
// handles or requests. Liveness is any active referenced handle, any
// in-flight request, any handle that is closing, or any queued task.
//
// Each iteration updates the loop time, runs due timers, runs queued tasks,
// polls for I/O, then runs the close phase. The poll blocks only if
// nothing else is pending, and only until the next timer is due.
//
// Cancelling ctx wakes the loop, which returns ctx.Err() after the current
// iteration. Calling Run from a callback returns ErrReentrantRun.
func (l *Loop) Run(ctx context.Context, mode RunMode) (bool, error) {
	if l.isLoopThread() {
		return false, ErrReentrantRun
	}
	return l.enter(ctx, mode, StateAwake)
}

// enter runs the loop from the given resting state, which is restored on
// return.
func (l *Loop) enter(ctx context.Context, mode RunMode, from LoopState) (bool, error) {
	if !l.state.TryTransition(from, StateRunning) {
		switch l.state.Load() {
		case StateTerminated, StateTerminating:
			return false, ErrLoopTerminated
		default:
			return false, ErrLoopAlreadyRunning
		}
	}
	defer l.state.TryTransition(StateRunning, from)
	return l.run(ctx, mode)
}

func (l *Loop) run(ctx context.Context, mode RunMode) (alive bool, err error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.loopGoroutineID.Store(getGoroutineID())
	defer l.loopGoroutineID.Store(0)

	// Start context watcher goroutine to wake loop on cancellation
	if ctx.Done() != nil {
		ctxDone := make(chan struct{})
		watcherDone := make(chan struct{})
		go func() {
			defer close(watcherDone)
			select {
			case <-ctx.Done():
				// a queued task also covers the window before poll sleeps
				_ = l.SubmitInternal(func() {})
			case <-ctxDone:
			}
		}()
		defer func() {
			close(ctxDone)
			<-watcherDone
		}()
	}

	alive = l.alive()
	if !alive {
		l.UpdateTime()
	}

	for alive && !l.stopFlag.Load() {
		if err = ctx.Err(); err != nil {
			break
		}

		l.UpdateTime()
		l.runTimers()
		ranPending := l.processTasks()

		var timeout time.Duration
		if (mode == RunOnce && !ranPending) || mode == RunDefault {
			timeout = l.backendTimeout()
		}
		l.poll(timeout)

		l.runClosing()

		if mode == RunOnce {
			// RunOnce implies forward progress, at least one callback
			l.UpdateTime()
			l.runTimers()
		}

		l.registry.Scavenge(64)
		if m := l.metrics; m != nil {
			m.iterations.Add(1)
		}

		alive = l.alive()
		if mode != RunDefault {
			break
		}
	}

	l.stopFlag.Store(false)

	if err == nil {
		err = ctx.Err()
		if err != nil && !alive {
			err = nil
		}
	}
	return alive, err
}

// Stop causes the current (or next) Run to return after the current
// iteration. It is safe to call from any goroutine.
func (l *Loop) Stop() {
	l.stopFlag.Store(true)
	_ = l.Wake()
}

// Alive reports whether the loop has live handles or requests, see Run.
func (l *Loop) Alive() bool { return l.alive() }

func (l *Loop) alive() bool {
	return l.activeHandles.Load() > 0 ||
		l.registry.Active() > 0 ||
		len(l.closing) > 0 ||
		l.internal.length() > 0 ||
		l.external.length() > 0
}

// backendTimeout determines how long to block in poll, -1 meaning
// indefinitely.
func (l *Loop) backendTimeout() time.Duration {
	if l.stopFlag.Load() {
		return 0
	}
	if l.activeHandles.Load() == 0 && l.registry.Active() == 0 {
		return 0
	}
	if len(l.closing) > 0 || l.internal.length() > 0 || l.external.length() > 0 {
		return 0
	}
	return l.nextTimeout()
}

// processTasks runs queued tasks, internal first, returning true if any ran.
// Tasks queued while processing run on the next iteration.
func (l *Loop) processTasks() bool {
	ran := l.processQueue(&l.internal)
	if l.processQueue(&l.external) {
		ran = true
	}
	return ran
}

func (l *Loop) processQueue(q *taskQueue) bool {
	n := q.popBatch(l.batchBuf[:])
	for i := 0; i < n; i++ {
		l.safeCall("task", l.batchBuf[i])
		l.batchBuf[i] = nil // Clear for GC
	}
	if m := l.metrics; m != nil && n > 0 {
		m.tasks.Add(uint64(n))
	}
	return n > 0
}

// runClosing runs the close phase, including handles that begin closing
// from within a close callback.
func (l *Loop) runClosing() {
	for len(l.closing) > 0 {
		closing := l.closing
		l.closing = nil
		for _, h := range closing {
			h.finishClose()
		}
	}
}

// poll performs the blocking poll.
func (l *Loop) poll(timeout time.Duration) {
	timeoutMs := durationToPollMs(timeout)

	if timeoutMs != 0 {
		// HOOKS: Call test hook before state transition
		if l.testHooks != nil && l.testHooks.PrePollSleep != nil {
			l.testHooks.PrePollSleep()
		}

		if l.state.TryTransition(StateRunning, StateSleeping) {
			defer l.state.TryTransition(StateSleeping, StateRunning)
			// tasks submitted before the transition would not have woken us
			if l.internal.length() > 0 || l.external.length() > 0 || l.stopFlag.Load() {
				timeoutMs = 0
			}
		}
	}

	start := time.Now()
	_, err := l.poller.PollIO(timeoutMs)
	if m := l.metrics; m != nil {
		m.poll.record(time.Since(start))
	}
	if err != nil {
		l.logPollError(err)
	}

	// HOOKS: Call test hook after poll
	if l.testHooks != nil && l.testHooks.PrePollAwake != nil {
		l.testHooks.PrePollAwake()
	}
}

// durationToPollMs converts a timeout to milliseconds, negative meaning
// indefinitely. Positive sub-millisecond timeouts round up to 1ms.
func durationToPollMs(d time.Duration) int {
	if d < 0 {
		return -1
	}
	if d > 0 && d < time.Millisecond {
		return 1
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}

// drainWakeUpPipe drains the wake-up pipe.
func (l *Loop) drainWakeUpPipe() {
	for {
		_, err := unix.Read(l.wakePipe, l.wakeBuf[:])
		if err != nil {
			break
		}
	}
	l.wakePending.Store(0)
}

// submitWakeup writes to the wake-up pipe.
func (l *Loop) submitWakeup() error {
	if l.state.Load() == StateTerminated {
		return ErrLoopTerminated
	}

	// PERFORMANCE: Native endianness, no binary.LittleEndian overhead
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]

	_, err := unix.Write(l.wakePipeWrite, buf)
	// Note: Pipe write errors (e.g., "broken pipe") are expected during shutdown
	// when the pipe is being closed. Callers must handle these gracefully.
	return err
}

// Wake interrupts a blocking poll, if the loop is sleeping. It is safe to
// call from any goroutine.
func (l *Loop) Wake() error {
	if l.state.Load() != StateSleeping {
		return nil
	}
	if l.wakePending.CompareAndSwap(0, 1) {
		if err := l.submitWakeup(); err != nil {
			// Reset pending flag on failure so future Wake() can retry
			l.wakePending.Store(0)
		}
	}
	return nil
}

// Submit queues task to run on the loop goroutine. Queued tasks keep the
// loop alive. It is safe to call from any goroutine, and returns
// ErrLoopTerminated if the loop has been destroyed.
func (l *Loop) Submit(task func()) error {
	return l.submit(&l.external, task)
}

// SubmitInternal is Submit, but tasks are run before any submitted via
// Submit. It is intended for completions.
func (l *Loop) SubmitInternal(task func()) error {
	return l.submit(&l.internal, task)
}

func (l *Loop) submit(q *taskQueue, task func()) error {
	if l.state.Load() == StateTerminated {
		return ErrLoopTerminated
	}
	q.push(task)
	return l.Wake()
}

// Now returns the loop's cached time, updated at the start of each
// iteration, or by UpdateTime.
func (l *Loop) Now() time.Time {
	return l.tickAnchor.Add(time.Duration(l.tickElapsedTime.Load()))
}

// UpdateTime refreshes the cached loop time.
func (l *Loop) UpdateTime() {
	// time.Since(tickAnchor) uses the monotonic clock
	l.tickElapsedTime.Store(int64(time.Since(l.tickAnchor)))
}

// safeCall runs fn, logging (not propagating) any panic.
func (l *Loop) safeCall(source string, fn func()) {
	if fn == nil {
		return
	}
	defer l.recoverPanic(source)
	fn()
}

// drain runs non-blocking iterations until nothing is closing or queued.
// Requests still in flight are not waited on. It must only be called while
// the loop is not running.
func (l *Loop) drain() {
	from := StateAwake
	if l.state.Load() == StateTerminating {
		from = StateTerminating
	}
	for len(l.closing) > 0 || l.internal.length() > 0 || l.external.length() > 0 {
		if _, err := l.enter(context.Background(), RunNoWait, from); err != nil {
			return
		}
	}
}

// Destroy releases the loop's poller and wake-up descriptors. It returns
// ErrLoopBusy if any handle is not yet closed, or any request is in flight,
// and ErrLoopAlreadyRunning if called while running.
func (l *Loop) Destroy() error {
	if l.isLoopThread() || l.state.IsRunning() {
		return ErrLoopAlreadyRunning
	}
	if len(l.handles) > 0 || l.registry.Active() > 0 || len(l.closing) > 0 {
		return ErrLoopBusy
	}
	if !l.state.TryTransition(StateAwake, StateTerminated) &&
		!l.state.TryTransition(StateTerminating, StateTerminated) {
		return ErrLoopTerminated
	}
	l.workCancel()
	l.closeFDs()
	return nil
}

// Close closes every handle, cancels every in-flight request with
// ECANCELED, drains the resulting callbacks, then destroys the loop. Work
// already running on the pool finishes in the background, and its result
// is discarded.
func (l *Loop) Close() error {
	if l.isLoopThread() || l.state.IsRunning() {
		return ErrLoopAlreadyRunning
	}
	if !l.state.TryTransition(StateAwake, StateTerminating) {
		if l.state.Load() == StateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}

	l.CloseAll()
	l.registry.CancelAll(nil)
	l.drain()

	if err := l.Destroy(); err != nil {
		return err
	}
	return nil
}

// closeFDs closes file descriptors.
func (l *Loop) closeFDs() {
	_ = l.poller.Close()
	_ = unix.Close(l.wakePipe)
	if l.wakePipeWrite != l.wakePipe {
		_ = unix.Close(l.wakePipeWrite)
	}
}

// isLoopThread checks if we're on the loop goroutine.
func (l *Loop) isLoopThread() bool {
	loopID := l.loopGoroutineID.Load()
	if loopID == 0 {
		return false
	}
	return getGoroutineID() == loopID
}

// OnLoopGoroutine reports whether the caller is running on the goroutine
// currently driving the loop.
func (l *Loop) OnLoopGoroutine() bool { return l.isLoopThread() }

// Running reports whether Run is in progress.
func (l *Loop) Running() bool { return l.loopGoroutineID.Load() != 0 }

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
