package eventloop

import (
	"container/heap"
	"time"
)

// Timer is a handle that calls a function after a timeout, optionally
// repeating.
type Timer struct {
	HandleBase
	cb     func()
	due    time.Time
	repeat time.Duration
	seq    uint64
	index  int // heap index, -1 if not scheduled
	armed  bool
}

// timerHeap is a min-heap of timers, ordered by due time, then by start
// order.
type timerHeap []*Timer

// Implement heap.Interface for timerHeap
func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	x.index = -1
	*h = old[:n-1]
	return x
}

// NewTimer creates a timer bound to loop.
func NewTimer(loop *Loop) *Timer {
	t := &Timer{index: -1}
	t.Init(loop, KindTimer, t)
	return t
}

// Start (re)arms the timer to call cb after timeout, relative to the loop's
// cached time, then every repeat (if non-zero).
func (t *Timer) Start(timeout, repeat time.Duration, cb func()) error {
	if err := t.CheckOpen(); err != nil {
		return err
	}
	t.unschedule()
	t.cb = cb
	t.repeat = repeat
	t.armed = true
	t.schedule(max(timeout, 0))
	return nil
}

// Stop disarms the timer. Stopping an inactive timer is a no-op.
func (t *Timer) Stop() error {
	t.unschedule()
	t.SetActive(false)
	return nil
}

// Again restarts a repeating timer using its repeat interval as the
// timeout. It has no effect if the repeat is zero, other than stopping it.
func (t *Timer) Again() error {
	if err := t.CheckOpen(); err != nil {
		return err
	}
	if !t.armed {
		return ErrTimerNotStarted
	}
	t.unschedule()
	if t.repeat > 0 {
		t.schedule(t.repeat)
	} else {
		t.SetActive(false)
	}
	return nil
}

// SetRepeat sets the repeat interval, which takes effect the next time the
// timer fires or is restarted.
func (t *Timer) SetRepeat(repeat time.Duration) { t.repeat = repeat }

// Repeat returns the repeat interval.
func (t *Timer) Repeat() time.Duration { return t.repeat }

// Close stops and closes the timer.
func (t *Timer) Close(cb func()) {
	if t.IsClosing() {
		return
	}
	t.unschedule()
	_ = t.BeginClose(cb, nil)
}

func (t *Timer) schedule(timeout time.Duration) {
	l := t.loop
	l.timerSeq++
	t.seq = l.timerSeq
	t.due = l.Now().Add(timeout)
	heap.Push(&l.timers, t)
	t.SetActive(true)
}

func (t *Timer) unschedule() {
	if t.index >= 0 {
		heap.Remove(&t.loop.timers, t.index)
	}
}

// runTimers executes all expired timers. Timers started by a callback run
// no sooner than the next call.
func (l *Loop) runTimers() {
	now := l.Now()
	limit := l.timerSeq
	for len(l.timers) > 0 {
		t := l.timers[0]
		if t.due.After(now) || t.seq > limit {
			break
		}
		heap.Pop(&l.timers)
		if t.repeat > 0 {
			t.schedule(t.repeat)
		} else {
			t.SetActive(false)
		}
		if cb := t.cb; cb != nil {
			l.safeCall("timer", cb)
		}
	}
}

// nextTimeout returns the duration until the next timer is due, or -1 if
// there are no timers.
func (l *Loop) nextTimeout() time.Duration {
	if len(l.timers) == 0 {
		return -1
	}
	return max(l.timers[0].due.Sub(l.Now()), 0)
}

// ScheduleTimer schedules fn to be called once, after delay. It is safe to
// call from any goroutine.
func (l *Loop) ScheduleTimer(delay time.Duration, fn func()) error {
	return l.SubmitInternal(func() {
		t := NewTimer(l)
		_ = t.Start(delay, 0, func() {
			t.Close(nil)
			fn()
		})
	})
}
