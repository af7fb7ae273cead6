package eventloop

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is a snapshot of runtime statistics for the event loop, see
// Loop.Metrics. All fields are zero unless WithMetrics(true) was supplied.
//
// Example:
//
//	loop, _ := New(WithMetrics(true))
//	_, _ = loop.Run(ctx, RunDefault)
//	stats := loop.Metrics()
//	fmt.Printf("iterations: %d, P99 poll: %v\n",
//		stats.Iterations, stats.PollLatency.P99)
type Metrics struct {
	// PollLatency is the distribution of time spent blocked in poll.
	PollLatency LatencySnapshot

	Iterations        uint64
	Tasks             uint64
	Panics            uint64
	RequestsCompleted uint64
	RequestsCancelled uint64
	// RequestsLate counts completions that arrived for a request that had
	// already completed, e.g. a filesystem result after Close cancelled it.
	RequestsLate   uint64
	HandlesOpened  uint64
	HandlesClosed  uint64
	ActiveHandles  int
	ActiveRequests int
}

// LatencySnapshot holds percentiles computed from recent samples.
type LatencySnapshot struct {
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	Max   time.Duration
	Mean  time.Duration
	Count int
}

// sampleSize is the maximum number of latency samples to retain.
const sampleSize = 1000

// latencyMetrics tracks a rolling window of latency samples.
type latencyMetrics struct {
	mu          sync.Mutex
	samples     [sampleSize]time.Duration
	sum         time.Duration
	sampleIdx   int
	sampleCount int
}

// record records a latency sample.
func (l *latencyMetrics) record(duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// If buffer is full, subtract the old sample that we're replacing
	if l.sampleCount >= sampleSize {
		l.sum -= l.samples[l.sampleIdx]
	}

	l.samples[l.sampleIdx] = duration
	l.sum += duration
	l.sampleIdx++
	if l.sampleIdx >= sampleSize {
		l.sampleIdx = 0
	}
	if l.sampleCount < sampleSize {
		l.sampleCount++
	}
}

// snapshot computes percentiles from collected samples.
func (l *latencyMetrics) snapshot() (s LatencySnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.sampleCount
	if count == 0 {
		return
	}

	sorted := slices.Clone(l.samples[:count])
	slices.Sort(sorted)

	s.P50 = sorted[percentileIndex(count, 50)]
	s.P90 = sorted[percentileIndex(count, 90)]
	s.P99 = sorted[percentileIndex(count, 99)]
	s.Max = sorted[count-1]
	s.Mean = l.sum / time.Duration(count)
	s.Count = count
	return
}

// percentileIndex computes the index for a given percentile (0-100).
func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}

// loopMetrics holds the live counters behind Metrics.
type loopMetrics struct {
	poll              latencyMetrics
	iterations        atomic.Uint64
	tasks             atomic.Uint64
	panics            atomic.Uint64
	requestsCompleted atomic.Uint64
	requestsCancelled atomic.Uint64
	requestsLate      atomic.Uint64
	handlesOpened     atomic.Uint64
	handlesClosed     atomic.Uint64
}

// Metrics returns a snapshot of the loop's metrics. It is safe to call from
// any goroutine, though ActiveHandles and ActiveRequests are approximate
// while the loop is running.
func (l *Loop) Metrics() Metrics {
	m := l.metrics
	if m == nil {
		return Metrics{}
	}
	return Metrics{
		PollLatency:       m.poll.snapshot(),
		Iterations:        m.iterations.Load(),
		Tasks:             m.tasks.Load(),
		Panics:            m.panics.Load(),
		RequestsCompleted: m.requestsCompleted.Load(),
		RequestsCancelled: m.requestsCancelled.Load(),
		RequestsLate:      m.requestsLate.Load(),
		HandlesOpened:     m.handlesOpened.Load(),
		HandlesClosed:     m.handlesClosed.Load(),
		ActiveHandles:     int(l.activeHandles.Load()),
		ActiveRequests:    l.registry.Active(),
	}
}
