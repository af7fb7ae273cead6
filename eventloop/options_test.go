package eventloop

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLoopOptions(t *testing.T) {
	cfg, err := resolveLoopOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultWorkerPoolSize, cfg.workerPoolSize)
	assert.False(t, cfg.metricsEnabled)
	assert.Nil(t, cfg.logger)

	cfg, err = resolveLoopOptions([]LoopOption{nil, WithWorkerPoolSize(9), WithMetrics(true)})
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.workerPoolSize)
	assert.True(t, cfg.metricsEnabled)

	_, err = New(WithWorkerPoolSize(0))
	assert.EqualError(t, err, "eventloop: invalid worker pool size: 0")
}

func TestMetrics_disabled(t *testing.T) {
	loop := newTestLoop(t)
	timer := NewTimer(loop)
	require.NoError(t, timer.Start(time.Millisecond, 0, func() {}))
	assert.Equal(t, Metrics{}, loop.Metrics())
	runWithTimeout(t, loop, 5*time.Second)

	m := loop.Metrics()
	assert.Zero(t, m.Iterations)
	assert.Zero(t, m.HandlesOpened)
	assert.Zero(t, m.ActiveHandles)
}

func TestMetrics_enabled(t *testing.T) {
	loop := newTestLoop(t, WithMetrics(true))
	timer := NewTimer(loop)
	require.NoError(t, timer.Start(5*time.Millisecond, 0, func() { timer.Close(nil) }))
	require.NoError(t, loop.Submit(func() {}))
	loop.NewRequest(OpWork, nil, nil).Complete(nil, nil)

	runWithTimeout(t, loop, 5*time.Second)

	m := loop.Metrics()
	assert.NotZero(t, m.Iterations)
	assert.Equal(t, uint64(1), m.Tasks)
	assert.Equal(t, uint64(1), m.HandlesOpened)
	assert.Equal(t, uint64(1), m.HandlesClosed)
	assert.Equal(t, uint64(1), m.RequestsCompleted)
	assert.NotZero(t, m.PollLatency.Count)
	assert.GreaterOrEqual(t, m.PollLatency.Max, m.PollLatency.P50)
	assert.Zero(t, m.ActiveRequests)
}

func TestLatencyMetrics_rolling(t *testing.T) {
	var l latencyMetrics
	assert.Equal(t, LatencySnapshot{}, l.snapshot())

	for i := 1; i <= sampleSize+100; i++ {
		l.record(time.Duration(i))
	}
	s := l.snapshot()
	assert.Equal(t, sampleSize, s.Count)
	assert.Equal(t, time.Duration(sampleSize+100), s.Max)
	// the oldest 100 samples were evicted
	assert.Equal(t, time.Duration(101+(sampleSize-1)/2), s.Mean)
	assert.Equal(t, time.Duration(100+percentileIndex(sampleSize, 50)+1), s.P50)
}

func TestPercentileIndex(t *testing.T) {
	assert.Equal(t, 0, percentileIndex(1, 99))
	assert.Equal(t, 50, percentileIndex(100, 50))
	assert.Equal(t, 99, percentileIndex(100, 100))
}

func TestLogging_lifecycleAndPanics(t *testing.T) {
	var logs syncBuffer
	loop := newTestLoop(t, WithLogger(newTestLogger(&logs)))
	assert.NotNil(t, loop.Logger())

	timer := NewTimer(loop)
	require.NoError(t, timer.Start(0, 0, func() {
		timer.Close(nil)
		panic("timer boom")
	}))
	runWithTimeout(t, loop, 5*time.Second)

	out := logs.String()
	assert.Contains(t, out, `"msg":"eventloop: handle opened"`)
	assert.Contains(t, out, `"msg":"eventloop: handle closed"`)
	assert.Contains(t, out, `"kind":"timer"`)

	var panicLine string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "callback panicked") {
			panicLine = line
		}
	}
	require.NotEmpty(t, panicLine)
	assert.Contains(t, panicLine, `"lvl":"err"`)
	assert.Contains(t, panicLine, `"source":"timer"`)
	assert.Contains(t, panicLine, `timer boom`)
}

func TestLogging_nilLoggerIsSafe(t *testing.T) {
	loop := newTestLoop(t)
	assert.Nil(t, loop.Logger())
	loop.Logger().Info().Str("k", "v").Log("discarded")
}
