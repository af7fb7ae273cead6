package eventloop

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_orderByDueThenStart(t *testing.T) {
	loop := newTestLoop(t)
	var order []string
	add := func(name string, d time.Duration) {
		timer := NewTimer(loop)
		require.NoError(t, timer.Start(d, 0, func() {
			order = append(order, name)
			timer.Close(nil)
		}))
	}
	add("c", 30*time.Millisecond)
	add("a1", 10*time.Millisecond)
	add("a2", 10*time.Millisecond)
	add("b", 20*time.Millisecond)

	runWithTimeout(t, loop, 5*time.Second)
	assert.Equal(t, []string{"a1", "a2", "b", "c"}, order)
}

func TestTimer_repeatAndStop(t *testing.T) {
	loop := newTestLoop(t)
	timer := NewTimer(loop)
	var count int
	require.NoError(t, timer.Start(time.Millisecond, 2*time.Millisecond, func() {
		count++
		if count == 3 {
			require.NoError(t, timer.Stop())
		}
	}))
	assert.Equal(t, 2*time.Millisecond, timer.Repeat())

	alive := runWithTimeout(t, loop, 5*time.Second)
	assert.False(t, alive)
	assert.Equal(t, 3, count)
	assert.Equal(t, HandleIdle, timer.State())
}

func TestTimer_zeroTimeoutStartedInCallbackRunsLater(t *testing.T) {
	loop := newTestLoop(t)
	timer := NewTimer(loop)
	var count int
	require.NoError(t, timer.Start(0, 0, func() {
		count++
		if count < 3 {
			require.NoError(t, timer.Start(0, 0, timer.cb))
		}
	}))

	_, err := loop.Run(t.Context(), RunNoWait)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	runWithTimeout(t, loop, 5*time.Second)
	assert.Equal(t, 3, count)
}

func TestTimer_again(t *testing.T) {
	loop := newTestLoop(t)
	timer := NewTimer(loop)
	assert.ErrorIs(t, timer.Again(), ErrTimerNotStarted)

	require.NoError(t, timer.Start(time.Hour, 0, func() {}))
	require.NoError(t, timer.Again())
	assert.False(t, timer.IsActive())

	var fired bool
	timer.SetRepeat(time.Millisecond)
	require.NoError(t, timer.Start(time.Hour, time.Millisecond, func() {
		fired = true
		timer.Close(nil)
	}))
	require.NoError(t, timer.Again())
	assert.True(t, timer.IsActive())

	runWithTimeout(t, loop, 5*time.Second)
	assert.True(t, fired)
}

func TestTimer_closed(t *testing.T) {
	loop := newTestLoop(t)
	timer := NewTimer(loop)
	require.NoError(t, timer.Start(time.Hour, 0, func() { t.Error("unexpected fire") }))

	var calls int
	timer.Close(func() { calls++ })
	timer.Close(func() { calls += 100 })
	assert.ErrorIs(t, timer.Start(0, 0, func() {}), ErrHandleClosing)
	assert.ErrorIs(t, timer.Again(), ErrHandleClosing)
	assert.Equal(t, HandleClosing, timer.State())

	runWithTimeout(t, loop, 5*time.Second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, HandleClosed, timer.State())
	assert.Empty(t, loop.timers)
}

func TestTimer_panicIsRecovered(t *testing.T) {
	loop := newTestLoop(t)
	timer := NewTimer(loop)
	var after bool
	require.NoError(t, timer.Start(0, 0, func() { panic("boom") }))
	other := NewTimer(loop)
	require.NoError(t, other.Start(0, 0, func() { after = true }))

	runWithTimeout(t, loop, 5*time.Second)
	assert.True(t, after)
}

func TestScheduleTimer_fromGoroutine(t *testing.T) {
	loop := newTestLoop(t)
	h := newTestHandle(loop)
	h.SetActive(true)

	var fired atomic.Bool
	go func() {
		_ = loop.ScheduleTimer(5*time.Millisecond, func() {
			fired.Store(true)
			h.Close(nil)
		})
	}()

	runWithTimeout(t, loop, 5*time.Second)
	assert.True(t, fired.Load())
	assert.Empty(t, loop.List())
}

func TestNextTimeout(t *testing.T) {
	loop := newTestLoop(t)
	assert.Equal(t, time.Duration(-1), loop.nextTimeout())

	timer := NewTimer(loop)
	require.NoError(t, timer.Start(50*time.Millisecond, 0, func() {}))
	d := loop.nextTimeout()
	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, 50*time.Millisecond)

	require.NoError(t, timer.Stop())
	assert.Equal(t, time.Duration(-1), loop.nextTimeout())
}
