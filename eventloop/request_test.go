package eventloop

import (
	"errors"
	"runtime"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/joeycumines/go-uvio/ioerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_completesExactlyOnce(t *testing.T) {
	loop := newTestLoop(t, WithMetrics(true))
	var got []Completion
	req := loop.NewRequest(OpStat, 7, func(c Completion) { got = append(got, c) })
	assert.True(t, req.Pending())
	assert.Equal(t, -1, req.FD)
	assert.Equal(t, 1, loop.registry.Active())

	assert.True(t, req.Complete("result", nil))
	assert.False(t, req.Complete("again", nil))
	assert.False(t, req.Cancel(nil))
	assert.False(t, req.Pending())
	assert.Equal(t, 0, loop.registry.Active())

	require.Len(t, got, 1)
	assert.Equal(t, Completion{Context: 7, Payload: "result", Kind: OpStat}, got[0])

	m := loop.Metrics()
	assert.Equal(t, uint64(1), m.RequestsCompleted)
	assert.Equal(t, uint64(2), m.RequestsLate)
}

func TestRequest_outcomeIsExclusive(t *testing.T) {
	loop := newTestLoop(t)

	var c Completion
	loop.NewRequest(OpFsync, nil, func(v Completion) { c = v }).Complete(nil, nil)
	assert.Equal(t, Done, c.Payload)
	assert.NoError(t, c.Err)

	cause := errors.New("failed")
	loop.NewRequest(OpFsync, nil, func(v Completion) { c = v }).Complete("ignored", cause)
	assert.Nil(t, c.Payload)
	assert.Same(t, cause, c.Err)
}

func TestRequest_cancel(t *testing.T) {
	loop := newTestLoop(t, WithMetrics(true))
	var c Completion
	req := loop.NewRequest(OpConnect, nil, func(v Completion) { c = v })
	assert.True(t, req.Cancel(nil))

	var e *ioerr.Error
	require.ErrorAs(t, c.Err, &e)
	assert.Equal(t, ioerr.ECANCELED, e.Code)
	assert.Equal(t, "connect", e.Syscall)
	assert.ErrorIs(t, c.Err, syscall.ECANCELED)
	assert.Equal(t, uint64(1), loop.Metrics().RequestsCancelled)

	cause := errors.New("custom")
	req = loop.NewRequest(OpConnect, nil, func(v Completion) { c = v })
	assert.True(t, req.Cancel(cause))
	assert.Same(t, cause, c.Err)
}

func TestRequest_callbackPanicIsRecovered(t *testing.T) {
	loop := newTestLoop(t)
	req := loop.NewRequest(OpWork, nil, func(Completion) { panic("boom") })
	assert.True(t, req.Complete(nil, nil))
	assert.Equal(t, 0, loop.registry.Active())
}

func TestRegistry_scavenge(t *testing.T) {
	loop := newTestLoop(t)
	r := loop.registry

	reqs := make([]*Request, 300)
	for i := range reqs {
		reqs[i] = loop.NewRequest(OpWork, i, nil)
	}
	assert.Len(t, r.ring, 300)

	for i, req := range reqs {
		if i%10 != 0 {
			req.Complete(nil, nil)
		}
	}
	r.Scavenge(1000)
	assert.Len(t, r.data, 30)
	// compacted, as less than a quarter remain
	assert.Len(t, r.ring, 30)
	assert.Equal(t, 30, r.Active())

	pending := r.pending()
	require.Len(t, pending, 30)
	for i, req := range pending {
		assert.Equal(t, i*10, req.Context)
	}

	assert.Equal(t, 30, r.CancelAll(nil))
	r.Scavenge(10)
	assert.Len(t, r.data, 20)
	r.Scavenge(100)
	assert.Empty(t, r.data)
	assert.Empty(t, r.ring)
	assert.Equal(t, 0, r.Active())
}

func TestRegistry_scavengeInvalidBatch(t *testing.T) {
	r := newRegistry()
	r.Scavenge(0)
	r.Scavenge(-1)
	r.Scavenge(10)
	assert.Empty(t, r.ring)
}

func TestQueueWork_result(t *testing.T) {
	loop := newTestLoop(t)
	var (
		c      Completion
		worker atomic.Bool
	)
	_, err := loop.QueueWork(OpWork, "ctx", func() (any, error) {
		worker.Store(!loop.OnLoopGoroutine())
		return 42, nil
	}, func(v Completion) {
		assert.True(t, loop.OnLoopGoroutine())
		c = v
	})
	require.NoError(t, err)

	alive := runWithTimeout(t, loop, 5*time.Second)
	assert.False(t, alive)
	assert.True(t, worker.Load())
	assert.Equal(t, Completion{Context: "ctx", Payload: 42, Kind: OpWork}, c)
}

func TestQueueWork_panicAndGoexit(t *testing.T) {
	loop := newTestLoop(t)
	var panicked, exited Completion
	_, err := loop.QueueWork(OpWork, nil, func() (any, error) {
		panic("boom")
	}, func(v Completion) { panicked = v })
	require.NoError(t, err)
	_, err = loop.QueueWork(OpWork, nil, func() (any, error) {
		runtime.Goexit()
		return nil, nil
	}, func(v Completion) { exited = v })
	require.NoError(t, err)

	runWithTimeout(t, loop, 5*time.Second)

	var pe PanicError
	require.ErrorAs(t, panicked.Err, &pe)
	assert.Equal(t, "boom", pe.Value)
	assert.ErrorIs(t, exited.Err, ErrGoexit)
}

func TestQueueWork_poolSizeBoundsConcurrency(t *testing.T) {
	loop := newTestLoop(t, WithWorkerPoolSize(2))
	var (
		running, peak atomic.Int32
		done          int
	)
	for range 8 {
		_, err := loop.QueueWork(OpWork, nil, func() (any, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		}, func(Completion) { done++ })
		require.NoError(t, err)
	}

	runWithTimeout(t, loop, 10*time.Second)
	assert.Equal(t, 8, done)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestQueueWork_closeCancels(t *testing.T) {
	loop, err := New(WithWorkerPoolSize(1))
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	var c Completion
	_, err = loop.QueueWork(OpRead, nil, func() (any, error) {
		<-release
		return "late", nil
	}, func(v Completion) { c = v })
	require.NoError(t, err)

	require.NoError(t, loop.Close())
	assert.ErrorIs(t, c.Err, syscall.ECANCELED)

	_, err = loop.QueueWork(OpRead, nil, func() (any, error) { return nil, nil }, nil)
	assert.ErrorIs(t, err, ErrLoopTerminated)
}
