package eventloop

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// testHandle is a minimal Handle, driven directly by tests.
type testHandle struct {
	HandleBase
	closed int
}

func newTestHandle(loop *Loop) *testHandle {
	h := &testHandle{}
	h.Init(loop, KindUnknown, h)
	return h
}

func (h *testHandle) Close(cb func()) {
	_ = h.BeginClose(cb, func() { h.closed++ })
}

// newTestLoop creates a loop which is closed on test cleanup.
func newTestLoop(t testing.TB, opts ...LoopOption) *Loop {
	t.Helper()
	loop, err := New(opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = loop.Close() })
	return loop
}

// runWithTimeout runs the loop in RunDefault mode, failing the test if it
// does not return within timeout.
func runWithTimeout(t testing.TB, loop *Loop, timeout time.Duration) bool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	alive, err := loop.Run(ctx, RunDefault)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return alive
}

// syncBuffer is a bytes.Buffer safe for concurrent writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (x *syncBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.Write(p)
}

func (x *syncBuffer) String() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.String()
}

func newTestLogger(w *syncBuffer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelTrace),
	).Logger()
}
