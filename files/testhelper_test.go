package files

import (
	"context"
	"testing"
	"time"

	"github.com/joeycumines/go-uvio/eventloop"
)

func newTestFS(t testing.TB, opts ...eventloop.LoopOption) *FS {
	t.Helper()
	loop, err := eventloop.New(opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = loop.Close() })
	return New(loop)
}

func runWithTimeout(t testing.TB, loop *eventloop.Loop, timeout time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := loop.Run(ctx, eventloop.RunDefault); err != nil {
		t.Fatalf("run failed: %v", err)
	}
}
