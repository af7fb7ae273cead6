package stream

import (
	"context"
	"testing"
	"time"

	"github.com/joeycumines/go-uvio/eventloop"
)

func newTestLoop(t testing.TB, opts ...eventloop.LoopOption) *eventloop.Loop {
	t.Helper()
	loop, err := eventloop.New(opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = loop.Close() })
	return loop
}

// runWithTimeout runs the loop until it has nothing left to do, failing the
// test if that takes longer than timeout.
func runWithTimeout(t testing.TB, loop *eventloop.Loop, timeout time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := loop.Run(ctx, eventloop.RunDefault); err != nil {
		t.Fatalf("run failed: %v", err)
	}
}

// listenTCP starts a loopback listener, calling onConn with each accepted
// connection.
func listenTCP(t testing.TB, loop *eventloop.Loop, onConn func(conn *TCP)) (*TCP, int) {
	t.Helper()
	server := NewTCP(loop)
	if err := server.Bind(`127.0.0.1`, 0); err != nil {
		t.Fatal(err)
	}
	if err := server.Listen(16, func(err error) {
		if err != nil {
			t.Error(err)
			return
		}
		conn := NewTCP(loop)
		if err := server.Accept(conn); err != nil {
			t.Error(err)
			return
		}
		onConn(conn)
	}); err != nil {
		t.Fatal(err)
	}
	addr, err := server.SocketName()
	if err != nil {
		t.Fatal(err)
	}
	return server, addr.Port
}
