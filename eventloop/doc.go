// Package eventloop provides a single-threaded asynchronous I/O loop for Go,
// featuring readiness-based I/O watchers, timers, a close phase for handles,
// and a request registry that guarantees every asynchronous operation
// completes exactly once.
//
// # Architecture
//
// A [Loop] owns a poller (epoll on Linux, kqueue on macOS), a min-heap of
// [Timer] handles, two task queues, and the set of open [Handle] values.
// Higher level packages (files, stream, udp, sigwatch, fsevent) build on
// three primitives:
//   - [HandleBase], embedded by every long-lived object, tracking
//     activeness, references, and the close lifecycle
//   - [IOWatcher], delivering readiness for a single file descriptor
//   - [Request], a single in-flight operation, created via [Loop.NewRequest]
//     or [Loop.QueueWork], which completes (or is cancelled) exactly once
//
// # Iteration
//
// Each iteration of [Loop.Run]:
//  1. Updates the cached loop time ([Loop.Now])
//  2. Runs due timers, earliest deadline first
//  3. Runs queued tasks, [Loop.SubmitInternal] before [Loop.Submit]
//  4. Polls for I/O, blocking only when nothing else is pending, and only
//     until the next timer is due
//  5. Runs close callbacks, for handles closed during the iteration
//
// The loop is alive while any active, referenced handle exists, any
// request is in flight, any handle is closing, or any task is queued.
//
// # Thread Safety
//
// Callbacks always run on the goroutine calling [Loop.Run]. Handles and
// requests are not safe for concurrent use, and must only be touched from
// callbacks, or while the loop is not running. To interact with the loop
// from another goroutine, use [Loop.Submit].
//
// # Usage
//
//	loop, err := eventloop.New(eventloop.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Close()
//
//	timer := eventloop.NewTimer(loop)
//	_ = timer.Start(100*time.Millisecond, 0, func() {
//	    fmt.Println("fired")
//	    timer.Close(nil)
//	})
//
//	if _, err := loop.Run(context.Background(), eventloop.RunDefault); err != nil {
//	    log.Fatal(err)
//	}
package eventloop
