// Package sigwatch delivers OS signals to callbacks on an
// [eventloop.Loop].
//
// Signals are received on a channel with a buffer of one, so deliveries
// made before the loop runs the callback may be coalesced. Each delivery
// that is not coalesced invokes the callback once, on the loop goroutine.
package sigwatch

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/go-uvio/eventloop"
	"github.com/joeycumines/go-uvio/ioerr"
)

type (
	// Watcher is a signal subscription handle. It is created unstarted,
	// and may be started, stopped, and started again, any number of times.
	Watcher struct {
		eventloop.HandleBase
		loop *eventloop.Loop
		cb   Callback
		sub  *subscription
		// gen identifies the current subscription, so deliveries queued
		// before a restart are dropped
		gen    uint64
		signum int
	}

	// Callback receives the number of the delivered signal.
	Callback func(signum int)

	subscription struct {
		ch   chan os.Signal
		done chan struct{}
	}
)

// New creates an unstarted Watcher bound to loop.
func New(loop *eventloop.Loop) *Watcher {
	x := &Watcher{loop: loop}
	x.Init(loop, eventloop.KindSignal, x)
	return x
}

// Signum returns the watched signal, or 0 if not started.
func (x *Watcher) Signum() int { return x.signum }

// Start arms delivery of signum to cb. Starting an already started watcher
// replaces the callback, switching the subscription if signum differs.
func (x *Watcher) Start(signum int, cb Callback) error {
	if err := x.CheckOpen(); err != nil {
		return err
	}
	if cb == nil || signum <= 0 {
		return ioerr.Build(ioerr.EINVAL, `signal_start`, ``, ``)
	}
	if x.loop.State() == eventloop.StateTerminated {
		return eventloop.ErrLoopTerminated
	}
	x.Retain()
	x.cb = cb
	if x.sub != nil && x.signum == signum {
		return nil
	}
	x.disarm()
	x.gen++
	x.signum = signum
	x.sub = &subscription{
		ch:   make(chan os.Signal, 1),
		done: make(chan struct{}),
	}
	signal.Notify(x.sub.ch, syscall.Signal(signum))
	go x.forward(x.sub, x.gen)
	x.SetActive(true)
	x.loop.Logger().Trace().
		Int("signum", signum).
		Log("sigwatch: started")
	return nil
}

// Stop disarms the watcher, releasing its hold on the loop. A stopped
// watcher does not prevent Destroy, and is not visited by Walk, until it is
// started again. It is a no-op if the watcher is not started.
func (x *Watcher) Stop() error {
	x.disarm()
	x.signum = 0
	x.cb = nil
	x.SetActive(false)
	x.Release()
	return nil
}

// Close stops the watcher, and closes the handle.
func (x *Watcher) Close(cb func()) {
	if x.IsClosing() {
		return
	}
	_ = x.Stop()
	_ = x.BeginClose(cb, nil)
}

func (x *Watcher) disarm() {
	if x.sub == nil {
		return
	}
	signal.Stop(x.sub.ch)
	close(x.sub.done)
	x.sub = nil
}

// forward runs on its own goroutine, until the subscription is disarmed.
func (x *Watcher) forward(sub *subscription, gen uint64) {
	for {
		select {
		case <-sub.done:
			return
		case sig := <-sub.ch:
			signum := int(sig.(syscall.Signal))
			if err := x.loop.Submit(func() { x.deliver(gen, signum) }); err != nil {
				x.loop.Logger().Debug().
					Int("signum", signum).
					Err(err).
					Log("sigwatch: dropped signal")
				return
			}
		}
	}
}

func (x *Watcher) deliver(gen uint64, signum int) {
	if gen != x.gen || x.sub == nil || x.IsClosing() {
		return
	}
	x.cb(signum)
}
