package files

import (
	"time"

	"github.com/joeycumines/go-uvio/eventloop"
	"github.com/joeycumines/go-uvio/ioerr"
)

type (
	// PollWatcher is a handle that stats a path on an interval, reporting
	// whenever the result changes.
	//
	// The first successful stat is the baseline, and is not reported. After
	// that, the callback receives the previous and current snapshots on any
	// change, and errors are reported each time the error code changes.
	// Following an error, prev is the zero Stat.
	PollWatcher struct {
		eventloop.HandleBase
		fs       *FS
		timer    *eventloop.Timer
		cb       PollCallback
		prev     *Stat
		path     string
		interval time.Duration
		gen      uint64
		lastCode int
		polled   bool
	}

	// PollCallback receives a reported change.
	PollCallback func(prev, curr *Stat, err error)
)

var zeroStat = &Stat{}

// NewPollWatcher creates a poll watcher, running its stats via fs.
func NewPollWatcher(fs *FS) *PollWatcher {
	x := &PollWatcher{fs: fs}
	x.Init(fs.loop, eventloop.KindFSPoll, x)
	// the timer is internal, so it is hidden from Walk and CloseAll
	x.timer = eventloop.NewTimer(fs.loop)
	x.timer.Unref()
	x.timer.Release()
	return x
}

// Path returns the watched path, or "" if the watcher has never been
// started.
func (x *PollWatcher) Path() string { return x.path }

// Start begins polling path every interval. Starting an active watcher
// restarts it, with a new baseline.
func (x *PollWatcher) Start(path string, interval time.Duration, cb PollCallback) error {
	if err := x.CheckOpen(); err != nil {
		return err
	}
	x.stop()
	x.path = path
	x.interval = max(interval, time.Millisecond)
	x.cb = cb
	x.prev = nil
	x.lastCode = 0
	x.polled = false
	x.SetActive(true)
	return x.poll(x.gen)
}

// Stop stops polling. A stat that is already in flight is discarded.
func (x *PollWatcher) Stop() error {
	x.stop()
	x.SetActive(false)
	return nil
}

// Close stops and closes the watcher.
func (x *PollWatcher) Close(cb func()) {
	if x.IsClosing() {
		return
	}
	x.stop()
	x.timer.Close(nil)
	_ = x.BeginClose(cb, nil)
}

func (x *PollWatcher) stop() {
	x.gen++
	_ = x.timer.Stop()
}

func (x *PollWatcher) poll(gen uint64) error {
	return x.fs.StatAsync(x.path, nil, func(_ any, st *Stat, err error) {
		if gen != x.gen || !x.IsActive() {
			return
		}
		x.report(st, err)
		if gen != x.gen || !x.IsActive() {
			// stopped or restarted by the callback
			return
		}
		_ = x.timer.Start(x.interval, 0, func() {
			if gen != x.gen {
				return
			}
			if err := x.poll(gen); err != nil {
				x.report(nil, err)
			}
		})
	})
}

func (x *PollWatcher) report(st *Stat, err error) {
	first := !x.polled
	x.polled = true
	if err != nil {
		code := ioerr.Code(err)
		if code == x.lastCode {
			return
		}
		x.lastCode = code
		prev := x.prev
		if prev == nil {
			prev = zeroStat
		}
		x.prev = nil
		x.emit(prev, zeroStat, err)
		return
	}
	prev := x.prev
	x.prev = st
	switch {
	case x.lastCode != 0:
		x.lastCode = 0
		x.emit(zeroStat, st, nil)
	case first:
	case !prev.Equal(st):
		x.emit(prev, st, nil)
	}
}

func (x *PollWatcher) emit(prev, curr *Stat, err error) {
	if cb := x.cb; cb != nil {
		cb(prev, curr, err)
	}
}
