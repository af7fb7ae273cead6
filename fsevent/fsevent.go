// Package fsevent reports changes to a file or directory, via OS native
// notifications, to callbacks on an [eventloop.Loop].
package fsevent

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/joeycumines/go-uvio/eventloop"
	"github.com/joeycumines/go-uvio/ioerr"
)

type (
	// Watcher is a filesystem change subscription handle.
	Watcher struct {
		eventloop.HandleBase
		loop *eventloop.Loop
		w    *fsnotify.Watcher
		cb   Callback
		path string
		gen  uint64
	}

	// Callback receives the name of the changed entry, relative to the
	// watched directory (or the base name of a watched file), or an error.
	Callback func(filename string, events Event, err error)

	// Event is a set of change kinds.
	Event uint8
)

const (
	// Rename indicates an entry was created, removed, or renamed.
	Rename Event = 1 << iota
	// Change indicates an entry's content or metadata changed.
	Change
)

// New creates an unstarted Watcher bound to loop.
func New(loop *eventloop.Loop) *Watcher {
	x := &Watcher{loop: loop}
	x.Init(loop, eventloop.KindFSEvent, x)
	return x
}

// Path returns the watched path, or an empty string if not started.
func (x *Watcher) Path() string { return x.path }

// Start watches path, calling cb for each change. It fails with EINVAL if
// the watcher is already started.
func (x *Watcher) Start(path string, cb Callback) error {
	if err := x.CheckOpen(); err != nil {
		return err
	}
	if cb == nil || path == `` || x.w != nil {
		return ioerr.Build(ioerr.EINVAL, `fs_event_start`, ``, path)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return ioerr.New(err, `fs_event_start`, path)
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		return ioerr.New(err, `fs_event_start`, path)
	}
	x.gen++
	x.w = w
	x.cb = cb
	x.path = path
	go x.forward(w, path, x.gen)
	x.SetActive(true)
	return nil
}

// Stop stops watching. It is a no-op if the watcher is not started.
func (x *Watcher) Stop() error {
	if x.w == nil {
		return nil
	}
	err := x.w.Close()
	x.w = nil
	x.cb = nil
	x.path = ``
	x.SetActive(false)
	if err != nil {
		return ioerr.New(err, `fs_event_stop`, ``)
	}
	return nil
}

// Close stops the watcher, and closes the handle.
func (x *Watcher) Close(cb func()) {
	if x.IsClosing() {
		return
	}
	if err := x.Stop(); err != nil {
		x.loop.Logger().Warning().
			Err(err).
			Log("fsevent: close failed")
	}
	_ = x.BeginClose(cb, nil)
}

// forward runs on its own goroutine, until w is closed.
func (x *Watcher) forward(w *fsnotify.Watcher, path string, gen uint64) {
	for {
		var task func()
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			events := eventOf(ev.Op)
			if events == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			task = func() { x.deliver(gen, name, events, nil) }
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			task = func() { x.deliver(gen, ``, 0, ioerr.New(err, `fs_event`, path)) }
		}
		if err := x.loop.Submit(task); err != nil {
			x.loop.Logger().Debug().
				Err(err).
				Log("fsevent: dropped event")
			return
		}
	}
}

func eventOf(op fsnotify.Op) Event {
	var events Event
	if op.Has(fsnotify.Create) || op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
		events |= Rename
	}
	if op.Has(fsnotify.Write) || op.Has(fsnotify.Chmod) {
		events |= Change
	}
	return events
}

func (x *Watcher) deliver(gen uint64, name string, events Event, err error) {
	if gen != x.gen || x.w == nil || x.IsClosing() {
		return
	}
	x.cb(name, events, err)
}
