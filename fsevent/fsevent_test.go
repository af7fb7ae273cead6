package fsevent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joeycumines/go-uvio/eventloop"
	"github.com/joeycumines/go-uvio/ioerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop(t testing.TB) *eventloop.Loop {
	t.Helper()
	loop, err := eventloop.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = loop.Close() })
	return loop
}

func runWithTimeout(t testing.TB, loop *eventloop.Loop, timeout time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err := loop.Run(ctx, eventloop.RunDefault)
	require.NoError(t, err)
}

func TestWatcher_reportsCreate(t *testing.T) {
	loop := newTestLoop(t)
	dir := t.TempDir()
	x := New(loop)

	var (
		name   string
		events Event
	)
	require.NoError(t, x.Start(dir, func(filename string, ev Event, err error) {
		require.NoError(t, err)
		if filename != `created` {
			return
		}
		name, events = filename, ev
		x.Close(nil)
	}))
	assert.Equal(t, dir, x.Path())
	assert.True(t, x.IsActive())
	require.NoError(t, os.WriteFile(filepath.Join(dir, `created`), []byte(`x`), 0o644))

	runWithTimeout(t, loop, 5*time.Second)
	assert.Equal(t, `created`, name)
	assert.NotZero(t, events&(Rename|Change))
	assert.Equal(t, eventloop.HandleClosed, x.State())
}

func TestWatcher_startErrors(t *testing.T) {
	loop := newTestLoop(t)
	dir := t.TempDir()
	x := New(loop)

	missing := filepath.Join(dir, `missing`)
	err := x.Start(missing, func(string, Event, error) {})
	assert.Equal(t, ioerr.ENOENT, ioerr.Code(err))
	assert.Contains(t, err.Error(), missing)
	assert.False(t, x.IsActive())

	assert.Equal(t, ioerr.EINVAL, ioerr.Code(x.Start(dir, nil)))
	require.NoError(t, x.Start(dir, func(string, Event, error) {}))
	assert.Equal(t, ioerr.EINVAL, ioerr.Code(x.Start(dir, func(string, Event, error) {})))

	require.NoError(t, x.Stop())
	require.NoError(t, x.Stop())
	assert.False(t, x.IsActive())
	assert.Empty(t, x.Path())
	x.Close(nil)
	runWithTimeout(t, loop, time.Second)
}

func TestEventOf(t *testing.T) {
	for _, tc := range [...]struct {
		name string
		op   fsnotify.Op
		want Event
	}{
		{`create`, fsnotify.Create, Rename},
		{`write`, fsnotify.Write, Change},
		{`remove`, fsnotify.Remove, Rename},
		{`rename`, fsnotify.Rename, Rename},
		{`chmod`, fsnotify.Chmod, Change},
		{`both`, fsnotify.Create | fsnotify.Write, Rename | Change},
		{`none`, 0, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, eventOf(tc.op))
		})
	}
}
