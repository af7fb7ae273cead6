package files

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joeycumines/go-uvio/eventloop"
	"github.com/joeycumines/go-uvio/ioerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replaceFile atomically replaces path, so a poll never sees partial content.
func replaceFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + `.tmp`
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestPollWatcher_reportsChange(t *testing.T) {
	x := newTestFS(t)
	path := filepath.Join(t.TempDir(), `watched`)
	require.NoError(t, os.WriteFile(path, []byte(`a`), 0o644))

	w := NewPollWatcher(x)
	assert.Equal(t, eventloop.KindFSPoll, w.Kind())

	type change struct{ prev, curr int64 }
	var changes []change
	require.NoError(t, w.Start(path, 5*time.Millisecond, func(prev, curr *Stat, err error) {
		require.NoError(t, err)
		changes = append(changes, change{prev.Size, curr.Size})
		w.Close(nil)
	}))
	assert.True(t, w.IsActive())
	assert.Equal(t, path, w.Path())

	modify := eventloop.NewTimer(x.Loop())
	require.NoError(t, modify.Start(50*time.Millisecond, 0, func() {
		replaceFile(t, path, `abc`)
		modify.Close(nil)
	}))

	runWithTimeout(t, x.Loop(), 5*time.Second)
	assert.Equal(t, []change{{1, 3}}, changes)
	assert.Equal(t, eventloop.HandleClosed, w.State())
}

func TestPollWatcher_reportsErrorsOnce(t *testing.T) {
	x := newTestFS(t)
	path := filepath.Join(t.TempDir(), `later`)

	w := NewPollWatcher(x)
	var (
		errs  []int
		sizes []int64
	)
	require.NoError(t, w.Start(path, 5*time.Millisecond, func(prev, curr *Stat, err error) {
		if err != nil {
			errs = append(errs, ioerr.Code(err))
			assert.Equal(t, &Stat{}, curr)
			return
		}
		assert.Equal(t, &Stat{}, prev)
		sizes = append(sizes, curr.Size)
		require.NoError(t, w.Stop())
	}))

	create := eventloop.NewTimer(x.Loop())
	require.NoError(t, create.Start(60*time.Millisecond, 0, func() {
		replaceFile(t, path, `xy`)
		create.Close(nil)
	}))

	runWithTimeout(t, x.Loop(), 5*time.Second)
	assert.Equal(t, []int{ioerr.ENOENT}, errs)
	assert.Equal(t, []int64{2}, sizes)
	assert.False(t, w.IsActive())
	w.Close(nil)
}

func TestPollWatcher_startAfterClose(t *testing.T) {
	x := newTestFS(t)
	w := NewPollWatcher(x)
	w.Close(nil)
	assert.ErrorIs(t, w.Start(`/`, time.Second, nil), eventloop.ErrHandleClosing)
}

func TestPollWatcher_hidesTimer(t *testing.T) {
	x := newTestFS(t)
	w := NewPollWatcher(x)
	require.NoError(t, w.Start(t.TempDir(), time.Hour, func(*Stat, *Stat, error) {}))
	assert.Equal(t, []string{`fs_poll active`}, x.Loop().List())

	var seen []eventloop.Handle
	x.Loop().Walk(func(h eventloop.Handle) { seen = append(seen, h) })
	require.Len(t, seen, 1)
	assert.Same(t, w, seen[0])

	x.Loop().CloseAll()
	assert.Equal(t, eventloop.HandleClosed, w.State())
	assert.Equal(t, eventloop.HandleClosed, w.timer.State())
	assert.Empty(t, x.Loop().List())
}

func TestStat_equal(t *testing.T) {
	a := &Stat{Size: 1, MtimeMs: 2, AtimeMs: 3}
	b := *a
	b.AtimeMs = 4
	assert.True(t, a.Equal(&b))
	b.Size = 2
	assert.False(t, a.Equal(&b))
	assert.False(t, a.Equal(nil))
	assert.True(t, (*Stat)(nil).Equal(nil))
}
