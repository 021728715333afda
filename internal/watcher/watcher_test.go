package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startWatcher starts a watcher on dir and stops it on cleanup.
func startWatcher(t *testing.T, dir string, opts Options) *Watcher {
	t.Helper()
	w, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, w.AddPath(dir))
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

// waitFor reads events until one matches or the timeout passes.
func waitFor(t *testing.T, w *Watcher, match func(Event) bool, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				t.Fatal("events channel closed")
			}
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timeout waiting for event")
			return Event{}
		}
	}
}

func isEvent(path string, typ EventType) func(Event) bool {
	return func(ev Event) bool { return ev.Path == path && ev.Type == typ }
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "dir_deleted", DirDeleted.String())
	assert.Equal(t, "unknown", EventType(99).String())
}

func TestWatcher_ConfigurationAfterStartFails(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, Options{Latency: 20 * time.Millisecond})

	assert.True(t, w.IsRunning())
	assert.ErrorIs(t, w.AddPath(t.TempDir()), ErrAlreadyRunning)
	assert.ErrorIs(t, w.SetLatency(time.Second), ErrAlreadyRunning)
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyRunning)
}

func TestWatcher_StartWithoutPaths(t *testing.T) {
	w, err := New(DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	assert.ErrorIs(t, w.Start(context.Background()), ErrNoPaths)
	assert.False(t, w.IsRunning())
}

func TestWatcher_AddPathRejectsFiles(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	w, err := New(DefaultOptions())
	require.NoError(t, err)
	assert.Error(t, w.AddPath(file))
	assert.Error(t, w.AddPath(filepath.Join(t.TempDir(), "missing")))
}

func TestWatcher_StopClosesChannels(t *testing.T) {
	w := startWatcher(t, t.TempDir(), Options{Latency: 10 * time.Millisecond})

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	assert.False(t, w.IsRunning())
	_, ok := <-w.Events()
	assert.False(t, ok)
	_, ok = <-w.Errors()
	assert.False(t, ok)
	assert.ErrorIs(t, w.Start(context.Background()), ErrStopped)
}

func TestWatcher_ContextCancelStops(t *testing.T) {
	w, err := New(Options{Latency: 10 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, w.AddPath(t.TempDir()))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))

	cancel()

	assert.Eventually(t, func() bool { return !w.IsRunning() }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_FileLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file system watcher test in short mode")
	}
	dir := t.TempDir()
	w := startWatcher(t, dir, Options{Latency: 30 * time.Millisecond})
	file := filepath.Join(dir, "note.txt")

	// When: a file is created
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o644))
	// Then: a created event arrives with an absolute path
	ev := waitFor(t, w, isEvent(file, Created), 3*time.Second)
	assert.False(t, ev.IsDir)
	assert.True(t, filepath.IsAbs(ev.Path))

	// When: it is modified after the window
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(file, []byte("hello again"), 0o644))
	waitFor(t, w, isEvent(file, Modified), 3*time.Second)

	// When: it is deleted
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.Remove(file))
	waitFor(t, w, isEvent(file, Deleted), 3*time.Second)
}

func TestWatcher_Directories(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file system watcher test in short mode")
	}
	dir := t.TempDir()
	w := startWatcher(t, dir, Options{Latency: 30 * time.Millisecond})
	sub := filepath.Join(dir, "sub")

	require.NoError(t, os.Mkdir(sub, 0o755))
	ev := waitFor(t, w, isEvent(sub, DirCreated), 3*time.Second)
	assert.True(t, ev.IsDir)

	// New directories are watched too
	time.Sleep(100 * time.Millisecond)
	nested := filepath.Join(sub, "inner.txt")
	require.NoError(t, os.WriteFile(nested, []byte("x"), 0o644))
	waitFor(t, w, isEvent(nested, Created), 3*time.Second)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.RemoveAll(sub))
	waitFor(t, w, isEvent(sub, DirDeleted), 3*time.Second)
}

func TestWatcher_Rename(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file system watcher test in short mode")
	}
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.txt")
	newPath := filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o644))
	w := startWatcher(t, dir, Options{Latency: 30 * time.Millisecond})
	if w.Backend() != "fsnotify" {
		t.Skip("rename events need fsnotify")
	}

	require.NoError(t, os.Rename(oldPath, newPath))

	ev := waitFor(t, w, func(ev Event) bool { return ev.Type == Renamed }, 3*time.Second)
	assert.Equal(t, oldPath, ev.Path)
	assert.Equal(t, oldPath, ev.OldPath)
}

func TestWatcher_IgnoredPaths(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file system watcher test in short mode")
	}
	dir := t.TempDir()
	w := startWatcher(t, dir, Options{
		Latency: 30 * time.Millisecond,
		Ignore: func(path string, _ bool) bool {
			return strings.HasSuffix(path, ".tmp")
		},
	})

	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".amanfind"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanfind", "index.db"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scratch.tmp"), []byte("x"), 0o644))
	keep := filepath.Join(dir, "keep.txt")
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o644))

	ev := waitFor(t, w, func(ev Event) bool {
		assert.NotContains(t, ev.Path, ".amanfind")
		assert.NotContains(t, ev.Path, ".tmp")
		return ev.Path == keep
	}, 3*time.Second)
	assert.Equal(t, Created, ev.Type)
}

func TestWatcher_PollingFallback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping polling watcher test in short mode")
	}
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.txt")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))

	w := startWatcher(t, dir, Options{
		Latency:      20 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
		ForcePolling: true,
	})
	assert.Equal(t, "polling", w.Backend())

	created := filepath.Join(dir, "fresh.txt")
	require.NoError(t, os.WriteFile(created, []byte("x"), 0o644))
	waitFor(t, w, isEvent(created, Created), 3*time.Second)

	sub := filepath.Join(dir, "d")
	require.NoError(t, os.Mkdir(sub, 0o755))
	waitFor(t, w, isEvent(sub, DirCreated), 3*time.Second)

	require.NoError(t, os.Remove(existing))
	waitFor(t, w, isEvent(existing, Deleted), 3*time.Second)
}

func TestPoller_DetectsModification(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("one"), 0o644))

	p := newPoller([]string{dir}, func(string, bool) bool { return false })
	p.baseline()

	// Given: the file grows
	require.NoError(t, os.WriteFile(file, []byte("one two three"), 0o644))

	// When: diffing
	var got []Event
	p.detectChanges(func(ev Event) { got = append(got, ev) })

	// Then
	require.Len(t, got, 1)
	assert.Equal(t, Modified, got[0].Type)
	assert.Equal(t, file, got[0].Path)

	got = nil
	p.detectChanges(func(ev Event) { got = append(got, ev) })
	assert.Empty(t, got)
}
