package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a set of root directories recursively. Configure it
// with AddPath and SetLatency, then Start it once; Stop ends it for good.
type Watcher struct {
	mu      sync.Mutex
	opts    Options
	roots   []string
	running bool
	stopped bool
	backend string

	fsw    *fsnotify.Watcher
	dirsMu sync.Mutex
	dirs   map[string]bool

	debouncer *Debouncer
	events    chan Event
	errors    chan error
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New creates a stopped watcher with no paths.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()
	return &Watcher{
		opts:   opts,
		dirs:   make(map[string]bool),
		events: make(chan Event, opts.EventBufferSize),
		errors: make(chan error, 16),
		stopCh: make(chan struct{}),
	}, nil
}

// AddPath adds a root directory. It fails with ErrAlreadyRunning once
// the watcher has started.
func (w *Watcher) AddPath(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("stat watch path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch path is not a directory: %s", abs)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running || w.stopped {
		return ErrAlreadyRunning
	}
	for _, r := range w.roots {
		if r == abs {
			return nil
		}
	}
	w.roots = append(w.roots, abs)
	return nil
}

// SetLatency sets the debounce window. It fails with ErrAlreadyRunning
// once the watcher has started.
func (w *Watcher) SetLatency(d time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running || w.stopped {
		return ErrAlreadyRunning
	}
	if d > 0 {
		w.opts.Latency = d
	}
	return nil
}

// Start registers watches on every root and returns; events are
// delivered from background goroutines until Stop is called or ctx ends.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.stopped:
		return ErrStopped
	case w.running:
		return ErrAlreadyRunning
	case len(w.roots) == 0:
		return ErrNoPaths
	}

	w.debouncer = NewDebouncer(w.opts.Latency)

	var p *poller
	if !w.opts.ForcePolling {
		if err := w.startFsnotify(); err != nil {
			slog.Warn("fsnotify unavailable, falling back to polling", slog.String("error", err.Error()))
		}
	}
	if w.fsw == nil {
		p = newPoller(w.roots, w.ignored)
		p.baseline()
		w.backend = "polling"
	} else {
		w.backend = "fsnotify"
	}
	w.running = true

	w.wg.Add(2)
	go w.forward(ctx)
	if p != nil {
		go w.runPolling(ctx, p)
	} else {
		go w.runFsnotify(ctx)
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = w.Stop()
		case <-w.stopCh:
		}
	}()

	slog.Debug("watcher_started",
		slog.String("backend", w.backend),
		slog.Int("roots", len(w.roots)),
		slog.Duration("latency", w.opts.Latency))
	return nil
}

func (w *Watcher) startFsnotify() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			_ = fsw.Close()
			w.fsw = nil
			w.dirsMu.Lock()
			clear(w.dirs)
			w.dirsMu.Unlock()
			return err
		}
	}
	return nil
}

// addTree watches root and every non-ignored directory below it.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path, true) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		w.dirsMu.Lock()
		w.dirs[path] = true
		w.dirsMu.Unlock()
		return nil
	})
}

// forgetDir drops dir and its descendants from the watched set.
func (w *Watcher) forgetDir(dir string) {
	prefix := dir + string(filepath.Separator)
	w.dirsMu.Lock()
	defer w.dirsMu.Unlock()
	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
			_ = w.fsw.Remove(d)
		}
	}
}

func (w *Watcher) wasDir(path string) bool {
	w.dirsMu.Lock()
	defer w.dirsMu.Unlock()
	return w.dirs[path]
}

func (w *Watcher) ignored(path string, isDir bool) bool {
	if builtinIgnored(path) {
		return true
	}
	return w.opts.Ignore != nil && w.opts.Ignore(path, isDir)
}

func (w *Watcher) runFsnotify(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFsnotifyEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

// handleFsnotifyEvent converts, filters and debounces one raw event.
func (w *Watcher) handleFsnotifyEvent(ev fsnotify.Event) {
	path := ev.Name
	var isDir, isSymlink bool
	if info, err := os.Lstat(path); err == nil {
		isDir = info.IsDir()
		isSymlink = info.Mode()&os.ModeSymlink != 0
	} else {
		isDir = w.wasDir(path)
	}
	if w.ignored(path, isDir) {
		return
	}

	out := Event{Path: path, IsDir: isDir, IsSymlink: isSymlink, Time: time.Now()}
	switch {
	case ev.Op&fsnotify.Create != 0:
		out.Type = Created
		if isDir {
			out.Type = DirCreated
			if err := w.addTree(path); err != nil {
				w.emitError(err)
			}
		}
	case ev.Op&fsnotify.Write != 0:
		if isDir {
			return
		}
		out.Type = Modified
	case ev.Op&fsnotify.Remove != 0:
		out.Type = Deleted
		if isDir {
			out.Type = DirDeleted
			w.forgetDir(path)
		}
	case ev.Op&fsnotify.Rename != 0:
		out.Type = Renamed
		out.OldPath = path
		if isDir {
			w.forgetDir(path)
		}
	default:
		return
	}
	w.debouncer.Add(out)
}

func (w *Watcher) runPolling(ctx context.Context, p *poller) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			p.detectChanges(w.debouncer.Add)
		}
	}
}

// forward moves debounced batches onto the Events channel one at a time.
func (w *Watcher) forward(ctx context.Context) {
	defer w.wg.Done()
	for batch := range w.debouncer.Output() {
		for _, ev := range batch {
			select {
			case w.events <- ev:
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// emitError reports a non-fatal error without blocking.
func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		slog.Debug("watcher error dropped", slog.String("error", err.Error()))
	}
}

// Stop halts watching, waits for background goroutines and closes the
// Events and Errors channels. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.running = false
	close(w.stopCh)
	debouncer, fsw := w.debouncer, w.fsw
	w.mu.Unlock()

	if debouncer != nil {
		debouncer.Stop()
	}
	var err error
	if fsw != nil {
		err = fsw.Close()
	}
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return err
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Backend returns "fsnotify", "polling", or "" before Start.
func (w *Watcher) Backend() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.backend
}

// Roots returns the watched root directories.
func (w *Watcher) Roots() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// Events returns the channel of debounced events. It is closed by Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of non-fatal errors. It is closed by Stop.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}
