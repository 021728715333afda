// Package index keeps a store.Store in sync with the files under a set of
// roots. An Indexer crawls each root once, then optionally follows the
// filesystem through internal/watcher.
package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/amanfind/internal/embed"
	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
	"github.com/Aman-CERP/amanfind/internal/scanner"
	"github.com/Aman-CERP/amanfind/internal/store"
	"github.com/Aman-CERP/amanfind/internal/watcher"
)

// Status is the lifecycle state of an Indexer.
type Status int

const (
	StatusStopped Status = iota
	StatusRunning
	StatusPaused
	StatusWatching
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusWatching:
		return "watching"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// FileStatus is reported to OnFile for every processed path.
type FileStatus int

const (
	FileIndexed FileStatus = iota
	FileSkipped
	FileFailed
	FileDeleted
)

func (s FileStatus) String() string {
	switch s {
	case FileIndexed:
		return "indexed"
	case FileSkipped:
		return "skipped"
	case FileFailed:
		return "failed"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Defaults applied by Config.withDefaults.
const (
	DefaultMaxContentBytes = 8 * 1024
	DefaultBatchSize       = 32
)

// wakeInterval is the worker's safety-net wake-up period.
const wakeInterval = time.Second

// Config configures an Indexer.
type Config struct {
	// Roots are the directories crawled at start and watched afterwards.
	Roots []string

	// Policy filters crawled and watched paths.
	Policy scanner.Policy

	// MaxContentBytes bounds how much of a text file is embedded.
	MaxContentBytes int

	// BatchSize is the number of files processed between throttle pauses.
	BatchSize int

	// InterBatchDelay is slept after every BatchSize files (0 = no throttle).
	InterBatchDelay time.Duration

	// Watch follows filesystem changes once the initial crawl drains.
	Watch bool

	// Watcher configures the filesystem watcher. Ignore defaults to
	// Policy.Excluded.
	Watcher watcher.Options
}

func (c Config) withDefaults() Config {
	if c.MaxContentBytes <= 0 {
		c.MaxContentBytes = DefaultMaxContentBytes
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Watcher.Ignore == nil {
		c.Watcher.Ignore = c.Policy.Excluded
	}
	return c
}

// ImageEmbedder embeds image files into the cross-modal space.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, path string) (*embed.ImageVector, error)
}

// Stats is a snapshot of indexing progress since Start.
type Stats struct {
	Indexed int
	Pending int
	// Skipped counts up-to-date, filtered, unembeddable and failed files.
	Skipped int
	// Failed is the subset of Skipped that failed to read, embed or store.
	Failed     int
	TotalBytes int64
	Elapsed    time.Duration
	// AvgPerFile is the mean time spent processing one file, idle time excluded.
	AvgPerFile time.Duration
	// Progress is processed/(processed+pending), in [0,1].
	Progress float64
}

// Indexer crawls roots into a store and keeps it current.
type Indexer struct {
	mu     sync.Mutex
	cfg    Config
	store  *store.Store
	text   embed.TextEmbedder
	images ImageEmbedder

	status     Status
	prevStatus Status
	queue      *Queue

	indexed    int
	skipped    int
	failed     int
	totalBytes int64
	busy       time.Duration
	started    time.Time
	run        *store.Run

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
	watch  *watcher.Watcher

	onFile     func(path string, status FileStatus)
	onProgress func(indexed, total int, fraction float64)
	onComplete func(Stats)
}

// New creates a stopped Indexer over st. text and images may be nil: text
// and code files are then skipped, images indexed with metadata only.
func New(st *store.Store, text embed.TextEmbedder, images ImageEmbedder, cfg Config) *Indexer {
	return &Indexer{
		cfg:    cfg.withDefaults(),
		store:  st,
		text:   text,
		images: images,
		queue:  NewQueue(),
		wake:   make(chan struct{}, 1),
	}
}

// OnFile sets the per-file callback. It runs on the worker goroutine.
func (ix *Indexer) OnFile(fn func(path string, status FileStatus)) {
	ix.mu.Lock()
	ix.onFile = fn
	ix.mu.Unlock()
}

// OnProgress sets the progress callback. It runs on the worker goroutine.
func (ix *Indexer) OnProgress(fn func(indexed, total int, fraction float64)) {
	ix.mu.Lock()
	ix.onProgress = fn
	ix.mu.Unlock()
}

// OnComplete sets the callback fired once the initial crawl has drained,
// before watching starts. It runs on the worker goroutine.
func (ix *Indexer) OnComplete(fn func(Stats)) {
	ix.mu.Lock()
	ix.onComplete = fn
	ix.mu.Unlock()
}

// Status returns the current lifecycle state.
func (ix *Indexer) Status() Status {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.status
}

// Start moves a stopped Indexer to Running and spawns its worker. The
// worker uses ctx for backend and store calls and exits when ctx is done.
func (ix *Indexer) Start(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.store == nil {
		return amerrors.New(amerrors.ErrCodeNotInitialized, "indexer has no store attached", nil)
	}
	if ix.status != StatusStopped {
		return amerrors.Newf(amerrors.ErrCodeInvalidInput, "indexer cannot start from %s", ix.status)
	}

	var w *watcher.Watcher
	if ix.cfg.Watch {
		var err error
		w, err = ix.newWatcher()
		if err != nil {
			ix.status = StatusError
			slog.Error("indexer_start_failed", slog.String("error", err.Error()))
			return fmt.Errorf("failed to create watcher: %w", err)
		}
	}

	workerCtx, cancel := context.WithCancel(ctx)
	ix.status = StatusRunning
	ix.watch = w
	ix.cancel = cancel
	ix.done = make(chan struct{})
	ix.queue.Clear()
	ix.indexed, ix.skipped, ix.failed, ix.totalBytes = 0, 0, 0, 0
	ix.busy = 0
	ix.started = time.Now()
	ix.run = &store.Run{Roots: ix.cfg.Roots, StartedAt: ix.started, Status: "running"}

	if err := ix.store.RecordRun(ctx, ix.run); err != nil {
		slog.Warn("index_run_record_failed", slog.String("error", err.Error()))
	}

	slog.Info("indexer_started",
		slog.Any("roots", ix.cfg.Roots),
		slog.Bool("watch", ix.cfg.Watch))

	go ix.worker(workerCtx, w, ix.done)
	return nil
}

func (ix *Indexer) newWatcher() (*watcher.Watcher, error) {
	w, err := watcher.New(ix.cfg.Watcher)
	if err != nil {
		return nil, err
	}
	for _, root := range ix.cfg.Roots {
		if err := w.AddPath(root); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Pause holds the worker before its next dequeue. Queued paths stay queued.
func (ix *Indexer) Pause() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.status != StatusRunning && ix.status != StatusWatching {
		return amerrors.Newf(amerrors.ErrCodeInvalidInput, "indexer cannot pause from %s", ix.status)
	}
	ix.prevStatus = ix.status
	ix.status = StatusPaused
	return nil
}

// Resume returns a paused Indexer to the state it was paused from.
func (ix *Indexer) Resume() error {
	ix.mu.Lock()
	if ix.status != StatusPaused {
		status := ix.status
		ix.mu.Unlock()
		return amerrors.Newf(amerrors.ErrCodeInvalidInput, "indexer cannot resume from %s", status)
	}
	ix.status = ix.prevStatus
	ix.mu.Unlock()
	ix.signal()
	return nil
}

// Stop halts the watcher, then the worker, and blocks until the worker has
// exited. It is safe to call from any state.
func (ix *Indexer) Stop() {
	ix.mu.Lock()
	w, cancel, done := ix.watch, ix.cancel, ix.done
	if done == nil {
		ix.status = StatusStopped
		ix.mu.Unlock()
		return
	}
	ix.mu.Unlock()

	if w != nil {
		_ = w.Stop()
	}
	cancel()
	<-done
}

// Enqueue schedules paths for (re)indexing.
func (ix *Indexer) Enqueue(paths ...string) {
	ix.mu.Lock()
	for _, p := range paths {
		ix.queue.PushBack(p)
	}
	ix.mu.Unlock()
	ix.signal()
}

// Wait blocks until the worker exits or ctx is done.
func (ix *Indexer) Wait(ctx context.Context) error {
	ix.mu.Lock()
	done := ix.done
	ix.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (ix *Indexer) Stats() Stats {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.statsLocked()
}

func (ix *Indexer) statsLocked() Stats {
	s := Stats{
		Indexed:    ix.indexed,
		Pending:    ix.queue.Len(),
		Skipped:    ix.skipped,
		Failed:     ix.failed,
		TotalBytes: ix.totalBytes,
	}
	if !ix.started.IsZero() {
		s.Elapsed = time.Since(ix.started)
	}
	processed := s.Indexed + s.Skipped
	if processed > 0 {
		s.AvgPerFile = ix.busy / time.Duration(processed)
	}
	s.Progress = fraction(processed, processed+s.Pending)
	return s
}

func fraction(done, total int) float64 {
	if total <= 0 {
		return 1
	}
	f := float64(done) / float64(total)
	return min(max(f, 0), 1)
}

func (ix *Indexer) signal() {
	select {
	case ix.wake <- struct{}{}:
	default:
	}
}

// worker owns the crawl, the queue consumer and watch-event handling.
func (ix *Indexer) worker(ctx context.Context, w *watcher.Watcher, done chan struct{}) {
	defer func() {
		if w != nil {
			_ = w.Stop()
		}
		ix.finish(ctx)
		close(done)
	}()

	for _, root := range ix.cfg.Roots {
		ix.crawl(ctx, root)
		if ctx.Err() != nil {
			return
		}
	}

	ticker := time.NewTicker(wakeInterval)
	defer ticker.Stop()

	var events <-chan watcher.Event
	var watchErrs <-chan error
	drained := false
	sinceThrottle := 0

	for {
		if ctx.Err() != nil {
			return
		}

		path, ok, paused := ix.next()
		if ok {
			ix.process(ctx, path)
			sinceThrottle++
			if ix.cfg.InterBatchDelay > 0 && sinceThrottle >= ix.cfg.BatchSize {
				sinceThrottle = 0
				if !sleepCtx(ctx, ix.cfg.InterBatchDelay) {
					return
				}
			}
			continue
		}

		if !paused && !drained {
			drained = true
			ix.completeRun(ctx)
			if w != nil && ix.startWatching(ctx, w) {
				events, watchErrs = w.Events(), w.Errors()
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ix.wake:
		case <-ticker.C:
		case ev, open := <-events:
			if !open {
				events = nil
				continue
			}
			ix.handleEvent(ctx, ev)
		case err, open := <-watchErrs:
			if !open {
				watchErrs = nil
				continue
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

// next dequeues the head unless the Indexer is paused.
func (ix *Indexer) next() (path string, ok, paused bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.status == StatusPaused {
		return "", false, true
	}
	path, ok = ix.queue.PopFront()
	return path, ok, false
}

func (ix *Indexer) startWatching(ctx context.Context, w *watcher.Watcher) bool {
	if err := w.Start(ctx); err != nil {
		slog.Warn("watcher_start_failed", slog.String("error", err.Error()))
		return false
	}

	ix.mu.Lock()
	switch ix.status {
	case StatusRunning:
		ix.status = StatusWatching
	case StatusPaused:
		ix.prevStatus = StatusWatching
	}
	ix.mu.Unlock()

	slog.Info("indexer_watching",
		slog.String("backend", w.Backend()),
		slog.Int("roots", len(ix.cfg.Roots)))
	return true
}

// crawl enqueues every file under root accepted by the policy.
func (ix *Indexer) crawl(ctx context.Context, root string) {
	count := 0
	err := ix.cfg.Policy.Walk(ctx, root, func(f scanner.FileInfo) error {
		ix.mu.Lock()
		ix.queue.PushBack(f.Path)
		ix.mu.Unlock()
		count++
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("crawl_failed", slog.String("root", root), slog.String("error", err.Error()))
	}
	slog.Debug("crawl_complete", slog.String("root", root), slog.Int("files", count))
}

// process indexes a single path and reports the outcome.
func (ix *Indexer) process(ctx context.Context, path string) {
	began := time.Now()
	status := ix.indexFile(ctx, path)

	ix.mu.Lock()
	ix.busy += time.Since(began)
	onFile, onProgress := ix.onFile, ix.onProgress
	stats := ix.statsLocked()
	ix.mu.Unlock()

	if onFile != nil {
		onFile(path, status)
	}
	if onProgress != nil && status != FileDeleted {
		processed := stats.Indexed + stats.Skipped
		onProgress(stats.Indexed, processed+stats.Pending, stats.Progress)
	}
}

func (ix *Indexer) indexFile(ctx context.Context, path string) FileStatus {
	// Lstat, so symlinks are skipped below like they are during the crawl.
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ix.remove(ctx, path)
		}
		return ix.fail(path, "stat", err)
	}
	if info.IsDir() {
		ix.crawl(ctx, path)
		return FileSkipped
	}
	if !info.Mode().IsRegular() || !ix.cfg.Policy.Accept(path, info.Size()) {
		return ix.skip()
	}

	upToDate, err := ix.store.IsUpToDate(ctx, path, info.ModTime())
	if err != nil {
		return ix.fail(path, "check", err)
	}
	if upToDate {
		return ix.skip()
	}

	params := store.IndexParams{
		Path:    path,
		Name:    info.Name(),
		Type:    scanner.Classify(path),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}

	switch {
	case params.Type.Embeddable() && ix.text == nil:
		// No row is written, so a later run with a provider still embeds it.
		return ix.skip()

	case params.Type.Embeddable():
		content, err := readPrefix(path, ix.cfg.MaxContentBytes)
		if err != nil {
			return ix.fail(path, "read", err)
		}
		if len(content) > 0 {
			vec, _, err := ix.text.Generate(ctx, content)
			if err != nil {
				return ix.fail(path, "embed", err)
			}
			params.Embedding = vec
		}

	case params.Type == store.FileTypeImage && ix.images != nil && embed.IsSupportedImage(path):
		vec, err := ix.images.EmbedImage(ctx, path)
		if err != nil {
			// The row is still worth keeping for metadata queries.
			slog.Debug("image_embed_failed", slog.String("path", path), slog.String("error", err.Error()))
		} else {
			params.ImageEmbedding = vec
		}
	}

	if err := ix.store.Index(ctx, params); err != nil {
		return ix.fail(path, "store", err)
	}

	ix.mu.Lock()
	ix.indexed++
	ix.totalBytes += info.Size()
	ix.mu.Unlock()
	return FileIndexed
}

func (ix *Indexer) skip() FileStatus {
	ix.mu.Lock()
	ix.skipped++
	ix.mu.Unlock()
	return FileSkipped
}

func (ix *Indexer) fail(path, stage string, err error) FileStatus {
	slog.Warn("index_file_failed",
		slog.String("path", path),
		slog.String("stage", stage),
		slog.String("error", err.Error()))
	ix.mu.Lock()
	ix.skipped++
	ix.failed++
	ix.mu.Unlock()
	return FileFailed
}

func (ix *Indexer) remove(ctx context.Context, path string) FileStatus {
	if err := ix.store.Delete(ctx, path); err != nil {
		slog.Warn("index_delete_failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	return FileDeleted
}

// handleEvent applies one watcher event. Deletions bypass the queue.
func (ix *Indexer) handleEvent(ctx context.Context, ev watcher.Event) {
	slog.Debug("watch_event",
		slog.String("path", ev.Path),
		slog.String("type", ev.Type.String()))

	switch ev.Type {
	case watcher.Created, watcher.Modified:
		if !ev.IsDir {
			ix.Enqueue(ev.Path)
		}
	case watcher.Deleted:
		ix.deleted(ctx, ev.Path)
	case watcher.DirDeleted:
		ix.deletedTree(ctx, ev.Path)
	case watcher.DirCreated:
		ix.crawl(ctx, ev.Path)
		ix.signal()
	case watcher.Renamed:
		ix.reprobe(ctx, ev.Path)
	}
}

// reprobe re-examines a renamed path: whatever is there now is indexed,
// otherwise the rows for it (and anything below it) are dropped.
func (ix *Indexer) reprobe(ctx context.Context, path string) {
	info, err := os.Lstat(path)
	switch {
	case err == nil && info.IsDir():
		ix.crawl(ctx, path)
		ix.signal()
	case err == nil:
		ix.Enqueue(path)
	default:
		ix.deletedTree(ctx, path)
	}
}

func (ix *Indexer) deleted(ctx context.Context, path string) {
	status := ix.remove(ctx, path)
	ix.mu.Lock()
	onFile := ix.onFile
	ix.mu.Unlock()
	if onFile != nil {
		onFile(path, status)
	}
}

func (ix *Indexer) deletedTree(ctx context.Context, dir string) {
	n, err := ix.store.DeletePrefix(ctx, dir)
	if err != nil {
		slog.Warn("index_delete_failed", slog.String("path", dir), slog.String("error", err.Error()))
		return
	}
	slog.Debug("index_tree_deleted", slog.String("path", dir), slog.Int64("rows", n))
}

// completeRun records the end of the initial crawl.
func (ix *Indexer) completeRun(ctx context.Context) {
	ix.recordRun(ctx, "completed")

	ix.mu.Lock()
	s := ix.statsLocked()
	onComplete := ix.onComplete
	ix.mu.Unlock()

	slog.Info("index_complete",
		slog.Int("indexed", s.Indexed),
		slog.Int("skipped", s.Skipped),
		slog.Int("failed", s.Failed),
		slog.Int64("bytes", s.TotalBytes),
		slog.Duration("elapsed", s.Elapsed))
	if onComplete != nil {
		onComplete(s)
	}
}

// finish runs on worker exit and leaves the Indexer restartable.
func (ix *Indexer) finish(ctx context.Context) {
	ix.mu.Lock()
	interrupted := ix.run != nil && ix.run.Status == "running"
	ix.mu.Unlock()
	if interrupted {
		ix.recordRun(context.WithoutCancel(ctx), "interrupted")
	}

	ix.mu.Lock()
	ix.status = StatusStopped
	ix.watch = nil
	ix.cancel = nil
	ix.done = nil
	ix.mu.Unlock()
	slog.Info("indexer_stopped")
}

func (ix *Indexer) recordRun(ctx context.Context, status string) {
	ix.mu.Lock()
	if ix.run == nil {
		ix.mu.Unlock()
		return
	}
	ix.run.FinishedAt = time.Now()
	ix.run.Indexed = ix.indexed
	ix.run.Skipped = ix.skipped
	ix.run.Failed = ix.failed
	ix.run.TotalBytes = ix.totalBytes
	ix.run.Status = status
	run := *ix.run
	ix.mu.Unlock()

	if err := ix.store.RecordRun(ctx, &run); err != nil {
		slog.Warn("index_run_record_failed", slog.String("error", err.Error()))
	}
}

// readPrefix returns up to limit bytes of path as valid UTF-8 text,
// capped at the embedder's default character budget.
func readPrefix(path string, limit int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, limit)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}

	text := strings.ToValidUTF8(string(buf[:n]), "")
	if utf8.RuneCountInString(text) > embed.DefaultMaxTextChars {
		text = string([]rune(text)[:embed.DefaultMaxTextChars])
	}
	return text, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
