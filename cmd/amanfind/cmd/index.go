package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanfind/internal/config"
	"github.com/Aman-CERP/amanfind/internal/index"
	"github.com/Aman-CERP/amanfind/internal/ui"
)

// indexOptions holds CLI flags shared by index and watch.
type indexOptions struct {
	noTUI   bool
	verbose bool
	force   bool
	watch   bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [path...]",
		Short: "Index files for searching",
		Long: `Crawl the configured roots (or the given paths) and embed every file
into the index. Files whose modification time has not changed since they
were last indexed are skipped.

Text files are embedded from their first indexer.max_content_bytes bytes.
Images are embedded when images.enabled is set.

Use --force to clear the index and rebuild it from scratch.`,
		Example: `  amanfind index
  amanfind index ~/Documents ~/Pictures
  amanfind index --force --no-tui`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, args, opts)
		},
	}

	addIndexFlags(cmd, &opts)
	return cmd
}

func newWatchCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "watch [path...]",
		Short: "Index files and keep the index current",
		Long: `Index the configured roots, then watch them and re-index files as they
are created, modified, renamed or removed. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			opts.watch = true
			return runIndex(ctx, cmd, args, opts)
		},
	}

	addIndexFlags(cmd, &opts)
	return cmd
}

func addIndexFlags(cmd *cobra.Command, opts *indexOptions) {
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print every file outcome in plain mode")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Clear existing index and rebuild from scratch")
}

func runIndex(ctx context.Context, cmd *cobra.Command, paths []string, opts indexOptions) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	if err := applyRoots(cfg, paths); err != nil {
		return err
	}

	eng, err := openEngine(ctx, cfg, engineOptions{text: true, images: true})
	if err != nil {
		return err
	}
	defer eng.Close()

	if opts.force {
		if err := eng.store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
		slog.Info("index_force_clear", slog.String("store", cfg.Store.Path))
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI),
		ui.WithVerbose(opts.verbose),
		ui.WithRoots(cfg.Indexer.Roots...)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start renderer: %w", err)
	}
	if tui, ok := renderer.(*ui.TUIRenderer); ok {
		go func() {
			select {
			case <-tui.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	ix := eng.newIndexer(opts.watch)
	drained := make(chan index.Stats, 1)
	wireRenderer(ix, renderer, drained, opts.watch)

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageCrawling, Message: "Discovering files"})
	if err := ix.Start(ctx); err != nil {
		_ = renderer.Stop()
		return err
	}

	interrupted := false
	if opts.watch {
		<-ctx.Done()
	} else {
		select {
		case <-drained:
		case <-ctx.Done():
			interrupted = true
		}
	}
	ix.Stop()

	stats := ix.Stats()
	renderer.Complete(ui.Summary{
		Indexed:    stats.Indexed,
		Skipped:    stats.Skipped,
		Failed:     stats.Failed,
		TotalBytes: stats.TotalBytes,
		Duration:   stats.Elapsed,
		AvgPerFile: stats.AvgPerFile,
		TextModel:  modelLabel(eng.textReporter(), cfg.Embeddings.Provider),
		ImageModel: imageModelLabel(eng),
	})
	if err := renderer.Stop(); err != nil {
		slog.Warn("renderer_stop_failed", slog.String("error", err.Error()))
	}

	if interrupted {
		return errors.New("indexing interrupted")
	}
	return nil
}

// wireRenderer forwards indexer callbacks to the renderer. All callbacks
// run on the indexer's worker goroutine.
func wireRenderer(ix *index.Indexer, r ui.Renderer, drained chan<- index.Stats, watch bool) {
	var (
		current  string
		watching atomic.Bool
	)

	ix.OnFile(func(path string, status index.FileStatus) {
		current = path
		r.FileDone(ui.FileEvent{Path: path, Outcome: ui.Outcome(status.String())})
	})
	ix.OnProgress(func(indexed, total int, _ float64) {
		stage := ui.StageIndexing
		if watching.Load() {
			stage = ui.StageWatching
		}
		r.UpdateProgress(ui.ProgressEvent{Stage: stage, Indexed: indexed, Total: total, CurrentFile: current})
	})
	ix.OnComplete(func(s index.Stats) {
		if watch {
			watching.Store(true)
			r.UpdateProgress(ui.ProgressEvent{
				Stage:   ui.StageWatching,
				Indexed: s.Indexed,
				Total:   s.Indexed + s.Skipped,
				Message: "Watching for changes",
			})
		}
		select {
		case drained <- s:
		default:
		}
	})
}

// applyRoots replaces the configured roots with paths, if any.
func applyRoots(cfg *config.Config, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("cannot index %s: %w", p, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("cannot index %s: not a directory", p)
		}
		roots = append(roots, abs)
	}
	cfg.Indexer.Roots = roots
	return nil
}

func imageModelLabel(eng *engine) string {
	if !eng.cfg.Images.Enabled {
		return "disabled"
	}
	return modelLabel(eng.imageReporter(), eng.cfg.Images.Provider)
}
