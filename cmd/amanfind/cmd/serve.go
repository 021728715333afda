package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanfind/internal/index"
	"github.com/Aman-CERP/amanfind/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var (
		transport string
		noIndex   bool
		noWatch   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Serve semantic_search, find_similar, visual_search and index_status over
the Model Context Protocol.

While serving, the configured roots are indexed in the background and, unless
--no-watch is given, kept current as files change. stdout carries protocol
messages only; logs go to the log file.`,
		Example: `  amanfind serve
  amanfind serve --no-index`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, transport, !noIndex, !noWatch)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Serve the existing index without crawling")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Index once, then stop following file changes")

	return cmd
}

func runServe(ctx context.Context, transport string, indexing, watch bool) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}

	eng, err := openEngine(ctx, cfg, engineOptions{text: true, images: true})
	if err != nil {
		return err
	}
	defer eng.Close()

	server, ix, err := newMCPServer(eng, indexing, watch && cfg.Indexer.Watch)
	if err != nil {
		return err
	}

	slog.Info("serve_starting",
		slog.String("transport", transport),
		slog.String("store", cfg.Store.Path),
		slog.Bool("indexing", ix != nil))

	g, gctx := errgroup.WithContext(ctx)
	if ix != nil {
		if err := ix.Start(gctx); err != nil {
			return fmt.Errorf("failed to start indexer: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			ix.Stop()
			return nil
		})
	}
	g.Go(func() error {
		err := server.Serve(gctx, transport)
		if err == nil || errors.Is(err, context.Canceled) {
			// The client went away; take the indexer down with us.
			return errServeDone
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errServeDone) {
		slog.Error("serve_failed", slog.String("error", err.Error()))
		return err
	}
	slog.Info("serve_stopped")
	return nil
}

var errServeDone = errors.New("server stopped")

// newMCPServer wires the engine into an MCP server. The returned Indexer
// is nil when indexing is off and has not been started.
func newMCPServer(eng *engine, indexing, watch bool) (*mcp.Server, *index.Indexer, error) {
	opts := mcp.Options{
		Store:      eng.store,
		Semantic:   eng.semantic(),
		Visual:     eng.visual(),
		TextModel:  eng.textReporter(),
		ImageModel: eng.imageReporter(),
		Logger:     slog.Default(),
	}

	var ix *index.Indexer
	if indexing {
		ix = eng.newIndexer(watch)
		opts.Indexer = ix
	}

	server, err := mcp.NewServer(opts)
	if err != nil {
		return nil, nil, err
	}
	return server, ix, nil
}
