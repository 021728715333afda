package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/amanfind/internal/config"
	"github.com/Aman-CERP/amanfind/internal/embed"
	"github.com/Aman-CERP/amanfind/internal/index"
	"github.com/Aman-CERP/amanfind/internal/mcp"
	"github.com/Aman-CERP/amanfind/internal/scanner"
	"github.com/Aman-CERP/amanfind/internal/search"
	"github.com/Aman-CERP/amanfind/internal/store"
	"github.com/Aman-CERP/amanfind/internal/watcher"
)

// engine bundles the store and providers a command works against.
type engine struct {
	cfg    *config.Config
	store  *store.Store
	text   *embed.TextProvider
	images *embed.ImageProvider
}

type engineOptions struct {
	text   bool
	images bool
	// mustExist refuses to create a store that is not there yet.
	mustExist bool
}

// openEngine opens the store and the requested providers. A provider that
// fails to load is logged and left nil; the store is required.
func openEngine(ctx context.Context, cfg *config.Config, opts engineOptions) (*engine, error) {
	if opts.mustExist {
		if _, err := os.Stat(cfg.Store.Path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no index found at %s\nRun 'amanfind index' to create one", cfg.Store.Path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	e := &engine{cfg: cfg, store: st}
	if opts.text {
		e.text, err = openTextProvider(ctx, cfg)
		if err != nil {
			slog.Warn("text_provider_unavailable",
				slog.String("provider", cfg.Embeddings.Provider),
				slog.String("error", err.Error()))
		}
	}
	if opts.images && cfg.Images.Enabled {
		e.images, err = openImageProvider(ctx, cfg)
		if err != nil {
			slog.Warn("image_provider_unavailable",
				slog.String("provider", cfg.Images.Provider),
				slog.String("error", err.Error()))
		}
	}
	return e, nil
}

func openTextProvider(ctx context.Context, cfg *config.Config) (*embed.TextProvider, error) {
	provider, err := embed.ParseProvider(cfg.Embeddings.Provider)
	if err != nil {
		return nil, err
	}
	return embed.OpenTextProvider(ctx, embed.TextSettings{
		Provider:      provider,
		Model:         cfg.Embeddings.Model,
		ModelPath:     cfg.Embeddings.ModelPath,
		LibraryPath:   cfg.Embeddings.LibraryPath,
		Threads:       cfg.Embeddings.Threads,
		GPU:           cfg.Embeddings.GPU,
		BatchSize:     cfg.Embeddings.BatchSize,
		CacheSize:     cfg.Embeddings.CacheSize,
		OllamaHost:    cfg.Embeddings.OllamaHost,
		OpenAIBaseURL: cfg.Embeddings.OpenAIBaseURL,
		OpenAIKey:     os.Getenv(cfg.Embeddings.OpenAIKeyEnv),
		Timeout:       cfg.EmbeddingTimeout(),
	})
}

func openImageProvider(ctx context.Context, cfg *config.Config) (*embed.ImageProvider, error) {
	provider, err := embed.ParseProvider(cfg.Images.Provider)
	if err != nil {
		return nil, err
	}
	return embed.OpenImageProvider(ctx, embed.ImageSettings{
		Provider:    provider,
		ModelPath:   cfg.Images.ModelPath,
		LibraryPath: cfg.Images.LibraryPath,
		Threads:     cfg.Images.Threads,
		GPU:         cfg.Images.GPU,
		MaxDecode:   cfg.Images.MaxDecode,
	})
}

// Close releases providers and the store.
func (e *engine) Close() {
	if e.text != nil {
		_ = e.text.Close()
	}
	if e.images != nil {
		_ = e.images.Close()
	}
	if err := e.store.Close(); err != nil {
		slog.Warn("store_close_failed", slog.String("error", err.Error()))
	}
}

// The accessors below return untyped nils so that a missing provider is a
// nil interface downstream.

func (e *engine) textEmbedder() embed.TextEmbedder {
	if e.text == nil {
		return nil
	}
	return e.text
}

func (e *engine) imageEmbedder() index.ImageEmbedder {
	if e.images == nil {
		return nil
	}
	return e.images
}

func (e *engine) visualEmbedder() search.ImageEmbedder {
	if e.images == nil {
		return nil
	}
	return e.images
}

func (e *engine) textReporter() mcp.ModelReporter {
	if e.text == nil {
		return nil
	}
	return e.text
}

func (e *engine) imageReporter() mcp.ModelReporter {
	if e.images == nil {
		return nil
	}
	return e.images
}

func (e *engine) semantic() *search.SemanticService {
	return search.NewSemanticService(e.store, e.textEmbedder(), e.cfg.Embeddings.Provider+"/"+e.cfg.Embeddings.Model, e.cfg.Embeddings.CacheSize)
}

func (e *engine) visual() *search.VisualService {
	return search.NewVisualService(e.store, e.visualEmbedder())
}

// newIndexer builds an Indexer over the configured roots.
func (e *engine) newIndexer(watch bool) *index.Indexer {
	c := e.cfg
	policy := scanner.Policy{
		IncludeHidden:   c.Indexer.IncludeHidden,
		MaxFileSize:     c.Indexer.MaxFileSize,
		ExcludePatterns: c.Indexer.ExcludePatterns,
	}
	return index.New(e.store, e.textEmbedder(), e.imageEmbedder(), index.Config{
		Roots:           c.Indexer.Roots,
		Policy:          policy,
		MaxContentBytes: c.Indexer.MaxContentBytes,
		BatchSize:       c.Indexer.BatchSize,
		InterBatchDelay: c.InterBatchDelay(),
		Watch:           watch,
		Watcher:         watcher.Options{Latency: c.WatchLatency()},
	})
}

// modelLabel describes a provider for summaries, e.g. "native (model.onnx)".
func modelLabel(p interface{ Info() embed.ModelInfo }, configured string) string {
	if p == nil {
		return configured + " (unavailable)"
	}
	info := p.Info()
	if info.ModelPath == "" {
		return string(info.Kind)
	}
	return fmt.Sprintf("%s (%s)", info.Kind, filepath.Base(info.ModelPath))
}
