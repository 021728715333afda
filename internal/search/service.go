// Package search turns text and image queries into ranked file matches
// over the vectors held in a store.Store.
package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/amanfind/internal/embed"
	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
	"github.com/Aman-CERP/amanfind/internal/store"
)

// stateful is implemented by providers with a load lifecycle.
type stateful interface {
	State() embed.State
}

// requireLoaded fails when p reports that no model is loaded.
func requireLoaded(p any, what string) error {
	if s, ok := p.(stateful); ok && s.State() != embed.StateLoaded {
		return amerrors.Newf(amerrors.ErrCodeNotInitialized, "%s provider is not loaded", what).
			WithSuggestion("Load a model or check the embeddings configuration")
	}
	return nil
}

func errNoProvider(what string) error {
	return amerrors.Newf(amerrors.ErrCodeNotInitialized, "no %s embedding provider configured", what)
}

func errNoStore() error {
	return amerrors.New(amerrors.ErrCodeNotInitialized, "no vector store attached", nil)
}

func errEmptyQuery() error {
	return amerrors.New(amerrors.ErrCodeQueryEmpty, "query is empty", nil).
		WithSuggestion("Provide a non-empty search query")
}

// sourceEntity loads path and checks that it carries the wanted embedding.
func sourceEntity(ctx context.Context, st *store.Store, path string, has func(*store.Entity) bool, kind string) (*store.Entity, error) {
	if path == "" {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "path is required", nil)
	}
	e, err := st.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, amerrors.Newf(amerrors.ErrCodeNotFound, "%s is not indexed", path).
			WithDetail("path", path).
			WithSuggestion("Run 'amanfind index' first")
	}
	if !has(e) {
		return nil, amerrors.Newf(amerrors.ErrCodeNoEmbedding, "%s has no %s embedding", path, kind).
			WithDetail("path", path)
	}
	return e, nil
}

// finish refines raw store results and logs the query.
func finish(kind string, started time.Time, raw []*store.SearchResult, opts Options, exclude string) []*store.SearchResult {
	results := refine(raw, opts, exclude)
	slog.Debug("search_complete",
		slog.String("kind", kind),
		slog.Int("candidates", len(raw)),
		slog.Int("results", len(results)),
		slog.Duration("elapsed", time.Since(started)))
	return results
}
