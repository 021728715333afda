package search

import (
	"context"
	"strings"
	"time"

	"github.com/Aman-CERP/amanfind/internal/embed"
	"github.com/Aman-CERP/amanfind/internal/store"
)

// SemanticService answers text queries in the 384-d text space.
type SemanticService struct {
	store    *store.Store
	provider embed.TextEmbedder
	embedder embed.TextEmbedder
}

// NewSemanticService creates a service over st. When cacheSize is
// positive, query embeddings are memoized per scope (usually the model).
func NewSemanticService(st *store.Store, provider embed.TextEmbedder, scope string, cacheSize int) *SemanticService {
	s := &SemanticService{store: st, provider: provider, embedder: provider}
	if provider != nil && cacheSize > 0 {
		s.embedder = embed.NewCachedTextEmbedder(provider, scope, cacheSize)
	}
	return s
}

// Query embeds text and returns the closest files.
func (s *SemanticService) Query(ctx context.Context, text string, opts Options) ([]*store.SearchResult, error) {
	started := time.Now()
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errEmptyQuery()
	}

	vec, _, err := s.embedder.Generate(ctx, text)
	if err != nil {
		return nil, err
	}

	raw, err := s.search(ctx, vec, opts, "")
	if err != nil {
		return nil, err
	}
	return finish("semantic", started, raw, opts, ""), nil
}

// SimilarToFile returns files whose text embedding is closest to that of
// path, excluding path itself.
func (s *SemanticService) SimilarToFile(ctx context.Context, path string, opts Options) ([]*store.SearchResult, error) {
	started := time.Now()
	if s == nil || s.store == nil {
		return nil, errNoStore()
	}

	src, err := sourceEntity(ctx, s.store, path, func(e *store.Entity) bool { return e.HasEmbedding }, "text")
	if err != nil {
		return nil, err
	}

	raw, err := s.search(ctx, src.Embedding, opts, path)
	if err != nil {
		return nil, err
	}
	return finish("similar", started, raw, opts, path), nil
}

func (s *SemanticService) ready() error {
	if s == nil || s.store == nil {
		return errNoStore()
	}
	if s.provider == nil {
		return errNoProvider("text")
	}
	return requireLoaded(s.provider, "text")
}

func (s *SemanticService) search(ctx context.Context, vec *embed.TextVector, opts Options, exclude string) ([]*store.SearchResult, error) {
	limit := opts.fetchLimit(exclude)
	if opts.Directory != "" {
		return s.store.SearchInPrefix(ctx, vec, opts.Directory, limit)
	}
	return s.store.Search(ctx, vec, limit)
}
