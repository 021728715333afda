package search

import (
	"context"
	"strings"
	"time"

	"github.com/Aman-CERP/amanfind/internal/embed"
	"github.com/Aman-CERP/amanfind/internal/store"
)

// ImageEmbedder is the part of embed.ImageProvider the visual service uses.
type ImageEmbedder interface {
	EmbedText(ctx context.Context, text string) (*embed.ImageVector, error)
	EmbedImage(ctx context.Context, path string) (*embed.ImageVector, error)
}

// VisualService answers queries in the 512-d cross-modal image space.
type VisualService struct {
	store    *store.Store
	provider ImageEmbedder
}

// NewVisualService creates a service over st.
func NewVisualService(st *store.Store, provider ImageEmbedder) *VisualService {
	return &VisualService{store: st, provider: provider}
}

// Query finds images matching a text description.
func (v *VisualService) Query(ctx context.Context, text string, opts Options) ([]*store.SearchResult, error) {
	started := time.Now()
	if err := v.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errEmptyQuery()
	}

	vec, err := v.provider.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	raw, err := v.search(ctx, vec, opts, "")
	if err != nil {
		return nil, err
	}
	return finish("visual", started, raw, opts, ""), nil
}

// SimilarToImage finds images close to an indexed image, excluding it.
func (v *VisualService) SimilarToImage(ctx context.Context, path string, opts Options) ([]*store.SearchResult, error) {
	started := time.Now()
	if v == nil || v.store == nil {
		return nil, errNoStore()
	}

	src, err := sourceEntity(ctx, v.store, path, func(e *store.Entity) bool { return e.HasImageEmbedding }, "image")
	if err != nil {
		return nil, err
	}
	raw, err := v.search(ctx, src.ImageEmbedding, opts, path)
	if err != nil {
		return nil, err
	}
	return finish("similar_image", started, raw, opts, path), nil
}

// QueryByImage embeds an arbitrary image file and finds indexed images
// close to it. The file does not need to be indexed.
func (v *VisualService) QueryByImage(ctx context.Context, path string, opts Options) ([]*store.SearchResult, error) {
	started := time.Now()
	if err := v.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return nil, errEmptyQuery()
	}

	vec, err := v.provider.EmbedImage(ctx, path)
	if err != nil {
		return nil, err
	}
	raw, err := v.search(ctx, vec, opts, path)
	if err != nil {
		return nil, err
	}
	return finish("image_query", started, raw, opts, path), nil
}

func (v *VisualService) ready() error {
	if v == nil || v.store == nil {
		return errNoStore()
	}
	if v.provider == nil {
		return errNoProvider("image")
	}
	return requireLoaded(v.provider, "image")
}

func (v *VisualService) search(ctx context.Context, vec *embed.ImageVector, opts Options, exclude string) ([]*store.SearchResult, error) {
	limit := opts.fetchLimit(exclude)
	if opts.Directory != "" {
		return v.store.SearchImagesInPrefix(ctx, vec, opts.Directory, limit)
	}
	return v.store.SearchImages(ctx, vec, limit)
}
