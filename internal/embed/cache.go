package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of query embeddings kept in memory
// (384 floats each, about 1.5 KB per entry).
const DefaultCacheSize = 256

// CachedTextEmbedder memoizes query embeddings. Search services embed the
// same short queries repeatedly; indexing goes straight to the provider.
type CachedTextEmbedder struct {
	inner TextEmbedder
	scope string
	cache *lru.Cache[string, TextVector]
}

var _ TextEmbedder = (*CachedTextEmbedder)(nil)

// NewCachedTextEmbedder wraps inner. scope distinguishes models so a
// reloaded provider does not serve vectors from the previous one.
func NewCachedTextEmbedder(inner TextEmbedder, scope string, size int) *CachedTextEmbedder {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, TextVector](size)
	return &CachedTextEmbedder{inner: inner, scope: scope, cache: cache}
}

func (c *CachedTextEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.scope + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Generate returns a cached vector or computes and stores one.
// Cache hits report zero duration.
func (c *CachedTextEmbedder) Generate(ctx context.Context, text string) (*TextVector, Timing, error) {
	k := c.key(text)
	if v, ok := c.cache.Get(k); ok {
		return &v, Timing{}, nil
	}
	vec, timing, err := c.inner.Generate(ctx, text)
	if err != nil {
		return nil, timing, err
	}
	c.cache.Add(k, *vec)
	return vec, timing, nil
}

// Len returns the number of cached vectors.
func (c *CachedTextEmbedder) Len() int {
	return c.cache.Len()
}

// Purge empties the cache.
func (c *CachedTextEmbedder) Purge() {
	c.cache.Purge()
}
