package store

import (
	"cmp"
	"context"
	"math"
	"slices"
	"unicode/utf8"

	"github.com/Aman-CERP/amanfind/internal/embed"
	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

// Search ranks every file with a text embedding by cosine similarity to
// query and returns at most limit results, best first.
func (s *Store) Search(ctx context.Context, query *embed.TextVector, limit int) ([]*SearchResult, error) {
	if query == nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "query vector is required", nil)
	}
	return s.scan(ctx, "embedding", "", limit, textScorer(query))
}

// SearchInPrefix is Search restricted to files under dir.
func (s *Store) SearchInPrefix(ctx context.Context, query *embed.TextVector, dir string, limit int) ([]*SearchResult, error) {
	if query == nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "query vector is required", nil)
	}
	return s.scan(ctx, "embedding", dir, limit, textScorer(query))
}

// SearchImages ranks files by their image embedding.
func (s *Store) SearchImages(ctx context.Context, query *embed.ImageVector, limit int) ([]*SearchResult, error) {
	if query == nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "query vector is required", nil)
	}
	return s.scan(ctx, "image_embedding", "", limit, imageScorer(query))
}

// SearchImagesInPrefix is SearchImages restricted to files under dir.
func (s *Store) SearchImagesInPrefix(ctx context.Context, query *embed.ImageVector, dir string, limit int) ([]*SearchResult, error) {
	if query == nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "query vector is required", nil)
	}
	return s.scan(ctx, "image_embedding", dir, limit, imageScorer(query))
}

// scorer decodes a stored blob and scores it; ok is false for blobs of
// the wrong length or non-finite scores.
type scorer func(blob []byte) (score float32, ok bool)

func textScorer(q *embed.TextVector) scorer {
	var buf embed.TextVector
	return func(blob []byte) (float32, bool) {
		if !embed.DecodeInto(buf[:], blob) {
			return 0, false
		}
		return finite(embed.CosineSimilarity(q[:], buf[:]))
	}
}

func imageScorer(q *embed.ImageVector) scorer {
	var buf embed.ImageVector
	return func(blob []byte) (float32, bool) {
		if !embed.DecodeInto(buf[:], blob) {
			return 0, false
		}
		return finite(embed.CosineSimilarity(q[:], buf[:]))
	}
}

// finite drops NaN and infinite similarities, which would never compare
// below the working set's minimum and so could never be evicted.
func finite(sim float32) (float32, bool) {
	f := float64(sim)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return sim, true
}

// scan streams every row with a non-null column, keeps the best limit
// candidates and returns them sorted by descending score.
func (s *Store) scan(ctx context.Context, column, dir string, limit int, score scorer) ([]*SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT path, name, type, size, mtime, indexed_at, ` + column +
		` FROM files WHERE ` + column + ` IS NOT NULL`
	var args []any
	if dir != "" {
		exact, prefix := normalizePrefix(dir)
		query += ` AND (path = ? OR substr(path, 1, ?) = ?)`
		args = append(args, exact, utf8.RuneCountInString(prefix), prefix)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("search", err)
	}
	defer func() { _ = rows.Close() }()

	top := newTopK(limit)
	for rows.Next() {
		var (
			e                Entity
			typ              string
			mtime, indexedAt int64
			blob             []byte
		)
		if err := rows.Scan(&e.Path, &e.Name, &typ, &e.Size, &mtime, &indexedAt, &blob); err != nil {
			return nil, storeError("search", err)
		}
		sim, ok := score(blob)
		if !ok || !top.accepts(sim) {
			continue
		}
		e.Type = ParseFileType(typ)
		e.ModTime = fromUnixNano(mtime)
		e.IndexedAt = fromUnixNano(indexedAt)
		if column == "embedding" {
			e.HasEmbedding = true
		} else {
			e.HasImageEmbedding = true
		}
		top.add(&SearchResult{Entity: &e, Score: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("search", err)
	}
	return top.sorted(), nil
}

// topK is the bounded working set. Eviction scans for the current
// minimum, so a query costs O(rows * limit).
type topK struct {
	limit int
	items []*SearchResult
	min   int
}

func newTopK(limit int) *topK {
	return &topK{limit: limit, items: make([]*SearchResult, 0, min(limit, 256))}
}

// accepts reports whether a candidate with score would enter the set.
func (t *topK) accepts(score float32) bool {
	return len(t.items) < t.limit || score > t.items[t.min].Score
}

func (t *topK) add(r *SearchResult) {
	if len(t.items) < t.limit {
		t.items = append(t.items, r)
	} else {
		t.items[t.min] = r
	}
	if len(t.items) == t.limit {
		t.min = 0
		for i, it := range t.items {
			if it.Score < t.items[t.min].Score {
				t.min = i
			}
		}
	}
}

func (t *topK) sorted() []*SearchResult {
	slices.SortFunc(t.items, func(a, b *SearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return t.items
}
