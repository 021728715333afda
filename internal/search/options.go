package search

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/Aman-CERP/amanfind/internal/store"
)

// Result limits.
const (
	DefaultMaxResults = 20
	MaxResultsLimit   = 1000

	// overfetch widens the store query when post-filters may drop rows.
	overfetch = 4
)

// SortField names the attribute results are re-sorted by.
type SortField string

const (
	// SortRelevance keeps the store's similarity order.
	SortRelevance SortField = ""
	SortScore     SortField = "score"
	SortName      SortField = "name"
	SortPath      SortField = "path"
	SortModified  SortField = "modified"
	SortSize      SortField = "size"
)

// ParseSortField validates a user-supplied sort key.
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(strings.ToLower(strings.TrimSpace(s))); f {
	case SortRelevance, SortScore, SortName, SortPath, SortModified, SortSize:
		return f, nil
	case "relevance":
		return SortRelevance, nil
	default:
		return "", fmt.Errorf("unknown sort field %q", s)
	}
}

// Options configures a query.
type Options struct {
	// MaxResults caps the result count (0 = DefaultMaxResults).
	MaxResults int

	// MinScore drops results scoring below it (0 disables the floor).
	MinScore float32

	// Directory restricts results to files under this directory.
	Directory string

	// Types keeps only results of these file types (empty = all).
	Types []store.FileType

	// SortBy re-sorts the trimmed results; Descending reverses the order.
	SortBy     SortField
	Descending bool
}

func (o Options) limit() int {
	switch {
	case o.MaxResults <= 0:
		return DefaultMaxResults
	case o.MaxResults > MaxResultsLimit:
		return MaxResultsLimit
	default:
		return o.MaxResults
	}
}

// fetchLimit is how many candidates to request from the store.
func (o Options) fetchLimit(exclude string) int {
	n := o.limit()
	if o.MinScore != 0 || len(o.Types) > 0 {
		n *= overfetch
	}
	if exclude != "" {
		n++
	}
	return n
}

// FilterFunc checks if a search result matches filter criteria.
type FilterFunc func(r *store.SearchResult) bool

// buildFilters creates filter functions based on options.
func buildFilters(opts Options, exclude string) []FilterFunc {
	var filters []FilterFunc
	if exclude != "" {
		filters = append(filters, func(r *store.SearchResult) bool {
			return r.Entity.Path != exclude
		})
	}
	if opts.MinScore != 0 {
		floor := opts.MinScore
		filters = append(filters, func(r *store.SearchResult) bool {
			return r.Score >= floor
		})
	}
	if len(opts.Types) > 0 {
		types := slices.Clone(opts.Types)
		filters = append(filters, func(r *store.SearchResult) bool {
			return slices.Contains(types, r.Entity.Type)
		})
	}
	return filters
}

// matchesAllFilters checks if a result passes all filters (AND logic).
func matchesAllFilters(r *store.SearchResult, filters []FilterFunc) bool {
	for _, f := range filters {
		if !f(r) {
			return false
		}
	}
	return true
}

// Comparator orders two results; it follows the cmp.Compare convention.
type Comparator func(a, b *store.SearchResult) int

var comparators = map[SortField]Comparator{
	SortScore: func(a, b *store.SearchResult) int {
		return cmp.Compare(a.Score, b.Score)
	},
	SortName: func(a, b *store.SearchResult) int {
		return cmp.Or(
			strings.Compare(strings.ToLower(a.Entity.Name), strings.ToLower(b.Entity.Name)),
			strings.Compare(a.Entity.Path, b.Entity.Path),
		)
	},
	SortPath: func(a, b *store.SearchResult) int {
		return strings.Compare(a.Entity.Path, b.Entity.Path)
	},
	SortModified: func(a, b *store.SearchResult) int {
		return a.Entity.ModTime.Compare(b.Entity.ModTime)
	},
	SortSize: func(a, b *store.SearchResult) int {
		return cmp.Compare(a.Entity.Size, b.Entity.Size)
	},
}

// ComparatorFor returns the comparator for field, reversed when desc is
// set. SortRelevance has no comparator.
func ComparatorFor(field SortField, desc bool) Comparator {
	c, ok := comparators[field]
	if !ok {
		return nil
	}
	if desc {
		return func(a, b *store.SearchResult) int { return c(b, a) }
	}
	return c
}

// refine applies post-filters, trims to the limit and re-sorts.
func refine(results []*store.SearchResult, opts Options, exclude string) []*store.SearchResult {
	filters := buildFilters(opts, exclude)
	limit := opts.limit()

	out := make([]*store.SearchResult, 0, min(len(results), limit))
	for _, r := range results {
		if len(out) == limit {
			break
		}
		if matchesAllFilters(r, filters) {
			out = append(out, r)
		}
	}

	if c := ComparatorFor(opts.SortBy, opts.Descending); c != nil {
		slices.SortStableFunc(out, c)
	}
	return out
}
