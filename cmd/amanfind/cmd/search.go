package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanfind/internal/config"
	"github.com/Aman-CERP/amanfind/internal/search"
	"github.com/Aman-CERP/amanfind/internal/store"
	"github.com/Aman-CERP/amanfind/internal/ui"
)

// searchOptions holds CLI flags shared by the query commands.
type searchOptions struct {
	limit    int
	minScore float64
	dir      string
	types    []string
	sortBy   string
	reverse  bool
	jsonOut  bool
}

func addSearchFlags(cmd *cobra.Command, opts *searchOptions, filters bool) {
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default search.max_results)")
	cmd.Flags().StringVarP(&opts.dir, "dir", "d", "", "Only return files under this directory")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output results as JSON")
	if !filters {
		return
	}
	cmd.Flags().Float64Var(&opts.minScore, "min-score", -2, "Drop results scoring below this (default search.min_score)")
	cmd.Flags().StringSliceVarP(&opts.types, "type", "t", nil, "Filter by file type (repeatable): "+fileTypeNames())
	cmd.Flags().StringVar(&opts.sortBy, "sort", "", "Sort by: score, name, path, modified, size")
	cmd.Flags().BoolVar(&opts.reverse, "reverse", false, "Reverse the sort order")
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed files by meaning",
		Long: `Embed the query with the text model and return the indexed files whose
content is most similar, best match first.`,
		Example: `  amanfind search "quarterly budget spreadsheet"
  amanfind search "http retry logic" --type code --limit 5
  amanfind search "meeting notes" --dir ~/Documents --sort modified`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runQuery(cmd, opts, engineOptions{text: true}, query,
				func(ctx context.Context, eng *engine, so search.Options) ([]*store.SearchResult, error) {
					return eng.semantic().Query(ctx, query, so)
				})
		},
	}

	addSearchFlags(cmd, &opts, true)
	return cmd
}

func newSimilarCmd() *cobra.Command {
	var (
		opts   searchOptions
		visual bool
	)

	cmd := &cobra.Command{
		Use:   "similar <path>",
		Short: "Find files similar to an indexed file",
		Long: `Return the indexed files closest to the given file, which must already be
indexed. The file itself is never part of the results.

With --visual the comparison uses image embeddings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return runQuery(cmd, opts, engineOptions{}, path,
				func(ctx context.Context, eng *engine, so search.Options) ([]*store.SearchResult, error) {
					if visual {
						return eng.visual().SimilarToImage(ctx, path, so)
					}
					return eng.semantic().SimilarToFile(ctx, path, so)
				})
		},
	}

	addSearchFlags(cmd, &opts, true)
	cmd.Flags().BoolVar(&visual, "visual", false, "Compare image embeddings instead of text")
	return cmd
}

func newVisualCmd() *cobra.Command {
	var (
		opts  searchOptions
		image string
	)

	cmd := &cobra.Command{
		Use:   "visual [query]",
		Short: "Search images by description or by example",
		Long: `Search indexed images in the shared image/text space. Pass a text query
to find images matching a description, or --image to find images that look
like a given picture (which need not be indexed).`,
		Example: `  amanfind visual "a cat asleep on a sofa"
  amanfind visual --image ~/Desktop/reference.jpg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			switch {
			case query == "" && image == "":
				return fmt.Errorf("a query or --image is required")
			case query != "" && image != "":
				return fmt.Errorf("a query and --image are mutually exclusive")
			}
			return runQuery(cmd, opts, engineOptions{images: true}, query+image,
				func(ctx context.Context, eng *engine, so search.Options) ([]*store.SearchResult, error) {
					if image != "" {
						return eng.visual().QueryByImage(ctx, image, so)
					}
					return eng.visual().Query(ctx, query, so)
				})
		},
	}

	addSearchFlags(cmd, &opts, false)
	cmd.Flags().StringVar(&image, "image", "", "Find images similar to this image file")
	return cmd
}

type queryFunc func(ctx context.Context, eng *engine, opts search.Options) ([]*store.SearchResult, error)

func runQuery(cmd *cobra.Command, opts searchOptions, eo engineOptions, query string, fn queryFunc) error {
	ctx := cmd.Context()
	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	so, err := buildSearchOptions(cfg, opts)
	if err != nil {
		return err
	}

	eo.mustExist = true
	eng, err := openEngine(ctx, cfg, eo)
	if err != nil {
		return err
	}
	defer eng.Close()

	start := time.Now()
	slog.Info("search_started", slog.String("command", cmd.Name()), slog.String("query", query))
	results, err := fn(ctx, eng, so)
	if err != nil {
		slog.Warn("search_failed", slog.String("command", cmd.Name()), slog.String("error", err.Error()))
		return err
	}
	slog.Info("search_complete",
		slog.String("command", cmd.Name()),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	if opts.jsonOut {
		return writeResultsJSON(cmd.OutOrStdout(), query, results)
	}
	writeResults(cmd.OutOrStdout(), query, results)
	return nil
}

// buildSearchOptions merges flags over the configured search defaults.
func buildSearchOptions(cfg *config.Config, opts searchOptions) (search.Options, error) {
	so := search.Options{
		MaxResults: cfg.Search.MaxResults,
		MinScore:   float32(cfg.Search.MinScore),
	}
	if opts.limit > 0 {
		so.MaxResults = opts.limit
	}
	if opts.minScore >= -1 {
		so.MinScore = float32(opts.minScore)
	}
	if opts.dir != "" {
		dir, err := filepath.Abs(opts.dir)
		if err != nil {
			return so, err
		}
		so.Directory = dir
	}

	for _, t := range opts.types {
		name := strings.ToLower(strings.TrimSpace(t))
		ft := store.ParseFileType(name)
		if string(ft) != name {
			return so, fmt.Errorf("unknown file type %q (want one of %s)", t, fileTypeNames())
		}
		so.Types = append(so.Types, ft)
	}

	sortBy, err := search.ParseSortField(opts.sortBy)
	if err != nil {
		return so, err
	}
	so.SortBy = sortBy
	// Names and paths read naturally ascending; everything else best-first.
	so.Descending = sortBy != search.SortName && sortBy != search.SortPath
	if opts.reverse {
		so.Descending = !so.Descending
	}
	return so, nil
}

func fileTypeNames() string {
	names := make([]string, 0, len(store.AllFileTypes))
	for _, ft := range store.AllFileTypes {
		names = append(names, string(ft))
	}
	return strings.Join(names, ", ")
}

// resultJSON is the --json shape of one result.
type resultJSON struct {
	Path     string  `json:"path"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Score    float64 `json:"score"`
	Size     int64   `json:"size"`
	Modified string  `json:"modified"`
}

func writeResultsJSON(w io.Writer, query string, results []*store.SearchResult) error {
	out := struct {
		Query   string       `json:"query"`
		Results []resultJSON `json:"results"`
	}{Query: query, Results: make([]resultJSON, 0, len(results))}

	for _, r := range results {
		if r == nil || r.Entity == nil {
			continue
		}
		out.Results = append(out.Results, resultJSON{
			Path:     r.Entity.Path,
			Name:     r.Entity.Name,
			Type:     string(r.Entity.Type),
			Score:    float64(r.Score),
			Size:     r.Entity.Size,
			Modified: r.Entity.ModTime.UTC().Format(time.RFC3339),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeResults(w io.Writer, query string, results []*store.SearchResult) {
	if len(results) == 0 {
		_, _ = fmt.Fprintf(w, "No results for %q\n", query)
		return
	}

	styles := ui.GetStyles(!ui.IsTTY(w))
	for i, r := range results {
		if r == nil || r.Entity == nil {
			continue
		}
		e := r.Entity
		_, _ = fmt.Fprintf(w, "%2d. %s  %s\n",
			i+1,
			styles.Active.Render(fmt.Sprintf("%.3f", r.Score)),
			e.Path)
		_, _ = fmt.Fprintf(w, "    %s\n", styles.Dim.Render(fmt.Sprintf("%s, %s, modified %s",
			e.Type, ui.FormatBytes(e.Size), e.ModTime.Local().Format("2006-01-02 15:04"))))
	}
}
