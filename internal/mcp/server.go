package mcp

import (
	"cmp"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanfind/internal/embed"
	"github.com/Aman-CERP/amanfind/internal/index"
	"github.com/Aman-CERP/amanfind/internal/search"
	"github.com/Aman-CERP/amanfind/internal/store"
	"github.com/Aman-CERP/amanfind/pkg/version"
)

// Tool limits.
const (
	defaultLimit = 10
	maxLimit     = 100
)

// StatusSource reports the state of a running indexer.
type StatusSource interface {
	Status() index.Status
	Stats() index.Stats
}

// ModelReporter reports what an embedding provider has loaded.
type ModelReporter interface {
	Info() embed.ModelInfo
}

// Options wires a Server to the engine. Store is required; every other
// field may be nil, in which case the matching tools report the
// capability as unavailable.
type Options struct {
	Store      *store.Store
	Semantic   *search.SemanticService
	Visual     *search.VisualService
	Indexer    StatusSource
	TextModel  ModelReporter
	ImageModel ModelReporter
	Logger     *slog.Logger
}

// Server is the MCP server for amanfind.
// It lets AI clients search the local index by meaning and by image.
type Server struct {
	mcp      *mcp.Server
	store    *store.Store
	semantic *search.SemanticService
	visual   *search.VisualService
	indexer  StatusSource
	text     ModelReporter
	image    ModelReporter
	logger   *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "semantic_search",
		Description: "Find local files by meaning. Describe the content you are looking for in natural language; results are ranked by similarity of text embeddings. Supports directory, file type and score filters.",
	},
	{
		Name:        "find_similar",
		Description: "Find files similar to an already indexed file. Set visual to compare images instead of text.",
	},
	{
		Name:        "visual_search",
		Description: "Find images by describing what they show, or by giving the path of an example image.",
	},
	{
		Name:        "index_status",
		Description: "Report how many files are indexed, indexing progress, the last indexing run and which embedding models are loaded.",
	},
}

// NewServer creates a new MCP server.
func NewServer(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:    opts.Store,
		semantic: opts.Semantic,
		visual:   opts.Visual,
		indexer:  opts.Indexer,
		text:     opts.TextModel,
		image:    opts.ImageModel,
		logger:   logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "amanfind",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

// CallTool invokes a tool by name with JSON-style arguments. Search tools
// return markdown; index_status returns *IndexStatusOutput.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "semantic_search":
		in, err := decodeArgs[SemanticSearchInput](args)
		if err != nil {
			return nil, err
		}
		results, err := s.semanticSearch(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatResults("Semantic Search", in.Query, results), nil
	case "find_similar":
		in, err := decodeArgs[FindSimilarInput](args)
		if err != nil {
			return nil, err
		}
		results, err := s.findSimilar(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatResults("Similar Files", in.Path, results), nil
	case "visual_search":
		in, err := decodeArgs[VisualSearchInput](args)
		if err != nil {
			return nil, err
		}
		results, err := s.visualSearch(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatResults("Visual Search", cmp.Or(in.Query, in.ImagePath), results), nil
	case "index_status":
		return s.indexStatus(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSemanticSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpFindSimilarHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpVisualSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[3].Name, Description: tools[3].Description}, s.mcpIndexStatusHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpSemanticSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SemanticSearchInput) (
	*mcp.CallToolResult,
	ResultsOutput,
	error,
) {
	results, err := s.semanticSearch(ctx, input)
	if err != nil {
		return nil, ResultsOutput{}, err
	}
	return nil, toResultsOutput(results), nil
}

func (s *Server) mcpFindSimilarHandler(ctx context.Context, _ *mcp.CallToolRequest, input FindSimilarInput) (
	*mcp.CallToolResult,
	ResultsOutput,
	error,
) {
	results, err := s.findSimilar(ctx, input)
	if err != nil {
		return nil, ResultsOutput{}, err
	}
	return nil, toResultsOutput(results), nil
}

func (s *Server) mcpVisualSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input VisualSearchInput) (
	*mcp.CallToolResult,
	ResultsOutput,
	error,
) {
	results, err := s.visualSearch(ctx, input)
	if err != nil {
		return nil, ResultsOutput{}, err
	}
	return nil, toResultsOutput(results), nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	output, err := s.indexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, output, nil
}

func (s *Server) semanticSearch(ctx context.Context, in SemanticSearchInput) ([]*store.SearchResult, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	opts, err := searchOptions(in.Limit, in.MinScore, in.Directory, in.Types, in.SortBy)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, "semantic_search", in.Query, func() ([]*store.SearchResult, error) {
		return s.semantic.Query(ctx, in.Query, opts)
	})
}

func (s *Server) findSimilar(ctx context.Context, in FindSimilarInput) ([]*store.SearchResult, error) {
	if strings.TrimSpace(in.Path) == "" {
		return nil, NewInvalidParamsError("path parameter is required")
	}
	opts, err := searchOptions(in.Limit, 0, in.Directory, nil, "")
	if err != nil {
		return nil, err
	}
	return s.run(ctx, "find_similar", in.Path, func() ([]*store.SearchResult, error) {
		if in.Visual {
			return s.visual.SimilarToImage(ctx, in.Path, opts)
		}
		return s.semantic.SimilarToFile(ctx, in.Path, opts)
	})
}

func (s *Server) visualSearch(ctx context.Context, in VisualSearchInput) ([]*store.SearchResult, error) {
	query := strings.TrimSpace(in.Query)
	image := strings.TrimSpace(in.ImagePath)
	switch {
	case query == "" && image == "":
		return nil, NewInvalidParamsError("one of query or image_path is required")
	case query != "" && image != "":
		return nil, NewInvalidParamsError("query and image_path are mutually exclusive")
	}
	opts, err := searchOptions(in.Limit, 0, in.Directory, nil, "")
	if err != nil {
		return nil, err
	}
	return s.run(ctx, "visual_search", query+image, func() ([]*store.SearchResult, error) {
		if image != "" {
			return s.visual.QueryByImage(ctx, image, opts)
		}
		return s.visual.Query(ctx, query, opts)
	})
}

// run executes a search with request logging and maps its error.
func (s *Server) run(ctx context.Context, tool, query string, fn func() ([]*store.SearchResult, error)) ([]*store.SearchResult, error) {
	start := time.Now()
	requestID := generateRequestID()

	s.logger.Info(tool+" started",
		slog.String("request_id", requestID),
		slog.String("query", query))

	results, err := fn()
	duration := time.Since(start)
	if err != nil {
		s.logger.Error(tool+" failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info(tool+" completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))
	return results, nil
}

func (s *Server) indexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	size, err := s.store.TotalSize(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	emb, err := s.store.EmbeddingStats(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	byType, err := s.store.CountByType(ctx)
	if err != nil {
		return nil, MapError(err)
	}

	output := &IndexStatusOutput{
		Store: StoreInfo{
			Path:          s.store.Path(),
			SchemaVersion: s.store.Version(),
			FileCount:     count,
			WithText:      emb.WithText,
			WithImage:     emb.WithImage,
			TotalBytes:    size,
			ByType:        make(map[string]int, len(byType)),
		},
		Embeddings: EmbeddingInfo{
			Text:  toModelStatus(s.text, embed.TextDimensions),
			Image: toModelStatus(s.image, embed.ImageDimensions),
		},
	}
	for t, n := range byType {
		output.Store.ByType[string(t)] = n
	}

	if s.indexer != nil {
		output.Indexing = toIndexingProgress(s.indexer.Status(), s.indexer.Stats())
	}

	run, err := s.store.LastRun(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	if run != nil {
		output.LastRun = toRunInfo(run)
	}
	return output, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

func searchOptions(limit int, minScore float64, dir string, types []string, sortBy string) (search.Options, error) {
	opts := search.Options{
		MaxResults: clampLimit(limit, defaultLimit, 1, maxLimit),
		MinScore:   float32(minScore),
		Directory:  dir,
	}
	for _, t := range types {
		ft := store.ParseFileType(strings.ToLower(t))
		if string(ft) != strings.ToLower(t) {
			return opts, NewInvalidParamsError(fmt.Sprintf("unknown file type %q", t))
		}
		opts.Types = append(opts.Types, ft)
	}
	field, err := search.ParseSortField(sortBy)
	if err != nil {
		return opts, NewInvalidParamsError(err.Error())
	}
	opts.SortBy = field
	opts.Descending = field != search.SortName && field != search.SortPath
	return opts, nil
}

// decodeArgs converts loosely typed tool arguments into an input struct.
func decodeArgs[T any](args map[string]any) (T, error) {
	var in T
	raw, err := json.Marshal(args)
	if err != nil {
		return in, NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return in, nil
}

// clampLimit returns v clamped to [lo, hi], or def when v is not positive.
func clampLimit(v, def, lo, hi int) int {
	if v <= 0 {
		return def
	}
	return max(lo, min(v, hi))
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
