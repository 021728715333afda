package mcp

import (
	"time"

	"github.com/Aman-CERP/amanfind/internal/embed"
	"github.com/Aman-CERP/amanfind/internal/index"
	"github.com/Aman-CERP/amanfind/internal/store"
)

// SemanticSearchInput defines the input schema for the semantic_search tool.
type SemanticSearchInput struct {
	Query     string   `json:"query" jsonschema:"natural language description of the content to find"`
	Limit     int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	MinScore  float64  `json:"min_score,omitempty" jsonschema:"drop results with a similarity score below this value"`
	Directory string   `json:"directory,omitempty" jsonschema:"only return files under this directory"`
	Types     []string `json:"types,omitempty" jsonschema:"file types to keep: text, code, document, image, audio, video, archive"`
	SortBy    string   `json:"sort_by,omitempty" jsonschema:"re-sort by: relevance, score, name, path, modified, size"`
}

// FindSimilarInput defines the input schema for the find_similar tool.
type FindSimilarInput struct {
	Path      string `json:"path" jsonschema:"absolute path of an indexed file"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Directory string `json:"directory,omitempty" jsonschema:"only return files under this directory"`
	Visual    bool   `json:"visual,omitempty" jsonschema:"compare image embeddings instead of text embeddings"`
}

// VisualSearchInput defines the input schema for the visual_search tool.
// Exactly one of Query and ImagePath is set.
type VisualSearchInput struct {
	Query     string `json:"query,omitempty" jsonschema:"text describing what the image shows"`
	ImagePath string `json:"image_path,omitempty" jsonschema:"path of an example image to match"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Directory string `json:"directory,omitempty" jsonschema:"only return images under this directory"`
}

// ResultsOutput defines the output schema of the search tools.
type ResultsOutput struct {
	Results []ResultOutput `json:"results" jsonschema:"matching files ordered by similarity"`
}

// ResultOutput is one matching file.
type ResultOutput struct {
	Path     string  `json:"path" jsonschema:"absolute file path"`
	Name     string  `json:"name"`
	Type     string  `json:"type" jsonschema:"file type"`
	Score    float64 `json:"score" jsonschema:"cosine similarity between -1 and 1"`
	Size     int64   `json:"size"`
	Modified string  `json:"modified" jsonschema:"modification time, RFC3339"`
	MIMEType string  `json:"mime_type,omitempty"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Store      StoreInfo         `json:"store"`
	Indexing   *IndexingProgress `json:"indexing,omitempty"` // Present while an indexer is attached
	LastRun    *RunInfo          `json:"last_run,omitempty"`
	Embeddings EmbeddingInfo     `json:"embeddings"`
}

// StoreInfo contains statistics about the index database.
type StoreInfo struct {
	Path          string         `json:"path"`
	SchemaVersion int            `json:"schema_version"`
	FileCount     int            `json:"file_count"`
	WithText      int            `json:"with_text_embedding"`
	WithImage     int            `json:"with_image_embedding"`
	TotalBytes    int64          `json:"total_bytes"`
	ByType        map[string]int `json:"by_type,omitempty"`
}

// IndexingProgress contains the attached indexer's state.
type IndexingProgress struct {
	Status         string  `json:"status"` // stopped, running, paused, watching or error
	Indexed        int     `json:"indexed"`
	Pending        int     `json:"pending"`
	Skipped        int     `json:"skipped"`
	Failed         int     `json:"failed"`
	ProgressPct    float64 `json:"progress_pct"` // 0-100
	ElapsedSeconds int     `json:"elapsed_seconds"`
}

// RunInfo describes the most recent recorded indexing run.
type RunInfo struct {
	ID         string   `json:"id"`
	Roots      []string `json:"roots"`
	Status     string   `json:"status"`
	StartedAt  string   `json:"started_at"`
	FinishedAt string   `json:"finished_at,omitempty"`
	Indexed    int      `json:"indexed"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
}

// EmbeddingInfo reports which models are loaded.
type EmbeddingInfo struct {
	Text  ModelStatus `json:"text"`
	Image ModelStatus `json:"image"`
}

// ModelStatus is the state of one embedding provider.
type ModelStatus struct {
	Status     string `json:"status"` // loaded, unloaded or unavailable
	Provider   string `json:"provider,omitempty"`
	Model      string `json:"model,omitempty"`
	Dimensions int    `json:"dimensions"`
}

func toResultOutput(r *store.SearchResult) ResultOutput {
	e := r.Entity
	return ResultOutput{
		Path:     e.Path,
		Name:     e.Name,
		Type:     string(e.Type),
		Score:    float64(r.Score),
		Size:     e.Size,
		Modified: e.ModTime.UTC().Format(time.RFC3339),
		MIMEType: MimeTypeForPath(e.Path),
	}
}

func toResultsOutput(results []*store.SearchResult) ResultsOutput {
	out := ResultsOutput{Results: make([]ResultOutput, 0, len(results))}
	for _, r := range results {
		if r.Entity != nil {
			out.Results = append(out.Results, toResultOutput(r))
		}
	}
	return out
}

func toIndexingProgress(status index.Status, st index.Stats) *IndexingProgress {
	return &IndexingProgress{
		Status:         status.String(),
		Indexed:        st.Indexed,
		Pending:        st.Pending,
		Skipped:        st.Skipped,
		Failed:         st.Failed,
		ProgressPct:    st.Progress * 100,
		ElapsedSeconds: int(st.Elapsed.Seconds()),
	}
}

func toRunInfo(r *store.Run) *RunInfo {
	info := &RunInfo{
		ID:        r.ID,
		Roots:     r.Roots,
		Status:    r.Status,
		StartedAt: r.StartedAt.UTC().Format(time.RFC3339),
		Indexed:   r.Indexed,
		Skipped:   r.Skipped,
		Failed:    r.Failed,
	}
	if !r.FinishedAt.IsZero() {
		info.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	return info
}

func toModelStatus(m ModelReporter, dims int) ModelStatus {
	if m == nil {
		return ModelStatus{Status: "unavailable"}
	}
	info := m.Info()
	return ModelStatus{
		Status:     info.State.String(),
		Provider:   string(info.Kind),
		Model:      info.ModelPath,
		Dimensions: dims,
	}
}

var (
	_ ModelReporter = (*embed.TextProvider)(nil)
	_ ModelReporter = (*embed.ImageProvider)(nil)
)
