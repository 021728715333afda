package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"
)

// StatusInfo contains index health information.
type StatusInfo struct {
	StorePath     string         `json:"store_path"`
	SchemaVersion int            `json:"schema_version"`
	Files         int            `json:"files"`
	WithText      int            `json:"with_text_embedding"`
	WithImage     int            `json:"with_image_embedding"`
	TotalBytes    int64          `json:"total_bytes"`
	StoreSize     int64          `json:"store_size"`
	ByType        map[string]int `json:"by_type,omitempty"`

	LastRun *RunStatus `json:"last_run,omitempty"`

	TextModel  ModelStatus `json:"text_model"`
	ImageModel ModelStatus `json:"image_model"`
}

// RunStatus summarizes the last recorded indexing run.
type RunStatus struct {
	Status     string    `json:"status"`
	Roots      []string  `json:"roots"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Indexed    int       `json:"indexed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
}

// ModelStatus describes one embedding provider.
type ModelStatus struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Status   string `json:"status"` // "ready", "missing", "disabled", "error"
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render displays status info to the terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	w := r.out
	_, _ = fmt.Fprintf(w, "%s\n\n", r.styles.Header.Render("Index: "+info.StorePath))

	_, _ = fmt.Fprintf(w, "  Files:         %d (%s)\n", info.Files, FormatBytes(info.TotalBytes))
	_, _ = fmt.Fprintf(w, "  Text vectors:  %d\n", info.WithText)
	_, _ = fmt.Fprintf(w, "  Image vectors: %d\n", info.WithImage)
	_, _ = fmt.Fprintf(w, "  Store size:    %s (schema v%d)\n", FormatBytes(info.StoreSize), info.SchemaVersion)

	if len(info.ByType) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, "  By type:")
		types := make([]string, 0, len(info.ByType))
		for t := range info.ByType {
			types = append(types, t)
		}
		slices.Sort(types)
		for _, t := range types {
			_, _ = fmt.Fprintf(w, "    %-9s %d\n", t+":", info.ByType[t])
		}
	}

	if run := info.LastRun; run != nil {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintf(w, "  Last run:      %s, %s\n", r.renderStatus(run.Status), formatTime(run.StartedAt))
		_, _ = fmt.Fprintf(w, "    %d indexed, %d skipped, %d failed\n", run.Indexed, run.Skipped, run.Failed)
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "  Models:")
	r.renderModel("Text", info.TextModel)
	r.renderModel("Image", info.ImageModel)
	return nil
}

func (r *StatusRenderer) renderModel(label string, m ModelStatus) {
	_, _ = fmt.Fprintf(r.out, "    %-6s %s (%s)", label+":", m.Provider, r.renderStatus(m.Status))
	if m.Model != "" {
		_, _ = fmt.Fprintf(r.out, " %s", m.Model)
	}
	_, _ = fmt.Fprintln(r.out)
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready", "completed", "running":
		return r.styles.Success.Render(status)
	case "missing", "disabled", "interrupted":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// formatTime formats a time relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
