// Package ui provides terminal UI components for indexing progress and
// index status display.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage represents an indexer phase.
type Stage int

const (
	// StageCrawling is the initial walk of the roots.
	StageCrawling Stage = iota
	// StageIndexing is draining the queue.
	StageIndexing
	// StageWatching means the initial pass is done and changes are applied live.
	StageWatching
	// StageComplete indicates indexing is complete.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageCrawling:
		return "Crawling"
	case StageIndexing:
		return "Indexing"
	case StageWatching:
		return "Watching"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageCrawling:
		return "CRAWL"
	case StageIndexing:
		return "INDEX"
	case StageWatching:
		return "WATCH"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// Outcome is what happened to a single file.
type Outcome string

const (
	OutcomeIndexed Outcome = "indexed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
	OutcomeDeleted Outcome = "deleted"
)

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	Stage       Stage
	Indexed     int
	Total       int
	CurrentFile string
	Message     string
}

// FileEvent reports one processed path.
type FileEvent struct {
	Path    string
	Outcome Outcome
}

// Summary contains final indexing statistics.
type Summary struct {
	Indexed    int
	Skipped    int
	Failed     int
	TotalBytes int64
	Duration   time.Duration
	AvgPerFile time.Duration
	TextModel  string // e.g. "native (all-MiniLM-L6-v2.onnx)"
	ImageModel string
}

// Renderer defines the interface for progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates the progress display.
	UpdateProgress(event ProgressEvent)

	// FileDone records the outcome for one path.
	FileDone(event FileEvent)

	// Complete marks rendering as complete with summary.
	Complete(summary Summary)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	// Verbose prints every file outcome in plain mode, not just failures
	// and deletions.
	Verbose bool
	Roots   []string
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithVerbose enables per-file output.
func WithVerbose(v bool) ConfigOption {
	return func(c *Config) { c.Verbose = v }
}

// WithRoots sets the indexed roots shown in the header.
func WithRoots(roots ...string) ConfigOption {
	return func(c *Config) { c.Roots = roots }
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns a TUI renderer for interactive terminals, and a
// plain text renderer for CI, pipes, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
