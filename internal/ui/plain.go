package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer outputs plain text progress (for CI/pipes).
type PlainRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	stage   Stage
	lastPct int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, verbose: cfg.Verbose, lastPct: -1}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// UpdateProgress implements Renderer. Outside verbose mode a line is
// printed only when the whole-percent value or the stage changes.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pct := -1
	if event.Total > 0 {
		pct = event.Indexed * 100 / event.Total
	}
	if !r.verbose && event.Stage == r.stage && pct == r.lastPct && event.Message == "" {
		return
	}
	r.stage = event.Stage
	r.lastPct = pct

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}

	switch {
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d (%d%%) - %s\n", event.Stage.Icon(), event.Indexed, event.Total, pct, msg)
	case msg != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// FileDone implements Renderer.
func (r *PlainRenderer) FileDone(event FileEvent) {
	if !r.verbose && event.Outcome != OutcomeFailed && event.Outcome != OutcomeDeleted {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, "%-7s %s\n", event.Outcome, event.Path)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d files indexed, %d skipped", s.Indexed, s.Skipped)
	if s.Failed > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d failed)", s.Failed)
	}
	_, _ = fmt.Fprintf(r.out, ", %s in %s\n", FormatBytes(s.TotalBytes), s.Duration.Round(100*time.Millisecond))

	if s.AvgPerFile > 0 {
		_, _ = fmt.Fprintf(r.out, "Average: %s per file\n", s.AvgPerFile.Round(time.Millisecond))
	}
	if s.TextModel != "" {
		_, _ = fmt.Fprintf(r.out, "Text model:  %s\n", s.TextModel)
	}
	if s.ImageModel != "" {
		_, _ = fmt.Fprintf(r.out, "Image model: %s\n", s.ImageModel)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
