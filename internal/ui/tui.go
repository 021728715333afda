package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// quitTimeout bounds how long Stop waits for the program to exit.
const quitTimeout = 2 * time.Second

// TUIRenderer provides a live terminal dashboard using bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *indexingModel
	tracker *ProgressTracker
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails when the output is not
// a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, errors.New("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newIndexingModel(tracker, cfg.Roots)
	model.styles = GetStyles(cfg.NoColor)

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer. The program exits when ctx is cancelled.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		return nil
	}

	ctx, r.cancel = context.WithCancel(ctx)
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.tracker.SetStage(event.Stage)
	r.tracker.Update(event.Indexed, event.Total, event.CurrentFile)
	r.send(progressMsg{})
}

// FileDone implements Renderer.
func (r *TUIRenderer) FileDone(event FileEvent) {
	r.tracker.Record(event)
	r.send(progressMsg{})
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(summary Summary) {
	r.tracker.SetStage(StageComplete)
	r.send(completeMsg(summary))
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p, cancel := r.program, r.cancel
	r.mu.Unlock()

	if p == nil {
		return nil
	}
	p.Quit()
	select {
	case <-r.done:
	case <-time.After(quitTimeout):
	}
	cancel()
	return nil
}

// Done is closed once the program has exited, including when the user
// quits with q or ctrl+c.
func (r *TUIRenderer) Done() <-chan struct{} { return r.done }

var _ Renderer = (*TUIRenderer)(nil)

type progressMsg struct{}
type completeMsg Summary
type tickMsg time.Time

// indexingModel is the bubbletea model for indexing progress.
type indexingModel struct {
	tracker  *ProgressTracker
	roots    []string
	width    int
	quitting bool
	complete bool
	summary  Summary
	spinner  spinner.Model
	bar      progress.Model
	styles   Styles
}

func newIndexingModel(tracker *ProgressTracker, roots []string) *indexingModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	return &indexingModel{
		tracker: tracker,
		roots:   roots,
		width:   80,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorLime),
			progress.WithWidth(50),
			progress.WithoutPercentage(),
		),
		styles: DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m *indexingModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *indexingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(20, msg.Width-20)
	case completeMsg:
		m.complete = true
		m.summary = Summary(msg)
		return m, tea.Quit
	case tickMsg:
		return m, tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *indexingModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	width := max(40, m.width-4)
	stats := m.tracker.Stats()
	divider := m.styles.Border.Render(strings.Repeat("─", width))

	sections := []string{
		m.renderStages(stats.Stage),
		divider,
		m.renderProgress(stats),
		m.renderSpeed(stats),
		divider,
		m.styles.Sparkline.Render(m.tracker.RenderSparkline(max(10, width-14))) + " " + m.styles.Dim.Render("files/sec"),
	}
	if len(stats.Recent) > 0 {
		sections = append(sections, divider, m.renderRecent(stats.Recent, width))
	}

	title := "amanfind"
	if len(m.roots) > 0 {
		title += " • " + strings.Join(m.roots, ", ")
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width).
		Render(strings.Join(sections, "\n"))

	return lipgloss.JoinVertical(lipgloss.Left, m.styles.Header.Render(title), panel) +
		"\n" + m.renderStatusBar(stats)
}

func (m *indexingModel) renderStages(current Stage) string {
	stages := []Stage{StageCrawling, StageIndexing, StageWatching}
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		switch {
		case s < current:
			parts = append(parts, m.styles.Success.Render("● "+s.String()))
		case s == current:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+s.String()))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+s.String()))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *indexingModel) renderProgress(stats ProgressStats) string {
	if stats.Stage == StageWatching {
		return fmt.Sprintf("%s %s\n%s", m.spinner.View(),
			m.styles.Active.Render("Watching for changes"),
			m.styles.Label.Render(fmt.Sprintf("%d files indexed", stats.Indexed)))
	}
	if stats.Total == 0 {
		return fmt.Sprintf("%s %s...\n%s", m.spinner.View(), stats.Stage, m.styles.Dim.Render("Discovering files"))
	}
	return fmt.Sprintf("%s  %s\n%s",
		m.bar.ViewAs(stats.Progress),
		m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100)),
		m.styles.Label.Render(fmt.Sprintf("%d / %d files", stats.Indexed, stats.Total)))
}

func (m *indexingModel) renderSpeed(stats ProgressStats) string {
	speed := fmt.Sprintf("Speed: %.1f/s", stats.Speed.Current)
	if stats.Speed.Avg > 0 {
		speed += fmt.Sprintf(" (avg: %.1f, peak: %.1f)", stats.Speed.Avg, stats.Speed.Peak)
	}
	parts := []string{m.styles.Label.Render(speed)}
	if stats.ETA > 0 {
		parts = append(parts, m.styles.Label.Render("ETA: "+formatDuration(stats.ETA)))
	}
	return strings.Join(parts, m.styles.Dim.Render("  •  "))
}

func (m *indexingModel) renderRecent(recent []FileEvent, width int) string {
	lines := make([]string, 0, len(recent))
	for _, ev := range recent {
		line := fmt.Sprintf("%-7s %s", ev.Outcome, truncateFilePath(ev.Path, width-10))
		switch ev.Outcome {
		case OutcomeFailed:
			lines = append(lines, m.styles.Error.Render(line))
		case OutcomeDeleted:
			lines = append(lines, m.styles.Warning.Render(line))
		default:
			lines = append(lines, m.styles.Dim.Render(line))
		}
	}
	return strings.Join(lines, "\n")
}

func (m *indexingModel) renderStatusBar(stats ProgressStats) string {
	var parts []string
	if n := stats.Outcomes[OutcomeSkipped]; n > 0 {
		parts = append(parts, m.styles.Label.Render(fmt.Sprintf("%d skipped", n)))
	}
	if n := stats.Outcomes[OutcomeFailed]; n > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d failed", n)))
	}
	if n := stats.Outcomes[OutcomeDeleted]; n > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("%d removed", n)))
	}
	parts = append(parts, m.styles.Dim.Render("q to quit"))
	return strings.Join(parts, m.styles.Dim.Render("  │  "))
}

func (m *indexingModel) renderComplete() string {
	s := m.summary
	label := m.styles.Label.Render
	value := func(v any) string { return m.styles.Active.Render(fmt.Sprint(v)) }

	lines := []string{
		m.styles.Success.Render("✓ Indexing Complete"),
		"",
		label("Indexed:  ") + value(s.Indexed),
		label("Skipped:  ") + value(s.Skipped),
		label("Size:     ") + value(FormatBytes(s.TotalBytes)),
		label("Duration: ") + value(formatDuration(s.Duration)),
	}
	if s.AvgPerFile > 0 {
		lines = append(lines, label("Per file: ")+value(s.AvgPerFile.Round(time.Millisecond)))
	}
	if s.Failed > 0 {
		lines = append(lines, "", m.styles.Error.Render(fmt.Sprintf("✗ %d failed", s.Failed)))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorLime)).
		Padding(1, 2).
		Width(max(40, m.width-4)).
		Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		if s := int(d.Seconds()) % 60; s != 0 {
			return fmt.Sprintf("%dm %ds", int(d.Minutes()), s)
		}
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// truncateFilePath shortens path to maxLen, keeping the file name.
func truncateFilePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	name := filepath.Base(path)
	if len(name)+4 > maxLen {
		if maxLen < 4 {
			return "..."
		}
		return "..." + name[len(name)-maxLen+3:]
	}
	dir := filepath.Dir(path)
	keep := maxLen - len(name) - 4
	return "..." + dir[len(dir)-keep:] + string(filepath.Separator) + name
}
