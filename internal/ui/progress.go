package ui

import (
	"sync"
	"time"
)

// Tracker timing.
const (
	speedSampleInterval = 500 * time.Millisecond
	etaSmoothing        = 0.3 // weight of the newest ETA estimate
	recentFiles         = 5
)

// ProgressTracker accumulates progress and file outcomes for display.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu          sync.Mutex
	stage       Stage
	indexed     int
	total       int
	currentFile string
	stageStart  time.Time

	outcomes map[Outcome]int
	recent   []FileEvent // newest last

	lastETA     time.Duration
	lastIndexed int
	lastSample  time.Time
	speed       SpeedStats
	samples     int
	sparkline   *Sparkline
}

// SpeedStats contains files-per-second metrics.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats contains a snapshot of current progress.
type ProgressStats struct {
	Stage       Stage
	Indexed     int
	Total       int
	Progress    float64
	ETA         time.Duration
	CurrentFile string
	Outcomes    map[Outcome]int
	Recent      []FileEvent
	Speed       SpeedStats
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		stage:      StageCrawling,
		stageStart: now,
		lastSample: now,
		outcomes:   make(map[Outcome]int),
		sparkline:  NewSparkline(60),
	}
}

// SetStage transitions to a new stage and resets speed tracking.
func (p *ProgressTracker) SetStage(stage Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if stage == p.stage {
		return
	}
	now := time.Now()
	p.stage = stage
	p.stageStart = now
	p.lastETA = 0
	p.lastIndexed = p.indexed
	p.lastSample = now
	p.speed = SpeedStats{}
	p.samples = 0
	p.sparkline.Clear()
}

// Update records the indexer's progress counters.
func (p *ProgressTracker) Update(indexed, total int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.indexed = indexed
	p.total = total
	if file != "" {
		p.currentFile = file
	}

	now := time.Now()
	elapsed := now.Sub(p.lastSample)
	if elapsed < speedSampleInterval {
		return
	}
	if delta := indexed - p.lastIndexed; delta > 0 {
		rate := float64(delta) / elapsed.Seconds()
		p.samples++
		if p.samples == 1 {
			p.speed.Avg = rate
		} else {
			p.speed.Avg = 0.2*rate + 0.8*p.speed.Avg
		}
		p.speed.Current = rate
		p.speed.Peak = max(p.speed.Peak, rate)
		p.sparkline.Add(rate)
	}
	p.lastIndexed = indexed
	p.lastSample = now
}

// Record counts one file outcome and keeps it in the recent list.
func (p *ProgressTracker) Record(ev FileEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.outcomes[ev.Outcome]++
	p.recent = append(p.recent, ev)
	if len(p.recent) > recentFiles {
		p.recent = p.recent[len(p.recent)-recentFiles:]
	}
}

// Stats returns a snapshot. It takes the write lock because ETA
// smoothing updates state.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	outcomes := make(map[Outcome]int, len(p.outcomes))
	for k, v := range p.outcomes {
		outcomes[k] = v
	}
	return ProgressStats{
		Stage:       p.stage,
		Indexed:     p.indexed,
		Total:       p.total,
		Progress:    p.progress(),
		ETA:         p.eta(),
		CurrentFile: p.currentFile,
		Outcomes:    outcomes,
		Recent:      append([]FileEvent(nil), p.recent...),
		Speed:       p.speed,
	}
}

// RenderSparkline returns the throughput sparkline at width columns.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sparkline.Render(width)
}

func (p *ProgressTracker) progress() float64 {
	if p.total == 0 {
		return 0
	}
	return min(float64(p.indexed)/float64(p.total), 1)
}

// eta extrapolates the stage's elapsed time, smoothed exponentially.
// Caller holds p.mu.
func (p *ProgressTracker) eta() time.Duration {
	frac := p.progress()
	if frac <= 0 || frac >= 1 {
		return 0
	}
	elapsed := time.Since(p.stageStart)
	raw := time.Duration(float64(elapsed)/frac) - elapsed
	if raw < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	p.lastETA = time.Duration(etaSmoothing*float64(raw) + (1-etaSmoothing)*float64(p.lastETA))
	return p.lastETA
}
