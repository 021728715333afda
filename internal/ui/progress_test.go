package ui

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Initial(t *testing.T) {
	p := NewProgressTracker()

	stats := p.Stats()
	assert.Equal(t, StageCrawling, stats.Stage)
	assert.Zero(t, stats.Progress)
	assert.Zero(t, stats.ETA)
	assert.Empty(t, stats.Recent)
}

func TestProgressTracker_Progress(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageIndexing)

	p.Update(25, 100, "/a.txt")
	stats := p.Stats()
	assert.InDelta(t, 0.25, stats.Progress, 1e-9)
	assert.Equal(t, "/a.txt", stats.CurrentFile)

	// An empty file name keeps the previous one.
	p.Update(30, 100, "")
	assert.Equal(t, "/a.txt", p.Stats().CurrentFile)

	// Progress is capped at 1.
	p.Update(150, 100, "")
	assert.Equal(t, 1.0, p.Stats().Progress)
}

func TestProgressTracker_SpeedSamples(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageIndexing)

	// Given: time has passed since the last sample
	p.mu.Lock()
	p.lastSample = time.Now().Add(-time.Second)
	p.mu.Unlock()

	// When: ten files complete
	p.Update(10, 100, "")

	// Then: a speed sample is taken
	s := p.Stats().Speed
	assert.Greater(t, s.Current, 0.0)
	assert.Equal(t, s.Current, s.Avg)
	assert.Equal(t, s.Current, s.Peak)
	assert.Equal(t, 1, p.sparkline.Count())
}

func TestProgressTracker_SetStageResetsSpeed(t *testing.T) {
	p := NewProgressTracker()
	p.mu.Lock()
	p.lastSample = time.Now().Add(-time.Second)
	p.mu.Unlock()
	p.Update(10, 100, "")

	p.SetStage(StageWatching)

	assert.Zero(t, p.Stats().Speed.Avg)
	assert.Zero(t, p.sparkline.Count())
}

func TestProgressTracker_ETA(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageIndexing)
	p.mu.Lock()
	p.stageStart = time.Now().Add(-10 * time.Second)
	p.mu.Unlock()

	// When: half done after ten seconds
	p.Update(50, 100, "")

	// Then: about ten seconds remain
	assert.InDelta(t, float64(10*time.Second), float64(p.Stats().ETA), float64(time.Second))
}

func TestProgressTracker_Record(t *testing.T) {
	p := NewProgressTracker()

	for i := range 7 {
		p.Record(FileEvent{Path: fmt.Sprintf("/f%d", i), Outcome: OutcomeIndexed})
	}
	p.Record(FileEvent{Path: "/bad", Outcome: OutcomeFailed})

	stats := p.Stats()
	assert.Equal(t, 7, stats.Outcomes[OutcomeIndexed])
	assert.Equal(t, 1, stats.Outcomes[OutcomeFailed])
	assert.Len(t, stats.Recent, recentFiles)
	assert.Equal(t, "/bad", stats.Recent[len(stats.Recent)-1].Path)
}

func TestProgressTracker_Concurrent(t *testing.T) {
	p := NewProgressTracker()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 100 {
				p.Update(j, 100, "")
				p.Record(FileEvent{Path: fmt.Sprint(i, j), Outcome: OutcomeIndexed})
				_ = p.Stats()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 800, p.Stats().Outcomes[OutcomeIndexed])
}
