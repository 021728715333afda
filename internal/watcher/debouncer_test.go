package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveBatch(t *testing.T, d *Debouncer, timeout time.Duration) []Event {
	t.Helper()
	select {
	case events := <-d.Output():
		return events
	case <-time.After(timeout):
		t.Fatal("timeout waiting for debounced events")
		return nil
	}
}

func expectNoBatch(t *testing.T, d *Debouncer, wait time.Duration) {
	t.Helper()
	select {
	case events := <-d.Output():
		t.Fatalf("expected no events, got %v", events)
	case <-time.After(wait):
	}
}

func TestDebouncer_SingleEventPassesThrough(t *testing.T) {
	// Given: a debouncer with a short window
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	// When: a single event is added
	d.Add(Event{Path: "/r/a.txt", Type: Created, Time: time.Now()})

	// Then: it comes out after the window
	events := receiveBatch(t, d, time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, "/r/a.txt", events[0].Path)
	assert.Equal(t, Created, events[0].Type)
}

func TestDebouncer_Coalescing(t *testing.T) {
	tests := []struct {
		name string
		ops  []EventType
		want []EventType
	}{
		{"modify burst", []EventType{Modified, Modified, Modified}, []EventType{Modified}},
		{"create then modify", []EventType{Created, Modified}, []EventType{Created}},
		{"modify then delete", []EventType{Modified, Deleted}, []EventType{Deleted}},
		{"delete then create", []EventType{Deleted, Created}, []EventType{Modified}},
		{"rename keeps latest", []EventType{Renamed, Created}, []EventType{Created}},
		{"dir delete reported twice", []EventType{DirDeleted, Deleted}, []EventType{DirDeleted}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(30 * time.Millisecond)
			defer d.Stop()

			for _, op := range tt.ops {
				d.Add(Event{Path: "/r/f.txt", Type: op, Time: time.Now()})
			}

			events := receiveBatch(t, d, time.Second)
			require.Len(t, events, len(tt.want))
			for i, want := range tt.want {
				assert.Equal(t, want, events[i].Type)
			}
		})
	}
}

func TestDebouncer_CancellingPairsEmitNothing(t *testing.T) {
	for _, pair := range [][2]EventType{{Created, Deleted}, {DirCreated, DirDeleted}} {
		d := NewDebouncer(20 * time.Millisecond)
		d.Add(Event{Path: "/r/tmp", Type: pair[0], Time: time.Now()})
		d.Add(Event{Path: "/r/tmp", Type: pair[1], Time: time.Now()})
		expectNoBatch(t, d, 100*time.Millisecond)
		d.Stop()
	}
}

func TestDebouncer_BatchIsOrderedByTime(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	base := time.Now()
	d.Add(Event{Path: "/r/c", Type: Created, Time: base.Add(2 * time.Millisecond)})
	d.Add(Event{Path: "/r/a", Type: Created, Time: base})
	d.Add(Event{Path: "/r/b", Type: Created, Time: base.Add(time.Millisecond)})

	events := receiveBatch(t, d, time.Second)
	require.Len(t, events, 3)
	assert.Equal(t, "/r/a", events[0].Path)
	assert.Equal(t, "/r/b", events[1].Path)
	assert.Equal(t, "/r/c", events[2].Path)
}

func TestDebouncer_StopIsIdempotentAndClosesOutput(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(Event{Path: "/r/a", Type: Created})

	d.Stop()
	d.Stop()
	d.Add(Event{Path: "/r/b", Type: Created})

	_, ok := <-d.Output()
	assert.False(t, ok)
}
