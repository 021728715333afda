package watcher

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Debouncer coalesces rapid events for the same path. Within one window:
//   - Created + Modified = Created (file is still new)
//   - Created + Deleted = nothing (file never really existed)
//   - Modified + Deleted = Deleted (file is gone)
//   - Deleted + Created = Modified (file was replaced)
//   - DirCreated + DirDeleted = nothing
//   - DirDeleted + Deleted = DirDeleted (parent and self notifications)
type Debouncer struct {
	window  time.Duration
	pending map[string]*pendingEvent
	mu      sync.Mutex
	output  chan []Event
	timer   *time.Timer
	stopped bool
}

type pendingEvent struct {
	event   Event
	firstOp EventType
}

// NewDebouncer creates a debouncer that flushes window after the last Add.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []Event, 64),
	}
}

// Add queues an event, coalescing it with any pending event for the same path.
func (d *Debouncer) Add(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		merged := coalesce(existing, event)
		if merged == nil {
			delete(d.pending, event.Path)
		} else {
			existing.event = *merged
		}
	} else {
		d.pending[event.Path] = &pendingEvent{event: event, firstOp: event.Type}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges next into existing. It returns nil when the two cancel out.
func coalesce(existing *pendingEvent, next Event) *Event {
	switch existing.firstOp {
	case Created:
		switch next.Type {
		case Modified:
			return &existing.event
		case Deleted:
			return nil
		}
	case Deleted:
		if next.Type == Created {
			merged := next
			merged.Type = Modified
			return &merged
		}
	case DirCreated:
		if next.Type == DirDeleted {
			return nil
		}
	case DirDeleted:
		if next.Type == Deleted {
			return &existing.event
		}
	}
	return &next
}

// flush emits pending events in the order they were last seen.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]Event, 0, len(d.pending))
	for _, pe := range d.pending {
		events = append(events, pe.event)
	}
	d.pending = make(map[string]*pendingEvent)
	slices.SortFunc(events, func(a, b Event) int { return a.Time.Compare(b.Time) })

	select {
	case d.output <- events:
	default:
		slog.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(events)))
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []Event {
	return d.output
}

// Stop discards pending events and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
