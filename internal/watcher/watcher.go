package watcher

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// EventType is the kind of change an Event reports.
type EventType int

const (
	// Created reports a new file.
	Created EventType = iota
	// Modified reports a changed file.
	Modified
	// Deleted reports a removed file.
	Deleted
	// Renamed reports a path that was moved away. Path is the old name;
	// the new name, if it is watched, arrives as its own Created event.
	Renamed
	// DirCreated reports a new directory.
	DirCreated
	// DirDeleted reports a removed directory.
	DirDeleted
)

func (t EventType) String() string {
	switch t {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	case DirCreated:
		return "dir_created"
	case DirDeleted:
		return "dir_deleted"
	default:
		return "unknown"
	}
}

// Event is one debounced change. Path is absolute.
type Event struct {
	Path      string
	OldPath   string // set for Renamed
	Type      EventType
	IsDir     bool
	IsSymlink bool
	Time      time.Time
}

var (
	// ErrAlreadyRunning is returned by configuration calls made after Start.
	ErrAlreadyRunning = errors.New("watcher is already running")
	// ErrNoPaths is returned by Start when no path was added.
	ErrNoPaths = errors.New("watcher has no paths")
	// ErrStopped is returned by Start on a watcher that was stopped.
	ErrStopped = errors.New("watcher is stopped")
)

// IgnoreFunc reports whether an absolute path should produce no events.
// Ignored directories are not descended into.
type IgnoreFunc func(path string, isDir bool) bool

// Options configures a Watcher.
type Options struct {
	// Latency is the debounce window: events for the same path within it
	// are coalesced. Default: 200ms
	Latency time.Duration

	// PollInterval is the scan interval in polling mode. Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the capacity of the Events channel. Default: 1000
	EventBufferSize int

	// ForcePolling skips fsnotify.
	ForcePolling bool

	// Ignore filters paths before they are watched or reported.
	Ignore IgnoreFunc
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Latency:         200 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.Latency <= 0 {
		o.Latency = defaults.Latency
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

// alwaysIgnored names directories that never produce events: VCS metadata
// and the store's own directory, whose writes would otherwise feed back
// into the index.
var alwaysIgnored = map[string]bool{
	".git":      true,
	".amanfind": true,
}

func builtinIgnored(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if alwaysIgnored[part] {
			return true
		}
	}
	return false
}
