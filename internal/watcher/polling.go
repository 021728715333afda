package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// poller detects changes by periodically walking the roots and diffing
// against the previous snapshot. Used when fsnotify is unavailable.
type poller struct {
	roots  []string
	ignore func(path string, isDir bool) bool
	state  map[string]fileSnapshot
}

type fileSnapshot struct {
	modTime   time.Time
	size      int64
	isDir     bool
	isSymlink bool
}

func newPoller(roots []string, ignore func(string, bool) bool) *poller {
	return &poller{roots: roots, ignore: ignore, state: make(map[string]fileSnapshot)}
}

// snapshot walks every root. Unreadable entries are skipped.
func (p *poller) snapshot() map[string]fileSnapshot {
	current := make(map[string]fileSnapshot)
	for _, root := range p.roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if path == root {
				return nil
			}
			if p.ignore(path, d.IsDir()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			current[path] = fileSnapshot{
				modTime:   info.ModTime(),
				size:      info.Size(),
				isDir:     d.IsDir(),
				isSymlink: info.Mode()&os.ModeSymlink != 0,
			}
			return nil
		})
	}
	return current
}

// baseline records the initial state without emitting events.
func (p *poller) baseline() {
	p.state = p.snapshot()
}

// detectChanges diffs the file tree against the last snapshot.
func (p *poller) detectChanges(emit func(Event)) {
	current := p.snapshot()
	now := time.Now()

	for path, snap := range current {
		prev, existed := p.state[path]
		switch {
		case !existed:
			typ := Created
			if snap.isDir {
				typ = DirCreated
			}
			emit(Event{Path: path, Type: typ, IsDir: snap.isDir, IsSymlink: snap.isSymlink, Time: now})
		case !snap.isDir && (!prev.modTime.Equal(snap.modTime) || prev.size != snap.size):
			emit(Event{Path: path, Type: Modified, IsSymlink: snap.isSymlink, Time: now})
		}
	}

	for path, snap := range p.state {
		if _, exists := current[path]; exists {
			continue
		}
		typ := Deleted
		if snap.isDir {
			typ = DirDeleted
		}
		emit(Event{Path: path, Type: typ, IsDir: snap.isDir, IsSymlink: snap.isSymlink, Time: now})
	}

	p.state = current
}
