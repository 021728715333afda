package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
)

// alwaysExcluded directories are never crawled, whatever the policy says.
var alwaysExcluded = []string{".git", ".amanfind"}

// Policy decides which files a crawl reports.
type Policy struct {
	// IncludeHidden crawls dot-files and dot-directories.
	IncludeHidden bool

	// MaxFileSize skips larger files (0 = DefaultMaxFileSize).
	MaxFileSize int64

	// ExcludePatterns are filepath.Match globs tested against both the
	// full path and the base name. A matching directory is pruned.
	ExcludePatterns []string
}

func (p Policy) maxFileSize() int64 {
	if p.MaxFileSize <= 0 {
		return DefaultMaxFileSize
	}
	return p.MaxFileSize
}

// Excluded reports whether path is filtered out by name alone.
func (p Policy) Excluded(path string, isDir bool) bool {
	name := filepath.Base(path)
	if isDir {
		for _, dir := range alwaysExcluded {
			if name == dir {
				return true
			}
		}
	}
	if !p.IncludeHidden && isHidden(name) {
		return true
	}
	return p.matchesExclude(path, name)
}

// Accept reports whether a file of the given size passes the policy.
func (p Policy) Accept(path string, size int64) bool {
	if p.Excluded(path, false) || inExcludedDir(path) {
		return false
	}
	return size <= p.maxFileSize()
}

func (p Policy) matchesExclude(path, name string) bool {
	for _, pattern := range p.ExcludePatterns {
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func isHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".") && name != ".."
}

// inExcludedDir reports whether any ancestor of path is always excluded.
func inExcludedDir(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		for _, dir := range alwaysExcluded {
			if part == dir {
				return true
			}
		}
	}
	return false
}

// Walk crawls root and calls fn for every regular file accepted by the
// policy. Unreadable directories yield no entries instead of failing the
// crawl, and symlinks are not followed. Walk stops early when ctx is
// cancelled or fn returns an error, returning that error.
func (p Policy) Walk(ctx context.Context, root string, fn func(FileInfo) error) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	maxSize := p.maxFileSize()
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			slog.Debug("crawl_unreadable",
				slog.String("path", path),
				slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() && path != absRoot {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != absRoot && p.Excluded(path, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if p.Excluded(path, false) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxSize {
			return nil
		}

		return fn(FileInfo{
			Path:     path,
			Name:     d.Name(),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Type:     Classify(path),
			Language: DetectLanguage(path),
		})
	})

	return err
}
