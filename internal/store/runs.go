package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// RecordRun inserts or updates r. A run without an ID is assigned a new
// UUID, so callers can record a run at start and again at finish.
func (s *Store) RecordRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_runs (id, roots, started_at, finished_at, indexed, skipped, failed, total_bytes, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			indexed = excluded.indexed,
			skipped = excluded.skipped,
			failed = excluded.failed,
			total_bytes = excluded.total_bytes,
			status = excluded.status`,
		r.ID, strings.Join(r.Roots, string(filepath.ListSeparator)),
		unixNano(r.StartedAt), unixNano(r.FinishedAt),
		r.Indexed, r.Skipped, r.Failed, r.TotalBytes, r.Status)
	if err != nil {
		return storeError("record index run", err).WithDetail("run_id", r.ID)
	}
	return nil
}

// LastRun returns the most recently started run, or nil if none exist.
func (s *Store) LastRun(ctx context.Context) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}

	var (
		r                 Run
		roots             string
		started, finished int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, roots, started_at, finished_at, indexed, skipped, failed, total_bytes, status
		FROM index_runs ORDER BY started_at DESC LIMIT 1`).
		Scan(&r.ID, &roots, &started, &finished, &r.Indexed, &r.Skipped, &r.Failed, &r.TotalBytes, &r.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("read last index run", err)
	}
	if roots != "" {
		r.Roots = strings.Split(roots, string(filepath.ListSeparator))
	}
	r.StartedAt = fromUnixNano(started)
	r.FinishedAt = fromUnixNano(finished)
	return &r, nil
}
