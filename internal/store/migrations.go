package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// latestSchema creates a brand-new store at CurrentSchemaVersion in one step.
const latestSchema = `
CREATE TABLE IF NOT EXISTS files (
	path            TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	type            TEXT NOT NULL,
	size            INTEGER NOT NULL DEFAULT 0,
	mtime           INTEGER NOT NULL DEFAULT 0,
	indexed_at      INTEGER NOT NULL DEFAULT 0,
	embedding       BLOB,
	image_embedding BLOB
);
CREATE INDEX IF NOT EXISTS idx_files_type ON files(type);
` + runsSchema

const runsSchema = `
CREATE TABLE IF NOT EXISTS index_runs (
	id          TEXT PRIMARY KEY,
	roots       TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL DEFAULT 0,
	indexed     INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	total_bytes INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_index_runs_started ON index_runs(started_at);
`

// migration upgrades a store from version-1 to version. Statements must
// be safe to re-run: ALTER TABLE ADD COLUMN cannot be guarded with IF NOT
// EXISTS, so "duplicate column name" is treated as already applied.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create files",
		stmts: []string{`CREATE TABLE IF NOT EXISTS files (
			path       TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			type       TEXT NOT NULL,
			size       INTEGER NOT NULL DEFAULT 0,
			mtime      INTEGER NOT NULL DEFAULT 0,
			indexed_at INTEGER NOT NULL DEFAULT 0,
			embedding  BLOB
		)`},
	},
	{
		version: 2,
		name:    "add image embeddings",
		stmts:   []string{`ALTER TABLE files ADD COLUMN image_embedding BLOB`},
	},
	{
		version: 3,
		name:    "type index and run history",
		stmts:   []string{`CREATE INDEX IF NOT EXISTS idx_files_type ON files(type)`, runsSchema},
	},
}

const schemaVersionTable = `CREATE TABLE IF NOT EXISTS schema_version (
	version    INTEGER PRIMARY KEY,
	applied_at INTEGER NOT NULL
)`

// migrate brings db to CurrentSchemaVersion and returns the resulting version.
func migrate(ctx context.Context, db *sql.DB) (int, error) {
	if _, err := db.ExecContext(ctx, schemaVersionTable); err != nil {
		return 0, fmt.Errorf("failed to create schema_version: %w", err)
	}

	current, err := schemaVersion(ctx, db)
	if err != nil {
		return 0, err
	}
	if current > CurrentSchemaVersion {
		return current, fmt.Errorf("store schema v%d is newer than supported v%d", current, CurrentSchemaVersion)
	}

	fresh, err := isFresh(ctx, db)
	if err != nil {
		return 0, err
	}
	if fresh && current == 0 {
		if err := inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, latestSchema); err != nil {
				return err
			}
			return stamp(ctx, tx, CurrentSchemaVersion)
		}); err != nil {
			return 0, fmt.Errorf("failed to create schema: %w", err)
		}
		slog.Debug("store_schema_created", slog.Int("version", CurrentSchemaVersion))
		return CurrentSchemaVersion, nil
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := inTx(ctx, db, func(tx *sql.Tx) error {
			for _, stmt := range m.stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil && !alreadyApplied(err) {
					return err
				}
			}
			return stamp(ctx, tx, m.version)
		}); err != nil {
			return current, fmt.Errorf("failed to apply migration %d (%s): %w", m.version, m.name, err)
		}
		slog.Info("store_migrated", slog.Int("from", current), slog.Int("to", m.version), slog.String("name", m.name))
		current = m.version
	}
	return current, nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(v.Int64), nil
}

// isFresh reports whether the files table has never been created.
func isFresh(ctx context.Context, db *sql.DB) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'files'`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	return n == 0, nil
}

func stamp(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO schema_version (version, applied_at) VALUES (?, ?)`,
		version, time.Now().UnixNano())
	return err
}

func alreadyApplied(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column name") || strings.Contains(msg, "already exists")
}

func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
