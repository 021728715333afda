package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeV1Store creates a database at the first schema version with one row.
func writeV1Store(t *testing.T, path string, extra ...string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Exec(schemaVersionTable)
	require.NoError(t, err)
	for _, stmt := range migrations[0].stmts {
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}
	for _, stmt := range extra {
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}
	_, err = db.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (1, 0)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO files (path, name, type, size, mtime, indexed_at) VALUES ('/old/a.txt', 'a.txt', 'text', 5, 1, 1)`)
	require.NoError(t, err)
}

func appliedVersions(t *testing.T, s *Store) []int {
	t.Helper()
	rows, err := s.db.Query(`SELECT version FROM schema_version ORDER BY version`)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()
	var out []int
	for rows.Next() {
		var v int
		require.NoError(t, rows.Scan(&v))
		out = append(out, v)
	}
	return out
}

func TestMigrate_FreshStoreStampedDirectly(t *testing.T) {
	s, _ := newTestStore(t)

	// Then: only the latest version is recorded, no intermediate steps
	assert.Equal(t, []int{CurrentSchemaVersion}, appliedVersions(t, s))
}

func TestMigrate_UpgradesV1Store(t *testing.T) {
	// Given: a store written by the first schema
	path := filepath.Join(t.TempDir(), "index.db")
	writeV1Store(t, path)

	// When: opening it
	s, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// Then: it reaches the latest version with data intact and new columns usable
	assert.Equal(t, CurrentSchemaVersion, s.Version())
	assert.Equal(t, []int{1, 2, 3}, appliedVersions(t, s))

	got, err := s.Get(context.Background(), "/old/a.txt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(5), got.Size)

	require.NoError(t, s.UpdateImageEmbedding(context.Background(), "/old/a.txt", imageAxis(0)))
	last, err := s.LastRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestMigrate_ToleratesAlreadyAppliedColumn(t *testing.T) {
	// Given: a v1-stamped store that already has the v2 column
	path := filepath.Join(t.TempDir(), "index.db")
	writeV1Store(t, path, `ALTER TABLE files ADD COLUMN image_embedding BLOB`)

	// When
	s, err := Open(path)

	// Then: the duplicate column is treated as applied
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.Equal(t, CurrentSchemaVersion, s.Version())
}

func TestMigrate_ReopenIsNoOp(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()
	assert.Equal(t, []int{CurrentSchemaVersion}, appliedVersions(t, s2))
}

func TestMigrate_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaVersionTable)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (99, 0)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path)
	assert.Error(t, err)
}

func TestAlreadyApplied(t *testing.T) {
	assert.True(t, alreadyApplied(sqlError("duplicate column name: image_embedding")))
	assert.True(t, alreadyApplied(sqlError("index idx_files_type already exists")))
	assert.False(t, alreadyApplied(sqlError("no such table: files")))
}

type sqlError string

func (e sqlError) Error() string { return string(e) }
