package store

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanfind/internal/embed"
	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

func TestStore_FreshStoreIsAtLatestVersion(t *testing.T) {
	s, _ := newTestStore(t)

	assert.Equal(t, CurrentSchemaVersion, s.Version())
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_InMemory(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	indexText(t, s, "/mem/a.txt", axisVector(0, 0))
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_RoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// Given: an entity with both embeddings
	var vec embed.TextVector
	for i := range vec {
		vec[i] = float32(i) / 1000
	}
	mtime := time.Unix(1_700_000_123, 456_000_000)
	before := time.Now()

	// When: indexing and fetching it
	require.NoError(t, s.Index(ctx, IndexParams{
		Path:           "/docs/notes.md",
		Type:           FileTypeDocument,
		Size:           4096,
		ModTime:        mtime,
		Embedding:      &vec,
		ImageEmbedding: imageAxis(3),
	}))
	got, err := s.Get(ctx, "/docs/notes.md")
	require.NoError(t, err)
	require.NotNil(t, got)

	// Then: metadata and vectors survive unchanged
	assert.Equal(t, "notes.md", got.Name)
	assert.Equal(t, FileTypeDocument, got.Type)
	assert.Equal(t, int64(4096), got.Size)
	assert.True(t, got.ModTime.Equal(mtime))
	assert.False(t, got.IndexedAt.Before(before.Add(-time.Second)))
	require.True(t, got.HasEmbedding)
	for i := range vec {
		assert.InDelta(t, vec[i], got.Embedding[i], 1e-7)
	}
	require.True(t, got.HasImageEmbedding)
	assert.Equal(t, *imageAxis(3), *got.ImageEmbedding)
}

func TestStore_MetadataOnlyRow(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Index(ctx, IndexParams{Path: "/music/song.mp3", Type: FileTypeAudio, Size: 9}))

	got, err := s.Get(ctx, "/music/song.mp3")
	require.NoError(t, err)
	assert.False(t, got.HasEmbedding)
	assert.Nil(t, got.Embedding)
	assert.False(t, got.HasImageEmbedding)

	results, err := s.Search(ctx, axisVector(0, 0), 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_IndexRequiresPath(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.Index(context.Background(), IndexParams{})
	assert.ErrorIs(t, err, amerrors.ErrInvalidInput)
}

func TestStore_ReindexIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	mtime := time.Unix(1_700_000_000, 0)

	// Given: a file indexed twice with the same mtime
	for range 2 {
		require.NoError(t, s.Index(ctx, IndexParams{Path: "/x/a.go", Type: FileTypeCode, Size: 10, ModTime: mtime}))
	}

	// Then: one row, up to date at that mtime and any earlier one
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := s.IsUpToDate(ctx, "/x/a.go", mtime)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsUpToDate(ctx, "/x/a.go", mtime.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, ok, "older observed mtimes count as up to date")

	ok, err = s.IsUpToDate(ctx, "/x/a.go", mtime.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.IsUpToDate(ctx, "/x/missing.go", mtime)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_UpsertReplacesFields(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	indexText(t, s, "/x/a.txt", axisVector(0, 0))
	require.NoError(t, s.Index(ctx, IndexParams{Path: "/x/a.txt", Type: FileTypeText, Size: 7}))

	got, err := s.Get(ctx, "/x/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Size)
	assert.False(t, got.HasEmbedding)
}

func TestStore_UpdateEmbedding(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Index(ctx, IndexParams{Path: "/p/pic.png", Type: FileTypeImage}))

	require.NoError(t, s.UpdateEmbedding(ctx, "/p/pic.png", axisVector(5, 0)))
	require.NoError(t, s.UpdateImageEmbedding(ctx, "/p/pic.png", imageAxis(7)))

	got, err := s.Get(ctx, "/p/pic.png")
	require.NoError(t, err)
	assert.True(t, got.HasEmbedding)
	assert.True(t, got.HasImageEmbedding)

	require.NoError(t, s.UpdateEmbedding(ctx, "/p/pic.png", nil))
	got, err = s.Get(ctx, "/p/pic.png")
	require.NoError(t, err)
	assert.False(t, got.HasEmbedding)

	err = s.UpdateEmbedding(ctx, "/p/none.png", axisVector(1, 0))
	assert.ErrorIs(t, err, amerrors.ErrNotFound)
}

func TestStore_LegacyBlobReadsAsNoEmbedding(t *testing.T) {
	s, dbPath := newTestStore(t)
	ctx := context.Background()
	indexText(t, s, "/legacy/a.txt", axisVector(0, 0))
	require.NoError(t, s.Close())

	// Given: a row whose blob has the wrong length (an older 256-d model)
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE files SET embedding = ? WHERE path = ?`, make([]byte, 256*4), "/legacy/a.txt")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// When: reopening and reading
	s, err = Open(dbPath)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	got, err := s.Get(ctx, "/legacy/a.txt")

	// Then: no error, no embedding, and search skips it
	require.NoError(t, err)
	assert.False(t, got.HasEmbedding)
	results, err := s.Search(ctx, axisVector(0, 0), 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	stats, err := s.EmbeddingStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, EmbeddingStats{Total: 1}, stats)
}

func TestStore_Delete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	indexText(t, s, "/x/a.txt", axisVector(0, 0))

	require.NoError(t, s.Delete(ctx, "/x/a.txt"))
	require.NoError(t, s.Delete(ctx, "/x/a.txt"))

	got, err := s.Get(ctx, "/x/a.txt")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_DeletePrefixRespectsComponents(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// Given: rows under /a/b, a sibling /a/bc, and /a/b itself
	for _, p := range []string{"/a/b", "/a/b/x", "/a/b/deep/y", "/a/bc/x", "/a/bc", "/a/c"} {
		indexText(t, s, p, axisVector(0, 0))
	}

	// When: deleting the directory /a/b (trailing slash is ignored)
	n, err := s.DeletePrefix(ctx, "/a/b/")
	require.NoError(t, err)

	// Then: only /a/b and its descendants are gone
	assert.Equal(t, int64(3), n)
	for _, p := range []string{"/a/bc/x", "/a/bc", "/a/c"} {
		got, err := s.Get(ctx, p)
		require.NoError(t, err)
		assert.NotNil(t, got, p)
	}
	got, err := s.Get(ctx, "/a/b/x")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_CountsAndClear(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	indexText(t, s, "/x/a.txt", axisVector(0, 0))
	indexText(t, s, "/x/b.txt", axisVector(1, 0))
	require.NoError(t, s.Index(ctx, IndexParams{Path: "/x/c.zip", Type: FileTypeArchive, Size: 50}))

	total, err := s.TotalSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(250), total)

	byType, err := s.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[FileType]int{FileTypeText: 2, FileTypeArchive: 1}, byType)

	stats, err := s.EmbeddingStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, EmbeddingStats{Total: 3, WithText: 2}, stats)

	require.NoError(t, s.Clear(ctx))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	total, err = s.TotalSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestStore_ClosedStoreFails(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Count(context.Background())
	assert.ErrorIs(t, err, amerrors.ErrStore)
	err = s.Index(context.Background(), IndexParams{Path: "/x"})
	assert.ErrorIs(t, err, amerrors.ErrStore)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	s, dbPath := newTestStore(t)
	indexText(t, s, "/keep/a.txt", axisVector(2, 0))
	require.NoError(t, s.Close())

	s2, err := Open(dbPath)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	got, err := s2.Get(context.Background(), "/keep/a.txt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.HasEmbedding)
}

func TestStore_CorruptFileIsRecreated(t *testing.T) {
	dbPath := t.TempDir() + "/index.db"
	require.NoError(t, os.WriteFile(dbPath, bytes.Repeat([]byte("not sqlite"), 512), 0o644))

	s, err := Open(dbPath)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.Equal(t, CurrentSchemaVersion, s.Version())
}

func TestStore_Runs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	last, err := s.LastRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	// Given: a run recorded at start and again at finish
	started := time.Unix(1_700_000_000, 0)
	run := &Run{Roots: []string{"/a", "/b"}, StartedAt: started, Status: "running"}
	require.NoError(t, s.RecordRun(ctx, run))
	require.NotEmpty(t, run.ID)
	id := run.ID

	run.FinishedAt = started.Add(time.Minute)
	run.Indexed, run.Skipped, run.Failed, run.TotalBytes = 10, 2, 1, 1234
	run.Status = "completed"
	require.NoError(t, s.RecordRun(ctx, run))

	older := &Run{StartedAt: started.Add(-time.Hour), Status: "completed"}
	require.NoError(t, s.RecordRun(ctx, older))

	// Then: the latest started run is returned with its final counters
	last, err = s.LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, id, last.ID)
	assert.Equal(t, []string{"/a", "/b"}, last.Roots)
	assert.Equal(t, 10, last.Indexed)
	assert.Equal(t, int64(1234), last.TotalBytes)
	assert.Equal(t, "completed", last.Status)
	assert.True(t, last.FinishedAt.Equal(run.FinishedAt))
}
