package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/amanfind/internal/embed"
	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

// lockTimeout bounds how long Open waits for another process to finish
// migrating the same store.
const lockTimeout = 10 * time.Second

// Store is the SQLite-backed vector store. It is safe for concurrent use;
// writers are serialized by the single pooled connection and mu.
type Store struct {
	mu      sync.RWMutex
	db      *sql.DB
	path    string
	version int
	closed  bool
}

// Open creates or opens the store at path and migrates it to
// CurrentSchemaVersion. An empty path opens an in-memory store.
func Open(path string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storeError("create store directory", err).WithDetail("dir", dir)
		}

		fl := flock.New(path + ".lock")
		locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
		if err != nil || !locked {
			return nil, storeError("lock store", err).
				WithDetail("path", path).
				WithSuggestion("another amanfind process may be migrating this store; retry shortly")
		}
		defer func() { _ = fl.Unlock() }()

		if err := checkIntegrity(path); err != nil {
			slog.Warn("store_corrupted", slog.String("path", path), slog.String("error", err.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, amerrors.New(amerrors.ErrCodeCorruptStore,
					fmt.Sprintf("store at %s is corrupted and cannot be removed", path), removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("store_cleared", slog.String("path", path), slog.String("reason", "corruption detected, reindex required"))
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storeError("open database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores most DSN parameters.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, storeError("set pragma", err).WithDetail("pragma", pragma)
		}
	}

	version, err := migrate(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, storeError("migrate store", err).WithDetail("path", path)
	}

	slog.Debug("store_opened", slog.String("path", path), slog.Int("version", version))
	return &Store{db: db, path: path, version: version}, nil
}

// checkIntegrity returns nil for a missing or healthy database file.
func checkIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func storeError(op string, err error) *amerrors.Error {
	return amerrors.New(amerrors.ErrCodeStore, "failed to "+op, err)
}

var errClosed = amerrors.New(amerrors.ErrCodeStore, "store is closed", nil)

// Path returns the database file path, empty for in-memory stores.
func (s *Store) Path() string { return s.path }

// Version returns the schema version the store was migrated to.
func (s *Store) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Index inserts or replaces the row for p.Path.
func (s *Store) Index(ctx context.Context, p IndexParams) error {
	if p.Path == "" {
		return amerrors.New(amerrors.ErrCodeInvalidInput, "path is required", nil)
	}
	if p.Name == "" {
		p.Name = filepath.Base(p.Path)
	}
	if p.Type == "" {
		p.Type = FileTypeUnknown
	}
	if err := checkFinite(p.Path, p.Embedding, p.ImageEmbedding); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (path, name, type, size, mtime, indexed_at, embedding, image_embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			size = excluded.size,
			mtime = excluded.mtime,
			indexed_at = excluded.indexed_at,
			embedding = excluded.embedding,
			image_embedding = excluded.image_embedding`,
		p.Path, p.Name, string(p.Type), p.Size, unixNano(p.ModTime), time.Now().UnixNano(),
		textBlob(p.Embedding), imageBlob(p.ImageEmbedding))
	if err != nil {
		return storeError("index file", err).WithDetail("path", p.Path)
	}
	return nil
}

// UpdateEmbedding replaces the text embedding of an existing row. A nil
// vector clears it. Unknown paths fail NotFound.
func (s *Store) UpdateEmbedding(ctx context.Context, path string, vec *embed.TextVector) error {
	if err := checkFinite(path, vec, nil); err != nil {
		return err
	}
	return s.updateBlob(ctx, "embedding", path, textBlob(vec))
}

// UpdateImageEmbedding replaces the image embedding of an existing row.
func (s *Store) UpdateImageEmbedding(ctx context.Context, path string, vec *embed.ImageVector) error {
	if err := checkFinite(path, nil, vec); err != nil {
		return err
	}
	return s.updateBlob(ctx, "image_embedding", path, imageBlob(vec))
}

// checkFinite rejects vectors holding NaN or Inf components.
func checkFinite(path string, text *embed.TextVector, image *embed.ImageVector) error {
	if (text != nil && !embed.IsFinite(text[:])) || (image != nil && !embed.IsFinite(image[:])) {
		return amerrors.New(amerrors.ErrCodeInvalidInput, "embedding has non-finite components", nil).
			WithDetail("path", path)
	}
	return nil
}

func (s *Store) updateBlob(ctx context.Context, column, path string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET `+column+` = ?, indexed_at = ? WHERE path = ?`,
		blob, time.Now().UnixNano(), path)
	if err != nil {
		return storeError("update "+column, err).WithDetail("path", path)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return amerrors.Newf(amerrors.ErrCodeNotFound, "file is not indexed: %s", path)
	}
	return nil
}

// Delete removes the row for path. Deleting an unknown path is a no-op.
func (s *Store) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return storeError("delete file", err).WithDetail("path", path)
	}
	return nil
}

// DeletePrefix removes dir itself and every row under it, and returns the
// number of rows removed. Matching is on whole path components: deleting
// /a/b never touches /a/bc.
func (s *Store) DeletePrefix(ctx context.Context, dir string) (int64, error) {
	exact, prefix := normalizePrefix(dir)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM files WHERE path = ? OR substr(path, 1, ?) = ?`,
		exact, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return 0, storeError("delete directory", err).WithDetail("dir", dir)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// normalizePrefix returns the cleaned directory and the string every
// descendant path starts with.
func normalizePrefix(dir string) (exact, prefix string) {
	exact = filepath.Clean(dir)
	sep := string(filepath.Separator)
	if strings.HasSuffix(exact, sep) {
		return exact, exact
	}
	return exact, exact + sep
}

// IsUpToDate reports whether path is indexed with a stored modification
// time at or after mtime.
func (s *Store) IsUpToDate(ctx context.Context, path string, mtime time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, errClosed
	}

	var stored int64
	err := s.db.QueryRowContext(ctx, `SELECT mtime FROM files WHERE path = ?`, path).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeError("check file", err).WithDetail("path", path)
	}
	return stored >= unixNano(mtime), nil
}

const entityColumns = `path, name, type, size, mtime, indexed_at, embedding, image_embedding`

// Get returns the entity for path, or nil if it is not indexed.
func (s *Store) Get(ctx context.Context, path string) (*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM files WHERE path = ?`, path)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("get file", err).WithDetail("path", path)
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*Entity, error) {
	var (
		e                 Entity
		typ               string
		mtime, indexedAt  int64
		textRaw, imageRaw []byte
	)
	if err := row.Scan(&e.Path, &e.Name, &typ, &e.Size, &mtime, &indexedAt, &textRaw, &imageRaw); err != nil {
		return nil, err
	}
	e.Type = ParseFileType(typ)
	e.ModTime = fromUnixNano(mtime)
	e.IndexedAt = fromUnixNano(indexedAt)
	if v := embed.DecodeTextVector(textRaw); v != nil {
		e.Embedding, e.HasEmbedding = v, true
	}
	if v := embed.DecodeImageVector(imageRaw); v != nil {
		e.ImageEmbedding, e.HasImageEmbedding = v, true
	}
	return &e, nil
}

// Count returns the number of indexed files.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.queryScalar(ctx, `SELECT COUNT(*) FROM files`, &n); err != nil {
		return 0, storeError("count files", err)
	}
	return n, nil
}

// TotalSize returns the summed size of every indexed file in bytes.
func (s *Store) TotalSize(ctx context.Context) (int64, error) {
	var n int64
	if err := s.queryScalar(ctx, `SELECT COALESCE(SUM(size), 0) FROM files`, &n); err != nil {
		return 0, storeError("sum file sizes", err)
	}
	return n, nil
}

func (s *Store) queryScalar(ctx context.Context, query string, dest any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return s.db.QueryRowContext(ctx, query).Scan(dest)
}

// CountByType returns the number of files of each type present.
func (s *Store) CountByType(ctx context.Context) (map[FileType]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM files GROUP BY type`)
	if err != nil {
		return nil, storeError("count by type", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[FileType]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, storeError("count by type", err)
		}
		counts[ParseFileType(typ)] += n
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("count by type", err)
	}
	return counts, nil
}

// EmbeddingStats counts rows carrying a valid text or image embedding.
func (s *Store) EmbeddingStats(ctx context.Context) (EmbeddingStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return EmbeddingStats{}, errClosed
	}

	var st EmbeddingStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(length(embedding) = ?), 0),
		       COALESCE(SUM(length(image_embedding) = ?), 0)
		FROM files`,
		embed.TextDimensions*4, embed.ImageDimensions*4).Scan(&st.Total, &st.WithText, &st.WithImage)
	if err != nil {
		return EmbeddingStats{}, storeError("count embeddings", err)
	}
	return st, nil
}

// Clear removes every indexed file. Run history is kept.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM files`); err != nil {
		return storeError("clear store", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database. It is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func textBlob(v *embed.TextVector) []byte {
	if v == nil {
		return nil
	}
	return embed.EncodeVector(v[:])
}

func imageBlob(v *embed.ImageVector) []byte {
	if v == nil {
		return nil
	}
	return embed.EncodeVector(v[:])
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
