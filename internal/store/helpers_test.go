package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanfind/internal/embed"
)

// newTestStore opens a file-backed store under a temp dir.
func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), ".amanfind", "index.db")

	s, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dbPath
}

// axisVector returns a unit text vector pointing mostly along axis, tilted
// toward axis+1 by tilt.
func axisVector(axis int, tilt float32) *embed.TextVector {
	var v embed.TextVector
	v[axis] = 1
	v[(axis+1)%embed.TextDimensions] = tilt
	return &v
}

func imageAxis(axis int) *embed.ImageVector {
	var v embed.ImageVector
	v[axis] = 1
	return &v
}

func indexText(t *testing.T, s *Store, path string, vec *embed.TextVector) {
	t.Helper()
	require.NoError(t, s.Index(context.Background(), IndexParams{
		Path:      path,
		Type:      FileTypeText,
		Size:      100,
		ModTime:   time.Unix(1_700_000_000, 0),
		Embedding: vec,
	}))
}
