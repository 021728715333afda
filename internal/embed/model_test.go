package embed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

func TestModelManager_EnsureDownloadsOnce(t *testing.T) {
	// Given: a server holding model bytes
	payload := []byte("fake-model-weights")
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	m := NewModelManager(filepath.Join(t.TempDir(), "models"))
	m.retry = fastRetry()

	// When: ensuring twice
	var seen int64
	path, err := m.Ensure(context.Background(), "text.bin", srv.URL+"/text.bin", func(done, _ int64) { seen = done })
	require.NoError(t, err)
	again, err := m.Ensure(context.Background(), "text.bin", srv.URL+"/text.bin", nil)
	require.NoError(t, err)

	// Then: one request, file in place, no temp file left behind
	assert.Equal(t, path, again)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, int64(len(payload)), seen)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.NoFileExists(t, path+".tmp")
	assert.True(t, m.Exists("text.bin"))
}

func TestModelManager_EnsureWithoutURL(t *testing.T) {
	m := NewModelManager(t.TempDir())

	_, err := m.Ensure(context.Background(), "missing.bin", "", nil)

	assert.ErrorIs(t, err, amerrors.ErrModelNotFound)
}

func TestModelManager_EnsureRetriesThenFails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := NewModelManager(t.TempDir())
	m.retry = fastRetry()

	_, err := m.Ensure(context.Background(), "x.bin", srv.URL, nil)

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeModelDownload, amerrors.GetCode(err))
	assert.Equal(t, int32(3), hits.Load())
	assert.False(t, m.Exists("x.bin"))
}

func TestFileLock_ExcludesSecondHolder(t *testing.T) {
	dir := t.TempDir()
	first := NewFileLock(dir)
	second := NewFileLock(dir)

	require.NoError(t, first.Lock())
	ok, err := second.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Unlock())
	ok, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Unlock())
	require.NoError(t, second.Unlock())
	assert.Equal(t, filepath.Join(dir, ".download.lock"), first.Path())
}
