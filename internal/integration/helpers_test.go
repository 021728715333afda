// Package integration exercises the indexer, store and search services
// together against real files on disk.
package integration

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanfind/internal/embed"
	"github.com/Aman-CERP/amanfind/internal/index"
	"github.com/Aman-CERP/amanfind/internal/store"
	"github.com/Aman-CERP/amanfind/internal/watcher"
)

// env is one project: a root directory, its store and providers.
type env struct {
	root   string
	dbPath string
	store  *store.Store
	text   *embed.TextProvider
	images *embed.ImageProvider
}

func newEnv(t *testing.T, files map[string]string) *env {
	t.Helper()
	e := &env{root: t.TempDir()}
	e.dbPath = filepath.Join(t.TempDir(), "index.db")
	for rel, content := range files {
		writeFile(t, filepath.Join(e.root, rel), content)
	}

	e.openStore(t)

	e.text = embed.NewTextProvider(embed.StubTextLoader, embed.TextOptions{})
	require.NoError(t, e.text.Load(context.Background(), ""))
	t.Cleanup(func() { _ = e.text.Close() })

	e.images = embed.NewImageProvider(embed.StubImageLoader, embed.ImageOptions{})
	require.NoError(t, e.images.Load(context.Background(), ""))
	t.Cleanup(func() { _ = e.images.Close() })
	return e
}

func (e *env) openStore(t *testing.T) {
	t.Helper()
	st, err := store.Open(e.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	e.store = st
}

func (e *env) path(rel string) string {
	return filepath.Join(e.root, filepath.FromSlash(rel))
}

// indexOnce crawls the root and returns the stats once the queue drains.
func (e *env) indexOnce(t *testing.T) index.Stats {
	t.Helper()
	ix := index.New(e.store, e.text, e.images, index.Config{Roots: []string{e.root}})
	done := make(chan index.Stats, 1)
	ix.OnComplete(func(s index.Stats) { done <- s })

	require.NoError(t, ix.Start(context.Background()))
	defer ix.Stop()

	select {
	case s := <-done:
		return s
	case <-time.After(10 * time.Second):
		t.Fatal("indexing did not complete")
		return index.Stats{}
	}
}

// startWatching runs a watching indexer until the test ends.
func (e *env) startWatching(t *testing.T) *index.Indexer {
	t.Helper()
	ix := index.New(e.store, e.text, e.images, index.Config{
		Roots:   []string{e.root},
		Watch:   true,
		Watcher: watcher.Options{Latency: 50 * time.Millisecond, PollInterval: 100 * time.Millisecond},
	})
	require.NoError(t, ix.Start(context.Background()))
	t.Cleanup(ix.Stop)
	require.Eventually(t, func() bool {
		return ix.Status() == index.StatusWatching
	}, 10*time.Second, 10*time.Millisecond)
	return ix
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writePNG(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func paths(results []*store.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Entity.Path
	}
	return out
}
