package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config at an empty temp dir so the developer's
// own ~/.config/amanfind does not leak into tests.
func isolate(t *testing.T) string {
	t.Helper()
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	return xdg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "stub", cfg.Embeddings.Provider)
	assert.Equal(t, int64(100*1024*1024), cfg.Indexer.MaxFileSize)
	assert.True(t, cfg.Indexer.Watch)
	assert.False(t, cfg.Indexer.IncludeHidden)
	assert.Contains(t, cfg.Indexer.ExcludePatterns, "node_modules")
	assert.NoError(t, cfg.Validate())
}

func TestLoad_DefaultsResolveAgainstDir(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{dir}, cfg.Indexer.Roots)
	assert.Equal(t, filepath.Join(dir, ".amanfind", "index.db"), cfg.Store.Path)
	assert.Equal(t, 200*time.Millisecond, cfg.WatchLatency())
	assert.Equal(t, time.Duration(0), cfg.InterBatchDelay())
}

func TestLoad_ProjectOverridesUser(t *testing.T) {
	// Given: a user config and a project config that disagree
	xdg := isolate(t)
	writeFile(t, filepath.Join(xdg, "amanfind", "config.yaml"), `
embeddings:
  provider: ollama
  model: nomic-embed-text
search:
  max_results: 5
`)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigName), `
embeddings:
  provider: stub
indexer:
  roots: [docs, src]
  exclude_patterns: ["*.log"]
  inter_batch_delay: 50ms
`)

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: project wins, user values it does not mention survive
	assert.Equal(t, "stub", cfg.Embeddings.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Equal(t, []string{filepath.Join(dir, "docs"), filepath.Join(dir, "src")}, cfg.Indexer.Roots)
	assert.Equal(t, 50*time.Millisecond, cfg.InterBatchDelay())

	// And: exclude patterns are appended to the defaults
	assert.Contains(t, cfg.Indexer.ExcludePatterns, "*.log")
	assert.Contains(t, cfg.Indexer.ExcludePatterns, ".git")
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	t.Setenv("AMANFIND_EMBEDDER", "openai")
	t.Setenv("AMANFIND_WATCH", "false")
	t.Setenv("AMANFIND_THREADS", "4")
	t.Setenv("AMANFIND_STORE_PATH", "custom.db")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	assert.False(t, cfg.Indexer.Watch)
	assert.Equal(t, 4, cfg.Embeddings.Threads)
	assert.Equal(t, filepath.Join(dir, "custom.db"), cfg.Store.Path)
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigName), "indexer: [not, a, map")

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "bert" }, "embeddings.provider"},
		{"unknown image provider", func(c *Config) { c.Images.Provider = "ollama" }, "images.provider"},
		{"negative threads", func(c *Config) { c.Embeddings.Threads = -1 }, "threads"},
		{"zero batch", func(c *Config) { c.Indexer.BatchSize = 0 }, "indexer.batch_size"},
		{"zero max size", func(c *Config) { c.Indexer.MaxFileSize = 0 }, "max_file_size"},
		{"bad duration", func(c *Config) { c.Indexer.WatchLatency = "soon" }, "watch_latency"},
		{"negative duration", func(c *Config) { c.Indexer.InterBatchDelay = "-1s" }, "inter_batch_delay"},
		{"bad glob", func(c *Config) { c.Indexer.ExcludePatterns = []string{"[a-"} }, "exclude pattern"},
		{"score range", func(c *Config) { c.Search.MinScore = 2 }, "min_score"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	cfg := NewConfig()
	cfg.Embeddings.Provider = "native"
	cfg.Images.Enabled = true
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectConfigName)))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "native", loaded.Embeddings.Provider)
	assert.True(t, loaded.Images.Enabled)
}
