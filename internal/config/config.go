// Package config loads amanfind configuration from defaults, the user
// config file, the project config file and AMANFIND_* environment
// variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is the config file format version written by WriteYAML.
const CurrentVersion = 1

// ProjectConfigName is the per-directory config file.
const ProjectConfigName = ".amanfind.yaml"

// Config is the complete amanfind configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Images     ImagesConfig     `yaml:"images" json:"images"`
	Indexer    IndexerConfig    `yaml:"indexer" json:"indexer"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// EmbeddingsConfig configures the 384-dimension text embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of stub, ollama, openai, native.
	Provider string `yaml:"provider" json:"provider"`
	// Model is the backend model name (ollama, openai).
	Model string `yaml:"model" json:"model"`
	// ModelPath is the model file loaded by the native backend.
	ModelPath string `yaml:"model_path" json:"model_path"`
	// ModelURL is where `amanfind model pull` downloads ModelPath from.
	ModelURL string `yaml:"model_url" json:"model_url"`
	// LibraryPath is the shared inference runtime used by the native backend.
	LibraryPath string `yaml:"library_path" json:"library_path"`
	Threads     int    `yaml:"threads" json:"threads"` // 0 = auto
	GPU         bool   `yaml:"gpu" json:"gpu"`
	BatchSize   int    `yaml:"batch_size" json:"batch_size"`
	CacheSize   int    `yaml:"cache_size" json:"cache_size"`

	OllamaHost    string `yaml:"ollama_host" json:"ollama_host"`
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`
	// OpenAIKeyEnv names the environment variable holding the API key.
	OpenAIKeyEnv string `yaml:"openai_key_env" json:"openai_key_env"`
	Timeout      string `yaml:"timeout" json:"timeout"`
}

// ImagesConfig configures the 512-dimension cross-modal provider.
type ImagesConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Provider    string `yaml:"provider" json:"provider"` // stub, native
	ModelPath   string `yaml:"model_path" json:"model_path"`
	LibraryPath string `yaml:"library_path" json:"library_path"`
	Threads     int    `yaml:"threads" json:"threads"`
	GPU         bool   `yaml:"gpu" json:"gpu"`
	BatchSize   int    `yaml:"batch_size" json:"batch_size"`
	// MaxDecode bounds concurrent image decodes in batch embedding.
	MaxDecode int `yaml:"max_decode" json:"max_decode"`
}

// IndexerConfig configures crawling and watching.
type IndexerConfig struct {
	Roots           []string `yaml:"roots" json:"roots"`
	ExcludePatterns []string `yaml:"exclude_patterns" json:"exclude_patterns"`
	IncludeHidden   bool     `yaml:"include_hidden" json:"include_hidden"`
	MaxFileSize     int64    `yaml:"max_file_size" json:"max_file_size"`
	MaxContentBytes int      `yaml:"max_content_bytes" json:"max_content_bytes"`
	BatchSize       int      `yaml:"batch_size" json:"batch_size"`
	InterBatchDelay string   `yaml:"inter_batch_delay" json:"inter_batch_delay"`
	Watch           bool     `yaml:"watch" json:"watch"`
	WatchLatency    string   `yaml:"watch_latency" json:"watch_latency"`
}

// StoreConfig configures the vector store location.
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	MaxResults int     `yaml:"max_results" json:"max_results"`
	MinScore   float64 `yaml:"min_score" json:"min_score"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
	Stderr    bool   `yaml:"stderr" json:"stderr"`
}

var defaultExcludePatterns = []string{
	".git",
	".amanfind",
	"node_modules",
	"__pycache__",
	"*.pyc",
	"*.swp",
	"*~",
	".DS_Store",
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Embeddings: EmbeddingsConfig{
			Provider:     "stub",
			Model:        "all-minilm",
			BatchSize:    32,
			CacheSize:    256,
			OllamaHost:   "http://localhost:11434",
			OpenAIKeyEnv: "OPENAI_API_KEY",
			Timeout:      "30s",
		},
		Images: ImagesConfig{
			Enabled:   false,
			Provider:  "stub",
			BatchSize: 8,
			MaxDecode: 4,
		},
		Indexer: IndexerConfig{
			ExcludePatterns: slices.Clone(defaultExcludePatterns),
			MaxFileSize:     100 * 1024 * 1024,
			MaxContentBytes: 8 * 1024,
			BatchSize:       32,
			InterBatchDelay: "0s",
			Watch:           true,
			WatchLatency:    "200ms",
		},
		Search: SearchConfig{
			MaxResults: 20,
			MinScore:   0,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns $XDG_CONFIG_HOME/amanfind/config.yaml,
// falling back to ~/.config/amanfind/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanfind", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanfind", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanfind", "config.yaml")
}

// Load builds the configuration for the project rooted at dir:
//  1. Hardcoded defaults
//  2. User config (~/.config/amanfind/config.yaml)
//  3. Project config (dir/.amanfind.yaml or .yml)
//  4. Environment variables (AMANFIND_*)
//
// Relative roots and store paths are resolved against dir.
func Load(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	for _, name := range []string{ProjectConfigName, ".amanfind.yml"} {
		path := filepath.Join(absDir, name)
		if fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths(absDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes path on top of the current values. Keys absent from
// the file keep their current value; exclude patterns are appended to the
// existing list instead of replacing it.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	prevExcludes := c.Indexer.ExcludePatterns
	c.Indexer.ExcludePatterns = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		c.Indexer.ExcludePatterns = prevExcludes
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	merged := slices.Clone(prevExcludes)
	for _, p := range c.Indexer.ExcludePatterns {
		if !slices.Contains(merged, p) {
			merged = append(merged, p)
		}
	}
	c.Indexer.ExcludePatterns = merged
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AMANFIND_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	// AMANFIND_EMBEDDER is an alias for AMANFIND_EMBEDDINGS_PROVIDER
	if v := os.Getenv("AMANFIND_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("AMANFIND_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("AMANFIND_MODEL_PATH"); v != "" {
		c.Embeddings.ModelPath = v
	}
	if v := os.Getenv("AMANFIND_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("AMANFIND_OPENAI_BASE_URL"); v != "" {
		c.Embeddings.OpenAIBaseURL = v
	}
	if v := os.Getenv("AMANFIND_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Embeddings.Threads = n
		}
	}
	if v := os.Getenv("AMANFIND_GPU"); v != "" {
		c.Embeddings.GPU = parseBool(v)
	}
	if v := os.Getenv("AMANFIND_IMAGES"); v != "" {
		c.Images.Enabled = parseBool(v)
	}
	if v := os.Getenv("AMANFIND_WATCH"); v != "" {
		c.Indexer.Watch = parseBool(v)
	}
	if v := os.Getenv("AMANFIND_MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Indexer.MaxFileSize = n
		}
	}
	if v := os.Getenv("AMANFIND_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("AMANFIND_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) resolvePaths(dir string) {
	if len(c.Indexer.Roots) == 0 {
		c.Indexer.Roots = []string{dir}
	}
	for i, root := range c.Indexer.Roots {
		c.Indexer.Roots[i] = absUnder(dir, expandHome(root))
	}

	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(dir, ".amanfind", "index.db")
	} else {
		c.Store.Path = absUnder(dir, expandHome(c.Store.Path))
	}
	if c.Embeddings.ModelPath != "" {
		c.Embeddings.ModelPath = absUnder(dir, expandHome(c.Embeddings.ModelPath))
	}
	if c.Images.ModelPath != "" {
		c.Images.ModelPath = absUnder(dir, expandHome(c.Images.ModelPath))
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	validText := []string{"stub", "ollama", "openai", "native"}
	if !slices.Contains(validText, strings.ToLower(c.Embeddings.Provider)) {
		return fmt.Errorf("embeddings.provider must be one of %s, got %q",
			strings.Join(validText, ", "), c.Embeddings.Provider)
	}
	validImage := []string{"stub", "native"}
	if !slices.Contains(validImage, strings.ToLower(c.Images.Provider)) {
		return fmt.Errorf("images.provider must be one of %s, got %q",
			strings.Join(validImage, ", "), c.Images.Provider)
	}

	if c.Embeddings.Threads < 0 || c.Images.Threads < 0 {
		return fmt.Errorf("threads must be non-negative (0 = auto)")
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Images.BatchSize <= 0 {
		return fmt.Errorf("images.batch_size must be positive, got %d", c.Images.BatchSize)
	}
	if c.Indexer.BatchSize <= 0 {
		return fmt.Errorf("indexer.batch_size must be positive, got %d", c.Indexer.BatchSize)
	}
	if c.Indexer.MaxFileSize <= 0 {
		return fmt.Errorf("indexer.max_file_size must be positive, got %d", c.Indexer.MaxFileSize)
	}
	if c.Indexer.MaxContentBytes <= 0 {
		return fmt.Errorf("indexer.max_content_bytes must be positive, got %d", c.Indexer.MaxContentBytes)
	}

	for name, value := range map[string]string{
		"indexer.inter_batch_delay": c.Indexer.InterBatchDelay,
		"indexer.watch_latency":     c.Indexer.WatchLatency,
		"embeddings.timeout":        c.Embeddings.Timeout,
	} {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	for _, p := range c.Indexer.ExcludePatterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
	}

	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Search.MinScore < -1 || c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be between -1 and 1, got %f", c.Search.MinScore)
	}

	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

// InterBatchDelay returns the parsed indexer pause between batches.
func (c *Config) InterBatchDelay() time.Duration {
	d, _ := parseDuration(c.Indexer.InterBatchDelay)
	return d
}

// WatchLatency returns the parsed watcher coalescing window.
func (c *Config) WatchLatency() time.Duration {
	d, _ := parseDuration(c.Indexer.WatchLatency)
	return d
}

// EmbeddingTimeout returns the parsed per-request timeout of remote backends.
func (c *Config) EmbeddingTimeout() time.Duration {
	d, _ := parseDuration(c.Embeddings.Timeout)
	return d
}

// WriteYAML writes the configuration to path, creating parent directories.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be non-negative, got %s", s)
	}
	return d, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func absUnder(dir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
