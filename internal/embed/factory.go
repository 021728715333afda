package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

// ProviderType names a backend implementation.
type ProviderType string

const (
	// ProviderStub is the deterministic hash-seeded backend.
	ProviderStub ProviderType = "stub"
	// ProviderOllama calls a local Ollama server.
	ProviderOllama ProviderType = "ollama"
	// ProviderOpenAI calls an OpenAI-compatible embeddings endpoint.
	ProviderOpenAI ProviderType = "openai"
	// ProviderNative runs a model in-process through a shared library.
	ProviderNative ProviderType = "native"
)

var errBackendClosed = amerrors.New(amerrors.ErrCodeNotInitialized, "backend is closed", nil)

// ParseProvider converts a config string into a ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderStub, ProviderOllama, ProviderOpenAI, ProviderNative:
		return p, nil
	case "":
		return ProviderStub, nil
	default:
		return "", amerrors.Newf(amerrors.ErrCodeConfigInvalid, "unknown embedding provider %q", s)
	}
}

// TextSettings selects and configures a text backend.
type TextSettings struct {
	Provider ProviderType
	// Model is the backend model name; for native it is ignored.
	Model string
	// ModelPath is the model file for native; remote backends use it as
	// the model name when set.
	ModelPath   string
	LibraryPath string
	Threads     int
	GPU         bool
	BatchSize   int
	CacheSize   int

	OllamaHost    string
	OpenAIBaseURL string
	OpenAIKey     string
	Timeout       time.Duration
}

// NewTextLoader returns the loader for s.Provider.
func NewTextLoader(s TextSettings) (TextLoader, error) {
	switch s.Provider {
	case ProviderStub, "":
		return StubTextLoader, nil
	case ProviderOllama:
		return NewOllamaLoader(OllamaOptions{Host: s.OllamaHost, Timeout: s.Timeout}), nil
	case ProviderOpenAI:
		return NewOpenAILoader(OpenAIOptions{BaseURL: s.OpenAIBaseURL, APIKey: s.OpenAIKey, Timeout: s.Timeout}), nil
	case ProviderNative:
		return NewNativeTextLoader(NativeOptions{LibraryPath: s.LibraryPath, Threads: s.Threads, GPU: s.GPU}), nil
	default:
		return nil, amerrors.Newf(amerrors.ErrCodeConfigInvalid, "unknown embedding provider %q", s.Provider)
	}
}

// modelRef is what Load is called with: the file for native, the model
// name for remote backends.
func (s TextSettings) modelRef() string {
	switch s.Provider {
	case ProviderNative:
		return s.ModelPath
	case ProviderOllama, ProviderOpenAI:
		if s.ModelPath != "" {
			return s.ModelPath
		}
		return s.Model
	default:
		return ""
	}
}

// OpenTextProvider creates a text provider and loads its model.
func OpenTextProvider(ctx context.Context, s TextSettings) (*TextProvider, error) {
	loader, err := NewTextLoader(s)
	if err != nil {
		return nil, err
	}
	p := NewTextProvider(loader, TextOptions{BatchSize: s.BatchSize})
	if err := p.Load(ctx, s.modelRef()); err != nil {
		return nil, err
	}
	return p, nil
}

// ImageSettings selects and configures an image backend.
type ImageSettings struct {
	Provider    ProviderType
	ModelPath   string
	LibraryPath string
	Threads     int
	GPU         bool
	MaxDecode   int
}

// NewImageLoader returns the loader for s.Provider.
func NewImageLoader(s ImageSettings) (ImageLoader, error) {
	switch s.Provider {
	case ProviderStub, "":
		return StubImageLoader, nil
	case ProviderNative:
		return NewNativeImageLoader(NativeOptions{LibraryPath: s.LibraryPath, Threads: s.Threads, GPU: s.GPU}), nil
	default:
		return nil, amerrors.Newf(amerrors.ErrCodeConfigInvalid, "image provider %q is not supported", s.Provider)
	}
}

// OpenImageProvider creates an image provider and loads its model.
func OpenImageProvider(ctx context.Context, s ImageSettings) (*ImageProvider, error) {
	loader, err := NewImageLoader(s)
	if err != nil {
		return nil, err
	}
	p := NewImageProvider(loader, ImageOptions{MaxDecode: s.MaxDecode})
	if err := p.Load(ctx, s.ModelPath); err != nil {
		return nil, err
	}
	return p, nil
}

// requireFile fails ModelNotFound unless path names an existing regular file.
func requireFile(path string) error {
	if path == "" {
		return amerrors.New(amerrors.ErrCodeModelNotFound, "no model path configured", nil).
			WithSuggestion("set embeddings.model_path or run 'amanfind model pull'")
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return amerrors.New(amerrors.ErrCodeModelNotFound, fmt.Sprintf("model file not found: %s", path), err).
			WithDetail("path", path)
	}
	return nil
}
