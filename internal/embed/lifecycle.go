package embed

import (
	"sync"
	"time"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

// State is the lifecycle state of a provider.
type State int

const (
	StateUnloaded State = iota
	StateLoaded
)

func (s State) String() string {
	if s == StateLoaded {
		return "loaded"
	}
	return "unloaded"
}

// Backend is the part shared by every text and image backend.
type Backend interface {
	// Kind identifies the backend implementation.
	Kind() ProviderType
	// Close releases the model and any native resources.
	Close() error
}

// ModelInfo describes what a provider currently has loaded.
type ModelInfo struct {
	State     State        `json:"state"`
	Kind      ProviderType `json:"kind,omitempty"`
	ModelPath string       `json:"model_path,omitempty"`
	LoadedAt  time.Time    `json:"loaded_at,omitzero"`
}

// loaded is the Loaded(handle) state. A provider with a nil *loaded is
// Unloaded; there is no separate flag to keep in sync.
type loaded[B Backend] struct {
	backend   B
	modelPath string
	since     time.Time
}

// lifecycle owns the current backend. Calls into the backend hold the
// read lock, so Load and Unload wait for in-flight inference to finish
// before closing the old backend.
type lifecycle[B Backend] struct {
	mu  sync.RWMutex
	cur *loaded[B]
}

// install makes b the current backend and closes the one it replaces.
func (l *lifecycle[B]) install(b B, modelPath string) error {
	l.mu.Lock()
	prev := l.cur
	l.cur = &loaded[B]{backend: b, modelPath: modelPath, since: time.Now()}
	l.mu.Unlock()

	if prev != nil {
		return prev.backend.Close()
	}
	return nil
}

func (l *lifecycle[B]) unload() error {
	l.mu.Lock()
	prev := l.cur
	l.cur = nil
	l.mu.Unlock()

	if prev != nil {
		return prev.backend.Close()
	}
	return nil
}

// with runs fn against the loaded backend, or fails NotInitialized.
func (l *lifecycle[B]) with(fn func(b B) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.cur == nil {
		return amerrors.New(amerrors.ErrCodeNotInitialized, "no model loaded", nil).
			WithSuggestion("load a model before generating embeddings")
	}
	return fn(l.cur.backend)
}

func (l *lifecycle[B]) state() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.cur == nil {
		return StateUnloaded
	}
	return StateLoaded
}

func (l *lifecycle[B]) info() ModelInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.cur == nil {
		return ModelInfo{State: StateUnloaded}
	}
	return ModelInfo{
		State:     StateLoaded,
		Kind:      l.cur.backend.Kind(),
		ModelPath: l.cur.modelPath,
		LoadedAt:  l.cur.since,
	}
}
