//go:build !(darwin || linux)

package embed

import (
	"context"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

// NativeOptions configure the shared-library backend.
type NativeOptions struct {
	LibraryPath string
	Threads     int
	GPU         bool
}

// DefaultNativeLibrary is empty where the native backend is unavailable.
func DefaultNativeLibrary() string { return "" }

func errNativeUnsupported() error {
	return amerrors.New(amerrors.ErrCodeModelLoad, "native backend is not supported on this platform", nil).
		WithSuggestion("use the ollama or openai provider")
}

// NewNativeTextLoader checks the model file, then reports the platform limitation.
func NewNativeTextLoader(NativeOptions) TextLoader {
	return func(_ context.Context, modelPath string) (TextBackend, error) {
		if err := requireFile(modelPath); err != nil {
			return nil, err
		}
		return nil, errNativeUnsupported()
	}
}

// NewNativeImageLoader checks the model file, then reports the platform limitation.
func NewNativeImageLoader(NativeOptions) ImageLoader {
	return func(_ context.Context, modelPath string) (ImageBackend, error) {
		if err := requireFile(modelPath); err != nil {
			return nil, err
		}
		return nil, errNativeUnsupported()
	}
}
