package embed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeTextBackend returns scripted vectors and counts calls.
type fakeTextBackend struct {
	kind   ProviderType
	vec    func(text string) []float32
	fail   map[string]bool
	calls  atomic.Int32
	closed atomic.Bool
}

func (f *fakeTextBackend) Kind() ProviderType { return f.kind }

func (f *fakeTextBackend) Infer(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.fail[text] {
		return nil, errors.New("backend exploded")
	}
	return f.vec(text), nil
}

func (f *fakeTextBackend) Close() error {
	f.closed.Store(true)
	return nil
}

func constantVector(dim int, value float32) func(string) []float32 {
	return func(string) []float32 {
		v := make([]float32, dim)
		for i := range v {
			v[i] = value
		}
		return v
	}
}

func loaderFor(b TextBackend) TextLoader {
	return func(context.Context, string) (TextBackend, error) { return b, nil }
}

func newStubProvider(t *testing.T) *TextProvider {
	t.Helper()
	p := NewTextProvider(StubTextLoader, TextOptions{})
	require.NoError(t, p.Load(context.Background(), ""))
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func newStubImageProvider(t *testing.T) *ImageProvider {
	t.Helper()
	p := NewImageProvider(StubImageLoader, ImageOptions{})
	require.NoError(t, p.Load(context.Background(), ""))
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func strPtr(s string) *string { return &s }
