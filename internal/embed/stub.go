package embed

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"sync"
)

// StubTextBackend returns a pseudo-random unit vector seeded from a hash
// of the input. The same text always yields the same vector, which makes
// indexing and search reproducible in tests, but similarity between
// different texts carries no meaning.
type StubTextBackend struct {
	mu     sync.RWMutex
	closed bool
}

// NewStubTextBackend creates a stub text backend.
func NewStubTextBackend() *StubTextBackend {
	return &StubTextBackend{}
}

// StubTextLoader ignores the model path; the stub has nothing to load.
func StubTextLoader(context.Context, string) (TextBackend, error) {
	return NewStubTextBackend(), nil
}

func (s *StubTextBackend) Kind() ProviderType { return ProviderStub }

func (s *StubTextBackend) Infer(_ context.Context, text string) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errBackendClosed
	}
	v := make([]float32, TextDimensions)
	fillSeeded(v, hashSeed("text", []byte(text)))
	return v, nil
}

func (s *StubTextBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// StubImageBackend is the cross-modal counterpart of StubTextBackend.
// Images are seeded from their resized pixels, text from its bytes.
type StubImageBackend struct {
	mu     sync.RWMutex
	closed bool
}

// NewStubImageBackend creates a stub image backend.
func NewStubImageBackend() *StubImageBackend {
	return &StubImageBackend{}
}

// StubImageLoader ignores the model path.
func StubImageLoader(context.Context, string) (ImageBackend, error) {
	return NewStubImageBackend(), nil
}

func (s *StubImageBackend) Kind() ProviderType { return ProviderStub }

func (s *StubImageBackend) InputSize() int { return DefaultImageInputSize }

func (s *StubImageBackend) EncodeImage(_ context.Context, img *RGBImage) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errBackendClosed
	}
	v := make([]float32, ImageDimensions)
	fillSeeded(v, hashSeed("image", img.Pix))
	return v, nil
}

func (s *StubImageBackend) EncodeText(_ context.Context, text string) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errBackendClosed
	}
	v := make([]float32, ImageDimensions)
	fillSeeded(v, hashSeed("text", []byte(text)))
	return v, nil
}

func (s *StubImageBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func hashSeed(domain string, data []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(domain))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(data)
	return h.Sum64()
}

// fillSeeded writes a unit vector drawn from a PCG stream seeded with seed.
func fillSeeded(dst []float32, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := range dst {
		dst[i] = float32(rng.NormFloat64())
	}
	normalizeInPlace(dst)
}
