package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

const (
	// DefaultMaxTextChars is the longest input Generate accepts, in runes.
	DefaultMaxTextChars = 8192

	// DefaultBatchSize is how many texts are sent to a batching backend at once.
	DefaultBatchSize = 32

	// MaxBatchItems caps a single GenerateBatch call.
	MaxBatchItems = 4096
)

// TextBackend produces raw 384-d embeddings.
type TextBackend interface {
	Backend
	Infer(ctx context.Context, text string) ([]float32, error)
}

// BatchTextBackend is implemented by backends that embed many texts per call.
type BatchTextBackend interface {
	TextBackend
	InferBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// TextLoader opens a backend for modelPath. It must fail with
// ErrCodeModelNotFound when the model does not exist.
type TextLoader func(ctx context.Context, modelPath string) (TextBackend, error)

// TextEmbedder is what query-time callers need from a text provider.
type TextEmbedder interface {
	Generate(ctx context.Context, text string) (*TextVector, Timing, error)
}

// Timing reports how long an inference took.
type Timing struct {
	Duration time.Duration
}

// TextOptions tune a TextProvider.
type TextOptions struct {
	MaxTextChars int
	BatchSize    int
}

// TextProvider is the 384-d text embedding provider. It starts Unloaded;
// Load installs a backend and Unload or Close releases it.
type TextProvider struct {
	loader TextLoader
	opts   TextOptions
	life   lifecycle[TextBackend]
}

var _ TextEmbedder = (*TextProvider)(nil)

// NewTextProvider creates an unloaded provider that opens backends with loader.
func NewTextProvider(loader TextLoader, opts TextOptions) *TextProvider {
	if opts.MaxTextChars <= 0 {
		opts.MaxTextChars = DefaultMaxTextChars
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &TextProvider{loader: loader, opts: opts}
}

// Load opens the model at modelPath, replacing any loaded backend.
// On failure the previous backend (if any) stays loaded.
func (p *TextProvider) Load(ctx context.Context, modelPath string) error {
	if p.loader == nil {
		return amerrors.New(amerrors.ErrCodeModelLoad, "no backend loader configured", nil)
	}
	backend, err := p.loader(ctx, modelPath)
	if err != nil {
		return amerrors.Wrap(amerrors.ErrCodeModelLoad, err)
	}
	if err := p.life.install(backend, modelPath); err != nil {
		slog.Warn("failed to close previous text backend", slog.String("error", err.Error()))
	}
	slog.Info("text model loaded",
		slog.String("backend", string(backend.Kind())),
		slog.String("model", modelPath))
	return nil
}

// Unload releases the backend. Unloading an unloaded provider is a no-op.
func (p *TextProvider) Unload() error {
	return p.life.unload()
}

// Close is Unload.
func (p *TextProvider) Close() error {
	return p.Unload()
}

// State reports whether a backend is loaded.
func (p *TextProvider) State() State {
	return p.life.state()
}

// Info describes the loaded model.
func (p *TextProvider) Info() ModelInfo {
	return p.life.info()
}

// MaxTextChars is the input cap in runes.
func (p *TextProvider) MaxTextChars() int {
	return p.opts.MaxTextChars
}

// Generate embeds one text.
func (p *TextProvider) Generate(ctx context.Context, text string) (*TextVector, Timing, error) {
	if n := utf8.RuneCountInString(text); n > p.opts.MaxTextChars {
		return nil, Timing{}, amerrors.Newf(amerrors.ErrCodeTextTooLong,
			"text has %d characters, limit is %d", n, p.opts.MaxTextChars)
	}

	var vec *TextVector
	start := time.Now()
	err := p.life.with(func(b TextBackend) error {
		raw, err := b.Infer(ctx, text)
		if err != nil {
			return inferenceError(ctx, err)
		}
		vec, err = toTextVector(raw, b.Kind())
		return err
	})
	if err != nil {
		return nil, Timing{}, err
	}
	return vec, Timing{Duration: time.Since(start)}, nil
}

// GenerateBatch embeds every non-nil text within the length cap. The
// result is index-aligned with texts; skipped or failed entries are nil.
// The count is the number of vectors produced. An error is returned only
// when nothing could be attempted: no model loaded, too many items, or a
// cancelled context.
func (p *TextProvider) GenerateBatch(ctx context.Context, texts []*string) ([]*TextVector, int, error) {
	if len(texts) > MaxBatchItems {
		return nil, 0, amerrors.Newf(amerrors.ErrCodeTooManyItems,
			"batch has %d items, limit is %d", len(texts), MaxBatchItems)
	}

	out := make([]*TextVector, len(texts))
	var idx []int
	var batch []string
	for i, t := range texts {
		if t == nil || utf8.RuneCountInString(*t) > p.opts.MaxTextChars {
			continue
		}
		idx = append(idx, i)
		batch = append(batch, *t)
	}

	count := 0
	err := p.life.with(func(b TextBackend) error {
		for start := 0; start < len(batch); start += p.opts.BatchSize {
			if ctx.Err() != nil {
				return amerrors.New(amerrors.ErrCodeCancelled, "batch cancelled", ctx.Err())
			}
			end := min(start+p.opts.BatchSize, len(batch))
			vecs := p.inferChunk(ctx, b, batch[start:end])
			for j, v := range vecs {
				if v != nil {
					out[idx[start+j]] = v
					count++
				}
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, amerrors.ErrCancelled) {
		return nil, 0, err
	}
	return out, count, err
}

// inferChunk embeds texts, preferring one batched call and falling back
// to one call per text so a single bad input cannot sink the chunk.
func (p *TextProvider) inferChunk(ctx context.Context, b TextBackend, texts []string) []*TextVector {
	vecs := make([]*TextVector, len(texts))

	if bb, ok := b.(BatchTextBackend); ok && len(texts) > 1 {
		raws, err := bb.InferBatch(ctx, texts)
		if err == nil && len(raws) == len(texts) {
			for i, raw := range raws {
				if v, err := toTextVector(raw, b.Kind()); err == nil {
					vecs[i] = v
				}
			}
			return vecs
		}
		if err != nil {
			slog.Debug("batch inference failed, retrying per item", slog.String("error", err.Error()))
		}
	}

	for i, t := range texts {
		raw, err := b.Infer(ctx, t)
		if err != nil {
			slog.Debug("inference failed", slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		if v, err := toTextVector(raw, b.Kind()); err == nil {
			vecs[i] = v
		}
	}
	return vecs
}

// toTextVector copies raw into a TextVector, normalizing output from
// every backend except the stub.
func toTextVector(raw []float32, kind ProviderType) (*TextVector, error) {
	if len(raw) != TextDimensions {
		return nil, amerrors.Newf(amerrors.ErrCodeInference,
			"backend returned %d dimensions, want %d", len(raw), TextDimensions)
	}
	var v TextVector
	copy(v[:], raw)
	if kind != ProviderStub {
		normalizeInPlace(v[:])
	}
	if !IsFinite(v[:]) {
		return nil, amerrors.New(amerrors.ErrCodeInference, "backend returned a non-finite vector", nil)
	}
	return &v, nil
}

func inferenceError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return amerrors.New(amerrors.ErrCodeCancelled, "inference cancelled", ctx.Err())
	}
	switch amerrors.GetCode(err) {
	case amerrors.ErrCodeInference, amerrors.ErrCodeMemory, amerrors.ErrCodeTextTooLong, amerrors.ErrCodeCancelled:
		return err
	}
	return amerrors.New(amerrors.ErrCodeInference, fmt.Sprintf("inference failed: %v", err), err)
}
