package embed

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

// ImageBackend encodes images and text into the shared 512-d space.
type ImageBackend interface {
	Backend
	// InputSize is the square side length EncodeImage expects.
	InputSize() int
	EncodeImage(ctx context.Context, img *RGBImage) ([]float32, error)
	EncodeText(ctx context.Context, text string) ([]float32, error)
}

// ImageLoader opens an image backend for modelPath.
type ImageLoader func(ctx context.Context, modelPath string) (ImageBackend, error)

// ImageOptions tune an ImageProvider.
type ImageOptions struct {
	// MaxDecode bounds concurrent decodes in EmbedImageBatch.
	MaxDecode    int
	MaxTextChars int
}

// ImageProvider is the cross-modal provider. Images and text queries land
// in the same space, so ImageSimilarity between them is meaningful.
type ImageProvider struct {
	loader ImageLoader
	opts   ImageOptions
	life   lifecycle[ImageBackend]
}

// NewImageProvider creates an unloaded provider.
func NewImageProvider(loader ImageLoader, opts ImageOptions) *ImageProvider {
	if opts.MaxDecode <= 0 {
		opts.MaxDecode = 4
	}
	if opts.MaxTextChars <= 0 {
		opts.MaxTextChars = DefaultMaxTextChars
	}
	return &ImageProvider{loader: loader, opts: opts}
}

// Load opens the model at modelPath, replacing any loaded backend.
func (p *ImageProvider) Load(ctx context.Context, modelPath string) error {
	if p.loader == nil {
		return amerrors.New(amerrors.ErrCodeModelLoad, "no backend loader configured", nil)
	}
	backend, err := p.loader(ctx, modelPath)
	if err != nil {
		return amerrors.Wrap(amerrors.ErrCodeModelLoad, err)
	}
	if err := p.life.install(backend, modelPath); err != nil {
		slog.Warn("failed to close previous image backend", slog.String("error", err.Error()))
	}
	slog.Info("image model loaded",
		slog.String("backend", string(backend.Kind())),
		slog.String("model", modelPath))
	return nil
}

func (p *ImageProvider) Unload() error { return p.life.unload() }

func (p *ImageProvider) Close() error { return p.Unload() }

func (p *ImageProvider) State() State { return p.life.state() }

func (p *ImageProvider) Info() ModelInfo { return p.life.info() }

// EmbedImage decodes and embeds the image file at path.
func (p *ImageProvider) EmbedImage(ctx context.Context, path string) (*ImageVector, error) {
	if p.State() == StateUnloaded {
		return nil, amerrors.New(amerrors.ErrCodeNotInitialized, "no image model loaded", nil)
	}
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	return p.encode(ctx, func(size int) *RGBImage { return resizeToRGB(img, size) })
}

// EmbedPixels embeds a raw 1, 3 or 4 channel pixel buffer.
func (p *ImageProvider) EmbedPixels(ctx context.Context, buf PixelBuffer) (*ImageVector, error) {
	rgb, err := buf.ToRGB()
	if err != nil {
		return nil, err
	}
	return p.encode(ctx, rgb.fit)
}

// EmbedText embeds a text query into the image space.
func (p *ImageProvider) EmbedText(ctx context.Context, text string) (*ImageVector, error) {
	if utf8.RuneCountInString(text) > p.opts.MaxTextChars {
		return nil, amerrors.Newf(amerrors.ErrCodeTextTooLong, "text exceeds %d characters", p.opts.MaxTextChars)
	}
	var vec *ImageVector
	err := p.life.with(func(b ImageBackend) error {
		raw, err := b.EncodeText(ctx, text)
		if err != nil {
			return inferenceError(ctx, err)
		}
		vec, err = toImageVector(raw, b.Kind())
		return err
	})
	return vec, err
}

// EmbedImageBatch embeds every path it can. Decoding runs concurrently,
// encoding runs one image at a time. The result is index-aligned with
// paths; failed entries are nil and only the success count is reported.
func (p *ImageProvider) EmbedImageBatch(ctx context.Context, paths []string) ([]*ImageVector, int, error) {
	if len(paths) > MaxBatchItems {
		return nil, 0, amerrors.Newf(amerrors.ErrCodeTooManyItems,
			"batch has %d items, limit is %d", len(paths), MaxBatchItems)
	}

	out := make([]*ImageVector, len(paths))
	count := 0
	start := time.Now()

	err := p.life.with(func(b ImageBackend) error {
		size := b.InputSize()
		decoded := make([]*RGBImage, len(paths))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.opts.MaxDecode)
		for i, path := range paths {
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				img, err := LoadImage(path)
				if err != nil {
					slog.Debug("skipping image", slog.String("path", path), slog.String("error", err.Error()))
					return nil
				}
				decoded[i] = resizeToRGB(img, size)
				return nil
			})
		}
		_ = g.Wait()

		for i, rgb := range decoded {
			if ctx.Err() != nil {
				return amerrors.New(amerrors.ErrCodeCancelled, "image batch cancelled", ctx.Err())
			}
			if rgb == nil {
				continue
			}
			raw, err := b.EncodeImage(ctx, rgb)
			if err != nil {
				slog.Debug("image encode failed", slog.String("path", paths[i]), slog.String("error", err.Error()))
				continue
			}
			if v, err := toImageVector(raw, b.Kind()); err == nil {
				out[i] = v
				count++
			}
		}
		return nil
	})
	if err != nil && amerrors.GetCode(err) != amerrors.ErrCodeCancelled {
		return nil, 0, err
	}

	slog.Debug("image batch embedded",
		slog.Int("requested", len(paths)),
		slog.Int("succeeded", count),
		slog.Duration("elapsed", time.Since(start)))
	return out, count, err
}

func (p *ImageProvider) encode(ctx context.Context, prepare func(size int) *RGBImage) (*ImageVector, error) {
	var vec *ImageVector
	err := p.life.with(func(b ImageBackend) error {
		raw, err := b.EncodeImage(ctx, prepare(b.InputSize()))
		if err != nil {
			return inferenceError(ctx, err)
		}
		vec, err = toImageVector(raw, b.Kind())
		return err
	})
	return vec, err
}

func toImageVector(raw []float32, kind ProviderType) (*ImageVector, error) {
	if len(raw) != ImageDimensions {
		return nil, amerrors.Newf(amerrors.ErrCodeInference,
			"backend returned %d dimensions, want %d", len(raw), ImageDimensions)
	}
	var v ImageVector
	copy(v[:], raw)
	if kind != ProviderStub {
		normalizeInPlace(v[:])
	}
	if !IsFinite(v[:]) {
		return nil, amerrors.New(amerrors.ErrCodeInference, "backend returned a non-finite vector", nil)
	}
	return &v, nil
}
