//go:build darwin || linux

package embed

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

// The native backend loads an inference runtime shared library at run
// time (no cgo) and calls this C ABI:
//
//	void*       afe_model_load(const char* path, int32_t threads, bool gpu);
//	void        afe_model_free(void* model);
//	int32_t     afe_embed_text(void* model, const char* text, float* out, int32_t dim);
//	int32_t     afe_embed_image(void* model, const uint8_t* rgb, int32_t w, int32_t h, float* out, int32_t dim);
//	int32_t     afe_input_size(void* model);
//	const char* afe_last_error(void);
//
// Embed calls return 0 on success, 2 when the runtime ran out of memory,
// 3 when the text exceeds the model context, and any other value on failure.
const (
	nativeOK          = 0
	nativeOutOfMemory = 2
	nativeTooLong     = 3
)

// NativeOptions configure the shared-library backend.
type NativeOptions struct {
	// LibraryPath is the runtime library; empty uses DefaultNativeLibrary.
	LibraryPath string
	// Threads is the inference thread count; 0 uses every CPU.
	Threads int
	GPU     bool
}

// DefaultNativeLibrary is the runtime library name for this platform.
func DefaultNativeLibrary() string {
	if runtime.GOOS == "darwin" {
		return "libamanfind_embed.dylib"
	}
	return "libamanfind_embed.so"
}

type nativeLib struct {
	handle     uintptr
	modelLoad  func(path string, threads int32, gpu bool) uintptr
	modelFree  func(model uintptr)
	embedText  func(model uintptr, text string, out *float32, dim int32) int32
	embedImage func(model uintptr, rgb *uint8, w, h int32, out *float32, dim int32) int32
	inputSize  func(model uintptr) int32
	lastError  func() string
}

func openNativeLib(path string) (*nativeLib, error) {
	if path == "" {
		path = DefaultNativeLibrary()
	}
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeModelLoad,
			fmt.Sprintf("failed to open inference runtime %s", path), err).
			WithSuggestion("set embeddings.library_path to the runtime library")
	}
	lib := &nativeLib{handle: handle}
	purego.RegisterLibFunc(&lib.modelLoad, handle, "afe_model_load")
	purego.RegisterLibFunc(&lib.modelFree, handle, "afe_model_free")
	purego.RegisterLibFunc(&lib.embedText, handle, "afe_embed_text")
	purego.RegisterLibFunc(&lib.embedImage, handle, "afe_embed_image")
	purego.RegisterLibFunc(&lib.inputSize, handle, "afe_input_size")
	purego.RegisterLibFunc(&lib.lastError, handle, "afe_last_error")
	return lib, nil
}

func (l *nativeLib) close() {
	_ = purego.Dlclose(l.handle)
}

func (l *nativeLib) statusError(status int32) error {
	msg := l.lastError()
	switch status {
	case nativeOutOfMemory:
		return amerrors.Newf(amerrors.ErrCodeMemory, "inference runtime out of memory: %s", msg)
	case nativeTooLong:
		return amerrors.Newf(amerrors.ErrCodeTextTooLong, "input exceeds model context: %s", msg)
	default:
		return amerrors.Newf(amerrors.ErrCodeInference, "inference failed (status %d): %s", status, msg)
	}
}

// nativeModel is one loaded model. The runtime is not reentrant, so every
// call is serialized.
type nativeModel struct {
	mu    sync.Mutex
	lib   *nativeLib
	model uintptr
}

func loadNativeModel(opts NativeOptions, modelPath string) (*nativeModel, error) {
	if err := requireFile(modelPath); err != nil {
		return nil, err
	}
	lib, err := openNativeLib(opts.LibraryPath)
	if err != nil {
		return nil, err
	}
	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	model := lib.modelLoad(modelPath, int32(threads), opts.GPU)
	if model == 0 {
		msg := lib.lastError()
		lib.close()
		return nil, amerrors.Newf(amerrors.ErrCodeModelLoad, "failed to load model %s: %s", modelPath, msg)
	}
	return &nativeModel{lib: lib, model: model}, nil
}

func (m *nativeModel) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model != 0 {
		m.lib.modelFree(m.model)
		m.model = 0
		m.lib.close()
	}
	return nil
}

// NativeTextBackend runs a 384-d text model in-process.
type NativeTextBackend struct {
	*nativeModel
}

// NewNativeTextLoader returns a loader that fails ModelNotFound when the
// model file is missing.
func NewNativeTextLoader(opts NativeOptions) TextLoader {
	return func(_ context.Context, modelPath string) (TextBackend, error) {
		m, err := loadNativeModel(opts, modelPath)
		if err != nil {
			return nil, err
		}
		return &NativeTextBackend{m}, nil
	}
}

func (b *NativeTextBackend) Kind() ProviderType { return ProviderNative }

func (b *NativeTextBackend) Infer(_ context.Context, text string) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model == 0 {
		return nil, errBackendClosed
	}
	out := make([]float32, TextDimensions)
	if status := b.lib.embedText(b.model, text, &out[0], TextDimensions); status != nativeOK {
		return nil, b.lib.statusError(status)
	}
	return out, nil
}

func (b *NativeTextBackend) Close() error { return b.close() }

// NativeImageBackend runs a 512-d cross-modal model in-process.
type NativeImageBackend struct {
	*nativeModel
	size int
}

// NewNativeImageLoader returns a loader for cross-modal models.
func NewNativeImageLoader(opts NativeOptions) ImageLoader {
	return func(_ context.Context, modelPath string) (ImageBackend, error) {
		m, err := loadNativeModel(opts, modelPath)
		if err != nil {
			return nil, err
		}
		size := int(m.lib.inputSize(m.model))
		if size <= 0 {
			size = DefaultImageInputSize
		}
		return &NativeImageBackend{nativeModel: m, size: size}, nil
	}
}

func (b *NativeImageBackend) Kind() ProviderType { return ProviderNative }

func (b *NativeImageBackend) InputSize() int { return b.size }

func (b *NativeImageBackend) EncodeImage(_ context.Context, img *RGBImage) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model == 0 {
		return nil, errBackendClosed
	}
	if len(img.Pix) < img.Width*img.Height*3 || len(img.Pix) == 0 {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "empty pixel buffer", nil)
	}
	out := make([]float32, ImageDimensions)
	status := b.lib.embedImage(b.model, &img.Pix[0], int32(img.Width), int32(img.Height), &out[0], ImageDimensions)
	if status != nativeOK {
		return nil, b.lib.statusError(status)
	}
	return out, nil
}

func (b *NativeImageBackend) EncodeText(_ context.Context, text string) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model == 0 {
		return nil, errBackendClosed
	}
	out := make([]float32, ImageDimensions)
	if status := b.lib.embedText(b.model, text, &out[0], ImageDimensions); status != nativeOK {
		return nil, b.lib.statusError(status)
	}
	return out, nil
}

func (b *NativeImageBackend) Close() error { return b.close() }
