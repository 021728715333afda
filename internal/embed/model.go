package embed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

// ModelDownloadTimeout bounds a single download attempt.
const ModelDownloadTimeout = 30 * time.Minute

// ProgressFunc receives download progress; total is -1 when unknown.
type ProgressFunc func(downloaded, total int64)

// ModelManager fetches model files for the native backend.
type ModelManager struct {
	dir    string
	client *http.Client
	retry  amerrors.RetryConfig
}

// NewModelManager stores models under dir.
func NewModelManager(dir string) *ModelManager {
	return &ModelManager{
		dir:    dir,
		client: &http.Client{Timeout: ModelDownloadTimeout},
		retry:  amerrors.DefaultRetryConfig(),
	}
}

// DefaultModelsDir returns ~/.amanfind/models.
func DefaultModelsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amanfind", "models")
	}
	return filepath.Join(home, ".amanfind", "models")
}

// Dir returns the models directory.
func (m *ModelManager) Dir() string { return m.dir }

// Exists reports whether a non-empty model file named name is present.
func (m *ModelManager) Exists(name string) bool {
	info, err := os.Stat(filepath.Join(m.dir, name))
	return err == nil && info.Size() > 0
}

// Ensure returns the path of model name, downloading it from url first if
// it is missing. Concurrent processes serialize on a file lock and the
// loser finds the winner's file.
func (m *ModelManager) Ensure(ctx context.Context, name, url string, progress ProgressFunc) (string, error) {
	dest := filepath.Join(m.dir, name)
	if m.Exists(name) {
		return dest, nil
	}
	if url == "" {
		return "", amerrors.Newf(amerrors.ErrCodeModelNotFound, "model %s is missing and no download URL is configured", name).
			WithSuggestion("set embeddings.model_url")
	}

	lock := NewFileLock(m.dir)
	if err := lock.Lock(); err != nil {
		return "", amerrors.New(amerrors.ErrCodeModelDownload, "failed to acquire download lock", err)
	}
	defer func() { _ = lock.Unlock() }()

	if m.Exists(name) {
		return dest, nil
	}

	err := amerrors.Retry(ctx, m.retry, func() error {
		return m.download(ctx, url, dest, progress)
	})
	if err != nil {
		return "", amerrors.New(amerrors.ErrCodeModelDownload, fmt.Sprintf("failed to download %s", url), err)
	}
	slog.Info("model downloaded", slog.String("path", dest))
	return dest, nil
}

// download writes to dest.tmp and renames it into place on success.
func (m *ModelManager) download(ctx context.Context, url, dest string, progress ProgressFunc) error {
	tmp := dest + ".tmp"
	defer func() { _ = os.Remove(tmp) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "amanfind")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var src io.Reader = resp.Body
	if progress != nil {
		src = &progressReader{r: resp.Body, total: resp.ContentLength, fn: progress}
	}
	if _, err := io.Copy(f, src); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}

type progressReader struct {
	r     io.Reader
	total int64
	done  int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.fn(p.done, p.total)
	}
	return n, err
}
