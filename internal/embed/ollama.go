package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"
	// DefaultOllamaModel produces 384-d vectors.
	DefaultOllamaModel = "all-minilm"

	ollamaPoolSize = 4
)

// OllamaOptions configure the Ollama backend.
type OllamaOptions struct {
	Host    string
	Timeout time.Duration
	Retry   amerrors.RetryConfig
}

type ollamaModelList struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaBackend embeds text through a local Ollama server.
type OllamaBackend struct {
	opts      OllamaOptions
	model     string
	client    *http.Client
	transport *http.Transport
	breaker   *amerrors.CircuitBreaker
}

// NewOllamaLoader returns a loader whose model reference is an Ollama
// model name. Load fails ModelNotFound if the server does not have it.
func NewOllamaLoader(opts OllamaOptions) TextLoader {
	if opts.Host == "" {
		opts.Host = DefaultOllamaHost
	}
	opts.Host = strings.TrimRight(opts.Host, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialDelay == 0 {
		opts.Retry = amerrors.DefaultRetryConfig()
	}
	opts.Retry.RetryIf = amerrors.IsRetryable

	return func(ctx context.Context, model string) (TextBackend, error) {
		if model == "" {
			model = DefaultOllamaModel
		}
		transport := &http.Transport{
			MaxIdleConns:        ollamaPoolSize,
			MaxIdleConnsPerHost: ollamaPoolSize,
			IdleConnTimeout:     10 * time.Second,
		}
		b := &OllamaBackend{
			opts:      opts,
			model:     model,
			client:    &http.Client{Transport: transport},
			transport: transport,
			breaker:   amerrors.NewCircuitBreaker("ollama"),
		}
		if err := b.checkModel(ctx); err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
		return b, nil
	}
}

func (b *OllamaBackend) Kind() ProviderType { return ProviderOllama }

// checkModel lists the server's models and looks for b.model, accepting
// a missing ":latest" tag on either side.
func (b *OllamaBackend) checkModel(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.opts.Host+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return classifyHTTPError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return amerrors.Newf(amerrors.ErrCodeModelLoad, "ollama returned %d: %s", resp.StatusCode, body)
	}

	var list ollamaModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return amerrors.New(amerrors.ErrCodeModelLoad, "failed to decode ollama model list", err)
	}
	want := strings.TrimSuffix(b.model, ":latest")
	for _, m := range list.Models {
		if strings.TrimSuffix(m.Name, ":latest") == want {
			return nil
		}
	}
	return amerrors.Newf(amerrors.ErrCodeModelNotFound, "ollama model %q not found", b.model).
		WithSuggestion(fmt.Sprintf("run 'ollama pull %s'", b.model))
}

// Infer embeds one text.
func (b *OllamaBackend) Infer(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.InferBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// InferBatch embeds texts in one request, retrying transient failures.
func (b *OllamaBackend) InferBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return amerrors.RetryWithResult(ctx, b.opts.Retry, func() ([][]float32, error) {
		return amerrors.CircuitExecute(b.breaker, func() ([][]float32, error) {
			return b.embed(ctx, texts)
		})
	})
}

func (b *OllamaBackend) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	body, err := json.Marshal(ollamaEmbedRequest{Model: b.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.opts.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, classifyHTTPError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		code := amerrors.ErrCodeInference
		if resp.StatusCode >= 500 {
			code = amerrors.ErrCodeNetworkUnavailable
		}
		return nil, amerrors.Newf(code, "ollama embed returned %d: %s", resp.StatusCode, msg)
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInference, "failed to decode ollama response", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, amerrors.Newf(amerrors.ErrCodeInference,
			"ollama returned %d embeddings for %d inputs", len(out.Embeddings), len(texts))
	}
	return toFloat32s(out.Embeddings), nil
}

// Close drops pooled connections.
func (b *OllamaBackend) Close() error {
	b.transport.CloseIdleConnections()
	return nil
}

// classifyHTTPError maps transport failures onto retryable network codes.
func classifyHTTPError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return amerrors.New(amerrors.ErrCodeNetworkTimeout, "embedding request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return amerrors.New(amerrors.ErrCodeCancelled, "embedding request cancelled", err)
	}
	return amerrors.New(amerrors.ErrCodeNetworkUnavailable, "embedding server unreachable", err)
}

func toFloat32s(in [][]float64) [][]float32 {
	out := make([][]float32, len(in))
	for i, row := range in {
		v := make([]float32, len(row))
		for j, x := range row {
			v[j] = float32(x)
		}
		out[i] = v
	}
	return out
}
