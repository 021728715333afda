package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

// DefaultOpenAIModel supports shortened output via the dimensions parameter.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIOptions configure the OpenAI-compatible backend.
type OpenAIOptions struct {
	// BaseURL points at any OpenAI-compatible server; empty uses api.openai.com.
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   amerrors.RetryConfig
}

// OpenAIBackend embeds text through the /embeddings endpoint, requesting
// TextDimensions-sized output.
type OpenAIBackend struct {
	client  openai.Client
	model   string
	opts    OpenAIOptions
	breaker *amerrors.CircuitBreaker
}

// NewOpenAILoader returns a loader whose model reference is an embedding
// model ID. Load fails ModelNotFound if the server does not know the model.
func NewOpenAILoader(opts OpenAIOptions) TextLoader {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialDelay == 0 {
		opts.Retry = amerrors.DefaultRetryConfig()
	}
	opts.Retry.RetryIf = amerrors.IsRetryable

	return func(ctx context.Context, model string) (TextBackend, error) {
		if opts.APIKey == "" && opts.BaseURL == "" {
			return nil, amerrors.New(amerrors.ErrCodeModelLoad, "openai: missing API key", nil).
				WithSuggestion("export OPENAI_API_KEY or set embeddings.openai_base_url")
		}
		if model == "" {
			model = DefaultOpenAIModel
		}

		reqOpts := []option.RequestOption{
			option.WithRequestTimeout(opts.Timeout),
			option.WithMaxRetries(0),
		}
		if opts.APIKey != "" {
			reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
		}
		if opts.BaseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
		}

		b := &OpenAIBackend{
			client:  openai.NewClient(reqOpts...),
			model:   model,
			opts:    opts,
			breaker: amerrors.NewCircuitBreaker("openai"),
		}
		if _, err := b.client.Models.Get(ctx, model); err != nil {
			var apiErr *openai.Error
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
				return nil, amerrors.Newf(amerrors.ErrCodeModelNotFound, "openai model %q not found", model)
			}
			return nil, classifyOpenAIError(err)
		}
		return b, nil
	}
}

func (b *OpenAIBackend) Kind() ProviderType { return ProviderOpenAI }

// Infer embeds one text.
func (b *OpenAIBackend) Infer(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.request(ctx, openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)}, 1)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// InferBatch embeds texts in one request.
func (b *OpenAIBackend) InferBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return b.request(ctx, openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts}, len(texts))
}

func (b *OpenAIBackend) request(ctx context.Context, input openai.EmbeddingNewParamsInputUnion, n int) ([][]float32, error) {
	return amerrors.RetryWithResult(ctx, b.opts.Retry, func() ([][]float32, error) {
		return amerrors.CircuitExecute(b.breaker, func() ([][]float32, error) {
			resp, err := b.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
				Input:      input,
				Model:      openai.EmbeddingModel(b.model),
				Dimensions: openai.Int(TextDimensions),
			})
			if err != nil {
				return nil, classifyOpenAIError(err)
			}
			if len(resp.Data) != n {
				return nil, amerrors.Newf(amerrors.ErrCodeInference,
					"openai returned %d embeddings for %d inputs", len(resp.Data), n)
			}
			out := make([][]float32, n)
			for _, d := range resp.Data {
				if d.Index < 0 || int(d.Index) >= n {
					return nil, amerrors.Newf(amerrors.ErrCodeInference, "openai returned index %d out of range", d.Index)
				}
				v := make([]float32, len(d.Embedding))
				for j, x := range d.Embedding {
					v[j] = float32(x)
				}
				out[d.Index] = v
			}
			return out, nil
		})
	})
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (b *OpenAIBackend) Close() error { return nil }

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500:
			return amerrors.New(amerrors.ErrCodeNetworkUnavailable,
				fmt.Sprintf("openai returned %d", apiErr.StatusCode), err)
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return amerrors.New(amerrors.ErrCodeModelLoad, "openai rejected the API key", err)
		default:
			return amerrors.New(amerrors.ErrCodeInference,
				fmt.Sprintf("openai returned %d", apiErr.StatusCode), err)
		}
	}
	return classifyHTTPError(err)
}
