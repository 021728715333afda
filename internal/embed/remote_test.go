package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

func fastRetry() amerrors.RetryConfig {
	return amerrors.RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func floats(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// ollamaServer fakes /api/tags and /api/embed. failFirst makes the first
// embed calls return 503.
func ollamaServer(t *testing.T, models []string, failFirst int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var embedCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			var list ollamaModelList
			for _, m := range models {
				list.Models = append(list.Models, struct {
					Name string `json:"name"`
				}{Name: m})
			}
			_ = json.NewEncoder(w).Encode(list)
		case "/api/embed":
			if embedCalls.Add(1) <= failFirst {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			var req struct {
				Input any `json:"input"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			n := 1
			if arr, ok := req.Input.([]any); ok {
				n = len(arr)
			}
			resp := ollamaEmbedResponse{}
			for i := 0; i < n; i++ {
				resp.Embeddings = append(resp.Embeddings, floats(TextDimensions, float64(i+1)))
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &embedCalls
}

func TestOllama_GenerateNormalizes(t *testing.T) {
	// Given: a server that has the model under its :latest tag
	srv, _ := ollamaServer(t, []string{"all-minilm:latest"}, 0)
	p := NewTextProvider(NewOllamaLoader(OllamaOptions{Host: srv.URL, Retry: fastRetry()}), TextOptions{})

	// When
	require.NoError(t, p.Load(context.Background(), "all-minilm"))
	vec, _, err := p.Generate(context.Background(), "hello")

	// Then
	require.NoError(t, err)
	assert.InDelta(t, 1.0, Norm(vec[:]), 1e-4)
	assert.Equal(t, ProviderOllama, p.Info().Kind)
}

func TestOllama_MissingModel(t *testing.T) {
	srv, _ := ollamaServer(t, []string{"nomic-embed-text"}, 0)
	p := NewTextProvider(NewOllamaLoader(OllamaOptions{Host: srv.URL}), TextOptions{})

	err := p.Load(context.Background(), "all-minilm")

	assert.ErrorIs(t, err, amerrors.ErrModelNotFound)
	assert.Equal(t, StateUnloaded, p.State())
}

func TestOllama_RetriesTransientFailures(t *testing.T) {
	srv, calls := ollamaServer(t, []string{"all-minilm"}, 2)
	p := NewTextProvider(NewOllamaLoader(OllamaOptions{Host: srv.URL, Retry: fastRetry()}), TextOptions{})
	require.NoError(t, p.Load(context.Background(), ""))

	_, _, err := p.Generate(context.Background(), "retry me")

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOllama_BatchUsesOneRequest(t *testing.T) {
	srv, calls := ollamaServer(t, []string{"all-minilm"}, 0)
	p := NewTextProvider(NewOllamaLoader(OllamaOptions{Host: srv.URL, Retry: fastRetry()}), TextOptions{})
	require.NoError(t, p.Load(context.Background(), ""))

	vecs, n, err := p.GenerateBatch(context.Background(), []*string{strPtr("a"), strPtr("b"), strPtr("c")})

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, vecs, 3)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOllama_Unreachable(t *testing.T) {
	srv, _ := ollamaServer(t, nil, 0)
	host := srv.URL
	srv.Close()

	p := NewTextProvider(NewOllamaLoader(OllamaOptions{Host: host, Timeout: time.Second}), TextOptions{})
	err := p.Load(context.Background(), "")

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeNetworkUnavailable, amerrors.GetCode(err))
}

func openAIServer(t *testing.T, known string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(r.URL.Path, "/models/"):
			id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			if id != known {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error","code":"model_not_found"}}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": id, "object": "model", "created": 0, "owned_by": "test",
			})
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			var req struct {
				Input any `json:"input"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			n := 1
			if arr, ok := req.Input.([]any); ok {
				n = len(arr)
			}
			data := make([]map[string]any, 0, n)
			// Reverse order to exercise index placement.
			for i := n - 1; i >= 0; i-- {
				data = append(data, map[string]any{
					"object": "embedding", "index": i, "embedding": floats(TextDimensions, float64(i+1)),
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"object": "list", "data": data, "model": known,
				"usage": map[string]any{"prompt_tokens": 1, "total_tokens": 1},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAI_GenerateBatch(t *testing.T) {
	srv := openAIServer(t, DefaultOpenAIModel)
	p, err := OpenTextProvider(context.Background(), TextSettings{
		Provider:      ProviderOpenAI,
		OpenAIBaseURL: srv.URL + "/v1/",
		OpenAIKey:     "test-key",
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	vecs, n, err := p.GenerateBatch(context.Background(), []*string{strPtr("x"), strPtr("y")})

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, v := range vecs {
		require.NotNil(t, v)
		assert.InDelta(t, 1.0, Norm(v[:]), 1e-4)
	}
}

func TestOpenAI_UnknownModel(t *testing.T) {
	srv := openAIServer(t, DefaultOpenAIModel)
	_, err := OpenTextProvider(context.Background(), TextSettings{
		Provider:      ProviderOpenAI,
		Model:         "text-embedding-nope",
		OpenAIBaseURL: srv.URL + "/v1/",
		OpenAIKey:     "test-key",
	})
	assert.ErrorIs(t, err, amerrors.ErrModelNotFound)
}

func TestOpenAI_MissingKey(t *testing.T) {
	_, err := OpenTextProvider(context.Background(), TextSettings{Provider: ProviderOpenAI})
	assert.ErrorIs(t, err, amerrors.ErrModelLoad)
}
