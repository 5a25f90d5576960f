package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name      string
		cfg       ProviderConfig
		wantError bool
		wantDim   int
	}{
		{
			name:    "tei provider with valid config",
			cfg:     ProviderConfig{Provider: "tei", BaseURL: "http://localhost:8080", Model: "BAAI/bge-small-en-v1.5"},
			wantDim: 384,
		},
		{
			name:      "tei provider without base URL",
			cfg:       ProviderConfig{Provider: "tei", Model: "BAAI/bge-small-en-v1.5"},
			wantError: true,
		},
		{
			name:    "openai provider",
			cfg:     ProviderConfig{Provider: "openai", APIKey: "sk-test", Model: "text-embedding-3-small"},
			wantDim: 1536,
		},
		{
			name:    "openai provider with explicit dimension",
			cfg:     ProviderConfig{Provider: "openai", BaseURL: "http://localhost:9999/v1", Model: "custom", Dimension: 256},
			wantDim: 256,
		},
		{
			name:      "openai provider without credentials",
			cfg:       ProviderConfig{Provider: "openai", Model: "text-embedding-3-small"},
			wantError: true,
		},
		{
			name:    "hash provider uses default model dimension",
			cfg:     ProviderConfig{Provider: "hash"},
			wantDim: 384,
		},
		{
			name:    "hash provider with dimension",
			cfg:     ProviderConfig{Provider: "hash", Dimension: 16},
			wantDim: 16,
		},
		{
			name:      "unknown provider",
			cfg:       ProviderConfig{Provider: "unknown"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.cfg)
			if tt.wantError {
				assert.Error(t, err)
				assert.Nil(t, provider)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDim, provider.Dimension())
			assert.NoError(t, provider.Close())
		})
	}
}

func TestDetectDimensionFromModel(t *testing.T) {
	assert.Equal(t, 384, detectDimensionFromModel("sentence-transformers/all-MiniLM-L6-v2"))
	assert.Equal(t, 768, detectDimensionFromModel("BAAI/bge-base-en-v1.5"))
	assert.Equal(t, 768, detectDimensionFromModel("nomic-embed-text-base"))
	assert.Equal(t, 3072, detectDimensionFromModel("text-embedding-3-large"))
	assert.Equal(t, 384, detectDimensionFromModel("something-unknown"))
}

func TestTEIProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var n int
		switch in := req["inputs"].(type) {
		case string:
			n = 1
		case []any:
			n = len(in)
		}
		out := make([][]float32, n)
		for i := range out {
			out[i] = []float32{float32(i), 1, 2}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer server.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: server.URL + "/", Dimension: 3})
	require.NoError(t, err)

	vectors, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1, 2}, {1, 1, 2}}, vectors)

	v, err := p.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 2}, v)
}

func TestTEIProvider_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: server.URL, Dimension: 3})
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "q")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "503")
}

func TestOpenAIProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		// Items deliberately out of order.
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "test-model",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.5, 0.5]},
				{"object": "embedding", "index": 0, "embedding": [1, 0]}
			],
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer server.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: server.URL + "/v1", APIKey: "test", Model: "test-model", Dimension: 2})
	require.NoError(t, err)

	vectors, err := p.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0.5, 0.5}}, vectors)
}

func TestOpenAIProvider_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: server.URL + "/v1", APIKey: "bad", Model: "m"})
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "q")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}
