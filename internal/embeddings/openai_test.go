package embeddings_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/askd/internal/embeddings"
)

type openAIData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

func newOpenAIServer(t *testing.T, data []openAIData) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": data}))
	}))
}

func TestOpenAIServiceValidation(t *testing.T) {
	_, err := embeddings.NewOpenAIService(embeddings.OpenAIConfig{Model: "m"})
	require.ErrorIs(t, err, embeddings.ErrInvalidConfig)

	_, err = embeddings.NewOpenAIService(embeddings.OpenAIConfig{BaseURL: "http://localhost:1"})
	require.ErrorIs(t, err, embeddings.ErrInvalidConfig)
}

func TestOpenAIEmbedDocumentsOrdersByIndex(t *testing.T) {
	srv := newOpenAIServer(t, []openAIData{
		{Embedding: []float32{0.3, 0.4}, Index: 1},
		{Embedding: []float32{0.1, 0.2}, Index: 0},
	})
	defer srv.Close()

	svc, err := embeddings.NewOpenAIService(embeddings.OpenAIConfig{
		BaseURL: srv.URL,
		Model:   "text-embedding-3-small",
		APIKey:  "test-key",
	})
	require.NoError(t, err)

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
	assert.Equal(t, []float32{0.3, 0.4}, vectors[1])
}

func TestOpenAIEmbedQuery(t *testing.T) {
	srv := newOpenAIServer(t, []openAIData{{Embedding: []float32{0.7, 0.8}, Index: 0}})
	defer srv.Close()

	svc, err := embeddings.NewOpenAIService(embeddings.OpenAIConfig{
		BaseURL: srv.URL,
		Model:   "text-embedding-3-small",
		APIKey:  "test-key",
	})
	require.NoError(t, err)

	vector, err := svc.EmbedQuery(context.Background(), "query text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.7, 0.8}, vector)
}

func TestOpenAIServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	svc, err := embeddings.NewOpenAIService(embeddings.OpenAIConfig{
		BaseURL: srv.URL,
		Model:   "text-embedding-3-small",
	})
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "query")
	require.ErrorIs(t, err, embeddings.ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "429")
}
