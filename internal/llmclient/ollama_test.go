package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/orchcore/internal/logging"
)

func newTestOllamaClient(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	base, err := url.Parse(server.URL)
	require.NoError(t, err)

	return &OllamaClient{
		client:      api.NewClient(base, server.Client()),
		model:       "test-model",
		temperature: 0.3,
		numPredict:  4096,
		logger:      logging.New(),
	}
}

func TestOllamaClient_Complete_ConcatenatesStreamedChunks(t *testing.T) {
	t.Parallel()
	c := newTestOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		require.NoError(t, enc.Encode(api.GenerateResponse{Model: "test-model", Response: "hello "}))
		require.NoError(t, enc.Encode(api.GenerateResponse{Model: "test-model", Response: "world", Done: true}))
	})

	out, err := c.Complete(context.Background(), "say hi")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestOllamaClient_Complete_PropagatesServerError(t *testing.T) {
	t.Parallel()
	c := newTestOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "model not found"})
	})

	_, err := c.Complete(context.Background(), "say hi")
	assert.Error(t, err)
}
