package llmclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/thruflo/orchcore/internal/logging"
)

// OllamaClient implements LLM against a local or remote Ollama server.
type OllamaClient struct {
	client      *api.Client
	model       string
	temperature float32
	numPredict  int
	logger      *logging.Logger
}

// OllamaOption configures an OllamaClient at construction time.
type OllamaOption func(*OllamaClient)

// WithTemperature overrides the default sampling temperature.
func WithTemperature(t float32) OllamaOption {
	return func(c *OllamaClient) { c.temperature = t }
}

// WithNumPredict overrides the default token budget.
func WithNumPredict(n int) OllamaOption {
	return func(c *OllamaClient) { c.numPredict = n }
}

// NewOllamaClient builds an OllamaClient for model, reading the server
// address from OLLAMA_HOST the same way api.ClientFromEnvironment does.
func NewOllamaClient(model string, opts ...OllamaOption) (*OllamaClient, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("llmclient: connect to ollama: %w", err)
	}
	c := &OllamaClient{
		client:      client,
		model:       model,
		temperature: 0.3,
		numPredict:  4096,
		logger:      logging.With("component", "llmclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete sends prompt as a single non-streaming generate request and
// returns the model's full response text.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	var sb strings.Builder
	stream := false
	req := &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": c.temperature,
			"num_predict": c.numPredict,
		},
	}

	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		c.logger.Error("ollama generate failed", "model", c.model, "error", err)
		return "", fmt.Errorf("llmclient: generate: %w", err)
	}
	return sb.String(), nil
}

var _ LLM = (*OllamaClient)(nil)
