package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// OllamaService generates embeddings through the Ollama API.
type OllamaService struct {
	client *api.Client
	model  string

	// taskPrefixes enables search_document:/search_query: prefixes for
	// models (nomic-embed-text and friends) that require them.
	taskPrefixes bool
}

// NewOllamaService creates an Ollama-backed embedding service. An empty host
// falls back to the OLLAMA_HOST environment discovery.
func NewOllamaService(host, model string, taskPrefixes bool) (*OllamaService, error) {
	hostURL := envconfig.Host()
	if host != "" {
		parsed, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = parsed
	}

	return &OllamaService{
		client:       api.NewClient(hostURL, http.DefaultClient),
		model:        model,
		taskPrefixes: taskPrefixes,
	}, nil
}

// Embed returns one vector per input text, in order.
func (s *OllamaService) Embed(ctx context.Context, texts []string, intent Intent) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	input := texts
	if s.taskPrefixes {
		input = make([]string, len(texts))
		for i, t := range texts {
			input[i] = intent.Prefix() + t
		}
	}

	resp, err := s.client.Embed(ctx, &api.EmbedRequest{
		Model: s.model,
		Input: input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}

	return resp.Embeddings, nil
}
