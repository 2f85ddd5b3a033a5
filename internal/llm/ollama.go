// Package llm adapts the external text-completion service. The pipeline
// treats it as a pure function from prompt to text; retries and timeouts
// belong to the conversational layer that owns the call.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// Completer generates text from a prompt under an output token budget.
type Completer interface {
	Complete(ctx context.Context, promptText string, maxTokens int) (string, error)
}

// OllamaCompleter runs completions through the Ollama API.
type OllamaCompleter struct {
	client *api.Client
	model  string
}

// NewOllamaCompleter creates an Ollama-backed completer. An empty host falls
// back to the OLLAMA_HOST environment discovery.
func NewOllamaCompleter(host, model string) (*OllamaCompleter, error) {
	hostURL := envconfig.Host()
	if host != "" {
		parsed, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = parsed
	}

	return &OllamaCompleter{
		client: api.NewClient(hostURL, http.DefaultClient),
		model:  model,
	}, nil
}

// Complete generates an answer, accumulating the streamed response.
func (o *OllamaCompleter) Complete(ctx context.Context, promptText string, maxTokens int) (string, error) {
	req := api.GenerateRequest{
		Model:  o.model,
		Prompt: promptText,
		Options: map[string]any{
			"temperature": 0.1,
			"num_predict": maxTokens,
		},
	}

	var b strings.Builder
	err := o.client.Generate(ctx, &req, func(resp api.GenerateResponse) error {
		_, err := b.WriteString(resp.Response)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	return b.String(), nil
}
