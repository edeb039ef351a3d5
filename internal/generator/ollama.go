package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ollama/ollama/api"
)

// Ollama generates text with a local Ollama server (OLLAMA_HOST).
type Ollama struct {
	client *api.Client
	model  string
}

// NewOllama creates a provider. model is used when a request names none.
func NewOllama(model string) (*Ollama, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}
	return &Ollama{client: client, model: model}, nil
}

func (o *Ollama) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}
	if model == "" {
		return "", fmt.Errorf("ollama: model is required")
	}

	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	var b strings.Builder
	err := o.client.Generate(ctx, &api.GenerateRequest{
		Model:   model,
		System:  req.System,
		Prompt:  req.Prompt,
		Stream:  new(bool),
		Options: options,
	}, func(resp api.GenerateResponse) error {
		b.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return b.String(), nil
}
