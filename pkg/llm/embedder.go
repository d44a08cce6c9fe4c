package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms/ollama"
)

type EmbedderConfig struct {
	Model   string
	BaseURL string // Ollama server URL
	Timeout time.Duration
}

// Embedder produces fixed-dimension embedding vectors via an Ollama model.
type Embedder struct {
	config EmbedderConfig
	client *ollama.LLM
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	client, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		config: config,
		client: client,
	}, nil
}

// CreateEmbedding returns one vector per input text. The call runs under the
// configured timeout so a stalled embedding server fails instead of hanging.
func (e *Embedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	embeddings, err := e.client.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(embeddings), len(texts))
	}

	return embeddings, nil
}
