package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

type ModelConfig struct {
	BaseURL string // OpenAI-compatible endpoint, Groq by default
	Model   string
	APIKey  string
}

// NewChatModel builds the hosted chat model client. Groq exposes an
// OpenAI-compatible API, so the langchaingo openai client covers it.
func NewChatModel(config ModelConfig) (llms.Model, error) {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.groq.com/openai/v1"
	}
	if config.Model == "" {
		config.Model = "llama-3.3-70b-versatile"
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := openai.New(
		openai.WithModel(config.Model),
		openai.WithBaseURL(config.BaseURL),
		openai.WithToken(config.APIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat model: %w", err)
	}

	return client, nil
}
