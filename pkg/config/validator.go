package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate reports every startup configuration problem at once. A non-empty
// result is fatal at startup.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.LLM.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.api_key",
			Message: "Groq API key is required (set GROQ_API_KEY)",
		})
	}

	if _, err := url.Parse(c.LLM.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid LLM base URL",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 8192 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 8192",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.Embedder.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedder.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	switch c.Index.Backend {
	case "local":
		if c.Index.Dir == "" {
			errors = append(errors, ValidationError{
				Field:   "index.dir",
				Message: "index directory is required for the local backend",
			})
		}
	case "pgvector":
		if c.Index.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "index.url",
				Message: "database URL is required for the pgvector backend (set DATABASE_URL)",
			})
		} else if _, err := url.Parse(c.Index.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "index.url",
				Message: "invalid database URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "index.backend",
			Message: fmt.Sprintf("unknown backend: %s", c.Index.Backend),
		})
	}

	if c.Index.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "index.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Ingest.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "ingest.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "ingest.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	if c.Retriever.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "retriever.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	for _, src := range c.Scraper.Sources {
		if u, err := url.Parse(src); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "scraper.sources",
				Message: fmt.Sprintf("invalid source URL: %s", src),
			})
		}
	}

	return errors
}
