package retriever

import (
	"context"
	"errors"
	"fmt"

	"github.com/abclabs/loanassist/internal/models"
	"github.com/abclabs/loanassist/internal/types"
)

// ErrUnavailable wraps embedding or index failures so callers can distinguish
// "retrieval broke" from "nothing matched" and choose their own fallback.
var ErrUnavailable = errors.New("retrieval unavailable")

type Config struct {
	TopK int
}

// Retriever embeds a question and returns its top-k most similar chunks.
type Retriever struct {
	embedder types.Embedder
	index    types.VectorIndex
	topK     int
}

func NewWithConfig(embedder types.Embedder, index types.VectorIndex, config Config) *Retriever {
	if config.TopK == 0 {
		config.TopK = 3
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		topK:     config.TopK,
	}
}

// Retrieve returns up to top-k chunks ranked by similarity to the question.
// An empty index yields an empty result; a failing embedder or index yields
// an error wrapping ErrUnavailable, never a silently empty result.
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]models.Chunk, error) {
	embeddings, err := r.embedder.CreateEmbedding(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no vector", ErrUnavailable)
	}

	results, err := r.index.Query(ctx, embeddings[0], r.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	chunks := make([]models.Chunk, 0, len(results))
	for _, res := range results {
		chunks = append(chunks, res.Chunk)
	}
	return chunks, nil
}
