package types

import (
	"context"

	"github.com/abclabs/loanassist/internal/models"
)

// Embedder maps texts to fixed-length vectors. Implementations must be
// deterministic for identical input within a session so that index and query
// vectors stay comparable.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex persists chunk vectors and supports nearest-neighbor search.
// Upsert is atomic per call; Query on an empty index returns an empty result.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error
	Query(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error)
	Close() error
}

// Retriever maps a question to its top-k most similar chunks.
type Retriever interface {
	Retrieve(ctx context.Context, question string) ([]models.Chunk, error)
}

// Loader produces documents from a source location, reporting per-file
// failures as warnings rather than aborting.
type Loader interface {
	Load(dir, glob string) ([]models.Document, []error)
}

// Processor splits documents into chunks.
type Processor interface {
	Process(docs []models.Document) ([]models.Chunk, error)
}
