package retriever_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abclabs/loanassist/internal/models"
	"github.com/abclabs/loanassist/pkg/retriever"
	"github.com/abclabs/loanassist/pkg/store"
)

// fakeEmbedder maps known texts to fixed vectors, standing in for the Ollama
// embedding model.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := f.vectors[text]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func seedIndex(t *testing.T) *store.LocalIndex {
	t.Helper()
	idx, err := store.NewLocalIndex(store.LocalIndexConfig{
		Dir:       t.TempDir(),
		VectorDim: 3,
	})
	require.NoError(t, err)

	chunks := []models.Chunk{
		{ID: "c1", DocumentID: "doc1", Source: "data/loans.pdf", Text: "Loan tenure is 12-60 months."},
		{ID: "c2", DocumentID: "doc1", Source: "data/loans.pdf", Text: "Interest rate starts at 10.5%."},
		{ID: "c3", DocumentID: "doc1", Source: "data/loans.pdf", Text: "Minimum salary required is $2000."},
	}
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	require.NoError(t, idx.Upsert(context.Background(), chunks, vectors))
	return idx
}

func TestRetrieveRanksClosestChunkFirst(t *testing.T) {
	idx := seedIndex(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"What is the loan tenure?": {0.95, 0.2, 0.1},
	}}

	r := retriever.NewWithConfig(emb, idx, retriever.Config{TopK: 3})

	chunks, err := r.Retrieve(context.Background(), "What is the loan tenure?")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Loan tenure is 12-60 months.", chunks[0].Text)
}

func TestRetrieveDefaultsToTopThree(t *testing.T) {
	idx := seedIndex(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{}}

	r := retriever.NewWithConfig(emb, idx, retriever.Config{})

	chunks, err := r.Retrieve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}

func TestRetrieveEmptyIndex(t *testing.T) {
	idx, err := store.NewLocalIndex(store.LocalIndexConfig{
		Dir:       t.TempDir(),
		VectorDim: 3,
	})
	require.NoError(t, err)

	r := retriever.NewWithConfig(&fakeEmbedder{}, idx, retriever.Config{})

	chunks, err := r.Retrieve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestRetrieveEmbedderFailure(t *testing.T) {
	idx := seedIndex(t)
	cause := errors.New("connection refused")
	r := retriever.NewWithConfig(&fakeEmbedder{err: cause}, idx, retriever.Config{})

	chunks, err := r.Retrieve(context.Background(), "What is the loan tenure?")
	assert.Nil(t, chunks)
	require.Error(t, err)
	assert.ErrorIs(t, err, retriever.ErrUnavailable)
	assert.ErrorIs(t, err, cause)
}
