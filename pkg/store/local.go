package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/abclabs/loanassist/internal/models"
)

// ErrDimensionMismatch is returned by Upsert when a vector does not match the
// index dimensionality. The index is left untouched.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

const indexFileName = "index.json"

// The on-disk format names its metric so an index built with one similarity
// function is never silently queried with another.
const metricCosine = "cosine"

type LocalIndexConfig struct {
	Dir       string
	VectorDim int
}

type indexEntry struct {
	Chunk  models.Chunk `json:"chunk"`
	Vector []float32    `json:"vector"`
}

type indexFile struct {
	Metric    string       `json:"metric"`
	Dimension int          `json:"dimension"`
	Entries   []indexEntry `json:"entries"`
}

// LocalIndex is a file-persisted brute-force cosine-similarity index. Entries
// are held in memory and swapped wholesale on upsert, so queries only ever see
// a fully persisted snapshot.
type LocalIndex struct {
	config LocalIndexConfig
	path   string

	mu      sync.RWMutex
	entries []indexEntry
}

// NewLocalIndex opens (or creates) the index under config.Dir. An empty
// location yields an empty index; a persisted file whose metric or dimension
// disagrees with the configuration is rejected.
func NewLocalIndex(config LocalIndexConfig) (*LocalIndex, error) {
	if config.VectorDim < 1 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", config.VectorDim)
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %v", err)
	}

	idx := &LocalIndex{
		config: config,
		path:   filepath.Join(config.Dir, indexFileName),
	}

	if err := idx.load(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *LocalIndex) load() error {
	data, err := os.ReadFile(idx.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read index file: %v", err)
	}

	var file indexFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse index file: %v", err)
	}
	if file.Metric != metricCosine {
		return fmt.Errorf("index at %s uses metric %q, this index requires %q", idx.path, file.Metric, metricCosine)
	}
	if file.Dimension != idx.config.VectorDim {
		return fmt.Errorf("index at %s has dimension %d, configured embedder produces %d",
			idx.path, file.Dimension, idx.config.VectorDim)
	}

	idx.entries = file.Entries
	return nil
}

// Upsert replaces entries with a matching chunk ID and appends the rest,
// preserving insertion order. All vectors are validated before any mutation,
// and the new state is persisted before it becomes visible to queries.
func (idx *LocalIndex) Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != idx.config.VectorDim {
			return fmt.Errorf("%w: chunk %s has dimension %d, index requires %d",
				ErrDimensionMismatch, chunks[i].ID, len(v), idx.config.VectorDim)
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	updated := make([]indexEntry, len(idx.entries), len(idx.entries)+len(chunks))
	copy(updated, idx.entries)

	byID := make(map[string]int, len(updated))
	for i, e := range updated {
		byID[e.Chunk.ID] = i
	}

	for i, chunk := range chunks {
		entry := indexEntry{Chunk: chunk, Vector: vectors[i]}
		if pos, ok := byID[chunk.ID]; ok {
			updated[pos] = entry
		} else {
			byID[chunk.ID] = len(updated)
			updated = append(updated, entry)
		}
	}

	if err := idx.persist(updated); err != nil {
		return err
	}

	idx.entries = updated
	return nil
}

func (idx *LocalIndex) persist(entries []indexEntry) error {
	data, err := json.Marshal(indexFile{
		Metric:    metricCosine,
		Dimension: idx.config.VectorDim,
		Entries:   entries,
	})
	if err != nil {
		return fmt.Errorf("failed to encode index: %v", err)
	}

	tmp := idx.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index file: %v", err)
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		return fmt.Errorf("failed to replace index file: %v", err)
	}
	return nil
}

// Query returns up to k entries ranked by descending cosine similarity to the
// query vector. Ties keep insertion order. An empty index returns an empty
// result.
func (idx *LocalIndex) Query(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	if len(vector) != idx.config.VectorDim {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index requires %d",
			ErrDimensionMismatch, len(vector), idx.config.VectorDim)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k < 1 {
		k = 1
	}

	idx.mu.RLock()
	entries := idx.entries
	idx.mu.RUnlock()

	results := make([]models.SearchResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, models.SearchResult{
			Chunk: e.Chunk,
			Score: cosineSimilarity(vector, e.Vector),
		})
	}

	// Stable sort keeps the earliest-inserted entry first among equals.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count reports the number of stored entries.
func (idx *LocalIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

func (idx *LocalIndex) Close() error {
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
