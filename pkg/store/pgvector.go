package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/abclabs/loanassist/internal/models"
)

type PGVectorConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// PGVectorIndex stores chunk vectors in PostgreSQL with the pgvector
// extension. The seq column records insertion order so that similarity ties
// rank deterministically.
type PGVectorIndex struct {
	config PGVectorConfig
	pool   *pgxpool.Pool
}

func NewPGVectorIndex(ctx context.Context, config PGVectorConfig) (*PGVectorIndex, error) {
	if config.TableName == "" {
		config.TableName = "loan_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	idx := &PGVectorIndex{
		config: config,
		pool:   pool,
	}

	if err := idx.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return idx, nil
}

func (idx *PGVectorIndex) initialize(ctx context.Context) error {
	_, err := idx.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			document_id TEXT NOT NULL,
			source TEXT NOT NULL,
			chunk_index INTEGER,
			chunk_offset INTEGER,
			content TEXT,
			embedding vector(%d)
		)`, idx.config.TableName, idx.config.VectorDim)

	if _, err = idx.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		idx.config.TableName, idx.config.TableName)

	if _, err = idx.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	return nil
}

// Upsert inserts or replaces chunk entries in one transaction. Every vector
// is validated before any row is written.
func (idx *PGVectorIndex) Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != idx.config.VectorDim {
			return fmt.Errorf("%w: chunk %s has dimension %d, index requires %d",
				ErrDimensionMismatch, chunks[i].ID, len(v), idx.config.VectorDim)
		}
	}

	tx, err := idx.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, source, chunk_index, chunk_offset, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`,
		idx.config.TableName)

	for i, chunk := range chunks {
		_, err = tx.Exec(ctx, stmt,
			chunk.ID,
			chunk.DocumentID,
			chunk.Source,
			chunk.Index,
			chunk.Offset,
			sanitizeUTF8(chunk.Text),
			pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %v", chunk.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

// Query returns up to k chunks ranked by cosine similarity, earliest-inserted
// first among ties.
func (idx *PGVectorIndex) Query(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	if len(vector) != idx.config.VectorDim {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index requires %d",
			ErrDimensionMismatch, len(vector), idx.config.VectorDim)
	}
	if k < 1 {
		k = 1
	}

	query := fmt.Sprintf(`
		SELECT id, document_id, source, chunk_index, chunk_offset, content,
			1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1, seq
		LIMIT $2`,
		idx.config.TableName)

	rows, err := idx.pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %v", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		err := rows.Scan(
			&r.Chunk.ID,
			&r.Chunk.DocumentID,
			&r.Chunk.Source,
			&r.Chunk.Index,
			&r.Chunk.Offset,
			&r.Chunk.Text,
			&r.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %v", err)
	}

	return results, nil
}

func (idx *PGVectorIndex) Close() error {
	if idx.pool != nil {
		idx.pool.Close()
	}
	return nil
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
