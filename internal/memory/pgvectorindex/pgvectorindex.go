// Package pgvectorindex is a memory.VectorIndex backed by PostgreSQL's
// pgvector extension, storing only id+embedding: the Memory content
// itself lives in the row store, not here, per the engine's two-store
// design.
package pgvectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hearthai/hearth/internal/memory"
	"github.com/lib/pq"
)

// Index is a pgvector-backed VectorIndex.
type Index struct {
	db        *sql.DB
	dimension int
}

// Config configures a pgvector-backed index.
type Config struct {
	DSN           string
	DB            *sql.DB
	Dimension     int
	RunMigrations bool
}

// New opens (or reuses) a database connection and ensures the
// memory_vectors table exists.
func New(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}
	db := cfg.DB
	if db == nil {
		if cfg.DSN == "" {
			return nil, fmt.Errorf("pgvectorindex: either DSN or DB must be provided")
		}
		var err error
		db, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
	}

	idx := &Index{db: db, dimension: cfg.Dimension}
	if cfg.RunMigrations {
		if err := idx.ensureSchema(ctx); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (idx *Index) ensureSchema(ctx context.Context) error {
	_, err := idx.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS memory_vectors (
			id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL
		)
	`, idx.dimension))
	return err
}

// Upsert writes or replaces a point's embedding.
func (idx *Index) Upsert(ctx context.Context, id string, embedding []float32) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO memory_vectors (id, embedding) VALUES ($1, $2::vector)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding
	`, id, encodeEmbedding(embedding))
	return err
}

// Delete removes a point; deleting a missing id is a no-op.
func (idx *Index) Delete(ctx context.Context, id string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM memory_vectors WHERE id = $1`, id)
	return err
}

// Search runs a cosine-distance nearest-neighbor query, restricted to
// candidates when non-nil.
func (idx *Index) Search(ctx context.Context, query []float32, limit int, candidates map[string]bool) ([]memory.ScoredID, error) {
	if limit <= 0 {
		limit = 10
	}
	q := `
		SELECT id, 1 - (embedding <=> $1::vector) AS similarity
		FROM memory_vectors
	`
	args := []any{encodeEmbedding(query)}
	if candidates != nil {
		ids := make([]string, 0, len(candidates))
		for id := range candidates {
			ids = append(ids, id)
		}
		q += fmt.Sprintf(" WHERE id = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(ids))
	}
	q += fmt.Sprintf(" ORDER BY embedding <=> $1::vector ASC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := idx.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search memory_vectors: %w", err)
	}
	defer rows.Close()

	var out []memory.ScoredID
	for rows.Next() {
		var s memory.ScoredID
		if err := rows.Scan(&s.ID, &s.Score); err != nil {
			return nil, fmt.Errorf("scan memory_vectors row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// IDs returns every indexed point id.
func (idx *Index) IDs(ctx context.Context) ([]string, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT id FROM memory_vectors`)
	if err != nil {
		return nil, fmt.Errorf("list memory_vectors ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Close releases the underlying connection.
func (idx *Index) Close() error { return idx.db.Close() }

func encodeEmbedding(embedding []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%g", f)
	}
	sb.WriteByte(']')
	return sb.String()
}
