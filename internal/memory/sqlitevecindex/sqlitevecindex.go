// Package sqlitevecindex is a memory.VectorIndex backed by a local
// SQLite file, adapted from the sqlite-vec storage backend for the
// embedded single-host deployment path: no network round trip, no
// pgvector dependency, one file on disk.
package sqlitevecindex

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"

	"github.com/hearthai/hearth/internal/memory"
	_ "modernc.org/sqlite"
)

// Index is a sqlite-backed VectorIndex doing brute-force cosine search
// over embeddings stored as BLOBs. This trades query-time scan cost
// for zero extra infrastructure; callers with larger corpora should
// reach for pgvectorindex instead.
type Index struct {
	db        *sql.DB
	dimension int
}

// Config configures a sqlite-backed index.
type Config struct {
	// Path to the SQLite database file. Empty means ":memory:".
	Path      string
	Dimension int
}

// New opens (or creates) the backing database and its schema.
func New(cfg Config) (*Index, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = 1536
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitevecindex: open: %w", err)
	}
	idx := &Index{db: db, dimension: dimension}
	if err := idx.init(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) init() error {
	_, err := idx.db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_vectors (
			id        TEXT PRIMARY KEY,
			embedding BLOB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("sqlitevecindex: create table: %w", err)
	}
	return nil
}

// Upsert stores or replaces a point's embedding.
func (idx *Index) Upsert(ctx context.Context, id string, embedding []float32) error {
	_, err := idx.db.ExecContext(ctx,
		`INSERT INTO memory_vectors (id, embedding) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding`,
		id, encodeEmbedding(embedding),
	)
	return err
}

// Delete removes a point; deleting a missing id is a no-op.
func (idx *Index) Delete(ctx context.Context, id string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM memory_vectors WHERE id = ?`, id)
	return err
}

// Search scores every point restricted to candidates (all points when
// candidates is nil) by cosine similarity to query, returning the top
// limit ids descending.
func (idx *Index) Search(ctx context.Context, query []float32, limit int, candidates map[string]bool) ([]memory.ScoredID, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT id, embedding FROM memory_vectors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []memory.ScoredID
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		if candidates != nil && !candidates[id] {
			continue
		}
		scored = append(scored, memory.ScoredID{ID: id, Score: cosineSimilarity(query, decodeEmbedding(blob))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// IDs returns every indexed point id, for the orphan repair sweep.
func (idx *Index) IDs(ctx context.Context) ([]string, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT id FROM memory_vectors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

func encodeEmbedding(embedding []float32) []byte {
	data := make([]byte, len(embedding)*4)
	for i, f := range embedding {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		bits := uint32(data[i*4]) |
			uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 |
			uint32(data[i*4+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
