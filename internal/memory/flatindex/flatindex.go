// Package flatindex is an in-memory, optionally file-persisted
// VectorIndex doing brute-force cosine search, adapted from the
// file-based vector backend used as a dependency-free fallback when no
// vector database is configured.
package flatindex

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/hearthai/hearth/internal/memory"
)

// Index is a brute-force, cosine-similarity VectorIndex kept entirely
// in memory and, when Path is set, mirrored to a single JSON file on
// every mutation.
type Index struct {
	path string

	mu     sync.RWMutex
	points map[string][]float32
}

// New creates an Index. When path is non-empty, existing points are
// loaded from it and every subsequent mutation is persisted back.
func New(path string) (*Index, error) {
	idx := &Index{path: path, points: make(map[string][]float32)}
	if path == "" {
		return idx, nil
	}
	if err := idx.load(); err != nil {
		return nil, err
	}
	return idx, nil
}

type onDiskPoint struct {
	ID        string    `json:"id"`
	Embedding []float32 `json:"embedding"`
}

func (idx *Index) load() error {
	data, err := os.ReadFile(idx.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var points []onDiskPoint
	if err := json.Unmarshal(data, &points); err != nil {
		return err
	}
	for _, p := range points {
		idx.points[p.ID] = p.Embedding
	}
	return nil
}

// save must be called with idx.mu held.
func (idx *Index) save() error {
	if idx.path == "" {
		return nil
	}
	points := make([]onDiskPoint, 0, len(idx.points))
	for id, emb := range idx.points {
		points = append(points, onDiskPoint{ID: id, Embedding: emb})
	}
	data, err := json.Marshal(points)
	if err != nil {
		return err
	}
	return os.WriteFile(idx.path, data, 0644)
}

// Upsert stores or replaces a point's embedding.
func (idx *Index) Upsert(ctx context.Context, id string, embedding []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.points[id] = embedding
	return idx.save()
}

// Delete removes a point; deleting a missing id is a no-op.
func (idx *Index) Delete(ctx context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.points, id)
	return idx.save()
}

// Search scores every point restricted to candidates (all points when
// candidates is nil) by cosine similarity to query, returning the top
// limit ids descending.
func (idx *Index) Search(ctx context.Context, query []float32, limit int, candidates map[string]bool) ([]memory.ScoredID, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type scored struct {
		id    string
		score float32
	}
	var all []scored
	for id, emb := range idx.points {
		if candidates != nil && !candidates[id] {
			continue
		}
		all = append(all, scored{id: id, score: cosineSimilarity(query, emb)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]memory.ScoredID, len(all))
	for i, s := range all {
		out[i] = memory.ScoredID{ID: s.id, Score: s.score}
	}
	return out, nil
}

// IDs returns every indexed point id.
func (idx *Index) IDs(ctx context.Context) ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.points))
	for id := range idx.points {
		out = append(out, id)
	}
	return out, nil
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
