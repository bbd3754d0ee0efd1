// Package memory implements the dual-store memory engine: every Memory
// lives as a row in a RowStore and as a vector point in a VectorIndex,
// kept coherent by an explicit transaction-plus-compensation sequence
// rather than a single combined-table write.
package memory

import (
	"context"
	"time"

	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/internal/observability"
	"github.com/hearthai/hearth/pkg/models"
)

// RowStore persists Memory rows (everything but the embedding).
type RowStore interface {
	Insert(ctx context.Context, m *models.Memory) error
	Update(ctx context.Context, m *models.Memory) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Memory, error)
	List(ctx context.Context, filter models.MemoryFilter) ([]*models.Memory, error)
	// ListIDs returns every row id, for the orphan-vector repair sweep.
	ListIDs(ctx context.Context) ([]string, error)
}

// VectorIndex persists per-Memory embeddings and serves semantic
// nearest-neighbor search.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, embedding []float32) error
	Delete(ctx context.Context, id string) error
	// Search returns up to limit ids ordered by descending similarity
	// to query, restricted to the candidate id set when non-nil.
	Search(ctx context.Context, query []float32, limit int, candidates map[string]bool) ([]ScoredID, error)
	// IDs returns every point id currently indexed, for the orphan
	// repair sweep.
	IDs(ctx context.Context) ([]string, error)
}

// ScoredID pairs a Memory id with its similarity score.
type ScoredID struct {
	ID    string
	Score float32
}

// Embedder turns text into a vector. Implemented by the kept
// embeddings.Provider adapters (OpenAI, Ollama, ...).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine is the memory store: the orchestration layer that keeps a
// RowStore and a VectorIndex coherent, per the coherence invariant that
// a Memory exists iff both its row and its vector point exist.
type Engine struct {
	rows     RowStore
	vectors  VectorIndex
	embedder Embedder
	log      *observability.Logger
}

// New constructs an Engine over the given row store, vector index, and
// embedder.
func New(rows RowStore, vectors VectorIndex, embedder Embedder, log *observability.Logger) *Engine {
	return &Engine{rows: rows, vectors: vectors, embedder: embedder, log: log}
}

// Add inserts a new Memory: the row is written first, then the vector
// point. If the vector write fails, the row insert is compensated with
// a best-effort delete so no orphan row survives; if that compensating
// delete itself fails, it's logged (an orphan ROW, not an orphan
// vector, which the repair sweep does not currently scan for) and the
// original vector error is returned.
func (e *Engine) Add(ctx context.Context, write models.MemoryWrite) (*models.Memory, error) {
	now := time.Now().UTC()
	m := &models.Memory{
		ID:               models.NewID(models.KindMemory),
		UserID:           write.UserID,
		Kind:             write.Kind,
		Title:            write.Title,
		Content:          write.Content,
		Tags:             write.Tags,
		ConversationID:   write.ConversationID,
		SourceReferences: write.SourceReferences,
		IsCompaktified:   len(write.CompaktifiedFrom) > 0,
		CompaktifiedFrom: write.CompaktifiedFrom,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	embedding, err := e.embedder.Embed(ctx, m.EmbeddingText())
	if err != nil {
		return nil, herr.Wrap(herr.Transient, err, "embed memory text")
	}
	m.Embedding = embedding

	if err := e.rows.Insert(ctx, m); err != nil {
		return nil, herr.Wrap(herr.Transient, err, "insert memory row")
	}

	if err := e.vectors.Upsert(ctx, m.ID, embedding); err != nil {
		if delErr := e.rows.Delete(ctx, m.ID); delErr != nil && e.log != nil {
			e.log.Error(ctx, "compensating row delete failed after vector upsert failure", "memory_id", m.ID, "error", delErr)
		}
		return nil, herr.Wrap(herr.Transient, err, "index memory embedding")
	}

	return m, nil
}

// Patch applies a partial update. Title/Content changes re-embed and
// re-upsert the vector point; a Tags-only patch leaves the vector
// untouched.
func (e *Engine) Patch(ctx context.Context, id string, patch models.MemoryPatch) (*models.Memory, error) {
	m, err := e.rows.Get(ctx, id)
	if err != nil {
		return nil, herr.Wrap(herr.NotFound, err, "get memory "+id)
	}

	textChanged := false
	if patch.Title != nil {
		m.Title = *patch.Title
		textChanged = true
	}
	if patch.Content != nil {
		m.Content = *patch.Content
		textChanged = true
	}
	if patch.Tags != nil {
		m.Tags = *patch.Tags
	}
	m.UpdatedAt = time.Now().UTC()

	if textChanged {
		embedding, err := e.embedder.Embed(ctx, m.EmbeddingText())
		if err != nil {
			return nil, herr.Wrap(herr.Transient, err, "re-embed memory text")
		}
		m.Embedding = embedding
	}

	if err := e.rows.Update(ctx, m); err != nil {
		return nil, herr.Wrap(herr.Transient, err, "update memory row")
	}

	if textChanged {
		if err := e.vectors.Upsert(ctx, m.ID, m.Embedding); err != nil {
			return nil, herr.Wrap(herr.Transient, err, "re-index memory embedding")
		}
	}

	return m, nil
}

// Delete removes a Memory's row and vector point. The vector point is
// deleted first: if the row delete subsequently fails, the surviving
// row is still findable by List/Get and its vector can be rebuilt by
// the repair sweep, whereas the reverse order risks a vector-less row
// that Search silently skips forever.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.vectors.Delete(ctx, id); err != nil {
		return herr.Wrap(herr.Transient, err, "delete memory vector")
	}
	if err := e.rows.Delete(ctx, id); err != nil {
		return herr.Wrap(herr.Transient, err, "delete memory row")
	}
	return nil
}

// Get returns a single Memory by id.
func (e *Engine) Get(ctx context.Context, id string) (*models.Memory, error) {
	return e.rows.Get(ctx, id)
}

// List returns Memories matching filter from the row store.
func (e *Engine) List(ctx context.Context, filter models.MemoryFilter) ([]*models.Memory, error) {
	return e.rows.List(ctx, filter)
}

// Search performs semantic top-k search: the query is embedded, the
// vector index returns candidate ids restricted to rows matching
// filter, and results are hydrated back from the row store. A
// vector-index hit whose row has since vanished (a narrow coherence
// gap the repair sweep exists to close) is silently skipped rather
// than surfaced as an error, since the overall request should not fail
// for one stale point.
func (e *Engine) Search(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	filter := models.MemoryFilter{UserID: req.UserID, Kinds: req.Kinds, Tags: req.Tags}
	candidates, err := e.rows.List(ctx, filter)
	if err != nil {
		return nil, herr.Wrap(herr.Transient, err, "list candidate memories")
	}
	byID := make(map[string]*models.Memory, len(candidates))
	allowed := make(map[string]bool, len(candidates))
	for _, m := range candidates {
		byID[m.ID] = m
		allowed[m.ID] = true
	}
	if len(allowed) == 0 {
		return nil, nil
	}

	query, err := e.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, herr.Wrap(herr.Transient, err, "embed search query")
	}

	scored, err := e.vectors.Search(ctx, query, limit, allowed)
	if err != nil {
		return nil, herr.Wrap(herr.Transient, err, "vector search")
	}

	out := make([]models.SearchResult, 0, len(scored))
	for _, s := range scored {
		m, ok := byID[s.ID]
		if !ok {
			continue
		}
		out = append(out, models.SearchResult{Memory: m, Score: s.Score})
	}
	return out, nil
}

// RepairOrphans scans both stores for ids present on only one side and
// closes the gap: a row with no vector point is re-embedded and
// upserted; a vector point with no row is deleted outright, since
// there is no content left to rebuild a row from.
func (e *Engine) RepairOrphans(ctx context.Context) (repaired int, removed int, err error) {
	rowIDs, err := e.rows.ListIDs(ctx)
	if err != nil {
		return 0, 0, herr.Wrap(herr.Transient, err, "list row ids")
	}
	vectorIDs, err := e.vectors.IDs(ctx)
	if err != nil {
		return 0, 0, herr.Wrap(herr.Transient, err, "list vector ids")
	}

	rowSet := make(map[string]bool, len(rowIDs))
	for _, id := range rowIDs {
		rowSet[id] = true
	}
	vectorSet := make(map[string]bool, len(vectorIDs))
	for _, id := range vectorIDs {
		vectorSet[id] = true
	}

	for _, id := range rowIDs {
		if vectorSet[id] {
			continue
		}
		m, err := e.rows.Get(ctx, id)
		if err != nil {
			continue
		}
		embedding, err := e.embedder.Embed(ctx, m.EmbeddingText())
		if err != nil {
			if e.log != nil {
				e.log.Warn(ctx, "orphan row repair: embed failed", "memory_id", id, "error", err)
			}
			continue
		}
		if err := e.vectors.Upsert(ctx, id, embedding); err != nil {
			if e.log != nil {
				e.log.Warn(ctx, "orphan row repair: upsert failed", "memory_id", id, "error", err)
			}
			continue
		}
		repaired++
	}

	for _, id := range vectorIDs {
		if rowSet[id] {
			continue
		}
		if err := e.vectors.Delete(ctx, id); err != nil {
			if e.log != nil {
				e.log.Warn(ctx, "orphan vector repair: delete failed", "memory_id", id, "error", err)
			}
			continue
		}
		removed++
	}

	return repaired, removed, nil
}
