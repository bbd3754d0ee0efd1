package memory_test

import (
	"context"
	"testing"

	"github.com/hearthai/hearth/internal/memory"
	"github.com/hearthai/hearth/internal/memory/flatindex"
	"github.com/hearthai/hearth/internal/memory/rowstore"
	"github.com/hearthai/hearth/pkg/models"
)

// stubEmbedder returns a deterministic low-dimension vector derived
// from text length and first-byte, enough to make similarity rankings
// meaningful across a handful of fixed strings in tests.
type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var a, b float32
	for i, r := range text {
		a += float32(r) / float32(i+1)
		b += float32(r)
	}
	return []float32{a, b, float32(len(text))}, nil
}

func newTestEngine() *memory.Engine {
	return memory.New(rowstore.NewMemoryStore(), mustFlatindex(), stubEmbedder{}, nil)
}

func mustFlatindex() *flatindex.Index {
	idx, err := flatindex.New("")
	if err != nil {
		panic(err)
	}
	return idx
}

func TestAddThenGetRoundTrips(t *testing.T) {
	eng := newTestEngine()
	ctx := context.Background()

	m, err := eng.Add(ctx, models.MemoryWrite{UserID: "u1", Kind: models.MemoryKindFact, Title: "Favorite color", Content: "Blue"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := eng.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Favorite color" || got.Content != "Blue" {
		t.Fatalf("unexpected memory: %+v", got)
	}
}

func TestDeleteRemovesRowAndVector(t *testing.T) {
	eng := newTestEngine()
	ctx := context.Background()

	m, err := eng.Add(ctx, models.MemoryWrite{UserID: "u1", Kind: models.MemoryKindFact, Title: "x", Content: "y"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := eng.Delete(ctx, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := eng.Get(ctx, m.ID); err == nil {
		t.Fatalf("expected not-found after delete")
	}

	repaired, removed, err := eng.RepairOrphans(ctx)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if repaired != 0 || removed != 0 {
		t.Fatalf("expected a clean delete to leave no orphans, got repaired=%d removed=%d", repaired, removed)
	}
}

func TestPatchTitleReembeds(t *testing.T) {
	eng := newTestEngine()
	ctx := context.Background()

	m, err := eng.Add(ctx, models.MemoryWrite{UserID: "u1", Kind: models.MemoryKindFact, Title: "Original", Content: "c"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	newTitle := "Updated"
	updated, err := eng.Patch(ctx, m.ID, models.MemoryPatch{Title: &newTitle})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if updated.Title != "Updated" {
		t.Fatalf("expected title updated, got %q", updated.Title)
	}

	results, err := eng.Search(ctx, models.SearchRequest{Query: "Updated", UserID: "u1", Limit: 5})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 || results[0].Memory.ID != m.ID {
		t.Fatalf("expected patched memory to remain searchable, got %+v", results)
	}
}

func TestSearchRestrictsToUserScopedCandidates(t *testing.T) {
	eng := newTestEngine()
	ctx := context.Background()

	if _, err := eng.Add(ctx, models.MemoryWrite{UserID: "u1", Kind: models.MemoryKindFact, Title: "A", Content: "apple"}); err != nil {
		t.Fatalf("add u1: %v", err)
	}
	if _, err := eng.Add(ctx, models.MemoryWrite{UserID: "u2", Kind: models.MemoryKindFact, Title: "B", Content: "banana"}); err != nil {
		t.Fatalf("add u2: %v", err)
	}

	results, err := eng.Search(ctx, models.SearchRequest{Query: "apple", UserID: "u1", Limit: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, r := range results {
		if r.Memory.UserID != "u1" {
			t.Fatalf("search leaked a memory outside the requested user scope: %+v", r.Memory)
		}
	}
}

func TestRepairOrphansRebuildsMissingVector(t *testing.T) {
	rows := rowstore.NewMemoryStore()
	vectors := mustFlatindex()
	eng := memory.New(rows, vectors, stubEmbedder{}, nil)
	ctx := context.Background()

	m, err := eng.Add(ctx, models.MemoryWrite{UserID: "u1", Kind: models.MemoryKindFact, Title: "t", Content: "c"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// Simulate a crash between the row insert and the vector upsert by
	// deleting just the vector side out from under the engine.
	if err := vectors.Delete(ctx, m.ID); err != nil {
		t.Fatalf("delete vector: %v", err)
	}

	repaired, removed, err := eng.RepairOrphans(ctx)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if repaired != 1 || removed != 0 {
		t.Fatalf("expected exactly one repaired orphan row, got repaired=%d removed=%d", repaired, removed)
	}

	results, err := eng.Search(ctx, models.SearchRequest{Query: "t", UserID: "u1", Limit: 5})
	if err != nil {
		t.Fatalf("search after repair: %v", err)
	}
	if len(results) != 1 || results[0].Memory.ID != m.ID {
		t.Fatalf("expected repaired memory to be searchable again, got %+v", results)
	}
}

func TestRepairOrphansRemovesDanglingVector(t *testing.T) {
	rows := rowstore.NewMemoryStore()
	vectors := mustFlatindex()
	eng := memory.New(rows, vectors, stubEmbedder{}, nil)
	ctx := context.Background()

	if err := vectors.Upsert(ctx, "dangling-id", []float32{1, 2, 3}); err != nil {
		t.Fatalf("upsert dangling vector: %v", err)
	}

	repaired, removed, err := eng.RepairOrphans(ctx)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if repaired != 0 || removed != 1 {
		t.Fatalf("expected exactly one removed dangling vector, got repaired=%d removed=%d", repaired, removed)
	}

	ids, err := vectors.IDs(ctx)
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected dangling vector to be removed, got %v", ids)
	}
}
