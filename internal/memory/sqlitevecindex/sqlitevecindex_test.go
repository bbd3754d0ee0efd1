package sqlitevecindex_test

import (
	"context"
	"testing"

	"github.com/hearthai/hearth/internal/memory/sqlitevecindex"
)

func newTestIndex(t *testing.T) *sqlitevecindex.Index {
	t.Helper()
	idx, err := sqlitevecindex.New(sqlitevecindex.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestUpsertAndSearch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Upsert(ctx, "a", []float32{1, 0, 0}); err != nil {
		t.Fatalf("upsert a: %v", err)
	}
	if err := idx.Upsert(ctx, "b", []float32{0, 1, 0}); err != nil {
		t.Fatalf("upsert b: %v", err)
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 5, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" {
		t.Fatalf("expected closest match to be a, got %s (score %f)", results[0].ID, results[0].Score)
	}
}

func TestSearchRestrictsToCandidates(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Upsert(ctx, "a", []float32{1, 0, 0})
	_ = idx.Upsert(ctx, "b", []float32{0, 1, 0})

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 5, map[string]bool{"b": true})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "b" {
		t.Fatalf("expected only candidate b, got %+v", results)
	}
}

func TestUpsertReplacesExisting(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Upsert(ctx, "a", []float32{1, 0, 0})
	if err := idx.Upsert(ctx, "a", []float32{0, 0, 1}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	ids, err := idx.IDs(ctx)
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 id after replace, got %d", len(ids))
	}
}

func TestDelete(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Upsert(ctx, "a", []float32{1, 0, 0})

	if err := idx.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := idx.Delete(ctx, "missing"); err != nil {
		t.Fatalf("delete missing should be a no-op: %v", err)
	}

	ids, err := idx.IDs(ctx)
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no ids remaining, got %v", ids)
	}
}
