// Package rowstore provides RowStore implementations for the memory
// engine: an in-memory store for tests and small deployments, and a
// Postgres-backed store for production.
package rowstore

import (
	"context"
	"sort"
	"sync"

	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/pkg/models"
)

// MemoryStore is an in-process RowStore guarded by a mutex.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]*models.Memory
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*models.Memory)}
}

func cloneMemory(m *models.Memory) *models.Memory {
	out := *m
	out.Tags = append([]string(nil), m.Tags...)
	out.SourceReferences = append([]models.SourceReference(nil), m.SourceReferences...)
	out.CompaktifiedFrom = append([]string(nil), m.CompaktifiedFrom...)
	out.Embedding = append([]float32(nil), m.Embedding...)
	return &out
}

func (s *MemoryStore) Insert(ctx context.Context, m *models.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[m.ID]; exists {
		return herr.New(herr.Conflict, "memory already exists: "+m.ID)
	}
	s.rows[m.ID] = cloneMemory(m)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, m *models.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[m.ID]; !exists {
		return herr.New(herr.NotFound, "memory not found: "+m.ID)
	}
	s.rows[m.ID] = cloneMemory(m)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, exists := s.rows[id]
	if !exists {
		return nil, herr.New(herr.NotFound, "memory not found: "+id)
	}
	return cloneMemory(m), nil
}

func (s *MemoryStore) List(ctx context.Context, filter models.MemoryFilter) ([]*models.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Memory
	for _, m := range s.rows {
		if !matchesFilter(m, filter) {
			continue
		}
		out = append(out, cloneMemory(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rows))
	for id := range s.rows {
		out = append(out, id)
	}
	return out, nil
}

func matchesFilter(m *models.Memory, filter models.MemoryFilter) bool {
	if filter.UserID != "" && m.UserID != filter.UserID {
		return false
	}
	if filter.ConversationID != "" && m.ConversationID != filter.ConversationID {
		return false
	}
	if filter.IsCompaktified != nil && m.IsCompaktified != *filter.IsCompaktified {
		return false
	}
	if len(filter.Kinds) > 0 && !containsKind(filter.Kinds, m.Kind) {
		return false
	}
	if len(filter.Tags) > 0 && !containsAnyTag(m.Tags, filter.Tags) {
		return false
	}
	return true
}

func containsKind(kinds []models.MemoryKind, k models.MemoryKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

func containsAnyTag(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if set[t] {
			return true
		}
	}
	return false
}
