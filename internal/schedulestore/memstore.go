package schedulestore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/pkg/models"
)

// MemoryStore is an in-process Store guarded by a mutex.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]*models.ScheduledTask
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*models.ScheduledTask)}
}

func cloneTask(t *models.ScheduledTask) *models.ScheduledTask {
	out := *t
	if t.LastRun != nil {
		lr := *t.LastRun
		out.LastRun = &lr
	}
	if t.NextRun != nil {
		nr := *t.NextRun
		out.NextRun = &nr
	}
	return &out
}

func (s *MemoryStore) Create(ctx context.Context, task *models.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return herr.New(herr.Conflict, "scheduled task already exists: "+task.ID)
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, task *models.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; !exists {
		return herr.New(herr.NotFound, "scheduled task not found: "+task.ID)
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, exists := s.tasks[id]
	if !exists {
		return nil, herr.New(herr.NotFound, "scheduled task not found: "+id)
	}
	return cloneTask(t), nil
}

func (s *MemoryStore) ListDue(ctx context.Context, asOf time.Time) ([]*models.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ScheduledTask
	for _, t := range s.tasks {
		if !t.Enabled || t.NextRun == nil {
			continue
		}
		if t.NextRun.After(asOf) {
			continue
		}
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRun.Before(*out[j].NextRun) })
	return out, nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*models.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ScheduledTask
	for _, t := range s.tasks {
		if t.UserID == userID {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
