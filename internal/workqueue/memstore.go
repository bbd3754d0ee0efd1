package workqueue

import (
	"context"
	"sync"

	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/pkg/models"
)

// MemoryStore is an in-memory Store, grounded in the teacher stack's
// jobs.MemoryStore: a mutex-guarded map alongside ordered keys so
// listing is deterministic, with every returned Job deep-copied so
// callers can't mutate queue state behind the store's back.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
	keys []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*models.Job)}
}

func cloneJob(j *models.Job) *models.Job {
	cp := *j
	return &cp
}

func (s *MemoryStore) Create(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return herr.New(herr.Conflict, "duplicate job id "+job.ID)
	}
	s.jobs[job.ID] = cloneJob(job)
	s.keys = append(s.keys, job.ID)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; !exists {
		return herr.New(herr.NotFound, "job not found "+job.ID)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false, nil
	}
	return cloneJob(job), true, nil
}

func (s *MemoryStore) List(ctx context.Context, queue string) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, id := range s.keys {
		job := s.jobs[id]
		if job.Queue == queue {
			out = append(out, cloneJob(job))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListRunning(ctx context.Context) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, id := range s.keys {
		job := s.jobs[id]
		if job.State == models.JobRunning {
			out = append(out, cloneJob(job))
		}
	}
	return out, nil
}
