package workqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hearthai/hearth/internal/backoff"
	"github.com/hearthai/hearth/pkg/models"
)

func zeroBackoff() backoff.BackoffPolicy {
	return backoff.BackoffPolicy{InitialMs: 0, MaxMs: 0, Factor: 1, Jitter: 0}
}

func newTestQueue() *Queue {
	return New(NewMemoryStore(), nil, nil)
}

func TestEnqueueRunsWorkerToCompletion(t *testing.T) {
	q := newTestQueue()
	var ran int32
	err := q.RegisterWorker("echo", func(ctx context.Context, job *models.Job) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}, 1, DefaultRetryPolicy())
	if err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}

	id, err := q.Enqueue(context.Background(), "echo", "payload", models.ToolContext{}, EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	q.Wait()

	job, ok, err := q.GetJob(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("GetJob: ok=%v err=%v", ok, err)
	}
	if job.State != models.JobCompleted {
		t.Fatalf("expected completed, got %s", job.State)
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("expected worker to run once, ran %d times", ran)
	}
}

func TestRetryBoundEventuallyFails(t *testing.T) {
	q := newTestQueue()
	fastRetry := RetryPolicy{MaxAttempts: 3, Backoff: zeroBackoff()}
	var attempts int32
	_ = q.RegisterWorker("always-fail", func(ctx context.Context, job *models.Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("nope")
	}, 1, fastRetry)

	id, _ := q.Enqueue(context.Background(), "always-fail", nil, models.ToolContext{}, EnqueueOptions{})
	waitForTerminal(t, q, id)

	job, _, _ := q.GetJob(context.Background(), id)
	if job.State != models.JobFailed {
		t.Fatalf("expected failed, got %s", job.State)
	}
	if job.Attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", job.Attempts)
	}
}

func TestRetryThenSucceedYieldsCompleted(t *testing.T) {
	q := newTestQueue()
	fastRetry := RetryPolicy{MaxAttempts: 5, Backoff: zeroBackoff()}
	var attempts int32
	_ = q.RegisterWorker("flaky", func(ctx context.Context, job *models.Job) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return errors.New("transient")
		}
		return nil
	}, 1, fastRetry)

	id, _ := q.Enqueue(context.Background(), "flaky", nil, models.ToolContext{}, EnqueueOptions{})
	waitForTerminal(t, q, id)

	job, _, _ := q.GetJob(context.Background(), id)
	if job.State != models.JobCompleted {
		t.Fatalf("expected completed, got %s", job.State)
	}
}

func TestConcurrencyCapIsStrict(t *testing.T) {
	q := newTestQueue()
	var concurrent, maxConcurrent int32
	var mu sync.Mutex
	release := make(chan struct{})
	_ = q.RegisterWorker("capped", func(ctx context.Context, job *models.Job) error {
		n := atomic.AddInt32(&concurrent, 1)
		mu.Lock()
		if n > maxConcurrent {
			maxConcurrent = n
		}
		mu.Unlock()
		<-release
		atomic.AddInt32(&concurrent, -1)
		return nil
	}, 2, DefaultRetryPolicy())

	for i := 0; i < 5; i++ {
		_, _ = q.Enqueue(context.Background(), "capped", i, models.ToolContext{}, EnqueueOptions{})
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	q.Wait()

	if maxConcurrent > 2 {
		t.Fatalf("expected concurrency cap of 2, observed %d", maxConcurrent)
	}
}

func TestReclaimAfterRestart(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	stuck := &models.Job{ID: "job-stuck", Queue: "q", State: models.JobRunning, Attempts: 1, MaxAttempts: 3, CreatedAt: now, UpdatedAt: now}
	_ = store.Create(context.Background(), stuck)

	q := New(store, nil, nil)
	n, err := q.ReclaimAfterRestart(context.Background())
	if err != nil {
		t.Fatalf("ReclaimAfterRestart: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed job, got %d", n)
	}
	job, _, _ := q.GetJob(context.Background(), "job-stuck")
	if job.State != models.JobQueued || job.Attempts != 2 {
		t.Fatalf("expected requeued with attempts+1, got state=%s attempts=%d", job.State, job.Attempts)
	}
}

func waitForTerminal(t *testing.T, q *Queue, id string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, ok, err := q.GetJob(context.Background(), id)
		if err == nil && ok && (job.State == models.JobCompleted || job.State == models.JobFailed) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state in time", id)
}
