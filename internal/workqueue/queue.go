// Package workqueue implements the durable, named work queues that
// front the tool-execution worker pool (and any other background
// worker) behind a queued -> running -> (completed | failed) job state
// machine, with exponential-backoff-with-jitter retries and a strict
// per-queue concurrency cap.
package workqueue

import (
	"context"
	"sync"
	"time"

	"github.com/hearthai/hearth/internal/backoff"
	"github.com/hearthai/hearth/internal/eventbus"
	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/internal/observability"
	"github.com/hearthai/hearth/pkg/models"
)

// WorkerFunc processes one job's payload. An error return marks the
// job's attempt failed; herr.Retryable(err) (or a plain, unwrapped
// error) decides whether the job is eligible to re-enter queued.
type WorkerFunc func(ctx context.Context, job *models.Job) error

// RetryPolicy is a queue's {maxAttempts, backoff} contract.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     backoff.BackoffPolicy
}

// DefaultRetryPolicy mirrors the teacher stack's DefaultPolicy: three
// attempts, 100ms-30s exponential backoff with 10% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: backoff.DefaultPolicy()}
}

// EnqueueOptions customises one enqueue call.
type EnqueueOptions struct {
	Priority    models.Priority
	DelayMs     int64
	MaxAttempts int // 0 means "use the queue's registered retry policy"
}

// Store is the durability contract behind a Queue: every job must
// survive a process restart. MemoryStore and a database/sql-backed
// store both satisfy it.
type Store interface {
	Create(ctx context.Context, job *models.Job) error
	Update(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, bool, error)
	List(ctx context.Context, queue string) ([]*models.Job, error)
	// ListRunning returns every job in the running state across all
	// queues, used at startup to reclaim crashed work.
	ListRunning(ctx context.Context) ([]*models.Job, error)
}

type registeredQueue struct {
	handler     WorkerFunc
	concurrency int
	retry       RetryPolicy
	sem         chan struct{}
}

// Queue is the work-queue service: one process-wide registry of named
// queues, each with at most one registered worker.
type Queue struct {
	store Store
	bus   *eventbus.Bus
	log   *observability.Logger
	now   func() time.Time

	mu      sync.Mutex
	queues  map[string]*registeredQueue
	cancels map[string]context.CancelFunc

	wg sync.WaitGroup
}

// New creates a Queue backed by store, publishing job_updated events on
// bus.
func New(store Store, bus *eventbus.Bus, log *observability.Logger) *Queue {
	return &Queue{
		store:   store,
		bus:     bus,
		log:     log,
		now:     time.Now,
		queues:  make(map[string]*registeredQueue),
		cancels: make(map[string]context.CancelFunc),
	}
}

// RegisterWorker registers handler as the sole worker for queueName,
// with the given concurrency cap and retry policy. It may be called
// at most once per queue name.
func (q *Queue) RegisterWorker(queueName string, handler WorkerFunc, concurrency int, retry RetryPolicy) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.queues[queueName]; exists {
		return herr.New(herr.Conflict, "worker already registered for queue "+queueName)
	}
	q.queues[queueName] = &registeredQueue{
		handler:     handler,
		concurrency: concurrency,
		retry:       retry,
		sem:         make(chan struct{}, concurrency),
	}
	return nil
}

// Enqueue durably records a new job on queueName and returns its id.
// If a worker is registered for the queue, dispatch is attempted
// immediately (subject to the concurrency cap); otherwise the job
// waits in the queued state until a worker registers and Drain (or a
// future enqueue) wakes it.
func (q *Queue) Enqueue(ctx context.Context, queueName string, payload any, tctx models.ToolContext, opts EnqueueOptions) (string, error) {
	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = q.retryFor(queueName).MaxAttempts
	}
	now := q.now()
	job := &models.Job{
		ID:          models.NewID(models.KindJob),
		Queue:       queueName,
		Payload:     payload,
		Ctx:         tctx,
		Attempts:    0,
		MaxAttempts: maxAttempts,
		Priority:    opts.Priority,
		State:       models.JobQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.store.Create(ctx, job); err != nil {
		return "", herr.Wrap(herr.Transient, err, "create job")
	}
	if opts.DelayMs > 0 {
		go func() {
			select {
			case <-time.After(time.Duration(opts.DelayMs) * time.Millisecond):
				q.dispatch(context.Background(), job.ID)
			case <-ctx.Done():
			}
		}()
	} else {
		q.dispatch(ctx, job.ID)
	}
	return job.ID, nil
}

func (q *Queue) retryFor(queueName string) RetryPolicy {
	q.mu.Lock()
	defer q.mu.Unlock()
	if rq, ok := q.queues[queueName]; ok {
		return rq.retry
	}
	return DefaultRetryPolicy()
}

// dispatch attempts to hand job off to its queue's worker, respecting
// the concurrency cap; if the cap is saturated or no worker is
// registered yet, it is a no-op — the job remains queued and will be
// picked up by the next Drain.
func (q *Queue) dispatch(ctx context.Context, jobID string) {
	job, ok, err := q.store.Get(ctx, jobID)
	if err != nil || !ok || job.State != models.JobQueued {
		return
	}
	q.mu.Lock()
	rq, ok := q.queues[job.Queue]
	q.mu.Unlock()
	if !ok {
		return
	}

	select {
	case rq.sem <- struct{}{}:
	default:
		return
	}

	q.wg.Add(1)
	go q.run(job, rq)
}

func (q *Queue) run(job *models.Job, rq *registeredQueue) {
	defer q.wg.Done()
	defer func() {
		<-rq.sem
		q.fillSlot(context.Background(), job.Queue)
	}()

	ctx := context.Background()
	job.Attempts++
	job.State = models.JobRunning
	job.UpdatedAt = q.now()
	if err := q.store.Update(ctx, job); err != nil {
		if q.log != nil {
			q.log.Error(ctx, "failed to mark job running", "job", job.ID, "error", err)
		}
	}

	err := rq.handler(ctx, job)
	if err == nil {
		job.State = models.JobCompleted
		job.Error = ""
		job.UpdatedAt = q.now()
		_ = q.store.Update(ctx, job)
		q.publishUpdate(ctx, job)
		return
	}

	if job.Attempts < job.MaxAttempts && herr.Retryable(err) {
		delay := rq.retry.Backoff
		job.State = models.JobQueued
		job.Error = err.Error()
		job.UpdatedAt = q.now()
		_ = q.store.Update(ctx, job)
		wait := backoff.ComputeBackoff(delay, job.Attempts)
		go func() {
			time.Sleep(wait)
			q.dispatch(context.Background(), job.ID)
		}()
		return
	}

	job.State = models.JobFailed
	job.Error = err.Error()
	job.UpdatedAt = q.now()
	_ = q.store.Update(ctx, job)
	q.publishUpdate(ctx, job)
}

func (q *Queue) publishUpdate(ctx context.Context, job *models.Job) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(ctx, models.Event{
		Kind:      models.EventJobUpdated,
		Publisher: "workqueue",
		Timestamp: q.now(),
		Payload: models.JobUpdatedPayload{
			JobID: job.ID,
			Queue: job.Queue,
			State: job.State,
		},
	})
}

// fillSlot picks the highest-priority, oldest queued job on queueName
// (priority first, then FIFO) and dispatches it, if the queue's
// concurrency cap has a free slot. Called whenever a slot frees up so
// that priority ordering is honored across the whole backlog, not just
// at enqueue time.
func (q *Queue) fillSlot(ctx context.Context, queueName string) {
	jobs, err := q.store.List(ctx, queueName)
	if err != nil {
		return
	}
	var best *models.Job
	for _, j := range jobs {
		if j.State != models.JobQueued {
			continue
		}
		if best == nil {
			best = j
			continue
		}
		if j.Priority > best.Priority {
			best = j
		} else if j.Priority == best.Priority && j.CreatedAt.Before(best.CreatedAt) {
			best = j
		}
	}
	if best != nil {
		q.dispatch(ctx, best.ID)
	}
}

// ListJobs returns every job on queueName.
func (q *Queue) ListJobs(ctx context.Context, queueName string) ([]*models.Job, error) {
	return q.store.List(ctx, queueName)
}

// GetJob returns one job by id.
func (q *Queue) GetJob(ctx context.Context, id string) (*models.Job, bool, error) {
	return q.store.Get(ctx, id)
}

// ReclaimAfterRestart reclaims every job left in the running state by
// a crashed process, moving it back to queued with attempts+1, per the
// work queue's durability contract. Handlers are treated as
// non-idempotent by default; callers that registered an idempotent
// handler should not rely on attempts accounting being skipped here —
// the reclaim always increments, documenting the re-delivery clearly
// rather than silently guessing idempotency.
func (q *Queue) ReclaimAfterRestart(ctx context.Context) (int, error) {
	running, err := q.store.ListRunning(ctx)
	if err != nil {
		return 0, herr.Wrap(herr.Transient, err, "list running jobs")
	}
	for _, job := range running {
		job.State = models.JobQueued
		job.Attempts++
		job.UpdatedAt = q.now()
		if err := q.store.Update(ctx, job); err != nil {
			return 0, herr.Wrap(herr.Transient, err, "reclaim job "+job.ID)
		}
		q.dispatch(ctx, job.ID)
	}
	return len(running), nil
}

// Drain attempts to dispatch every currently-queued job on queueName,
// useful right after RegisterWorker runs for a queue that already has
// backlog (e.g. from ReclaimAfterRestart before the worker existed).
func (q *Queue) Drain(ctx context.Context, queueName string) error {
	jobs, err := q.store.List(ctx, queueName)
	if err != nil {
		return herr.Wrap(herr.Transient, err, "list jobs")
	}
	for _, job := range jobs {
		if job.State == models.JobQueued {
			q.dispatch(ctx, job.ID)
		}
	}
	return nil
}

// Wait blocks until every in-flight job handler invocation started by
// this Queue has returned. Intended for graceful shutdown and tests.
func (q *Queue) Wait() {
	q.wg.Wait()
}
