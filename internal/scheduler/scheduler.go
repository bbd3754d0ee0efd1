// Package scheduler runs ScheduledTasks: a tick-based loop scans the
// schedule store for due tasks and dispatches each at least once,
// fire-and-forget, grounded in the teacher stack's cron scheduler's
// tick-loop/Start-Stop-RunOnce shape.
package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hearthai/hearth/internal/eventbus"
	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/internal/observability"
	"github.com/hearthai/hearth/internal/schedulestore"
	"github.com/hearthai/hearth/internal/workqueue"
	"github.com/hearthai/hearth/pkg/models"
	"github.com/robfig/cron/v3"
)

const defaultTickInterval = 30 * time.Second

// Scheduler ticks on an interval, scans the schedule store for due
// tasks, and dispatches each: a tool_call task is enqueued onto the
// work queue (so it gets the queue's own retry/crash-reclaim
// behavior), an event task is published directly on the bus.
type Scheduler struct {
	store schedulestore.Store
	bus   *eventbus.Bus
	queue *workqueue.Queue
	log   *observability.Logger

	now          func() time.Time
	tickInterval time.Duration

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Scheduler. queue may be nil when no tool_call tasks
// are expected to run (e.g. in tests exercising event-only tasks).
func New(store schedulestore.Store, bus *eventbus.Bus, queue *workqueue.Queue, log *observability.Logger) *Scheduler {
	return &Scheduler{
		store:        store,
		bus:          bus,
		queue:        queue,
		log:          log,
		now:          time.Now,
		tickInterval: defaultTickInterval,
	}
}

// WithTickInterval overrides the tick interval, mainly for tests.
func (s *Scheduler) WithTickInterval(d time.Duration) *Scheduler {
	s.tickInterval = d
	return s
}

// WithClock overrides the scheduler's notion of "now", for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// NextRun computes the next fire time after `after` for a cron
// expression. A 6-field expression is parsed with seconds enabled; any
// other field count uses the 5-field standard parser, per the
// scheduler's seconds-optional cron dialect.
func NextRun(schedule string, after time.Time) (time.Time, error) {
	fields := strings.Fields(schedule)
	var sched cron.Schedule
	var err error
	if len(fields) == 6 {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		sched, err = parser.Parse(schedule)
	} else {
		sched, err = cron.ParseStandard(schedule)
	}
	if err != nil {
		return time.Time{}, herr.Wrap(herr.Validation, err, "parse cron schedule "+schedule)
	}
	return sched.Next(after), nil
}

// Start begins the tick loop; it returns immediately and runs until
// ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
	return nil
}

// Stop halts the tick loop and waits for the in-flight tick to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce scans for due tasks and dispatches each, returning the
// number dispatched. Exposed directly for manual/CLI triggering and
// for deterministic tests.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	due, err := s.store.ListDue(ctx, s.now())
	if err != nil {
		if s.log != nil {
			s.log.Error(ctx, "list due scheduled tasks failed", "error", err)
		}
		return 0
	}

	dispatched := 0
	for _, task := range due {
		s.dispatch(ctx, task)
		dispatched++
	}
	return dispatched
}

// dispatch fires task once and advances its NextRun/LastRun, at least
// once: a dispatch failure is logged but the task's schedule still
// advances, since a missed fire-and-forget tick is not retried by the
// scheduler itself.
func (s *Scheduler) dispatch(ctx context.Context, task *models.ScheduledTask) {
	now := s.now()
	var dispatchErr error

	switch task.Type {
	case models.TaskTypeToolCall:
		dispatchErr = s.dispatchToolCall(ctx, task)
	case models.TaskTypeEvent:
		dispatchErr = s.dispatchEvent(ctx, task)
	default:
		dispatchErr = herr.New(herr.Permanent, "unknown scheduled task type: "+string(task.Type))
	}

	if dispatchErr != nil && s.log != nil {
		s.log.Error(ctx, "scheduled task dispatch failed", "task_id", task.ID, "error", dispatchErr)
	}

	lastRun := now
	task.LastRun = &lastRun
	if next, err := NextRun(task.Schedule, now); err != nil {
		if s.log != nil {
			s.log.Error(ctx, "scheduled task next-run computation failed, disabling", "task_id", task.ID, "error", err)
		}
		task.Enabled = false
		task.NextRun = nil
	} else {
		task.NextRun = &next
	}
	task.UpdatedAt = now

	if err := s.store.Update(ctx, task); err != nil && s.log != nil {
		s.log.Error(ctx, "scheduled task update after dispatch failed", "task_id", task.ID, "error", err)
	}

	if s.bus != nil {
		s.bus.Publish(ctx, models.Event{
			Kind:      models.EventSchedulerTaskUpdated,
			Publisher: "scheduler",
			Payload:   models.SchedulerTaskUpdatedPayload{TaskID: task.ID},
			Timestamp: now,
		})
	}
}

func (s *Scheduler) dispatchToolCall(ctx context.Context, task *models.ScheduledTask) error {
	if task.Payload.ToolName == "" {
		return herr.New(herr.Permanent, "tool_call task missing tool name: "+task.ID)
	}
	if s.queue == nil {
		return herr.New(herr.Internal, "scheduler has no work queue configured for tool_call dispatch")
	}
	tctx := models.ToolContext{
		UserID:         task.UserID,
		ConversationID: task.ConversationID,
		Source:         models.SourceDescriptor{Kind: models.SourceScheduler, ID: task.ID},
	}
	_, err := s.queue.Enqueue(ctx, "scheduler", models.ToolExecutePayload{
		ExecutionID: models.NewID(models.KindExecution),
		ToolName:    task.Payload.ToolName,
		Args:        task.Payload.Args,
		Ctx:         tctx,
	}, tctx, workqueue.EnqueueOptions{Priority: models.PriorityNormal})
	return err
}

func (s *Scheduler) dispatchEvent(ctx context.Context, task *models.ScheduledTask) error {
	if task.Payload.EventTopic == "" {
		return herr.New(herr.Permanent, "event task missing event topic: "+task.ID)
	}
	if s.bus == nil {
		return herr.New(herr.Internal, "scheduler has no event bus configured for event dispatch")
	}
	s.bus.Publish(ctx, models.Event{
		Kind:      models.EventKind(task.Payload.EventTopic),
		Publisher: "scheduler:" + task.ID,
		Payload:   task.Payload.EventPayload,
		Timestamp: s.now(),
	})
	return nil
}
