package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hearthai/hearth/internal/eventbus"
	"github.com/hearthai/hearth/internal/scheduler"
	"github.com/hearthai/hearth/internal/schedulestore"
	"github.com/hearthai/hearth/internal/workqueue"
	"github.com/hearthai/hearth/pkg/models"
)

func TestNextRunFiveFieldStandard(t *testing.T) {
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := scheduler.NextRun("0 9 * * *", after)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	want := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("got %v want %v", next, want)
	}
}

func TestNextRunSixFieldWithSeconds(t *testing.T) {
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := scheduler.NextRun("30 0 9 * * *", after)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	want := time.Date(2026, 1, 1, 9, 0, 30, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("got %v want %v", next, want)
	}
}

func TestNextRunRejectsInvalidSchedule(t *testing.T) {
	if _, err := scheduler.NextRun("not a schedule", time.Now()); err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
}

func TestRunOnceDispatchesDueEventTask(t *testing.T) {
	store := schedulestore.NewMemoryStore()
	bus := eventbus.New(nil)
	ctx := context.Background()

	var received int32
	bus.Subscribe(models.EventKind("custom_topic"), func(ctx context.Context, event models.Event) error {
		atomic.AddInt32(&received, 1)
		return nil
	})

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	nextRun := now.Add(-time.Minute) // already due
	task := &models.ScheduledTask{
		ID:        "task-1",
		Type:      models.TaskTypeEvent,
		Schedule:  "* * * * *",
		Payload:   models.TaskPayload{EventTopic: "custom_topic"},
		UserID:    "u1",
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
		NextRun:   &nextRun,
	}
	if err := store.Create(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	sched := scheduler.New(store, bus, nil, nil).WithClock(func() time.Time { return now })
	dispatched := sched.RunOnce(ctx)
	if dispatched != 1 {
		t.Fatalf("expected 1 dispatch, got %d", dispatched)
	}
	if atomic.LoadInt32(&received) != 1 {
		t.Fatalf("expected event subscriber to be invoked once, got %d", received)
	}

	updated, err := store.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("get updated task: %v", err)
	}
	if updated.LastRun == nil || !updated.LastRun.Equal(now) {
		t.Fatalf("expected LastRun to be set to the dispatch time, got %+v", updated.LastRun)
	}
	if updated.NextRun == nil || !updated.NextRun.After(now) {
		t.Fatalf("expected NextRun to advance past dispatch time, got %+v", updated.NextRun)
	}
}

func TestRunOnceSkipsNotYetDueTask(t *testing.T) {
	store := schedulestore.NewMemoryStore()
	bus := eventbus.New(nil)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	task := &models.ScheduledTask{
		ID: "task-future", Type: models.TaskTypeEvent, Schedule: "0 * * * *",
		Payload: models.TaskPayload{EventTopic: "custom_topic"}, UserID: "u1", Enabled: true,
		CreatedAt: now, UpdatedAt: now, NextRun: &future,
	}
	if err := store.Create(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}

	sched := scheduler.New(store, bus, nil, nil).WithClock(func() time.Time { return now })
	if dispatched := sched.RunOnce(ctx); dispatched != 0 {
		t.Fatalf("expected 0 dispatches for a not-yet-due task, got %d", dispatched)
	}
}

func TestRunOnceDispatchesToolCallViaWorkQueue(t *testing.T) {
	store := schedulestore.NewMemoryStore()
	bus := eventbus.New(nil)
	ctx := context.Background()

	jobStore := workqueue.NewMemoryStore()
	queue := workqueue.New(jobStore, bus, nil)
	var called int32
	if err := queue.RegisterWorker("scheduler", func(ctx context.Context, job *models.Job) error {
		atomic.AddInt32(&called, 1)
		return nil
	}, 1, workqueue.DefaultRetryPolicy()); err != nil {
		t.Fatalf("register worker: %v", err)
	}

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	due := now.Add(-time.Minute)
	task := &models.ScheduledTask{
		ID: "task-tool", Type: models.TaskTypeToolCall, Schedule: "* * * * *",
		Payload: models.TaskPayload{ToolName: "echo", Args: map[string]any{"text": "hi"}},
		UserID:  "u1", Enabled: true, CreatedAt: now, UpdatedAt: now, NextRun: &due,
	}
	if err := store.Create(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}

	sched := scheduler.New(store, bus, queue, nil).WithClock(func() time.Time { return now })
	if dispatched := sched.RunOnce(ctx); dispatched != 1 {
		t.Fatalf("expected 1 dispatch, got %d", dispatched)
	}
	queue.Wait()
	if atomic.LoadInt32(&called) != 1 {
		t.Fatalf("expected the work queue worker to run once, got %d", called)
	}
}
