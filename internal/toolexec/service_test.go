package toolexec_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hearthai/hearth/internal/eventbus"
	"github.com/hearthai/hearth/internal/toolbox"
	"github.com/hearthai/hearth/internal/toolexec"
	"github.com/hearthai/hearth/internal/workqueue"
	"github.com/hearthai/hearth/pkg/models"
)

func newRegistryWithEcho(t *testing.T) *toolbox.Registry {
	t.Helper()
	registry := toolbox.New(nil, time.Minute)
	set := toolbox.NewSystemSet("system")
	descriptor, fn := toolbox.EchoTool()
	set.Add(descriptor, fn)
	if err := registry.Register(context.Background(), set); err != nil {
		t.Fatalf("register system set: %v", err)
	}
	return registry
}

func TestToolExecuteEventProducesExactlyOneToolExecuted(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New(nil)
	queue := workqueue.New(workqueue.NewMemoryStore(), bus, nil)
	registry := newRegistryWithEcho(t)

	svc := toolexec.New(registry, bus, queue, nil)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}

	var executed int32
	var lastResult models.ToolResult
	bus.Subscribe(models.EventToolExecuted, func(ctx context.Context, event models.Event) error {
		payload := event.Payload.(models.ToolExecutedPayload)
		if payload.ExecutionID == "exec-1" {
			atomic.AddInt32(&executed, 1)
			lastResult = payload.Result
		}
		return nil
	})

	bus.Publish(ctx, models.Event{
		Kind:      models.EventToolExecute,
		Publisher: "test",
		Payload: models.ToolExecutePayload{
			ExecutionID: "exec-1",
			ToolName:    "echo",
			Args:        map[string]any{"text": "hi"},
			Ctx:         models.ToolContext{UserID: "u1"},
		},
		Timestamp: time.Now(),
	})
	queue.Wait()

	if atomic.LoadInt32(&executed) != 1 {
		t.Fatalf("expected exactly 1 tool_executed for exec-1, got %d", executed)
	}
	if !lastResult.OK {
		t.Fatalf("expected ok result, got %+v", lastResult)
	}
}

func TestUnknownToolPublishesTerminalFailureWithoutRetry(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New(nil)
	queue := workqueue.New(workqueue.NewMemoryStore(), bus, nil)
	registry := newRegistryWithEcho(t)

	svc := toolexec.New(registry, bus, queue, nil)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}

	var calls int32
	var okResult bool
	bus.Subscribe(models.EventToolExecuted, func(ctx context.Context, event models.Event) error {
		payload := event.Payload.(models.ToolExecutedPayload)
		if payload.ExecutionID == "exec-2" {
			atomic.AddInt32(&calls, 1)
			okResult = payload.Result.OK
		}
		return nil
	})

	bus.Publish(ctx, models.Event{
		Kind:      models.EventToolExecute,
		Publisher: "test",
		Payload: models.ToolExecutePayload{
			ExecutionID: "exec-2",
			ToolName:    "does-not-exist",
			Ctx:         models.ToolContext{UserID: "u1"},
		},
		Timestamp: time.Now(),
	})
	queue.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 terminal tool_executed for an unknown tool, got %d", calls)
	}
	if okResult {
		t.Fatalf("expected a non-ok result for an unknown tool")
	}
}
