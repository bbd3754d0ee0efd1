package toolbox

import (
	"context"
	"testing"

	"github.com/hearthai/hearth/pkg/models"
)

func TestEchoToolReturnsInputUnchanged(t *testing.T) {
	_, fn := EchoTool()
	result, err := fn(context.Background(), map[string]any{"text": "hello"}, models.ToolContext{})
	if err != nil {
		t.Fatalf("echo: %v", err)
	}
	if !result.OK || result.Data["text"] != "hello" {
		t.Fatalf("unexpected echo result: %+v", result)
	}
}

func TestDatetimeToolReturnsRFC3339(t *testing.T) {
	_, fn := DatetimeTool()
	result, err := fn(context.Background(), map[string]any{}, models.ToolContext{})
	if err != nil {
		t.Fatalf("datetime: %v", err)
	}
	now, ok := result.Data["now"].(string)
	if !ok || now == "" {
		t.Fatalf("expected a non-empty RFC3339 timestamp, got %+v", result.Data)
	}
}

func TestInternalSetStartStopLifecycle(t *testing.T) {
	started, stopped := false, false
	set := NewInternalSet("worker-pool",
		func(ctx context.Context) error { started = true; return nil },
		func(ctx context.Context) error { stopped = true; return nil },
	)

	ctx := context.Background()
	health, _ := set.CheckHealth(ctx)
	if health.Status != "unhealthy" {
		t.Fatalf("expected unhealthy before Start, got %+v", health)
	}

	if err := set.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !started {
		t.Fatalf("expected onStart hook to run")
	}
	health, _ = set.CheckHealth(ctx)
	if health.Status != "healthy" {
		t.Fatalf("expected healthy after Start, got %+v", health)
	}

	if err := set.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !stopped {
		t.Fatalf("expected onStop hook to run")
	}
}
