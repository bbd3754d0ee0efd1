package planner

import (
	"context"
	"sync"
	"time"

	"github.com/hearthai/hearth/internal/eventbus"
	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/pkg/models"
)

// toolDispatcher publishes tool_execute events and resolves each by its
// executionId once a matching tool_executed arrives, per the tool
// execution pipeline's correlated request/response contract. Exactly
// one subscription is made per process, regardless of how many
// dispatcher values exist, since Subscribe is cheap and idempotent in
// effect (every pending call is still matched by executionId).
type toolDispatcher struct {
	bus     *eventbus.Bus
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan models.ToolExecutedPayload
}

func newToolDispatcher(bus *eventbus.Bus, timeout time.Duration) *toolDispatcher {
	d := &toolDispatcher{
		bus:     bus,
		timeout: timeout,
		pending: make(map[string]chan models.ToolExecutedPayload),
	}
	bus.Subscribe(models.EventToolExecuted, d.onToolExecuted)
	return d
}

func (d *toolDispatcher) onToolExecuted(ctx context.Context, event models.Event) error {
	payload, ok := event.Payload.(models.ToolExecutedPayload)
	if !ok {
		return herr.New(herr.Permanent, "tool_executed payload has unexpected type")
	}

	d.mu.Lock()
	ch, found := d.pending[payload.ExecutionID]
	if found {
		delete(d.pending, payload.ExecutionID)
	}
	d.mu.Unlock()

	if !found {
		// Unknown executionId: logged and dropped per the pipeline's
		// contract, not treated as a handler failure.
		return nil
	}
	ch <- payload
	return nil
}

// Dispatch publishes a tool_execute event for tool/args and blocks
// until the matching tool_executed arrives or the planner-side timeout
// elapses. The work-queue-side retry policy, if any, is invisible here
// — only the terminal tool_executed is ever delivered.
func (d *toolDispatcher) Dispatch(ctx context.Context, tool string, args map[string]any, tctx models.ToolContext, retry models.RetryOptions) (models.ToolResult, error) {
	executionID := models.NewID(models.KindExecution)
	ch := make(chan models.ToolExecutedPayload, 1)

	d.mu.Lock()
	d.pending[executionID] = ch
	d.mu.Unlock()

	d.bus.Publish(ctx, models.Event{
		Kind:      models.EventToolExecute,
		Publisher: "planner",
		Timestamp: time.Now(),
		Payload: models.ToolExecutePayload{
			ExecutionID: executionID,
			ToolName:    tool,
			Args:        args,
			Ctx:         tctx,
			Retry:       retry,
		},
	})

	timeout := d.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-ch:
		return payload.Result, nil
	case <-timer.C:
		d.mu.Lock()
		delete(d.pending, executionID)
		d.mu.Unlock()
		return models.ToolResult{}, herr.New(herr.Timeout, "tool call timed out: "+tool)
	case <-ctx.Done():
		d.mu.Lock()
		delete(d.pending, executionID)
		d.mu.Unlock()
		return models.ToolResult{}, herr.Wrap(herr.Timeout, ctx.Err(), "tool call cancelled: "+tool)
	}
}
