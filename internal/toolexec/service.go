// Package toolexec wires the tool execution pipeline described by the
// planner's correlated request/response contract: a tool_execute event
// is turned into a durable job on the tool-execution queue, and the
// queue's worker calls the tool registry and always publishes a
// terminal tool_executed event, regardless of outcome.
package toolexec

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hearthai/hearth/internal/eventbus"
	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/internal/observability"
	"github.com/hearthai/hearth/internal/toolbox"
	"github.com/hearthai/hearth/internal/workqueue"
	"github.com/hearthai/hearth/pkg/models"
)

// QueueName is the work queue that fronts the tool registry.
const QueueName = "tool-execution"

const defaultConcurrency = 4

// Service subscribes to tool_execute, enqueues a job per execution,
// and runs a worker that dispatches through the tool registry.
type Service struct {
	registry    *toolbox.Registry
	bus         *eventbus.Bus
	queue       *workqueue.Queue
	log         *observability.Logger
	concurrency int
	retry       workqueue.RetryPolicy
}

// New constructs a Service. Call Start to subscribe and register the
// queue worker; it must be called at most once per process.
func New(registry *toolbox.Registry, bus *eventbus.Bus, queue *workqueue.Queue, log *observability.Logger) *Service {
	return &Service{
		registry:    registry,
		bus:         bus,
		queue:       queue,
		log:         log,
		concurrency: defaultConcurrency,
		retry:       workqueue.DefaultRetryPolicy(),
	}
}

// WithConcurrency overrides the tool-execution worker's concurrency cap.
func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// WithRetryPolicy overrides the tool-execution queue's retry policy.
func (s *Service) WithRetryPolicy(p workqueue.RetryPolicy) *Service {
	s.retry = p
	return s
}

// Start subscribes to tool_execute and registers the tool-execution
// worker. It returns once both are wired; dispatch happens
// asynchronously thereafter.
func (s *Service) Start(ctx context.Context) error {
	if err := s.queue.RegisterWorker(QueueName, s.runJob, s.concurrency, s.retry); err != nil {
		return err
	}
	s.bus.Subscribe(models.EventToolExecute, s.handleToolExecute)
	return nil
}

// handleToolExecute enqueues one tool-execution job per tool_execute
// event. It never calls the registry directly: every execution, local
// or remote, goes through the same durable queue.
func (s *Service) handleToolExecute(ctx context.Context, event models.Event) error {
	var payload models.ToolExecutePayload
	if err := decodePayload(event.Payload, &payload); err != nil {
		if s.log != nil {
			s.log.Error(ctx, "tool_execute event payload malformed", "error", err)
		}
		return err
	}

	maxAttempts := payload.Retry.MaxAttempts
	_, err := s.queue.Enqueue(ctx, QueueName, payload, payload.Ctx, workqueue.EnqueueOptions{
		MaxAttempts: maxAttempts,
	})
	return err
}

// runJob calls the tool registry. tool_executed is published only for
// a terminal attempt — a success, or the last attempt the queue's
// retry policy allows — so that exactly one tool_executed reaches the
// planner per executionId; an intermediate retryable failure is
// returned as an error and never published, keeping retries invisible
// to the planner per the pipeline's invariant.
func (s *Service) runJob(ctx context.Context, job *models.Job) error {
	var payload models.ToolExecutePayload
	if err := decodePayload(job.Payload, &payload); err != nil {
		return herr.Wrap(herr.Permanent, err, "decode tool-execution job payload")
	}

	result, callErr := s.registry.CallTool(ctx, payload.ToolName, payload.Args, payload.Ctx)

	attemptErr := callErr
	if attemptErr == nil && !result.OK {
		attemptErr = herr.New(herr.Transient, "tool call returned non-ok result: "+result.Error)
	}

	success := attemptErr == nil
	terminal := success || job.Attempts >= job.MaxAttempts || !herr.Retryable(attemptErr)
	if terminal {
		s.bus.Publish(ctx, models.Event{
			Kind:      models.EventToolExecuted,
			Publisher: "toolexec",
			Payload: models.ToolExecutedPayload{
				ExecutionID: payload.ExecutionID,
				ToolName:    payload.ToolName,
				Result:      result,
				Ctx:         payload.Ctx,
			},
			Timestamp: time.Now(),
		})
	}

	return attemptErr
}

// decodePayload normalises an `any` job/event payload (a concrete
// struct when delivered in-process, a map[string]any once it has round
// tripped through a JSON-backed store) into target via a JSON re-encode.
func decodePayload(payload any, target any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
