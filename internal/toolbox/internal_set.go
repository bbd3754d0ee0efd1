package toolbox

import (
	"context"
	"sync"
	"time"

	"github.com/hearthai/hearth/pkg/models"
)

// InternalSet is the Internal ToolSet variant: an in-process tool
// provider the registry can start/stop, e.g. one backed by a
// short-lived worker pool or a local resource that needs a lifecycle
// (a browser-automation pool, a sandboxed exec runner).
type InternalSet struct {
	id    string
	tools []systemTool

	mu      sync.Mutex
	running bool
	onStart func(ctx context.Context) error
	onStop  func(ctx context.Context) error
}

// NewInternalSet creates an Internal tool set with optional start/stop
// hooks; nil hooks make Start/Stop no-ops.
func NewInternalSet(id string, onStart, onStop func(ctx context.Context) error) *InternalSet {
	return &InternalSet{id: id, onStart: onStart, onStop: onStop}
}

// Add registers one tool implementation in the set.
func (s *InternalSet) Add(descriptor models.ToolDescriptor, fn SystemToolFunc) {
	descriptor.Enabled = true
	s.tools = append(s.tools, systemTool{descriptor: descriptor, fn: fn})
}

func (s *InternalSet) ID() string                    { return s.id }
func (s *InternalSet) Name() string                  { return s.id }
func (s *InternalSet) Variant() models.ToolSetVariant { return models.ToolSetInternal }

func (s *InternalSet) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if s.onStart != nil {
		if err := s.onStart(ctx); err != nil {
			return err
		}
	}
	s.running = true
	return nil
}

func (s *InternalSet) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	if s.onStop != nil {
		if err := s.onStop(ctx); err != nil {
			return err
		}
	}
	s.running = false
	return nil
}

func (s *InternalSet) ListTools(ctx context.Context) ([]models.ToolDescriptor, error) {
	out := make([]models.ToolDescriptor, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t.descriptor)
	}
	return out, nil
}

func (s *InternalSet) CallTool(ctx context.Context, name string, args any, tctx models.ToolContext) (models.ToolResult, error) {
	for _, t := range s.tools {
		if t.descriptor.Name == name {
			return t.fn(ctx, args, tctx)
		}
	}
	return models.ToolResult{OK: false, Error: "tool not found in internal set: " + name}, nil
}

func (s *InternalSet) CheckHealth(ctx context.Context) (models.HealthStatus, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return models.HealthStatus{Status: "unhealthy", LastCheck: time.Now(), Error: "not started"}, nil
	}
	return models.HealthStatus{Status: "healthy", LastCheck: time.Now()}, nil
}
