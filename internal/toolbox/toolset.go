// Package toolbox implements the tool registry and the three ToolSet
// variants (system, internal, external-MCP) from the tool registry
// design: a single capability surface with optional lifecycle methods
// on the internal/external variants only.
package toolbox

import (
	"context"
	"sync"
	"time"

	"github.com/hearthai/hearth/pkg/models"
)

// ToolSet is the common surface every variant implements.
type ToolSet interface {
	ID() string
	Name() string
	Variant() models.ToolSetVariant
	ListTools(ctx context.Context) ([]models.ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args any, tctx models.ToolContext) (models.ToolResult, error)
	CheckHealth(ctx context.Context) (models.HealthStatus, error)
}

// Startable is implemented by Internal tool sets: the registry may
// start/stop them.
type Startable interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Connectable is implemented by External tool sets: the registry may
// connect/disconnect them.
type Connectable interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// healthCache caches one ToolSet's health for a configurable TTL, per
// §4.3's "cached per set with a configurable TTL" contract.
type healthCache struct {
	ttl     time.Duration
	mu      sync.Mutex
	status  models.HealthStatus
	fetched time.Time
}

func (h *healthCache) get(ctx context.Context, fetch func(context.Context) (models.HealthStatus, error)) (models.HealthStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.fetched.IsZero() && time.Since(h.fetched) < h.ttl {
		return h.status, nil
	}
	status, err := fetch(ctx)
	if err != nil {
		return status, err
	}
	h.status = status
	h.fetched = time.Now()
	return status, nil
}
