package toolbox

import (
	"context"
	"sync"
	"time"

	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/internal/observability"
	"github.com/hearthai/hearth/pkg/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Registry resolves tool calls by probing ToolSets in deterministic
// order: System, then Internal, then External, each variant group in
// insertion order, dispatching to the first set whose ListTools
// contains the requested name.
type Registry struct {
	log *observability.Logger

	mu      sync.RWMutex
	system  []ToolSet
	intern  []ToolSet
	extern  []ToolSet
	byName  map[string]ToolSet // name -> owning set, first-registered wins
	enabled map[string]bool

	health map[string]*healthCache
	ttl    time.Duration
}

// New creates an empty Registry with the given per-set health TTL.
func New(log *observability.Logger, healthTTL time.Duration) *Registry {
	return &Registry{
		log:     log,
		byName:  make(map[string]ToolSet),
		enabled: make(map[string]bool),
		health:  make(map[string]*healthCache),
		ttl:     healthTTL,
	}
}

// Register adds set to the registry. Every tool it advertises at
// registration time is claimed in the set's listing order; a name
// already claimed by a previously-registered set is rejected with
// Conflict and left owned by the first registrant, per §4.3/§9(c).
func (r *Registry) Register(ctx context.Context, set ToolSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tools, err := set.ListTools(ctx)
	if err != nil {
		return herr.Wrap(herr.Transient, err, "list tools for "+set.Name())
	}
	for _, tool := range tools {
		if _, exists := r.byName[tool.Name]; exists {
			return herr.New(herr.Conflict, "tool name already registered: "+tool.Name)
		}
	}
	for _, tool := range tools {
		r.byName[tool.Name] = set
		if _, ok := r.enabled[tool.Name]; !ok {
			r.enabled[tool.Name] = true
		}
	}

	switch set.Variant() {
	case models.ToolSetSystem:
		r.system = append(r.system, set)
	case models.ToolSetInternal:
		r.intern = append(r.intern, set)
	case models.ToolSetExternal:
		r.extern = append(r.extern, set)
	}
	r.health[set.ID()] = &healthCache{ttl: r.ttl}
	return nil
}

// SetEnabled toggles the per-tool enabled flag.
func (r *Registry) SetEnabled(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled[name] = enabled
}

// orderedSets returns every registered set in resolution order:
// System, Internal, External, each in insertion order.
func (r *Registry) orderedSets() []ToolSet {
	out := make([]ToolSet, 0, len(r.system)+len(r.intern)+len(r.extern))
	out = append(out, r.system...)
	out = append(out, r.intern...)
	out = append(out, r.extern...)
	return out
}

// ListTools returns every tool advertised by every registered set, in
// resolution order.
func (r *Registry) ListTools(ctx context.Context) ([]models.ToolDescriptor, error) {
	r.mu.RLock()
	sets := r.orderedSets()
	r.mu.RUnlock()

	var out []models.ToolDescriptor
	for _, set := range sets {
		tools, err := set.ListTools(ctx)
		if err != nil {
			return nil, herr.Wrap(herr.Transient, err, "list tools")
		}
		out = append(out, tools...)
	}
	return out, nil
}

// CallTool resolves name to its owning set (found at registration
// time, so resolution itself needs no per-call probing) and dispatches
// the call, short-circuiting with a Disabled result if the tool's
// enabled flag is false.
func (r *Registry) CallTool(ctx context.Context, name string, args any, tctx models.ToolContext) (models.ToolResult, error) {
	r.mu.RLock()
	set, ok := r.byName[name]
	enabled := r.enabled[name]
	r.mu.RUnlock()

	if !ok {
		return models.ToolResult{OK: false, Error: "unknown tool: " + name}, herr.New(herr.NotFound, "unknown tool "+name)
	}
	if !enabled {
		return models.ToolResult{OK: false, Error: "disabled"}, nil
	}
	return set.CallTool(ctx, name, args, tctx)
}

// CheckHealth returns the cached health for every registered set,
// refreshing any entry whose TTL has elapsed.
func (r *Registry) CheckHealth(ctx context.Context) map[string]models.HealthStatus {
	r.mu.RLock()
	sets := r.orderedSets()
	r.mu.RUnlock()

	out := make(map[string]models.HealthStatus, len(sets))
	for _, set := range sets {
		r.mu.RLock()
		cache := r.health[set.ID()]
		r.mu.RUnlock()
		status, err := cache.get(ctx, set.CheckHealth)
		if err != nil && r.log != nil {
			r.log.Warn(ctx, "health check failed", "toolset", set.ID(), "error", err)
		}
		out[set.ID()] = status
	}
	return out
}

// SweepHealth runs CheckHealth on a ticker until ctx is cancelled; this
// is the low-frequency background sweep §4.3 requires in addition to
// on-demand checks.
func (r *Registry) SweepHealth(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CheckHealth(ctx)
		}
	}
}

// ValidateArgs checks args against tool's JSON-schema parameters using
// santhosh-tekuri/jsonschema/v5, rejecting a call before it ever
// reaches a tool set.
func ValidateArgs(tool models.ToolDescriptor, args map[string]any) error {
	if tool.Parameters == nil {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	const resourceName = "schema.json"
	if err := compiler.AddResource(resourceName, toReader(tool.Parameters)); err != nil {
		return herr.Wrap(herr.Internal, err, "add schema resource")
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return herr.Wrap(herr.Internal, err, "compile schema")
	}
	if err := schema.ValidateInterface(toInterfaceMap(args)); err != nil {
		return herr.Wrap(herr.Validation, err, "tool arguments failed schema validation")
	}
	return nil
}
