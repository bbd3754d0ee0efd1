package toolbox

import (
	"context"
	"testing"
	"time"

	"github.com/hearthai/hearth/pkg/models"
)

func newTool(name string) (models.ToolDescriptor, SystemToolFunc) {
	descriptor := models.ToolDescriptor{Name: name, Parameters: map[string]any{"type": "object", "properties": map[string]any{}}}
	fn := func(ctx context.Context, args any, tctx models.ToolContext) (models.ToolResult, error) {
		return models.ToolResult{OK: true, Data: map[string]any{"called": name}}, nil
	}
	return descriptor, fn
}

func TestResolutionOrderSystemBeforeInternalBeforeExternal(t *testing.T) {
	reg := New(nil, time.Minute)
	ctx := context.Background()

	sys := NewSystemSet("sys")
	descriptor, fn := newTool("shared")
	sys.Add(descriptor, fn)

	internal := NewInternalSet("int", nil, nil)
	descriptor2, fn2 := newTool("only_internal")
	internal.Add(descriptor2, fn2)

	if err := reg.Register(ctx, sys); err != nil {
		t.Fatalf("register system: %v", err)
	}
	if err := reg.Register(ctx, internal); err != nil {
		t.Fatalf("register internal: %v", err)
	}

	result, err := reg.CallTool(ctx, "shared", map[string]any{}, models.ToolContext{})
	if err != nil {
		t.Fatalf("call shared: %v", err)
	}
	if !result.OK || result.Data["called"] != "shared" {
		t.Fatalf("expected system tool to answer, got %+v", result)
	}

	result2, err := reg.CallTool(ctx, "only_internal", map[string]any{}, models.ToolContext{})
	if err != nil || !result2.OK {
		t.Fatalf("expected internal tool to answer: %v %+v", err, result2)
	}
}

func TestRegisterRejectsNameConflictFirstRegistrantWins(t *testing.T) {
	reg := New(nil, time.Minute)
	ctx := context.Background()

	first := NewSystemSet("first")
	d1, f1 := newTool("dup")
	first.Add(d1, f1)

	second := NewSystemSet("second")
	d2, f2 := newTool("dup")
	second.Add(d2, f2)

	if err := reg.Register(ctx, first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := reg.Register(ctx, second); err == nil {
		t.Fatalf("expected conflict registering second set with duplicate tool name")
	}

	result, err := reg.CallTool(ctx, "dup", map[string]any{}, models.ToolContext{})
	if err != nil {
		t.Fatalf("call dup: %v", err)
	}
	// The first registrant's implementation must still be the one that answers.
	if result.Data["called"] != "dup" {
		t.Fatalf("unexpected responder data: %+v", result)
	}
}

func TestSetEnabledShortCircuitsCallTool(t *testing.T) {
	reg := New(nil, time.Minute)
	ctx := context.Background()

	sys := NewSystemSet("sys")
	descriptor, fn := newTool("toggle")
	sys.Add(descriptor, fn)
	if err := reg.Register(ctx, sys); err != nil {
		t.Fatalf("register: %v", err)
	}

	reg.SetEnabled("toggle", false)
	result, err := reg.CallTool(ctx, "toggle", map[string]any{}, models.ToolContext{})
	if err != nil {
		t.Fatalf("call toggle: %v", err)
	}
	if result.OK {
		t.Fatalf("expected disabled tool to short-circuit, got OK result %+v", result)
	}

	reg.SetEnabled("toggle", true)
	result2, err := reg.CallTool(ctx, "toggle", map[string]any{}, models.ToolContext{})
	if err != nil || !result2.OK {
		t.Fatalf("expected re-enabled tool to answer: %v %+v", err, result2)
	}
}

func TestCallToolUnknownNameReturnsNotFound(t *testing.T) {
	reg := New(nil, time.Minute)
	ctx := context.Background()
	_, err := reg.CallTool(ctx, "nonexistent", map[string]any{}, models.ToolContext{})
	if err == nil {
		t.Fatalf("expected error for unknown tool")
	}
}

type countingHealthSet struct {
	*SystemSet
	calls int
}

func (c *countingHealthSet) CheckHealth(ctx context.Context) (models.HealthStatus, error) {
	c.calls++
	return models.HealthStatus{Status: "healthy", LastCheck: time.Now()}, nil
}

func TestCheckHealthCachesWithinTTL(t *testing.T) {
	reg := New(nil, time.Hour)
	ctx := context.Background()

	set := &countingHealthSet{SystemSet: NewSystemSet("sys")}
	if err := reg.Register(ctx, set); err != nil {
		t.Fatalf("register: %v", err)
	}

	reg.CheckHealth(ctx)
	reg.CheckHealth(ctx)
	reg.CheckHealth(ctx)

	if set.calls != 1 {
		t.Fatalf("expected a single underlying health check within TTL, got %d", set.calls)
	}
}

func TestValidateArgsRejectsMissingRequiredField(t *testing.T) {
	descriptor := models.ToolDescriptor{
		Name: "needs_text",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []any{"text"},
		},
	}
	if err := ValidateArgs(descriptor, map[string]any{}); err == nil {
		t.Fatalf("expected validation error for missing required field")
	}
	if err := ValidateArgs(descriptor, map[string]any{"text": "hi"}); err != nil {
		t.Fatalf("expected valid args to pass: %v", err)
	}
}
