package toolbox

import (
	"context"
	"time"

	"github.com/hearthai/hearth/pkg/models"
)

// SystemToolFunc implements one tool's behavior.
type SystemToolFunc func(ctx context.Context, args any, tctx models.ToolContext) (models.ToolResult, error)

// systemTool pairs a descriptor with its implementation.
type systemTool struct {
	descriptor models.ToolDescriptor
	fn         SystemToolFunc
}

// SystemSet is the System ToolSet variant: registered at boot, not
// lifecycle-managed by the registry, always running.
type SystemSet struct {
	id    string
	tools []systemTool
}

// NewSystemSet creates a System tool set with the given id.
func NewSystemSet(id string) *SystemSet {
	return &SystemSet{id: id}
}

// Add registers one tool implementation in the set.
func (s *SystemSet) Add(descriptor models.ToolDescriptor, fn SystemToolFunc) {
	descriptor.Enabled = true
	s.tools = append(s.tools, systemTool{descriptor: descriptor, fn: fn})
}

func (s *SystemSet) ID() string                       { return s.id }
func (s *SystemSet) Name() string                     { return s.id }
func (s *SystemSet) Variant() models.ToolSetVariant    { return models.ToolSetSystem }

func (s *SystemSet) ListTools(ctx context.Context) ([]models.ToolDescriptor, error) {
	out := make([]models.ToolDescriptor, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t.descriptor)
	}
	return out, nil
}

func (s *SystemSet) CallTool(ctx context.Context, name string, args any, tctx models.ToolContext) (models.ToolResult, error) {
	for _, t := range s.tools {
		if t.descriptor.Name == name {
			return t.fn(ctx, args, tctx)
		}
	}
	return models.ToolResult{OK: false, Error: "tool not found in system set: " + name}, nil
}

func (s *SystemSet) CheckHealth(ctx context.Context) (models.HealthStatus, error) {
	return models.HealthStatus{Status: "healthy", LastCheck: time.Now()}, nil
}

// EchoTool returns the System tool descriptor/implementation used by
// the echo-round-trip scenario: it returns its input text unchanged.
func EchoTool() (models.ToolDescriptor, SystemToolFunc) {
	descriptor := models.ToolDescriptor{
		Name:             "echo",
		Description:      "Echoes back the provided text, unchanged.",
		ShortDescription: "Echo text back",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []any{"text"},
		},
	}
	fn := func(ctx context.Context, args any, tctx models.ToolContext) (models.ToolResult, error) {
		m, _ := args.(map[string]any)
		text, _ := m["text"].(string)
		return models.ToolResult{OK: true, Data: map[string]any{"text": text}}, nil
	}
	return descriptor, fn
}

// DatetimeTool returns a tool that reports the current time in UTC,
// grounded in the teacher stack's internal/datetime conventions.
func DatetimeTool() (models.ToolDescriptor, SystemToolFunc) {
	descriptor := models.ToolDescriptor{
		Name:             "current_datetime",
		Description:      "Returns the current date and time in UTC, RFC3339 formatted.",
		ShortDescription: "Get the current date and time",
		Parameters:       map[string]any{"type": "object", "properties": map[string]any{}},
	}
	fn := func(ctx context.Context, args any, tctx models.ToolContext) (models.ToolResult, error) {
		return models.ToolResult{OK: true, Data: map[string]any{"now": time.Now().UTC().Format(time.RFC3339)}}, nil
	}
	return descriptor, fn
}
