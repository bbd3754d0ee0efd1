package models

import "time"

// ToolSetVariant distinguishes how a ToolSet's tools are reached.
type ToolSetVariant string

const (
	ToolSetSystem   ToolSetVariant = "system"
	ToolSetInternal ToolSetVariant = "internal"
	ToolSetExternal ToolSetVariant = "external"
)

// ToolDescriptor advertises one callable tool.
type ToolDescriptor struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	ShortDescription string         `json:"shortDescription"` // <= 50 chars
	Parameters       map[string]any `json:"parameters"`        // JSON schema
	Examples         []string       `json:"examples,omitempty"`
	Enabled          bool           `json:"enabled"`
}

// ToolResult is the outcome of a tool invocation.
type ToolResult struct {
	OK      bool   `json:"ok"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthStatus reports a tool set's cached liveness.
type HealthStatus struct {
	Status    string    `json:"status"` // "healthy", "unhealthy", "unknown"
	LastCheck time.Time `json:"lastCheck"`
	Error     string    `json:"error,omitempty"`
}
