package config

import "time"

// ToolboxConfig configures the tool registry and the tool execution
// pipeline that dispatches queued tool_execute jobs against it.
type ToolboxConfig struct {
	// HealthTTL is the registry's health-sweep interval
	// (toolbox.Registry.SweepHealth).
	HealthTTL time.Duration `yaml:"health_ttl"`

	// Execution configures the worker pool that drains tool_execute
	// jobs (internal/toolexec.Service).
	Execution ToolExecutionConfig `yaml:"execution"`

	// Calendar configures the optional Google Calendar system tool.
	Calendar CalendarToolConfig `yaml:"calendar"`
}

// CalendarToolConfig holds the OAuth2 client credentials and refresh
// token the calendar_list_events system tool uses to read a Google
// Calendar on the operator's behalf.
type CalendarToolConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	CalendarID   string `yaml:"calendar_id"`
}

// ToolExecutionConfig controls runtime tool execution behavior.
type ToolExecutionConfig struct {
	Parallelism  int           `yaml:"parallelism"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	Timeout      time.Duration `yaml:"timeout"`
}

// MCPConfig wraps internal/mcp.Config: the set of external MCP
// servers the external tool set connects to.
type MCPConfig struct {
	Enabled bool             `yaml:"enabled"`
	Servers []MCPServerEntry `yaml:"servers"`
}

// MCPServerEntry names one external MCP server and how to reach it.
// It is translated into an *mcp.ServerConfig at wiring time rather
// than embedding that type directly, so config stays yaml-clean of
// the transport-specific fields mcp.ServerConfig carries for stdio
// vs. HTTP.
type MCPServerEntry struct {
	Name      string   `yaml:"name"`
	Transport string   `yaml:"transport"` // "stdio" | "http"
	Command   string   `yaml:"command"`
	Args      []string `yaml:"args"`
	URL       string   `yaml:"url"`
	AutoStart bool     `yaml:"auto_start"`
}
