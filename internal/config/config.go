// Package config loads and validates the runtime configuration for the
// Hearth assistant backend: a root Config struct aggregating
// yaml-tagged sub-configs, loaded from a YAML file (with $include
// support for splitting secrets out of a checked-in base file) and
// then overridden field-by-field from HEARTH_SECTION_FIELD
// environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure for the hearth binary.
type Config struct {
	Version int `yaml:"version"`

	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage"`
	Vector     VectorConfig     `yaml:"vector"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	LLM        LLMConfig        `yaml:"llm"`
	Toolbox    ToolboxConfig    `yaml:"toolbox"`
	MCP        MCPConfig        `yaml:"mcp"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Auth       AuthConfig       `yaml:"auth"`
}

// ServerConfig configures the process's own listening surfaces.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// Validate checks the config for internally inconsistent or missing
// required values, returning every issue found rather than stopping at
// the first one.
func (c *Config) Validate() error {
	var issues []string

	if err := ValidateVersion(c.Version); err != nil {
		issues = append(issues, err.Error())
	}
	switch c.Storage.Driver {
	case "":
		issues = append(issues, "storage.driver is required")
	case "memory", "postgres":
	default:
		issues = append(issues, fmt.Sprintf("storage.driver %q is not one of memory, postgres", c.Storage.Driver))
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		issues = append(issues, "storage.dsn is required when storage.driver is postgres")
	}
	switch c.Vector.Backend {
	case "":
		issues = append(issues, "vector.backend is required")
	case "flat", "sqlite", "pgvector":
	default:
		issues = append(issues, fmt.Sprintf("vector.backend %q is not one of flat, sqlite, pgvector", c.Vector.Backend))
	}
	if c.LLM.DefaultProvider == "" && len(c.LLM.Providers) > 0 {
		issues = append(issues, "llm.default_provider is required when llm.providers is set")
	}
	if c.Scheduler.TickInterval < 0 {
		issues = append(issues, "scheduler.tick_interval must not be negative")
	}
	if c.Toolbox.Execution.Parallelism < 0 {
		issues = append(issues, "toolbox.execution.parallelism must not be negative")
	}

	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: issues}
}

// ValidationError collects every config validation failure found by
// Validate, rather than surfacing only the first.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid configuration (%d issue(s)):", len(e.Issues))
	for _, issue := range e.Issues {
		msg += "\n  - " + issue
	}
	return msg
}

// Defaults returns a Config populated with the values a fresh
// single-host deployment should start from: in-memory stores, a flat
// vector index, no LLM provider configured.
func Defaults() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			Host:        "0.0.0.0",
			HTTPPort:    8080,
			MetricsPort: 9090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			Driver: "memory",
		},
		Vector: VectorConfig{
			Backend:   "flat",
			Dimension: 1536,
		},
		Toolbox: ToolboxConfig{
			HealthTTL: 30 * time.Second,
			Execution: ToolExecutionConfig{
				Parallelism:  4,
				MaxAttempts:  3,
				RetryBackoff: time.Second,
				Timeout:      30 * time.Second,
			},
		},
		Scheduler: SchedulerConfig{
			TickInterval: 10 * time.Second,
		},
		Supervisor: SupervisorConfig{
			StartupTimeout:     30 * time.Second,
			HealthPollInterval: 5 * time.Second,
			HealthPollTimeout:  2 * time.Second,
		},
		Channels: ChannelsConfig{
			GUI: GUISocketConfig{
				ListenAddr: ":7070",
			},
		},
	}
}
