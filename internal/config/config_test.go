package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  extra: true
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadValidatesStorageDriver(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: oracle
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "storage.driver") {
		t.Fatalf("expected storage.driver error, got %v", err)
	}
}

func TestLoadValidatesPostgresDSN(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: postgres
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "storage.dsn") {
		t.Fatalf("expected storage.dsn error, got %v", err)
	}
}

func TestLoadValidatesVectorBackend(t *testing.T) {
	path := writeConfig(t, `
vector:
  backend: faiss
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "vector.backend") {
		t.Fatalf("expected vector.backend error, got %v", err)
	}
}

func TestLoadValidatesDefaultProvider(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: openai
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_provider") {
		t.Fatalf("expected default_provider error, got %v", err)
	}
}

func TestLoadValidatesSchedulerTickInterval(t *testing.T) {
	path := writeConfig(t, `
scheduler:
  tick_interval: -5s
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "scheduler.tick_interval") {
		t.Fatalf("expected scheduler.tick_interval error, got %v", err)
	}
}

func TestLoadValidatesToolboxParallelism(t *testing.T) {
	path := writeConfig(t, `
toolbox:
  execution:
    parallelism: -1
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "toolbox.execution.parallelism") {
		t.Fatalf("expected toolbox.execution.parallelism error, got %v", err)
	}
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: memory
vector:
  backend: flat
  dimension: 1536
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
scheduler:
  tick_interval: 5s
`)

	if _, err := Load(path); err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Toolbox.Execution.Parallelism == 0 {
		t.Fatalf("expected toolbox parallelism default to survive an empty toolbox block")
	}
	if cfg.Scheduler.TickInterval == 0 {
		t.Fatalf("expected scheduler tick interval default to survive an empty scheduler block")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("HEARTH_SERVER_HOST", "127.0.0.1")
	t.Setenv("HEARTH_SERVER_HTTPPORT", "9090")
	t.Setenv("HEARTH_STORAGE_DSN", "postgres://override@localhost:5432/hearth?sslmode=disable")

	path := writeConfig(t, `
server:
  host: 0.0.0.0
  http_port: 8080
storage:
  driver: postgres
  dsn: postgres://default@localhost:5432/hearth?sslmode=disable
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Fatalf("expected host override, got %q", cfg.Server.Host)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Fatalf("expected http port override, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Storage.DSN != "postgres://override@localhost:5432/hearth?sslmode=disable" {
		t.Fatalf("expected storage dsn override, got %q", cfg.Storage.DSN)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(basePath, []byte(strings.TrimSpace(`
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
scheduler:
  tick_interval: 5s
`)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	mainPath := filepath.Join(dir, "hearth.yaml")
	if err := os.WriteFile(mainPath, []byte(strings.TrimSpace(`
$include: base.yaml
scheduler:
  tick_interval: 10s
`)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Fatalf("expected included llm config to merge, got %q", cfg.LLM.DefaultProvider)
	}
	if cfg.Scheduler.TickInterval.String() != "10s" {
		t.Fatalf("expected main file to override included value, got %v", cfg.Scheduler.TickInterval)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.yaml")
	bPath := filepath.Join(dir, "b.yaml")
	if err := os.WriteFile(aPath, []byte("$include: b.yaml\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(bPath, []byte("$include: a.yaml\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(aPath); err == nil {
		t.Fatalf("expected include cycle error")
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hearth.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
