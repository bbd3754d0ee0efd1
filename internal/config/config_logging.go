package config

// LoggingConfig configures internal/observability.Logger. Output
// itself is not yaml-configurable (it is always the process's
// stdout); RedactPatterns are appended to
// observability.DefaultRedactPatterns rather than replacing them.
type LoggingConfig struct {
	Level          string   `yaml:"level"`
	Format         string   `yaml:"format"`
	AddSource      bool     `yaml:"add_source"`
	RedactPatterns []string `yaml:"redact_patterns"`
}
