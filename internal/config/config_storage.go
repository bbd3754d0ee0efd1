package config

import "time"

// StorageConfig selects and configures the backing store for messages,
// schedule, and job state. The same driver/DSN pair backs
// messagestore, schedulestore, and workqueue's postgres
// implementations; "memory" selects the in-process fakes each package
// ships for tests and single-process trial runs.
type StorageConfig struct {
	// Driver is "memory" or "postgres".
	Driver string `yaml:"driver"`

	// DSN is the postgres connection string. Required when Driver is
	// "postgres".
	DSN string `yaml:"dsn"`

	// MaxOpenConns/MaxIdleConns/ConnMaxLifetime size the pool used by
	// the postgres-backed stores.
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`

	// MigrationsDir is the directory of NNN_name.sql files applied by
	// `hearth migrate`. Embedded migrations are used when empty.
	MigrationsDir string `yaml:"migrations_dir"`
}
