package config

// VectorConfig selects and configures the VectorIndex half of the
// memory engine (internal/memory.Engine). Unlike the teacher's
// combined memory.Config, this does not construct anything itself —
// cmd/hearth reads it and builds the concrete flatindex/sqlitevecindex/
// pgvectorindex.Index directly, then hands it to memory.New alongside
// a RowStore and an Embedder.
type VectorConfig struct {
	// Backend is "flat" (in-memory, optionally file-mirrored),
	// "sqlite" (internal/memory/sqlitevecindex), or "pgvector"
	// (internal/memory/pgvectorindex, reusing Storage.DSN when DSN is
	// left empty).
	Backend string `yaml:"backend"`

	// Dimension must match the configured embedding model's output
	// size.
	Dimension int `yaml:"dimension"`

	// FlatPath is the optional JSON mirror file for the "flat"
	// backend. Empty means in-memory only.
	FlatPath string `yaml:"flat_path"`

	// SQLitePath is the database file for the "sqlite" backend. Empty
	// means ":memory:".
	SQLitePath string `yaml:"sqlite_path"`

	// PgvectorDSN overrides Storage.DSN for the "pgvector" backend
	// when set.
	PgvectorDSN string `yaml:"pgvector_dsn"`
}

// EmbeddingConfig selects the LLM provider used as the memory engine's
// Embedder. The same provider adapters built for LLMConfig implement
// planner.Embedder, so this just names which configured provider to
// reuse.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}
