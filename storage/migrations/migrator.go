// Package migrations applies the SQL schema backing the postgres-driven
// messagestore, schedulestore, and workqueue stores. It is grounded in
// the teacher's embedded-migration migrator, generalized from a single
// id-keyed schema_migrations table to a version+name pair so `hearth
// migrate status` can report something more useful than an opaque id.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

// Migration is one NNN_name pair of up/down SQL scripts.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// ID is the dotted form used in schema_migrations and migrate-status output.
func (m Migration) ID() string {
	return fmt.Sprintf("%03d_%s", m.Version, m.Name)
}

// Applied describes a row already recorded in schema_migrations.
type Applied struct {
	Version   int
	Name      string
	AppliedAt time.Time
}

// Migrator applies and rolls back the embedded (or externally
// directed) migration set against a *sql.DB.
type Migrator struct {
	db         *sql.DB
	migrations []Migration
}

// New loads migrations from the given filesystem. Pass nil to use the
// binary's embedded SQL; config.StorageConfig.MigrationsDir lets an
// operator point at an on-disk override via os.DirFS instead.
func New(db *sql.DB, dir fs.FS) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("migrations: db is required")
	}
	source := dir
	prefix := "sql/"
	if source == nil {
		source = embeddedFS
	} else {
		prefix = ""
	}
	migrations, err := loadMigrations(source, prefix)
	if err != nil {
		return nil, err
	}
	return &Migrator{db: db, migrations: migrations}, nil
}

// EnsureSchema creates the schema_migrations bookkeeping table.
func (m *Migrator) EnsureSchema(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT NOT NULL,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (version, name)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

// Up applies pending migrations in version order. steps <= 0 applies all.
func (m *Migrator) Up(ctx context.Context, steps int) ([]string, error) {
	if err := m.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	applied, err := m.appliedIDs(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, mig := range m.migrations {
		if !applied[mig.ID()] {
			pending = append(pending, mig)
		}
	}
	if steps > 0 && steps < len(pending) {
		pending = pending[:steps]
	}

	var appliedIDs []string
	for _, mig := range pending {
		if strings.TrimSpace(mig.UpSQL) == "" {
			return appliedIDs, fmt.Errorf("missing up migration for %s", mig.ID())
		}
		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return appliedIDs, fmt.Errorf("begin migration %s: %w", mig.ID(), err)
		}
		if _, err := tx.ExecContext(ctx, mig.UpSQL); err != nil {
			_ = tx.Rollback()
			return appliedIDs, fmt.Errorf("apply migration %s: %w", mig.ID(), err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
			mig.Version, mig.Name); err != nil {
			_ = tx.Rollback()
			return appliedIDs, fmt.Errorf("record migration %s: %w", mig.ID(), err)
		}
		if err := tx.Commit(); err != nil {
			return appliedIDs, fmt.Errorf("commit migration %s: %w", mig.ID(), err)
		}
		appliedIDs = append(appliedIDs, mig.ID())
	}
	return appliedIDs, nil
}

// Down rolls back the last N applied migrations, most recent first.
func (m *Migrator) Down(ctx context.Context, steps int) ([]string, error) {
	if steps <= 0 {
		steps = 1
	}
	if err := m.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	applied, err := m.appliedList(ctx)
	if err != nil {
		return nil, err
	}
	if len(applied) == 0 {
		return nil, nil
	}
	if steps > len(applied) {
		steps = len(applied)
	}
	toRollback := applied[len(applied)-steps:]

	var rolled []string
	for i := len(toRollback) - 1; i >= 0; i-- {
		entry := toRollback[i]
		mig, ok := m.byVersionName(entry.Version, entry.Name)
		if !ok {
			return rolled, fmt.Errorf("migration %03d_%s not found", entry.Version, entry.Name)
		}
		if strings.TrimSpace(mig.DownSQL) == "" {
			return rolled, fmt.Errorf("missing down migration for %s", mig.ID())
		}
		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return rolled, fmt.Errorf("begin rollback %s: %w", mig.ID(), err)
		}
		if _, err := tx.ExecContext(ctx, mig.DownSQL); err != nil {
			_ = tx.Rollback()
			return rolled, fmt.Errorf("rollback migration %s: %w", mig.ID(), err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM schema_migrations WHERE version = $1 AND name = $2`,
			mig.Version, mig.Name); err != nil {
			_ = tx.Rollback()
			return rolled, fmt.Errorf("delete migration record %s: %w", mig.ID(), err)
		}
		if err := tx.Commit(); err != nil {
			return rolled, fmt.Errorf("commit rollback %s: %w", mig.ID(), err)
		}
		rolled = append(rolled, mig.ID())
	}
	return rolled, nil
}

// Status reports applied and pending migrations in version order.
func (m *Migrator) Status(ctx context.Context) ([]Applied, []Migration, error) {
	if err := m.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}
	applied, err := m.appliedList(ctx)
	if err != nil {
		return nil, nil, err
	}
	seen := make(map[string]bool, len(applied))
	for _, entry := range applied {
		seen[fmt.Sprintf("%03d_%s", entry.Version, entry.Name)] = true
	}
	var pending []Migration
	for _, mig := range m.migrations {
		if !seen[mig.ID()] {
			pending = append(pending, mig)
		}
	}
	return applied, pending, nil
}

func (m *Migrator) appliedIDs(ctx context.Context) (map[string]bool, error) {
	list, err := m.appliedList(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(list))
	for _, entry := range list {
		out[fmt.Sprintf("%03d_%s", entry.Version, entry.Name)] = true
	}
	return out, nil
}

func (m *Migrator) appliedList(ctx context.Context) ([]Applied, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT version, name, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	var applied []Applied
	for rows.Next() {
		var entry Applied
		if err := rows.Scan(&entry.Version, &entry.Name, &entry.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied = append(applied, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schema_migrations: %w", err)
	}
	return applied, nil
}

func (m *Migrator) byVersionName(version int, name string) (Migration, bool) {
	for _, mig := range m.migrations {
		if mig.Version == version && mig.Name == name {
			return mig, true
		}
	}
	return Migration{}, false
}

func loadMigrations(source fs.FS, prefix string) ([]Migration, error) {
	paths, err := fs.Glob(source, prefix+"*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byID := map[string]*Migration{}
	for _, path := range paths {
		base := strings.TrimPrefix(path, prefix)
		var suffix string
		switch {
		case strings.HasSuffix(base, ".up.sql"):
			suffix = ".up.sql"
		case strings.HasSuffix(base, ".down.sql"):
			suffix = ".down.sql"
		default:
			continue
		}
		id := strings.TrimSuffix(base, suffix)
		version, name, err := parseID(id)
		if err != nil {
			return nil, err
		}
		entry := byID[id]
		if entry == nil {
			entry = &Migration{Version: version, Name: name}
			byID[id] = entry
		}
		data, err := fs.ReadFile(source, path)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", path, err)
		}
		if suffix == ".up.sql" {
			entry.UpSQL = string(data)
		} else {
			entry.DownSQL = string(data)
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	migrations := make([]Migration, 0, len(ids))
	for _, id := range ids {
		migrations = append(migrations, *byID[id])
	}
	return migrations, nil
}

func parseID(id string) (int, string, error) {
	parts := strings.SplitN(id, "_", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("migration filename %q must be NNN_name", id)
	}
	version, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", fmt.Errorf("migration filename %q must start with a numeric version: %w", id, err)
	}
	return version, parts[1], nil
}
