package rowstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/pkg/models"
	"github.com/lib/pq"
)

// PostgresStore is a RowStore backed by Postgres, grounded in the
// work queue store's connection/table conventions.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-open *sql.DB and ensures the
// memories table exists.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			tags TEXT[] NOT NULL DEFAULT '{}',
			conversation_id TEXT NOT NULL DEFAULT '',
			source_references JSONB NOT NULL DEFAULT '[]',
			is_compaktified BOOLEAN NOT NULL DEFAULT false,
			compaktified_from TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create memories table: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Insert(ctx context.Context, m *models.Memory) error {
	refs, err := json.Marshal(m.SourceReferences)
	if err != nil {
		return herr.Wrap(herr.Internal, err, "marshal source references")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, user_id, kind, title, content, tags, conversation_id, source_references, is_compaktified, compaktified_from, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, m.ID, m.UserID, string(m.Kind), m.Title, m.Content, pq.Array(m.Tags), m.ConversationID, refs, m.IsCompaktified, pq.Array(m.CompaktifiedFrom), m.CreatedAt, m.UpdatedAt)
	if isUniqueViolation(err) {
		return herr.New(herr.Conflict, "memory already exists: "+m.ID)
	}
	if err != nil {
		return herr.Wrap(herr.Transient, err, "insert memory")
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, m *models.Memory) error {
	refs, err := json.Marshal(m.SourceReferences)
	if err != nil {
		return herr.Wrap(herr.Internal, err, "marshal source references")
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE memories SET title=$2, content=$3, tags=$4, source_references=$5, updated_at=$6
		WHERE id=$1
	`, m.ID, m.Title, m.Content, pq.Array(m.Tags), refs, m.UpdatedAt)
	if err != nil {
		return herr.Wrap(herr.Transient, err, "update memory")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return herr.New(herr.NotFound, "memory not found: "+m.ID)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id=$1`, id)
	if err != nil {
		return herr.Wrap(herr.Transient, err, "delete memory")
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, kind, title, content, tags, conversation_id, source_references, is_compaktified, compaktified_from, created_at, updated_at
		FROM memories WHERE id=$1
	`, id)
	m, err := scanMemory(row.Scan)
	if err == sql.ErrNoRows {
		return nil, herr.New(herr.NotFound, "memory not found: "+id)
	}
	if err != nil {
		return nil, herr.Wrap(herr.Transient, err, "get memory")
	}
	return m, nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.MemoryFilter) ([]*models.Memory, error) {
	query := `
		SELECT id, user_id, kind, title, content, tags, conversation_id, source_references, is_compaktified, compaktified_from, created_at, updated_at
		FROM memories WHERE 1=1
	`
	var args []any
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.ConversationID != "" {
		args = append(args, filter.ConversationID)
		query += fmt.Sprintf(" AND conversation_id = $%d", len(args))
	}
	if filter.IsCompaktified != nil {
		args = append(args, *filter.IsCompaktified)
		query += fmt.Sprintf(" AND is_compaktified = $%d", len(args))
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		args = append(args, pq.Array(kinds))
		query += fmt.Sprintf(" AND kind = ANY($%d)", len(args))
	}
	if len(filter.Tags) > 0 {
		args = append(args, pq.Array(filter.Tags))
		query += fmt.Sprintf(" AND tags && $%d", len(args))
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, herr.Wrap(herr.Transient, err, "list memories")
	}
	defer rows.Close()

	var out []*models.Memory
	for rows.Next() {
		m, err := scanMemory(rows.Scan)
		if err != nil {
			return nil, herr.Wrap(herr.Transient, err, "scan memory row")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM memories`)
	if err != nil {
		return nil, herr.Wrap(herr.Transient, err, "list memory ids")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanMemory(scan func(dest ...any) error) (*models.Memory, error) {
	var m models.Memory
	var kind string
	var tags, compaktifiedFrom pq.StringArray
	var refsJSON []byte

	if err := scan(&m.ID, &m.UserID, &kind, &m.Title, &m.Content, &tags, &m.ConversationID, &refsJSON, &m.IsCompaktified, &compaktifiedFrom, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Kind = models.MemoryKind(kind)
	m.Tags = []string(tags)
	m.CompaktifiedFrom = []string(compaktifiedFrom)
	if len(refsJSON) > 0 {
		if err := json.Unmarshal(refsJSON, &m.SourceReferences); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
