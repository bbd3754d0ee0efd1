package messagestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/pkg/models"
	"github.com/lib/pq"
)

// PostgresStore is a Store backed by `messages` and `conversations`
// tables, grounded in the work queue's PostgresStore conventions.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-open *sql.DB and ensures both
// tables exist.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create conversations table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create messages table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS messages_conversation_created_idx
		ON messages (conversation_id, created_at, id)
	`); err != nil {
		return nil, fmt.Errorf("create messages index: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Save(ctx context.Context, m *models.Message) error {
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return herr.Wrap(herr.Internal, err, "marshal message metadata")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, user_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.ConversationID, m.UserID, string(m.Role), m.Content, metadata, m.CreatedAt)
	if isUniqueViolation(err) {
		return herr.New(herr.Conflict, "message already exists: "+m.ID)
	}
	if err != nil {
		return herr.Wrap(herr.Transient, err, "save message")
	}
	return nil
}

func (s *PostgresStore) FindByConversation(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, conversation_id, user_id, role, content, metadata, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`
	args := []any{conversationID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, herr.Wrap(herr.Transient, err, "find messages by conversation")
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var m models.Message
		var role string
		var metadataJSON []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.UserID, &role, &m.Content, &metadataJSON, &m.CreatedAt); err != nil {
			return nil, herr.Wrap(herr.Transient, err, "scan message row")
		}
		m.Role = models.Role(role)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &m.Metadata); err != nil {
				return nil, herr.Wrap(herr.Internal, err, "unmarshal message metadata")
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveConversation(ctx context.Context, c *models.Conversation) error {
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return herr.Wrap(herr.Internal, err, "marshal conversation metadata")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, title, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, metadata = EXCLUDED.metadata, updated_at = EXCLUDED.updated_at
	`, c.ID, c.UserID, c.Title, metadata, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return herr.Wrap(herr.Transient, err, "save conversation")
	}
	return nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, metadata, created_at, updated_at FROM conversations WHERE id = $1
	`, id)
	var c models.Conversation
	var metadataJSON []byte
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &metadataJSON, &c.CreatedAt, &c.UpdatedAt); err == sql.ErrNoRows {
		return nil, herr.New(herr.NotFound, "conversation not found: "+id)
	} else if err != nil {
		return nil, herr.Wrap(herr.Transient, err, "get conversation")
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			return nil, herr.Wrap(herr.Internal, err, "unmarshal conversation metadata")
		}
	}
	return &c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, metadata, created_at, updated_at FROM conversations
		WHERE user_id = $1 ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, herr.Wrap(herr.Transient, err, "list conversations")
	}
	defer rows.Close()

	var out []*models.Conversation
	for rows.Next() {
		var c models.Conversation
		var metadataJSON []byte
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &metadataJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, herr.Wrap(herr.Transient, err, "scan conversation row")
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
				return nil, herr.Wrap(herr.Internal, err, "unmarshal conversation metadata")
			}
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return herr.Wrap(herr.Transient, err, "begin delete conversation transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = $1`, id); err != nil {
		return herr.Wrap(herr.Transient, err, "delete conversation messages")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id); err != nil {
		return herr.Wrap(herr.Transient, err, "delete conversation")
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
