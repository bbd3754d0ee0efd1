package schedulestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/pkg/models"
	"github.com/lib/pq"
)

// PostgresStore is a Store backed by a `scheduled_tasks` table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-open *sql.DB and ensures the
// scheduled_tasks table exists.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS scheduled_tasks (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			schedule TEXT NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}',
			user_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			last_run TIMESTAMPTZ,
			next_run TIMESTAMPTZ
		)
	`); err != nil {
		return nil, fmt.Errorf("create scheduled_tasks table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Create(ctx context.Context, task *models.ScheduledTask) error {
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return herr.Wrap(herr.Internal, err, "marshal task payload")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (id, type, schedule, payload, user_id, conversation_id, enabled, created_at, updated_at, last_run, next_run)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, task.ID, string(task.Type), task.Schedule, payload, task.UserID, task.ConversationID, task.Enabled, task.CreatedAt, task.UpdatedAt, task.LastRun, task.NextRun)
	if isUniqueViolation(err) {
		return herr.New(herr.Conflict, "scheduled task already exists: "+task.ID)
	}
	if err != nil {
		return herr.Wrap(herr.Transient, err, "create scheduled task")
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, task *models.ScheduledTask) error {
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return herr.Wrap(herr.Internal, err, "marshal task payload")
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET schedule=$2, payload=$3, enabled=$4, updated_at=$5, last_run=$6, next_run=$7
		WHERE id=$1
	`, task.ID, task.Schedule, payload, task.Enabled, task.UpdatedAt, task.LastRun, task.NextRun)
	if err != nil {
		return herr.Wrap(herr.Transient, err, "update scheduled task")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return herr.New(herr.NotFound, "scheduled task not found: "+task.ID)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id=$1`, id)
	if err != nil {
		return herr.Wrap(herr.Transient, err, "delete scheduled task")
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx, selectTaskColumns+` FROM scheduled_tasks WHERE id = $1`, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, herr.New(herr.NotFound, "scheduled task not found: "+id)
	}
	if err != nil {
		return nil, herr.Wrap(herr.Transient, err, "get scheduled task")
	}
	return t, nil
}

func (s *PostgresStore) ListDue(ctx context.Context, asOf time.Time) ([]*models.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, selectTaskColumns+`
		FROM scheduled_tasks WHERE enabled = true AND next_run IS NOT NULL AND next_run <= $1
		ORDER BY next_run ASC
	`, asOf)
	if err != nil {
		return nil, herr.Wrap(herr.Transient, err, "list due scheduled tasks")
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*models.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, selectTaskColumns+`
		FROM scheduled_tasks WHERE user_id = $1 ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, herr.Wrap(herr.Transient, err, "list scheduled tasks by user")
	}
	defer rows.Close()
	return scanTasks(rows)
}

const selectTaskColumns = `
	SELECT id, type, schedule, payload, user_id, conversation_id, enabled, created_at, updated_at, last_run, next_run
`

func scanTask(scan func(dest ...any) error) (*models.ScheduledTask, error) {
	var t models.ScheduledTask
	var taskType string
	var payloadJSON []byte
	var lastRun, nextRun sql.NullTime

	if err := scan(&t.ID, &taskType, &t.Schedule, &payloadJSON, &t.UserID, &t.ConversationID, &t.Enabled, &t.CreatedAt, &t.UpdatedAt, &lastRun, &nextRun); err != nil {
		return nil, err
	}
	t.Type = models.ScheduledTaskType(taskType)
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &t.Payload); err != nil {
			return nil, err
		}
	}
	if lastRun.Valid {
		t.LastRun = &lastRun.Time
	}
	if nextRun.Valid {
		t.NextRun = &nextRun.Time
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*models.ScheduledTask, error) {
	var out []*models.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
