package workqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/hearthai/hearth/pkg/models"
)

// PostgresConfig configures the connection pool backing a
// PostgresStore, grounded in the teacher stack's CockroachConfig.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns sensible pool defaults.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// PostgresStore is a Store backed by the `jobs` table over
// database/sql + lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens and pings dsn, configuring the pool per cfg.
func NewPostgresStore(dsn string, cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) Create(ctx context.Context, job *models.Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	tctx, err := json.Marshal(job.Ctx)
	if err != nil {
		return fmt.Errorf("marshal ctx: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, queue, payload, ctx, attempts, max_attempts, priority, state, created_at, updated_at, error_message)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		job.ID, job.Queue, payload, tctx, job.Attempts, job.MaxAttempts,
		int(job.Priority), string(job.State), job.CreatedAt, job.UpdatedAt,
		nullableString(job.Error),
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, job *models.Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE jobs
		SET payload = $2, attempts = $3, priority = $4, state = $5, updated_at = $6, error_message = $7
		WHERE id = $1
	`, job.ID, payload, job.Attempts, int(job.Priority), string(job.State), job.UpdatedAt, nullableString(job.Error))
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Job, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, queue, payload, ctx, attempts, max_attempts, priority, state, created_at, updated_at, error_message
		FROM jobs WHERE id = $1
	`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get job: %w", err)
	}
	return job, true, nil
}

func (s *PostgresStore) List(ctx context.Context, queue string) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, queue, payload, ctx, attempts, max_attempts, priority, state, created_at, updated_at, error_message
		FROM jobs WHERE queue = $1 ORDER BY created_at ASC
	`, queue)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *PostgresStore) ListRunning(ctx context.Context) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, queue, payload, ctx, attempts, max_attempts, priority, state, created_at, updated_at, error_message
		FROM jobs WHERE state = 'running'
	`)
	if err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*models.Job, error) {
	var (
		job          models.Job
		payload      []byte
		tctx         []byte
		priority     int
		state        string
		errorMessage sql.NullString
	)
	if err := scanner.Scan(
		&job.ID, &job.Queue, &payload, &tctx, &job.Attempts, &job.MaxAttempts,
		&priority, &state, &job.CreatedAt, &job.UpdatedAt, &errorMessage,
	); err != nil {
		return nil, err
	}
	job.Priority = models.Priority(priority)
	job.State = models.JobState(state)
	if errorMessage.Valid {
		job.Error = errorMessage.String
	}
	if len(payload) > 0 {
		var p any
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		job.Payload = p
	}
	if len(tctx) > 0 {
		if err := json.Unmarshal(tctx, &job.Ctx); err != nil {
			return nil, fmt.Errorf("unmarshal ctx: %w", err)
		}
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*models.Job, error) {
	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func nullableString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
