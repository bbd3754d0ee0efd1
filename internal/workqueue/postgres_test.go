package workqueue

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hearthai/hearth/pkg/models"
)

func TestPostgresStoreCreateAndGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := &PostgresStore{db: db}

	job := &models.Job{
		ID: "job-1", Queue: "tool-execution", Payload: map[string]any{"a": 1},
		Attempts: 0, MaxAttempts: 3, Priority: models.PriorityNormal,
		State: models.JobQueued, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO jobs").WillReturnResult(sqlmock.NewResult(1, 1))
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rows := sqlmock.NewRows([]string{"id", "queue", "payload", "ctx", "attempts", "max_attempts", "priority", "state", "created_at", "updated_at", "error_message"}).
		AddRow(job.ID, job.Queue, []byte(`{"a":1}`), []byte(`{}`), 0, 3, 0, "queued", job.CreatedAt, job.UpdatedAt, nil)
	mock.ExpectQuery("SELECT id, queue, payload").WillReturnRows(rows)

	got, ok, err := store.Get(context.Background(), "job-1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.ID != "job-1" || got.State != models.JobQueued {
		t.Fatalf("unexpected job: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
