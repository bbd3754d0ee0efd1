// Package schedulestore persists ScheduledTasks for the scheduler.
package schedulestore

import (
	"context"
	"time"

	"github.com/hearthai/hearth/pkg/models"
)

// Store persists ScheduledTasks.
type Store interface {
	Create(ctx context.Context, task *models.ScheduledTask) error
	Update(ctx context.Context, task *models.ScheduledTask) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.ScheduledTask, error)
	// ListDue returns every enabled task whose NextRun is at or before
	// asOf, for the scheduler's tick-based scan.
	ListDue(ctx context.Context, asOf time.Time) ([]*models.ScheduledTask, error)
	ListByUser(ctx context.Context, userID string) ([]*models.ScheduledTask, error)
}
