package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrTaskNotFound is returned when a task is not found.
	ErrTaskNotFound = errors.New("task not found")
)

// Repository defines the interface for task data access.
type Repository interface {
	// Enqueue inserts the task, or re-arms a terminal task with the same type and key.
	// It reports false when a pending or running task already holds the key.
	Enqueue(ctx context.Context, task *Task) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*Task, error)
	// Claim marks up to limit due pending tasks as running and returns them.
	Claim(ctx context.Context, now time.Time, limit int) ([]*Task, error)
	Complete(ctx context.Context, id uuid.UUID, at time.Time) error
	Retry(ctx context.Context, id uuid.UUID, runAt time.Time, taskErr *Error) error
	Fail(ctx context.Context, id uuid.UUID, at time.Time, taskErr *Error) error
	// ResetStale returns running tasks not updated since before to pending.
	ResetStale(ctx context.Context, before time.Time) (int64, error)
	// PurgeCompleted deletes completed tasks finished before the given time.
	PurgeCompleted(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context, status Status) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new task repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Enqueue inserts a task. A conflicting task is only re-armed when it already
// finished, so duplicates of a queued task collapse into one.
func (r *repository) Enqueue(ctx context.Context, task *Task) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "type"}, {Name: "key"}},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.IN{Column: clause.Column{Table: "tasks", Name: "status"}, Values: []any{StatusCompleted, StatusFailed}},
		}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "attempts", "input", "error", "run_at", "updated_at", "completed_at"}),
	}).Create(task)
	if result.Error != nil {
		return false, fmt.Errorf("enqueue task: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Get retrieves a task by ID.
func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	var task Task
	err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

// Claim locks due tasks with SKIP LOCKED so concurrent dispatchers never
// claim the same row.
func (r *repository) Claim(ctx context.Context, now time.Time, limit int) ([]*Task, error) {
	var tasks []*Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND run_at <= ?", StatusPending, now).
			Order("run_at ASC").
			Limit(limit).
			Find(&tasks).Error; err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(tasks))
		for i, t := range tasks {
			ids[i] = t.ID
			t.Status = StatusRunning
			t.Attempts++
			t.UpdatedAt = now
		}
		return tx.Model(&Task{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     StatusRunning,
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("claim tasks: %w", err)
	}
	return tasks, nil
}

// Complete marks a task completed.
func (r *repository) Complete(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(ctx, id, map[string]any{
		"status":       StatusCompleted,
		"error":        nil,
		"updated_at":   at,
		"completed_at": at,
	})
}

// Retry puts a task back to pending, due at runAt.
func (r *repository) Retry(ctx context.Context, id uuid.UUID, runAt time.Time, taskErr *Error) error {
	return r.db.WithContext(ctx).Model(&Task{ID: id}).Select("status", "run_at", "error", "updated_at").Updates(&Task{
		Status:    StatusPending,
		RunAt:     runAt,
		Error:     taskErr,
		UpdatedAt: time.Now(),
	}).Error
}

// Fail marks a task failed for good.
func (r *repository) Fail(ctx context.Context, id uuid.UUID, at time.Time, taskErr *Error) error {
	return r.db.WithContext(ctx).Model(&Task{ID: id}).Select("status", "error", "updated_at", "completed_at").Updates(&Task{
		Status:      StatusFailed,
		Error:       taskErr,
		UpdatedAt:   at,
		CompletedAt: &at,
	}).Error
}

func (r *repository) update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	result := r.db.WithContext(ctx).Model(&Task{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("update task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ResetStale returns abandoned running tasks to pending.
func (r *repository) ResetStale(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&Task{}).
		Where("status = ? AND updated_at < ?", StatusRunning, before).
		Updates(map[string]any{
			"status":     StatusPending,
			"run_at":     before,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("reset stale tasks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// PurgeCompleted deletes completed tasks older than before.
func (r *repository) PurgeCompleted(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND completed_at < ?", StatusCompleted, before).
		Delete(&Task{})
	if result.Error != nil {
		return 0, fmt.Errorf("purge tasks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CountByStatus counts tasks by status.
func (r *repository) CountByStatus(ctx context.Context, status Status) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Task{}).Where("status = ?", status).Count(&count).Error
	return count, err
}
