// Package task provides a durable queue of keyed background tasks.
// Tasks are claimed by a dispatcher, executed by registered executors and
// retried with a linear backoff until they succeed or run out of attempts.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the status of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Error represents a task error.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Task represents a queued unit of work. Type and Key identify it: enqueueing
// the same pair again while the task is still pending or running is a no-op.
type Task struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Type        string         `json:"type" gorm:"not null;uniqueIndex:idx_tasks_type_key"`
	Key         string         `json:"key" gorm:"not null;uniqueIndex:idx_tasks_type_key"`
	Status      Status         `json:"status" gorm:"not null;index:idx_tasks_status_run_at"`
	Attempts    int            `json:"attempts" gorm:"not null;default:0"`
	Input       map[string]any `json:"input" gorm:"type:jsonb;serializer:json;not null"`
	Error       *Error         `json:"error,omitempty" gorm:"type:jsonb;serializer:json"`
	RunAt       time.Time      `json:"run_at" gorm:"not null;index:idx_tasks_status_run_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// TableName returns the table name for Task.
func (Task) TableName() string {
	return "tasks"
}

// IsTerminal checks if the task is in a terminal state.
func (t *Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// newTask builds a pending task due at now.
func newTask(taskType, key string, input map[string]any, now time.Time) *Task {
	if input == nil {
		input = map[string]any{}
	}
	return &Task{
		ID:        uuid.New(),
		Type:      taskType,
		Key:       key,
		Status:    StatusPending,
		Input:     input,
		RunAt:     now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
