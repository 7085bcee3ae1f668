package store

import "context"

// Store is the persistent task store consumed by the orchestration core.
//
// UpdateTask applies a single-row conditional update: a task whose status
// is already failed rejects any further status change with
// errors.ErrInvalidTransition. Unknown IDs return errors.ErrTaskNotFound.
type Store interface {
	// CreateTask inserts a new task record.
	CreateTask(ctx context.Context, task *Task) error

	// ReadTask returns the task or errors.ErrTaskNotFound.
	ReadTask(ctx context.Context, id string) (*Task, error)

	// UpdateTask partially updates the task's status, implementation,
	// error, and token usage.
	UpdateTask(ctx context.Context, id string, update Update) error
}
