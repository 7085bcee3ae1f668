package store

import (
	"context"
	"sync"
	"time"

	"boltbridge/internal/errors"
)

// Memory is an in-memory Store. It backs tests and the --in-memory serve
// mode; state is lost on process exit.
type Memory struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]*Task)}
}

// CreateTask inserts a new task record.
func (m *Memory) CreateTask(ctx context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; exists {
		return errors.New("task already exists")
	}

	now := time.Now()
	cp := *task
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if cp.Status == "" {
		cp.Status = StatusPending
	}
	m.tasks[task.ID] = &cp
	return nil
}

// ReadTask returns a copy of the task or errors.ErrTaskNotFound.
func (m *Memory) ReadTask(ctx context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, errors.ErrTaskNotFound
	}
	cp := *task
	return &cp, nil
}

// UpdateTask partially updates a task. A status change on a task already in
// the failed state is rejected with errors.ErrInvalidTransition.
func (m *Memory) UpdateTask(ctx context.Context, id string, update Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return errors.ErrTaskNotFound
	}

	if update.Status != nil {
		if task.Status == StatusFailed && *update.Status != StatusFailed {
			return errors.ErrInvalidTransition
		}
		task.Status = *update.Status
	}
	if update.Implementation != nil {
		task.Implementation = *update.Implementation
	}
	if update.Error != nil {
		task.Error = update.Error
	}
	if update.TokenUsage != nil {
		task.TokenUsage = update.TokenUsage
	}
	task.UpdatedAt = time.Now()
	return nil
}
