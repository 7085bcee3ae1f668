// Package store persists authoritative task state. The orchestration core
// treats it as an external transactional collaborator: single-row
// conditional updates only, no cross-row transactions.
package store

import "time"

// Status is a task lifecycle state.
type Status string

const (
	// StatusPending is the state of a task created but not yet acknowledged
	// by the backend.
	StatusPending Status = "pending"
	// StatusProcessing is the state after submission acknowledgment.
	StatusProcessing Status = "processing"
	// StatusCompleted is the terminal success state.
	StatusCompleted Status = "completed"
	// StatusFailed is the terminal failure state. No transition out of
	// failed is ever valid.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// TaskError is the structured error persisted on a failed task.
type TaskError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// TokenUsage is optional usage accounting. It is set by callers outside the
// orchestration core, never produced by it.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Task is the unit of work tracked through its lifecycle.
type Task struct {
	ID             string      `json:"id"`
	Owner          string      `json:"owner,omitempty"`
	Prompt         string      `json:"prompt"`
	Status         Status      `json:"status"`
	Implementation string      `json:"implementation,omitempty"`
	Error          *TaskError  `json:"error,omitempty"`
	TokenUsage     *TokenUsage `json:"tokenUsage,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Update is a partial task update. Nil fields are left unchanged.
type Update struct {
	Status         *Status
	Implementation *string
	Error          *TaskError
	TokenUsage     *TokenUsage
}

// StatusOf is a convenience for building an Update.
func StatusOf(s Status) *Status { return &s }

// StringOf is a convenience for building an Update.
func StringOf(s string) *string { return &s }
