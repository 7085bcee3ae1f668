// Package event defines the stream events boltbridge delivers to task
// subscribers, and their server-sent-event wire encoding. Events are
// ephemeral: they are never persisted and late subscribers see no replay.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies a stream event kind.
// The values are part of the wire contract with stream clients.
type Type string

const (
	// TypeConnected is sent once when a client attaches to a task stream.
	TypeConnected Type = "connected"
	// TypeTaskStatus reports the latest backend status after each poll.
	TypeTaskStatus Type = "task.status"
	// TypeTaskProgress reports incremental progress from the backend stream.
	TypeTaskProgress Type = "task.progress"
	// TypeTaskOutput carries intermediate output from the backend stream.
	TypeTaskOutput Type = "task.output"
	// TypeTaskCompletion carries the final implementation. Sent at most once.
	TypeTaskCompletion Type = "task.completion"
	// TypeTaskError carries a structured terminal error. Sent at most once.
	TypeTaskError Type = "task.error"
	// TypeError reports a stream-level failure (e.g. the upstream backend
	// stream broke). It does not imply the task itself failed.
	TypeError Type = "error"
)

// StreamEvent is an immutable event record delivered to task subscribers.
type StreamEvent struct {
	Type      Type
	Data      map[string]any
	Timestamp time.Time
}

// New creates a StreamEvent of the given type stamped with the current time.
func New(t Type, data map[string]any) StreamEvent {
	return StreamEvent{
		Type:      t,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewConnected creates the handshake event sent to a newly attached client.
func NewConnected(taskID string) StreamEvent {
	return New(TypeConnected, map[string]any{"taskId": taskID})
}

// NewTaskStatus creates a task.status event. progress may be nil when the
// backend did not report one.
func NewTaskStatus(status string, progress *float64) StreamEvent {
	data := map[string]any{"status": status}
	if progress != nil {
		data["progress"] = *progress
	}
	return New(TypeTaskStatus, data)
}

// NewTaskProgress creates a task.progress event.
func NewTaskProgress(progress float64) StreamEvent {
	return New(TypeTaskProgress, map[string]any{"progress": progress})
}

// NewTaskOutput creates a task.output event.
func NewTaskOutput(content string) StreamEvent {
	return New(TypeTaskOutput, map[string]any{"content": content})
}

// NewTaskCompletion creates the terminal success event. files lists the
// materialized result files and may be empty.
func NewTaskCompletion(implementation string, files []string) StreamEvent {
	data := map[string]any{"implementation": implementation}
	if len(files) > 0 {
		data["files"] = files
	}
	return New(TypeTaskCompletion, data)
}

// NewTaskError creates the terminal failure event.
func NewTaskError(code, message string) StreamEvent {
	return New(TypeTaskError, map[string]any{"code": code, "message": message})
}

// NewError creates a stream-level error event. errType may be empty.
func NewError(errType, message string) StreamEvent {
	data := map[string]any{"message": message}
	if errType != "" {
		data["type"] = errType
	}
	return New(TypeError, data)
}

// MarshalSSE serializes the event as one server-sent-event block:
//
//	event: <type>\ndata: <json>\n\n
//
// where <json> is the event data merged with an ISO-8601 timestamp field.
func (e StreamEvent) MarshalSSE() ([]byte, error) {
	payload := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		payload[k] = v
	}
	payload["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339)

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}

	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", e.Type, data), nil
}

// Terminal reports whether this event type ends a task's stream.
func (t Type) Terminal() bool {
	return t == TypeTaskCompletion || t == TypeTaskError
}
