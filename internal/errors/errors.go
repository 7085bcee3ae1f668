// Package errors provides centralized error definitions and error handling
// utilities for boltbridge. It defines the backend error taxonomy, error
// constructors with context wrapping, and classification helpers.
//
// # Error Codes
//
// Every error that crosses a component boundary carries one of the codes
// below. The codes are part of the wire contract: they are persisted on
// failed tasks and delivered to stream clients in task.error events.
//
//   - CodeRequestFailed: transport or HTTP failure after retry exhaustion
//   - CodeValidation: the backend returned a malformed payload
//   - CodeBackendProcessing: the backend reported that processing failed
//   - CodeTimeout: the poll attempt budget ran out without a terminal status
//   - CodeBackground: an unexpected failure inside orchestration
//   - CodeDatabase: a task-store write failed
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewBackendError(errors.CodeRequestFailed, "submit failed", cause)
//	err = err.WithDetail("status", 502)
//
// Checking errors:
//
//	if errors.CodeOf(err) == errors.CodeTimeout { ... }
//
//	var berr *errors.BackendError
//	if errors.As(err, &berr) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Code identifies a class of backend or orchestration failure.
type Code string

const (
	// CodeRequestFailed indicates a transport or non-2xx HTTP failure that
	// survived the client's retry budget.
	CodeRequestFailed Code = "request_failed"
	// CodeValidation indicates the backend responded with a payload that
	// failed schema validation.
	CodeValidation Code = "validation_error"
	// CodeBackendProcessing indicates the bolt.diy backend reported that the
	// task itself failed.
	CodeBackendProcessing Code = "bolt_diy_processing_error"
	// CodeTimeout indicates the orchestrator exhausted its poll attempt
	// budget without observing a terminal status.
	CodeTimeout Code = "timeout"
	// CodeBackground indicates an unexpected failure escaped the
	// orchestration loop.
	CodeBackground Code = "background_processing_error"
	// CodeDatabase indicates a task-store write failed.
	CodeDatabase Code = "database_error"
)

// General sentinel errors
var (
	// ErrTaskNotFound indicates that a task could not be found in the store.
	ErrTaskNotFound = New("task not found")
	// ErrStreamClosed indicates a write to a stream whose task has already
	// reached a terminal state.
	ErrStreamClosed = New("stream closed")
	// ErrSinkClosed indicates a write to a sink whose underlying connection
	// has gone away.
	ErrSinkClosed = New("sink closed")
	// ErrInvalidTransition indicates an attempt to move a task out of a
	// terminal failed state.
	ErrInvalidTransition = New("invalid status transition")
)

// BackendError is the structured error value propagated through this
// codebase in place of stack unwinding. It carries the taxonomy code, a
// human-readable message, and optional structured details.
type BackendError struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`

	cause error
}

// NewBackendError creates a BackendError with the given code and message.
// cause may be nil.
func NewBackendError(code Code, message string, cause error) *BackendError {
	return &BackendError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error returns the error message.
func (e *BackendError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.cause
}

// Is reports whether this error matches the target error.
func (e *BackendError) Is(target error) bool {
	if other, ok := target.(*BackendError); ok {
		return e.Code == other.Code
	}
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// WithDetail attaches a structured detail to the error and returns it.
func (e *BackendError) WithDetail(key string, value any) *BackendError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// IsRetryable returns true if the error is transient and the operation may
// succeed on retry. Only transport-level failures qualify; validation and
// backend-processing failures are deterministic.
func (e *BackendError) IsRetryable() bool {
	return e.Code == CodeRequestFailed || e.Code == CodeTimeout
}

// CodeOf extracts the taxonomy code from err, unwrapping as needed.
// Returns the empty code if err carries no BackendError.
func CodeOf(err error) Code {
	var berr *BackendError
	if As(err, &berr) {
		return berr.Code
	}
	return ""
}

// AsBackendError coerces err into a *BackendError. If err is not already
// one, it is wrapped with the fallback code so that every terminal path has
// a structured code to persist and publish.
func AsBackendError(err error, fallback Code) *BackendError {
	var berr *BackendError
	if As(err, &berr) {
		return berr
	}
	return NewBackendError(fallback, err.Error(), err)
}
