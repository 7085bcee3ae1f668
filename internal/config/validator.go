package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "backend.retries")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidStoreDrivers returns the list of valid store drivers
func ValidStoreDrivers() []string {
	return []string{"postgres", "memory"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	// Backend
	if c.Backend.URL == "" {
		errs = append(errs, ValidationError{
			Field:   "backend.url",
			Value:   c.Backend.URL,
			Message: "backend URL is required",
		})
	} else if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "backend.url",
			Value:   c.Backend.URL,
			Message: "must be an absolute http(s) URL",
		})
	}
	if c.Backend.Retries < 0 {
		errs = append(errs, ValidationError{
			Field:   "backend.retries",
			Value:   c.Backend.Retries,
			Message: "must be >= 0",
		})
	}
	if c.Backend.RetryDelayMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "backend.retry_delay_ms",
			Value:   c.Backend.RetryDelayMs,
			Message: "must be >= 0",
		})
	}
	if c.Backend.RequestTimeoutMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "backend.request_timeout_ms",
			Value:   c.Backend.RequestTimeoutMs,
			Message: "must be > 0",
		})
	}

	// Orchestrator
	if c.Orchestrator.PollIntervalSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "orchestrator.poll_interval_seconds",
			Value:   c.Orchestrator.PollIntervalSeconds,
			Message: "must be > 0",
		})
	}
	if c.Orchestrator.MaxPollAttempts <= 0 {
		errs = append(errs, ValidationError{
			Field:   "orchestrator.max_poll_attempts",
			Value:   c.Orchestrator.MaxPollAttempts,
			Message: "must be > 0",
		})
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Value:   c.Server.Port,
			Message: "must be between 1 and 65535",
		})
	}

	// Store
	if !slices.Contains(ValidStoreDrivers(), c.Store.Driver) {
		errs = append(errs, ValidationError{
			Field:   "store.driver",
			Value:   c.Store.Driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStoreDrivers(), ", ")),
		})
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		errs = append(errs, ValidationError{
			Field:   "store.dsn",
			Value:   c.Store.DSN,
			Message: "required when store.driver is postgres",
		})
	}

	// Logging
	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errs
}
