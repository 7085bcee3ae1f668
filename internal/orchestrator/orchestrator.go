// Package orchestrator drives one implementation task from submission to a
// terminal state: it submits the task to the bolt.diy backend, starts
// best-effort stream ingestion, polls status on a fixed interval with a
// bounded attempt budget, persists the outcome, and publishes lifecycle
// events to the task's subscribers.
package orchestrator

import (
	"context"
	"runtime/debug"
	"time"

	"boltbridge/internal/backend"
	"boltbridge/internal/config"
	"boltbridge/internal/errors"
	"boltbridge/internal/event"
	"boltbridge/internal/files"
	"boltbridge/internal/logging"
	"boltbridge/internal/store"
)

// BackendClient is the slice of the backend client the orchestrator needs.
type BackendClient interface {
	Submit(ctx context.Context, taskID, prompt, owner string) (*backend.SubmitResponse, error)
	PollStatus(ctx context.Context, taskID string) (*backend.StatusResponse, error)
	FetchResult(ctx context.Context, taskID string) (*backend.ResultResponse, error)
	StreamSubscribe(ctx context.Context, taskID string, sink func(event.StreamEvent)) error
}

// Publisher is the slice of the stream hub the orchestrator needs.
type Publisher interface {
	Publish(taskID string, e event.StreamEvent)
	Close(taskID string)
}

// StatsRecorder receives task outcome counts. Implementations must be safe
// for concurrent use.
type StatsRecorder interface {
	RecordTask(succeeded bool)
	RecordDatabaseFailure()
}

// nopStats is used when no recorder is injected.
type nopStats struct{}

func (nopStats) RecordTask(bool)        {}
func (nopStats) RecordDatabaseFailure() {}

// Orchestrator owns the lifecycle of tasks. Each Run call drives exactly
// one task; concurrent Runs for different tasks are independent.
type Orchestrator struct {
	backend  BackendClient
	store    store.Store
	hub      Publisher
	uploader files.Uploader
	stats    StatsRecorder
	logger   *logging.Logger

	pollInterval time.Duration
	maxAttempts  int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPollInterval overrides the configured poll interval. Primarily for
// tests, which cannot wait out second-granularity intervals.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.pollInterval = d
	}
}

// New creates an Orchestrator. uploader and stats may be nil.
func New(cfg config.OrchestratorConfig, client BackendClient, st store.Store, hub Publisher, uploader files.Uploader, stats StatsRecorder, logger *logging.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if stats == nil {
		stats = nopStats{}
	}
	o := &Orchestrator{
		backend:      client,
		store:        st,
		hub:          hub,
		uploader:     uploader,
		stats:        stats,
		logger:       logger.WithComponent("orchestrator"),
		pollInterval: cfg.PollInterval(),
		maxAttempts:  cfg.MaxPollAttempts,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drives the task to a terminal state. It blocks until done; callers
// start it in its own goroutine. Exactly one terminal branch executes: the
// task record ends completed or failed, exactly one task.completion or
// task.error event is published, and the task's stream is closed. Client
// disconnects never cancel a run; only ctx can.
func (o *Orchestrator) Run(ctx context.Context, task *store.Task) {
	log := o.logger.WithTask(task.ID)

	// Crashed branch: any panic escaping orchestration still leaves the
	// task failed and its stream closed.
	defer func() {
		if r := recover(); r != nil {
			log.Error("orchestration panicked", "panic", r, "stack", string(debug.Stack()))
			o.fail(ctx, task.ID, errors.NewBackendError(errors.CodeBackground,
				"unexpected error during background processing", nil), log)
		}
	}()

	ack, err := o.backend.Submit(ctx, task.ID, task.Prompt, task.Owner)
	if err != nil {
		log.Error("task submission failed", "error", err)
		o.fail(ctx, task.ID, errors.AsBackendError(err, errors.CodeRequestFailed), log)
		return
	}

	// Submission acknowledged: the one pending -> processing transition.
	if err := o.store.UpdateTask(ctx, task.ID, store.Update{Status: store.StatusOf(store.StatusProcessing)}); err != nil {
		o.stats.RecordDatabaseFailure()
		log.Error("failed to mark task processing", "error", err)
		o.fail(ctx, task.ID, errors.AsBackendError(err, errors.CodeDatabase), log)
		return
	}
	log.Info("task submitted", "backend_status", ack.Status)
	o.hub.Publish(task.ID, event.NewTaskStatus(string(store.StatusProcessing), nil))

	// Best-effort streaming alongside the poll loop. The reader publishes
	// into the same hub; its failure never aborts polling. It is cancelled
	// once a terminal branch runs.
	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()
	go func() {
		_ = o.backend.StreamSubscribe(streamCtx, task.ID, func(e event.StreamEvent) {
			o.hub.Publish(task.ID, e)
		})
	}()

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			log.Warn("orchestration canceled", "attempt", attempt)
			o.fail(ctx, task.ID, errors.NewBackendError(errors.CodeBackground,
				"orchestration canceled", ctx.Err()), log)
			return
		case <-time.After(o.pollInterval):
		}

		status, err := o.backend.PollStatus(ctx, task.ID)
		if err != nil {
			// The attempt still counts; a backend that stays unreachable
			// runs out the budget and lands in the timeout branch.
			log.Warn("status poll failed", "attempt", attempt, "error", err)
			continue
		}

		log.Debug("status poll", "attempt", attempt, "status", status.Status)
		o.hub.Publish(task.ID, event.NewTaskStatus(status.Status, status.Progress))

		switch store.Status(status.Status) {
		case store.StatusCompleted:
			o.complete(ctx, task, log)
			return
		case store.StatusFailed:
			o.fail(ctx, task.ID, errors.NewBackendError(errors.CodeBackendProcessing,
				"backend reported task failure", nil), log)
			return
		}
	}

	log.Warn("poll attempt budget exhausted", "max_attempts", o.maxAttempts)
	o.fail(ctx, task.ID, errors.NewBackendError(errors.CodeTimeout,
		"task processing timed out", nil), log)
}

// complete runs the terminal success branch: fetch the result, materialize
// files, persist, publish one task.completion, close the stream. A failure
// before persistence succeeds falls through to the crashed branch.
func (o *Orchestrator) complete(ctx context.Context, task *store.Task, log *logging.Logger) {
	result, err := o.backend.FetchResult(ctx, task.ID)
	if err != nil {
		log.Error("failed to fetch completed result", "error", err)
		o.fail(ctx, task.ID, errors.NewBackendError(errors.CodeBackground,
			"unexpected error during background processing", err), log)
		return
	}

	var fileURLs []string
	for _, f := range result.Files {
		if o.uploader == nil {
			break
		}
		url, err := o.uploader.Upload(ctx, task.Owner, task.ID, f.Name, []byte(f.Content))
		if err != nil {
			// Per-file materialization is best-effort; completion proceeds.
			log.Warn("file upload failed", "file", f.Name, "error", err)
			continue
		}
		fileURLs = append(fileURLs, url)
	}

	update := store.Update{
		Status:         store.StatusOf(store.StatusCompleted),
		Implementation: store.StringOf(result.Implementation),
	}
	if err := o.store.UpdateTask(ctx, task.ID, update); err != nil {
		o.stats.RecordDatabaseFailure()
		log.Error("failed to persist completed task", "error", err)
		o.fail(ctx, task.ID, errors.NewBackendError(errors.CodeBackground,
			"unexpected error during background processing", err), log)
		return
	}

	o.hub.Publish(task.ID, event.NewTaskCompletion(result.Implementation, fileURLs))
	o.hub.Close(task.ID)
	o.stats.RecordTask(true)
	log.Info("task completed", "files", len(fileURLs))
}

// fail runs a terminal failure branch: persist the structured error,
// publish one task.error, close the stream. A store write failure here is
// logged, not retried; the stream still reaches its closed state.
func (o *Orchestrator) fail(ctx context.Context, taskID string, berr *errors.BackendError, log *logging.Logger) {
	taskErr := &store.TaskError{
		Code:    string(berr.Code),
		Message: berr.Message,
		Details: berr.Details,
	}
	update := store.Update{
		Status: store.StatusOf(store.StatusFailed),
		Error:  taskErr,
	}
	// Detached from ctx so a canceled run can still record its failure.
	if err := o.store.UpdateTask(context.WithoutCancel(ctx), taskID, update); err != nil {
		o.stats.RecordDatabaseFailure()
		log.Error("failed to persist task failure", "code", string(berr.Code), "error", err)
	}

	o.hub.Publish(taskID, event.NewTaskError(string(berr.Code), berr.Message))
	o.hub.Close(taskID)
	o.stats.RecordTask(false)
	log.Info("task failed", "code", string(berr.Code))
}
