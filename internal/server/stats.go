package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// StatsRecorder receives worker counters. *telemetry.Metrics satisfies it.
type StatsRecorder interface {
	RecordTask(succeeded bool)
	RecordDatabaseFailure()
}

// WorkerStats tracks counters for the /status endpoint. It also implements
// the orchestrator's stats hook, optionally mirroring every count into an
// OpenTelemetry recorder.
type WorkerStats struct {
	mu sync.Mutex

	id               string
	startTime        time.Time
	tasksProcessed   int
	tasksSucceeded   int
	tasksFailed      int
	databaseFailures int

	metrics StatsRecorder
}

// StatusResponse is the JSON body served by GET /status.
type StatusResponse struct {
	ID               string `json:"id"`
	StartTime        string `json:"start_time"`
	Uptime           string `json:"uptime"`
	TasksProcessed   int    `json:"tasks_processed"`
	TasksSucceeded   int    `json:"tasks_succeeded"`
	TasksFailed      int    `json:"tasks_failed"`
	DatabaseFailures int    `json:"database_failures"`
}

// NewWorkerStats creates a stats tracker. metrics may be nil.
func NewWorkerStats(metrics StatsRecorder) *WorkerStats {
	return &WorkerStats{
		id:        uuid.NewString(),
		startTime: time.Now(),
		metrics:   metrics,
	}
}

// RecordTask counts one finished task.
func (ws *WorkerStats) RecordTask(succeeded bool) {
	ws.mu.Lock()
	ws.tasksProcessed++
	if succeeded {
		ws.tasksSucceeded++
	} else {
		ws.tasksFailed++
	}
	ws.mu.Unlock()

	if ws.metrics != nil {
		ws.metrics.RecordTask(succeeded)
	}
}

// RecordDatabaseFailure counts one failed task-store write.
func (ws *WorkerStats) RecordDatabaseFailure() {
	ws.mu.Lock()
	ws.databaseFailures++
	ws.mu.Unlock()

	if ws.metrics != nil {
		ws.metrics.RecordDatabaseFailure()
	}
}

// Snapshot returns the current counters.
func (ws *WorkerStats) Snapshot() StatusResponse {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	return StatusResponse{
		ID:               ws.id,
		StartTime:        ws.startTime.UTC().Format(time.RFC3339),
		Uptime:           time.Since(ws.startTime).Round(time.Second).String(),
		TasksProcessed:   ws.tasksProcessed,
		TasksSucceeded:   ws.tasksSucceeded,
		TasksFailed:      ws.tasksFailed,
		DatabaseFailures: ws.databaseFailures,
	}
}
