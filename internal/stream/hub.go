// Package stream provides the in-process publish/subscribe multiplexer that
// fans one task's event stream out to every attached client connection.
// It is single-process and in-memory: there is no cross-process fan-out and
// undelivered events are dropped, not persisted.
package stream

import (
	"sync"

	"boltbridge/internal/errors"
	"boltbridge/internal/event"
	"boltbridge/internal/logging"
)

// Sink is an open per-connection output channel for stream events.
// Send must not block; a sink that cannot accept an event returns an error
// and is evicted from the hub.
type Sink interface {
	// Send delivers one event to the connection.
	Send(e event.StreamEvent) error

	// Close releases the sink. It must be safe to call more than once.
	Close() error
}

// Hub is the per-task event multiplexer. It holds, per task ID, the set of
// live sinks and delivers every published event to each of them.
//
// Hub tolerates concurrent Publish calls for one task from multiple
// producers (the orchestrator's poll loop and the backend stream reader).
// For a single subscriber, events arrive in Publish-call order.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[string]Sink // taskID -> connectionID -> sink

	// closed holds the IDs of ended streams so that late publishes stay
	// no-ops and late subscribers are turned away. Entries are kept for
	// process life: one map key per finished task is what buys the
	// publish-after-close and no-replay guarantees, and a process restart
	// clears it along with the streams themselves.
	closed map[string]struct{}

	logger *logging.Logger
}

// NewHub creates an empty Hub. There is no ambient singleton: one Hub is
// created per process and injected into its collaborators.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Hub{
		subs:   make(map[string]map[string]Sink),
		closed: make(map[string]struct{}),
		logger: logger.WithComponent("stream"),
	}
}

// Subscribe registers a sink under the task. Returns ErrStreamClosed when
// the task's stream has already ended; late subscribers get no replay.
func (h *Hub) Subscribe(taskID, connectionID string, sink Sink) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, done := h.closed[taskID]; done {
		return errors.ErrStreamClosed
	}

	conns, ok := h.subs[taskID]
	if !ok {
		conns = make(map[string]Sink)
		h.subs[taskID] = conns
	}
	conns[connectionID] = sink

	h.logger.Debug("subscriber attached", "task_id", taskID, "connection_id", connectionID, "subscribers", len(conns))
	return nil
}

// Unsubscribe removes one sink and closes it. When the task has no
// remaining sinks its subscriber set is discarded. Unknown IDs are ignored.
func (h *Hub) Unsubscribe(taskID, connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(taskID, connectionID)
}

// removeLocked evicts one sink. Callers must hold h.mu.
func (h *Hub) removeLocked(taskID, connectionID string) {
	conns, ok := h.subs[taskID]
	if !ok {
		return
	}
	sink, ok := conns[connectionID]
	if !ok {
		return
	}

	delete(conns, connectionID)
	if len(conns) == 0 {
		delete(h.subs, taskID)
	}
	if err := sink.Close(); err != nil {
		h.logger.Debug("sink close failed", "task_id", taskID, "connection_id", connectionID, "error", err)
	}
}

// Publish delivers the event to every sink currently registered for the
// task. A delivery failure on one sink evicts that sink only; the others
// still receive the event. Publishing to an unknown or closed task is a
// no-op.
func (h *Hub) Publish(taskID string, e event.StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, done := h.closed[taskID]; done {
		return
	}

	var failed []string
	for connectionID, sink := range h.subs[taskID] {
		if err := sink.Send(e); err != nil {
			h.logger.Debug("event delivery failed, evicting sink",
				"task_id", taskID, "connection_id", connectionID, "event", string(e.Type), "error", err)
			failed = append(failed, connectionID)
		}
	}
	for _, connectionID := range failed {
		h.removeLocked(taskID, connectionID)
	}
}

// Close ends the task's stream: every sink is closed, the subscriber set is
// discarded, and all subsequent Publish and Subscribe calls for the task ID
// are rejected. Closing an already-closed task is a no-op.
func (h *Hub) Close(taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, done := h.closed[taskID]; done {
		return
	}
	h.closed[taskID] = struct{}{}

	conns := h.subs[taskID]
	delete(h.subs, taskID)
	for connectionID, sink := range conns {
		if err := sink.Close(); err != nil {
			h.logger.Debug("sink close failed", "task_id", taskID, "connection_id", connectionID, "error", err)
		}
	}

	h.logger.Debug("stream closed", "task_id", taskID, "subscribers", len(conns))
}

// SubscriberCount returns the number of live sinks for a task.
func (h *Hub) SubscriberCount(taskID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[taskID])
}

// Closed reports whether the task's stream has ended.
func (h *Hub) Closed(taskID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, done := h.closed[taskID]
	return done
}
