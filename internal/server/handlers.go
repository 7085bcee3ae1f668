package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"boltbridge/internal/errors"
	"boltbridge/internal/event"
	"boltbridge/internal/store"
	"boltbridge/internal/stream"
)

type createTaskRequest struct {
	Prompt string `json:"prompt"`
	Owner  string `json:"owner,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errors.Code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: string(code), Message: message}})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.CodeValidation, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, errors.CodeValidation, "prompt is required")
		return
	}

	now := time.Now().UTC()
	task := &store.Task{
		ID:        uuid.NewString(),
		Owner:     req.Owner,
		Prompt:    req.Prompt,
		Status:    store.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateTask(r.Context(), task); err != nil {
		s.logger.Error("create task failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.CodeDatabase, "failed to create task")
		return
	}

	// The run is detached from the request: it ends at a terminal state
	// or process exit, never because the creating client went away.
	go s.runner.Run(s.runCtx, task)

	s.logger.Info("task accepted", "task", task.ID)
	writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.ReadTask(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, errors.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, errors.CodeValidation, "task not found")
			return
		}
		s.logger.Error("read task failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.CodeDatabase, "failed to read task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleStreamTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.CodeRequestFailed, "streaming unsupported")
		return
	}

	task, err := s.store.ReadTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, errors.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, errors.CodeValidation, "task not found")
			return
		}
		s.logger.Error("read task failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.CodeDatabase, "failed to read task")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeEvent := func(e event.StreamEvent) bool {
		b, err := e.MarshalSSE()
		if err != nil {
			return false
		}
		if _, err := w.Write(b); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	// A late subscriber to a finished stream gets the initial connected
	// event and an immediate end-of-stream; current state is on the task
	// resource, not replayed here.
	connID := uuid.NewString()
	sink := stream.NewChannelSink()
	if task.Status.Terminal() {
		w.WriteHeader(http.StatusOK)
		writeEvent(event.NewConnected(taskID))
		return
	}
	if err := s.hub.Subscribe(taskID, connID, sink); err != nil {
		w.WriteHeader(http.StatusOK)
		writeEvent(event.NewConnected(taskID))
		return
	}
	defer s.hub.Unsubscribe(taskID, connID)

	log := s.logger.WithTask(taskID).WithConnection(connID)
	log.Debug("stream subscriber connected")

	w.WriteHeader(http.StatusOK)
	if !writeEvent(event.NewConnected(taskID)) {
		return
	}

	for {
		select {
		case e, open := <-sink.Events():
			if !open {
				log.Debug("stream ended")
				return
			}
			if !writeEvent(e) {
				log.Debug("stream write failed, dropping subscriber")
				return
			}
		case <-r.Context().Done():
			log.Debug("stream subscriber disconnected")
			return
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}
