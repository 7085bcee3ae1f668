// Package internal contains integration tests that verify the packages work
// together: API server, backend client, orchestrator, event hub, and store.
package internal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"boltbridge/internal/backend"
	"boltbridge/internal/config"
	"boltbridge/internal/orchestrator"
	"boltbridge/internal/server"
	"boltbridge/internal/store"
	"boltbridge/internal/stream"
)

// fakeBolt is a minimal bolt.diy backend: it acknowledges submissions,
// reports processing until released, then completes.
type fakeBolt struct {
	done atomic.Bool
}

func (f *fakeBolt) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /implementation", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TaskID string `json:"taskId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"taskId": %q, "status": "pending"}`, req.TaskID)
	})

	mux.HandleFunc("GET /implementation/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		status := "processing"
		if f.done.Load() {
			status = "completed"
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status": %q}`, status)
	})

	mux.HandleFunc("GET /implementation/{id}/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "event: task.output\ndata: {\"content\":\"generating\"}\n\n")
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
		<-r.Context().Done()
	})

	mux.HandleFunc("GET /implementation/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"implementation": "package main", "files": [{"name": "main.go", "content": "package main"}]}`)
	})

	return mux
}

func TestTaskLifecycleEndToEnd(t *testing.T) {
	bolt := &fakeBolt{}
	boltSrv := httptest.NewServer(bolt.handler())
	defer boltSrv.Close()

	st := store.NewMemory()
	hub := stream.NewHub(nil)
	client := backend.NewClient(config.BackendConfig{
		URL:              boltSrv.URL,
		Retries:          1,
		RetryDelayMs:     1,
		RequestTimeoutMs: 5000,
	}, nil)
	stats := server.NewWorkerStats(nil)
	orch := orchestrator.New(config.OrchestratorConfig{
		PollIntervalSeconds: 10,
		MaxPollAttempts:     30,
	}, client, st, hub, nil, stats, nil,
		orchestrator.WithPollInterval(time.Millisecond))
	api := httptest.NewServer(server.New(config.ServerConfig{
		Port:                   8080,
		ShutdownTimeoutSeconds: 1,
	}, st, hub, orch, stats, nil).Handler())
	defer api.Close()

	// Create a task through the API.
	resp, err := http.Post(api.URL+"/api/tasks", "application/json",
		bytes.NewBufferString(`{"prompt": "build a todo app", "owner": "it-user"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created store.Task
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}

	// Attach to the SSE stream while the task runs.
	streamResp, err := http.Get(api.URL + "/api/tasks/" + created.ID + "/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer streamResp.Body.Close()

	var sawCompletion bool
	scanner := bufio.NewScanner(streamResp.Body)
	deadline := time.After(10 * time.Second)
	lineCh := make(chan string)
	go func() {
		defer close(lineCh)
		for scanner.Scan() {
			lineCh <- scanner.Text()
		}
	}()
scan:
	for {
		select {
		case line, open := <-lineCh:
			if !open {
				break scan
			}
			switch line {
			case "event: connected":
				// The subscriber is attached; let the backend finish.
				bolt.done.Store(true)
			case "event: task.completion":
				sawCompletion = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for stream to finish")
		}
	}
	if !sawCompletion {
		t.Fatal("never saw task.completion on the stream")
	}

	// The task resource now reflects the terminal state.
	final, err := st.ReadTask(context.Background(), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != store.StatusCompleted {
		t.Fatalf("final status = %q, want completed", final.Status)
	}
	if final.Implementation != "package main" {
		t.Fatalf("implementation = %q", final.Implementation)
	}

	// The status endpoint counted the task.
	statusResp, err := http.Get(api.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer statusResp.Body.Close()
	var ws server.StatusResponse
	if err := json.NewDecoder(statusResp.Body).Decode(&ws); err != nil {
		t.Fatal(err)
	}
	if ws.TasksProcessed != 1 || ws.TasksSucceeded != 1 {
		t.Fatalf("worker stats = %+v", ws)
	}
}

func TestTaskTimeoutEndToEnd(t *testing.T) {
	// A backend that never completes.
	bolt := &fakeBolt{}
	boltSrv := httptest.NewServer(bolt.handler())
	defer boltSrv.Close()

	st := store.NewMemory()
	hub := stream.NewHub(nil)
	client := backend.NewClient(config.BackendConfig{
		URL:              boltSrv.URL,
		Retries:          0,
		RetryDelayMs:     1,
		RequestTimeoutMs: 5000,
	}, nil)
	orch := orchestrator.New(config.OrchestratorConfig{
		PollIntervalSeconds: 10,
		MaxPollAttempts:     3,
	}, client, st, hub, nil, nil, nil,
		orchestrator.WithPollInterval(time.Millisecond))

	task := &store.Task{ID: "to-1", Prompt: "p", Status: store.StatusPending}
	if err := st.CreateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	orch.Run(context.Background(), task)

	final, err := st.ReadTask(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != store.StatusFailed {
		t.Fatalf("final status = %q, want failed", final.Status)
	}
	if final.Error == nil || final.Error.Code != "timeout" {
		t.Fatalf("final error = %+v, want timeout code", final.Error)
	}
	if !strings.Contains(final.Error.Message, "timed out") {
		t.Fatalf("error message = %q", final.Error.Message)
	}
}
