package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"boltbridge/internal/config"
	"boltbridge/internal/errors"
)

func testConfig(url string, retries int) config.BackendConfig {
	return config.BackendConfig{
		URL:              url,
		Retries:          retries,
		RetryDelayMs:     1,
		RequestTimeoutMs: 2000,
	}
}

func TestSubmit(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"taskId":"t-1","status":"pending"}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, 0), nil)
	resp, err := client.Submit(context.Background(), "t-1", "build a parser", "u-1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/implementation" {
		t.Errorf("request = %s %s, want POST /implementation", gotMethod, gotPath)
	}
	if resp.TaskID != "t-1" || resp.Status != "pending" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRetryBudget_TotalAttempts(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	const retries = 3
	client := NewClient(testConfig(srv.URL, retries), nil)

	_, err := client.Submit(context.Background(), "t-1", "p", "")
	if errors.CodeOf(err) != errors.CodeRequestFailed {
		t.Fatalf("error code = %q, want request_failed (err: %v)", errors.CodeOf(err), err)
	}
	if got := attempts.Load(); got != retries+1 {
		t.Errorf("total attempts = %d, want %d", got, retries+1)
	}

	var berr *errors.BackendError
	if !errors.As(err, &berr) {
		t.Fatal("error should be a BackendError")
	}
	if berr.Details["status"] != http.StatusBadGateway {
		t.Errorf("error should carry the last HTTP status, got %v", berr.Details["status"])
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"processing"}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, 3), nil)
	resp, err := client.PollStatus(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("PollStatus failed: %v", err)
	}
	if resp.Status != "processing" {
		t.Errorf("Status = %q, want processing", resp.Status)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestPollStatus_MalformedPayloadIsValidationError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, 3), nil)
	_, err := client.PollStatus(context.Background(), "t-1")
	if errors.CodeOf(err) != errors.CodeValidation {
		t.Fatalf("error code = %q, want validation_error", errors.CodeOf(err))
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("validation failures must not be retried, got %d attempts", got)
	}
}

func TestPollStatus_UnknownStatusIsValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"exploded"}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, 0), nil)
	_, err := client.PollStatus(context.Background(), "t-1")
	if errors.CodeOf(err) != errors.CodeValidation {
		t.Fatalf("error code = %q, want validation_error", errors.CodeOf(err))
	}
}

func TestPollStatus_Progress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"processing","progress":62.5}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, 0), nil)
	resp, err := client.PollStatus(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("PollStatus failed: %v", err)
	}
	if resp.Progress == nil || *resp.Progress != 62.5 {
		t.Errorf("Progress = %v, want 62.5", resp.Progress)
	}
}

func TestFetchResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/implementation/t-1" {
			t.Errorf("path = %s, want /implementation/t-1", r.URL.Path)
		}
		w.Write([]byte(`{"implementation":"package main","files":[{"name":"main.go","content":"package main"}]}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, 0), nil)
	resp, err := client.FetchResult(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("FetchResult failed: %v", err)
	}
	if resp.Implementation != "package main" {
		t.Errorf("Implementation = %q", resp.Implementation)
	}
	if len(resp.Files) != 1 || resp.Files[0].Name != "main.go" {
		t.Errorf("Files = %+v", resp.Files)
	}
}

func TestRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, 0)
	cfg.RequestTimeoutMs = 20
	client := NewClient(cfg, nil)

	_, err := client.PollStatus(context.Background(), "t-1")
	if errors.CodeOf(err) != errors.CodeRequestFailed {
		t.Fatalf("error code = %q, want request_failed", errors.CodeOf(err))
	}
	var berr *errors.BackendError
	if errors.As(err, &berr) && berr.Details["reason"] != "timeout" {
		t.Errorf("timeout should be distinguishable in details, got %v", berr.Details)
	}
}

func TestRetry_ContextCanceledDuringDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, 5)
	cfg.RetryDelayMs = 10000
	client := NewClient(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := client.Submit(ctx, "t-1", "p", "")
	if err == nil {
		t.Fatal("expected an error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation should interrupt the retry delay, took %v", elapsed)
	}
}
