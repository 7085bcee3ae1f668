package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestSetupOTelSDKShutdown(t *testing.T) {
	shutdown, err := SetupOTelSDK(context.Background())
	if err != nil {
		t.Fatalf("SetupOTelSDK: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// A second call must be a no-op.
	if err := shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestMetricsRecord(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.RecordTask(true)
	m.RecordTask(false)
	m.RecordDatabaseFailure()
}
