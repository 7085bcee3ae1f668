package cmd

import (
	"context"
	"testing"
	"time"

	"boltbridge/internal/config"
	"boltbridge/internal/event"
	"boltbridge/internal/store"
)

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"serve": false, "status": false, "watch": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestOpenStoreMemory(t *testing.T) {
	st, err := openStore(context.Background(), config.StoreConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	if _, ok := st.(*store.Memory); !ok {
		t.Fatalf("store = %T, want *store.Memory", st)
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	if _, err := openStore(context.Background(), config.StoreConfig{Driver: "dynamo"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestForwardEventsUnblocksOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// A full channel with no reader: the quit-early case.
	events := make(chan event.StreamEvent, 1)
	events <- event.NewConnected("t-1")

	sink := forwardEvents(ctx, events)

	returned := make(chan struct{})
	go func() {
		sink(event.NewTaskOutput("stuck"))
		close(returned)
	}()

	cancel()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("sink still blocked after context cancellation")
	}
}
