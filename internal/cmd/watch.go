package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"boltbridge/internal/backend"
	"boltbridge/internal/event"
	"boltbridge/internal/logging"
	"boltbridge/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch <task-id>",
	Short: "Watch a task's event stream live",
	Long:  `Attach to the bolt.diy backend stream for a task and render its events.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	taskID := args[0]

	client := backend.NewClient(cfg.Backend, logging.NopLogger())

	// The stream outlives the TUI only until ctx is canceled; quitting the
	// program cancels the subscription so the forwarder can never block on
	// a send nobody reads.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	events := make(chan event.StreamEvent, 16)
	go func() {
		defer close(events)
		_ = client.StreamSubscribe(ctx, taskID, forwardEvents(ctx, events))
	}()

	p := tea.NewProgram(tui.NewWatch(taskID, events), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}

	return nil
}

// forwardEvents returns the stream sink feeding the TUI. Each send also
// waits on ctx so the forwarder never blocks once the program has quit and
// nobody drains the channel.
func forwardEvents(ctx context.Context, events chan<- event.StreamEvent) func(event.StreamEvent) {
	return func(e event.StreamEvent) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	}
}
