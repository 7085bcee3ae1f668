package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"boltbridge/internal/backend"
	"boltbridge/internal/logging"
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Query a task's backend status once",
	Long:  `Ask the bolt.diy backend for the current status of a task and print it.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	client := backend.NewClient(cfg.Backend, logging.NopLogger())
	resp, err := client.PollStatus(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to query status: %w", err)
	}

	fmt.Printf("Task: %s\n", args[0])
	fmt.Printf("Status: %s\n", resp.Status)
	if resp.Progress != nil {
		fmt.Printf("Progress: %.0f%%\n", *resp.Progress*100)
	}

	return nil
}
