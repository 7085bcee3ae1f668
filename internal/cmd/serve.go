package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"boltbridge/internal/backend"
	"boltbridge/internal/config"
	"boltbridge/internal/files"
	"boltbridge/internal/logging"
	"boltbridge/internal/orchestrator"
	"boltbridge/internal/server"
	"boltbridge/internal/store"
	"boltbridge/internal/stream"
	"boltbridge/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the boltbridge API server",
	Long: `Start the HTTP API: task creation, task lookup, per-task SSE streams,
and worker status. Tasks run in the background until they reach a
terminal state.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Bool("in-memory", false, "use the in-memory task store instead of Postgres")
	_ = viper.BindPFlag("store.in_memory", serveCmd.Flags().Lookup("in-memory"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if viper.GetBool("store.in_memory") {
		viper.Set("store.driver", "memory")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := telemetry.SetupOTelSDK(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	stats := server.NewWorkerStats(metrics)

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open task store: %w", err)
	}

	hub := stream.NewHub(logger)
	client := backend.NewClient(cfg.Backend, logger)
	uploader := files.NewLocal(cfg.Files.Dir)
	orch := orchestrator.New(cfg.Orchestrator, client, st, hub, uploader, stats, logger)

	srv := server.New(cfg.Server, st, hub, orch, stats, logger)

	logger.Info("boltbridge starting",
		"backend_url", cfg.Backend.URL,
		"store_driver", cfg.Store.Driver,
		"port", cfg.Server.Port)

	return srv.ListenAndServe(ctx)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.DSN)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
