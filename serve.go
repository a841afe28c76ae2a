package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hark/apps/backend/internal/app"
	"hark/apps/backend/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API, the run-task worker and the scheduler",
	Long:  "Serve starts the components enabled in the environment\n(ENABLE_API, ENABLE_WORKER, ENABLE_SCHEDULER) and runs until interrupted.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, slog.Default())
}

// run bootstraps infrastructure and blocks in the application until ctx is done.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer deps.Close()

	application, err := app.New(cfg, deps, logger, nil)
	if err != nil {
		return err
	}

	logger.Info("hark starting",
		"api", cfg.EnableAPI,
		"worker", cfg.EnableWorker,
		"scheduler", cfg.EnableScheduler,
		"port", cfg.ServerPort,
	)
	return application.Run(ctx)
}
