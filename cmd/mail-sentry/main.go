package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/seokwon/mail-sentry/internal/config"
	"github.com/seokwon/mail-sentry/internal/core"
	"github.com/seokwon/mail-sentry/internal/di"
	"github.com/seokwon/mail-sentry/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	root := &cobra.Command{
		Use:   "mail-sentry",
		Short: "Adaptive mail triage and notification engine",
	}
	root.AddCommand(serveCmd(), batchCmd(), updatePriorsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func invoke(fn interface{}) error {
	container, err := di.BuildContainer()
	if err != nil {
		return fmt.Errorf("failed to build dependency container: %w", err)
	}
	return container.Invoke(fn)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(runServer)
		},
	}
}

func runServer(logger *zap.Logger, srv *server.Server, state core.StateStore) error {
	defer logger.Sync()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	}

	if err := srv.Shutdown(); err != nil {
		logger.Error("Failed to shut down server", zap.Error(err))
	}
	if err := state.Close(); err != nil {
		logger.Error("Failed to close state store", zap.Error(err))
	}
	logger.Info("Shutdown complete")
	return nil
}

func batchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch",
		Short: "Run one batch cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(func(logger *zap.Logger, orchestrator *core.Orchestrator, state core.StateStore) error {
				defer logger.Sync()
				defer state.Close()

				summary, err := orchestrator.RunBatch(cmd.Context())
				if err != nil {
					return err
				}

				fmt.Printf("status: %s\n", summary.Status)
				if summary.Reason != "" {
					fmt.Printf("reason: %s\n", summary.Reason)
				}
				fmt.Printf("processed: %d\nsent: %d\nignored: %d\n",
					summary.Processed, summary.Sent, summary.Ignored)
				return nil
			})
		},
	}
}

func updatePriorsCmd() *cobra.Command {
	var windowDays, limit int

	cmd := &cobra.Command{
		Use:   "update-priors",
		Short: "Recompute sender engagement priors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(func(logger *zap.Logger, priors *core.PriorEngine, cfg *config.Config) error {
				defer logger.Sync()

				learningCfg := cfg.GetLearning()
				if !learningCfg.Enabled {
					return fmt.Errorf("learning is disabled in the configuration")
				}
				if windowDays <= 0 {
					windowDays = learningCfg.WindowDays
				}
				if limit <= 0 {
					limit = learningCfg.UpdateLimit
				}

				updated, failed := priors.UpdatePriors(cmd.Context(), windowDays, limit)
				fmt.Printf("updated: %d\nfailed: %d\n", updated, failed)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&windowDays, "window-days", 0, "Engagement window in days (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum senders to update (default from config)")
	return cmd
}
