package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the crawler pipeline and ops HTTP server",
		Long: `Starts the full pipeline: the periodic source scheduler, the worker
pool, the watch sweep, housekeeping, and the HTTP API. Stops cleanly on
SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			a.Logger().Info("starting newswatch")
			if err := a.Run(ctx); err != nil {
				a.Logger().Error("pipeline stopped", zap.Error(err))
				return err
			}
			a.Logger().Info("newswatch stopped")
			return nil
		},
	}
}
