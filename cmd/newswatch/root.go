// The newswatch executable crawls configured news sources, deduplicates the
// stories they publish, and matches them against user watch keywords.
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sonhaber/newswatch/internal/app"
	"github.com/sonhaber/newswatch/internal/config"
	"github.com/sonhaber/newswatch/internal/logging"
)

var cfgFile string

// newAppFn builds the service container. A variable so tests can swap in a
// mock factory.
var newAppFn = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newswatch",
		Short: "News crawl, dedup, and watch-keyword pipeline",
		Long: `newswatch ingests Turkish news sources on a schedule, extracts
articles via CSS selectors or RSS/Atom feeds, groups duplicate coverage of
the same story, and flags articles that match user watch keywords.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (env vars with prefix NEWSWATCH override)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newBackfillCmd())

	return cmd
}

// buildApp loads configuration and initializes all services.
func buildApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return newAppFn(ctx, cfg, logger)
}
