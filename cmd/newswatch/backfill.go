package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newBackfillCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Group historical ungrouped articles",
		Long: `Runs the layered duplicate detection over articles that predate the
pipeline or were ingested while the judge was unavailable. A free exact-title
pass runs first; the remainder goes through the lexical prefilter and the
semantic judge.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Dedup().Backfill(ctx, limit)
			if err != nil {
				return err
			}

			a.Logger().Info("backfill finished",
				zap.Int("scanned", result.Scanned),
				zap.Int("exact_grouped", result.ExactGrouped),
				zap.Int("fuzzy_grouped", result.FuzzyGrouped),
				zap.Bool("aborted", result.Aborted))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 1000, "maximum number of ungrouped articles to scan")
	return cmd
}
