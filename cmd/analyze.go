package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Run the saved query battery and rewrite the answer cards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, _, err := a.svc.RunAnalysis(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("analysis run complete",
				zap.Int("queries", summary.Queries),
				zap.Int("failed", summary.Failed),
				zap.Int("cards_written", summary.CardsWritten),
				zap.Duration("duration", summary.Duration),
			)
			return nil
		},
	}
}
