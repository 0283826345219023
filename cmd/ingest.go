package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, _, err := a.svc.RunIngestion(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("ingestion run complete",
				zap.Int("pages", summary.Pages),
				zap.Int("page_errors", summary.PageErrors),
				zap.Int("parsed", summary.Parsed),
				zap.Int("dropped", summary.Dropped),
				zap.Int("inserted", summary.Load.Inserted),
				zap.Int("skipped", summary.Load.Skipped),
				zap.Duration("duration", summary.Duration),
			)
			return nil
		},
	}
}
