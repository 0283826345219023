package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Apply the applicants schema to the configured database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			ddl, err := os.ReadFile(a.cfg.DB.SchemaPath)
			if err != nil {
				return fmt.Errorf("read schema file: %w", err)
			}
			if err := a.store.ApplySchema(ctx, string(ddl)); err != nil {
				return err
			}
			a.logger.Info("schema applied", zap.String("path", a.cfg.DB.SchemaPath))
			return nil
		},
	}
}
