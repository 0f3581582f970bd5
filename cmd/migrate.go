package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the object and controller tables",
	Long:  `Migrates the object tables of every enabled kind together with their iteration, queue and state history tables, then verifies the controller columns.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			if _, err := a.prepare(ctx); err != nil {
				return err
			}
			a.logger.Info("Migration complete", zap.Int("features", len(a.features.Enabled())))
			return nil
		})
	},
}

func init() {
	RootCmd.AddCommand(migrateCmd)
}
