package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var kindsFlag []string

// controllerCmd groups the one-shot controller commands
var controllerCmd = &cobra.Command{
	Use:   "controller",
	Short: "Inspect and drive controllers without starting the server",
}

// runOnceCmd runs a single iteration
var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Run one iteration of the enabled controllers",
	Long:  `Claims and runs one iteration for every enabled kind, or for the kinds given with --kind, and prints the iteration summaries as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			registry, err := a.prepare(ctx)
			if err != nil {
				return err
			}
			summaries, err := registry.RunOnce(ctx, kindsFlag...)
			if len(summaries) > 0 {
				if encErr := printJSON(summaries); encErr != nil {
					return encErr
				}
			}
			return err
		})
	},
}

// inspectCmd prints one object
var inspectCmd = &cobra.Command{
	Use:   "inspect [kind] [id]",
	Short: "Print the controller state, SLA and last outcome of an object",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			registry, err := a.features.Registry()
			if err != nil {
				return err
			}
			runner, ok := registry.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown or disabled controller kind %q", args[0])
			}
			report, err := runner.Inspect(ctx, args[1])
			if err != nil {
				return err
			}
			return printJSON(report)
		})
	},
}

// historyCmd prints the state history of one object
var historyCmd = &cobra.Command{
	Use:   "history [kind] [id]",
	Short: "Print the recorded state changes of an object",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			registry, err := a.features.Registry()
			if err != nil {
				return err
			}
			runner, ok := registry.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown or disabled controller kind %q", args[0])
			}
			entries, err := runner.History(ctx, args[1], limit)
			if err != nil {
				return err
			}
			return printJSON(entries)
		})
	},
}

func init() {
	runOnceCmd.Flags().StringSliceVar(&kindsFlag, "kind", nil, "Object kinds to run (default: all enabled)")
	historyCmd.Flags().Int("limit", 20, "Maximum number of entries")

	controllerCmd.AddCommand(runOnceCmd, inspectCmd, historyCmd)
	RootCmd.AddCommand(controllerCmd)
}

func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())
	if err := fn(ctx, a); err != nil {
		a.logger.Debug("Command failed", zap.Error(err))
		return err
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
