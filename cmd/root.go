package cmd

import (
	"fmt"
	"os"

	"site-controller/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// configDir is where LoadConfig looks for the .env file.
var configDir string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "site-controller",
	Short: "Datacenter site state controller",
	Long: `Site Controller drives racks, switches, power shelves, network segments,
IB partitions and attestation sessions towards their desired state. Each object
kind has its own reconciliation loop backed by the shared database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := RootCmd.Execute()
	if err == nil {
		return
	}

	// The configured logger may be what failed, so errors go through a
	// console logger of its own.
	l, logErr := logger.New(&logger.Config{Level: "debug", Format: "console"})
	if logErr != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	l.Error("Command failed", zap.String("command", commandPath()), zap.Error(err))
	_ = l.Sync()
	os.Exit(1)
}

func commandPath() string {
	cmd, _, err := RootCmd.Find(os.Args[1:])
	if err != nil || cmd == nil {
		return RootCmd.Name()
	}
	return cmd.CommandPath()
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "Directory containing the .env file")
}
