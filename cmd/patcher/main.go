package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/patcher-cli/patcher/internal/config"
	"github.com/patcher-cli/patcher/internal/logging"
	"github.com/patcher-cli/patcher/internal/store"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "patcher",
	Short: "Patch compliance reports for Jamf Pro",
	Long: `patcher turns Jamf Pro patch software title data into compliance
reports. Run "patcher setup" once to store API credentials, then
"patcher export" to generate a report.`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{printf "patcher version %s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newSetupCmd())
	rootCmd.AddCommand(newResetCmd())
}

// environment bundles the pieces every subcommand opens: settings from
// the process environment, a logger writing to the config directory,
// and the encrypted credential store.
type environment struct {
	settings *config.Settings
	logger   *slog.Logger
	store    *store.BoltStore

	closers []func() error
}

func openEnvironment() (*environment, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, closeLog, err := logging.NewFileLogger(settings.Environment, settings.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	db, err := store.OpenAt(settings.ConfigDir)
	if err != nil {
		closeLog()

		return nil, fmt.Errorf("opening credential store: %w", err)
	}

	return &environment{
		settings: settings,
		logger:   logger,
		store:    db,
		closers:  []func() error{db.Close, closeLog},
	}, nil
}

func (e *environment) Close() {
	for _, close := range e.closers {
		if err := close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
}
