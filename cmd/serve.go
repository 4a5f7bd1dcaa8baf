package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"maestro/internal/app"

	"github.com/spf13/cobra"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveConfigPath is the path of the YAML configuration file.
var serveConfigPath string

// serveCmd defines the serve command structure. This is the main command of
// maestro: it starts the deferred-task worker pool and resumes polling for
// any operations that were in flight at the last shutdown.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the maestro control plane",
	Long: `Starts the maestro control plane: loads persisted records, connects the
broker client, and runs the deferred-task worker pool that drives pending
lifecycle operations to completion.

Configuration:
  maestro reads its configuration from a YAML file (default: config.yaml in
  the working directory). The async polling settings are re-read whenever the
  file changes, so poll interval and maximum poll duration may be tuned while
  operations are in flight.

The process runs until interrupted (Ctrl+C); a pending operation survives
restarts because its state lives in the record snapshots.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command.
func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveConfigPath, serveDebug, false)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable general debug logging")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "config.yaml", "Path of the YAML configuration file")
}
