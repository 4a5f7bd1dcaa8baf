package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the maestro application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "maestro",
	Short: "Orchestrate service instance and binding lifecycles against service brokers",
	Long: `maestro is a control plane that drives long-running service lifecycle
operations (provision, bind, update, unbind, deprovision) against Open
Service Broker API brokers, with per-resource operation locking, asynchronous
last-operation polling, and orphan mitigation.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "maestro version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
