package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	appVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	appVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mast",
		Short: "Cloudmast - Multicloud Provisioning Orchestrator",
		Long: `Cloudmast provisions and tracks machines, volumes and git collaboration
objects across cloud providers from one local state store.

Features:
  - DigitalOcean, AWS, Azure and GitLab backends
  - Async provisioning chains with bounded vendor-action polling
  - Vendor catalog and resource sync with drift detection
  - Billing plans and agreement lifecycle
  - Typed configs via CUE with Starlark pricing hooks
  - Policy-gated lifecycle operations`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file or directory path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newSyncCommand())
	rootCmd.AddCommand(newProvisionCommand())
	rootCmd.AddCommand(newStartCommand())
	rootCmd.AddCommand(newStopCommand())
	rootCmd.AddCommand(newRestartCommand())
	rootCmd.AddCommand(newResizeCommand())
	rootCmd.AddCommand(newDestroyCommand())
	rootCmd.AddCommand(newResourcesCommand())
	rootCmd.AddCommand(newVolumesCommand())
	rootCmd.AddCommand(newPlansCommand())
	rootCmd.AddCommand(newAgreementsCommand())
	rootCmd.AddCommand(newAlertsCommand())
	rootCmd.AddCommand(newEventsCommand())
	rootCmd.AddCommand(newAuditCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}
