// Package cli implements the workbench command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// Set by the build.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "workbench",
	Short: "Administer and migrate BI tenants",
	Long: `workbench copies groups, users, dashboards and data models between two
tenants, changes folder ownership, manages users and writes CSV reports.

Tenants are described by YAML environment files passed with --source,
--target or --env. Tokens may instead come from SISENSE_<NAME>_TOKEN.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd.Version = Version + " (commit: " + Commit + ", built: " + Date + ")"
	return rootCmd.ExecuteContext(ctx)
}

var (
	sourcePath   string
	targetPath   string
	envPath      string
	settingsPath string
	csvPath      string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&sourcePath, "source", "", "Source environment file")
	rootCmd.PersistentFlags().StringVar(&targetPath, "target", "", "Target environment file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", "", "Environment file for single-tenant commands (defaults to --source)")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Settings file (workbench.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}

// addCSVFlag registers --csv on commands that can write their result to a file.
func addCSVFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&csvPath, "csv", "", "Also write the result as CSV to this path")
}
