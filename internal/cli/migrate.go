package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rflorenc/sisense-workbench/internal/migration"
	"github.com/rflorenc/sisense-workbench/internal/models"
	"github.com/rflorenc/sisense-workbench/internal/report"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy entities from the source tenant to the target tenant",
}

var migrateGroupsCmd = &cobra.Command{
	Use:   "groups [name]...",
	Short: "Migrate groups by name, or every group with --all",
	RunE:  withApp(needPair, runMigrateGroups),
}

var migrateUsersCmd = &cobra.Command{
	Use:   "users [email]...",
	Short: "Migrate users by email, or every user with --all",
	Long: `Migrate users by email, or every user with --all.

The groups and role of every user must already exist on the target; the
command stops before creating anyone when one does not.`,
	RunE: withApp(needPair, runMigrateUsers),
}

var migrateDashboardsCmd = &cobra.Command{
	Use:   "dashboards",
	Short: "Migrate dashboards by --ids or --names, or every dashboard with --all",
	RunE:  withApp(needPair, runMigrateDashboards),
}

var migrateDatamodelsCmd = &cobra.Command{
	Use:   "datamodels",
	Short: "Migrate data models by --ids or --names, or every data model with --all",
	RunE:  withApp(needPair, runMigrateDatamodels),
}

var migrateAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Migrate groups, users, dashboards and data models in dependency order",
	Args:  cobra.NoArgs,
	RunE:  withApp(needPair, runMigrateAll),
}

var migrateSharesCmd = &cobra.Command{
	Use:   "dashboard-shares",
	Short: "Copy the shares of already migrated dashboards",
	Long: `Copy the shares of already migrated dashboards.

--source-ids and --target-ids pair up by position.`,
	Args: cobra.NoArgs,
	RunE: withApp(needPair, runMigrateShares),
}

var (
	migrateAll       bool
	dashboardOpts    migration.DashboardOptions
	datamodelOpts    migration.DatamodelOptions
	shareSourceIDs   []string
	shareTargetIDs   []string
	shareChangeOwner bool
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateGroupsCmd, migrateUsersCmd, migrateDashboardsCmd,
		migrateDatamodelsCmd, migrateAllCmd, migrateSharesCmd)

	for _, c := range []*cobra.Command{migrateGroupsCmd, migrateUsersCmd, migrateDashboardsCmd, migrateDatamodelsCmd} {
		c.Flags().BoolVar(&migrateAll, "all", false, "Migrate every entity except the configured exclusions")
	}
	for _, c := range []*cobra.Command{migrateDashboardsCmd, migrateAllCmd} {
		c.Flags().StringVar(&dashboardOpts.Action, "action", migration.ActionSkip, "Import conflict mode: skip, overwrite or duplicate")
		c.Flags().BoolVar(&dashboardOpts.Republish, "republish", false, "Republish imported dashboards")
		c.Flags().BoolVar(&dashboardOpts.MigrateShares, "shares", false, "Migrate dashboard shares after import")
		c.Flags().BoolVar(&dashboardOpts.ChangeOwnership, "change-ownership", false, "Give imported dashboards their source owner (requires --shares)")
	}
	migrateDashboardsCmd.Flags().StringSliceVar(&dashboardOpts.IDs, "ids", nil, "Dashboard IDs")
	migrateDashboardsCmd.Flags().StringSliceVar(&dashboardOpts.Names, "names", nil, "Dashboard titles")

	for _, c := range []*cobra.Command{migrateDatamodelsCmd, migrateAllCmd} {
		c.Flags().StringSliceVar(&datamodelOpts.Dependencies, "dependencies", nil,
			"Dependencies to export: dataSecurity, formulas, hierarchies, perspectives or all (default all)")
		c.Flags().BoolVar(&datamodelOpts.Shares, "datamodel-shares", false, "Migrate data model shares")
	}
	migrateDatamodelsCmd.Flags().StringSliceVar(&datamodelOpts.IDs, "ids", nil, "Data model IDs")
	migrateDatamodelsCmd.Flags().StringSliceVar(&datamodelOpts.Names, "names", nil, "Data model titles")

	migrateSharesCmd.Flags().StringSliceVar(&shareSourceIDs, "source-ids", nil, "Source dashboard IDs")
	migrateSharesCmd.Flags().StringSliceVar(&shareTargetIDs, "target-ids", nil, "Target dashboard IDs, in the same order")
	migrateSharesCmd.Flags().BoolVar(&shareChangeOwner, "change-ownership", false, "Also transfer ownership to the source owner")

	for _, c := range migrateCmd.Commands() {
		addCSVFlag(c)
	}
}

func runMigrateGroups(app *App, cmd *cobra.Command, args []string) error {
	plan := migration.Plan{Groups: args, AllGroups: migrateAll}
	if !migrateAll && len(args) == 0 {
		return fmt.Errorf("give group names or --all")
	}
	return runPlan(app, cmd, plan)
}

func runMigrateUsers(app *App, cmd *cobra.Command, args []string) error {
	plan := migration.Plan{Users: args, AllUsers: migrateAll}
	if !migrateAll && len(args) == 0 {
		return fmt.Errorf("give user emails or --all")
	}
	return runPlan(app, cmd, plan)
}

func runMigrateDashboards(app *App, cmd *cobra.Command, args []string) error {
	opts := dashboardOpts
	return runPlan(app, cmd, migration.Plan{Dashboards: &opts, AllDashboards: migrateAll})
}

func runMigrateDatamodels(app *App, cmd *cobra.Command, args []string) error {
	opts := datamodelOpts
	return runPlan(app, cmd, migration.Plan{Datamodels: &opts, AllDatamodels: migrateAll})
}

func runMigrateAll(app *App, cmd *cobra.Command, args []string) error {
	dash := dashboardOpts
	dm := datamodelOpts
	return runPlan(app, cmd, migration.Plan{
		AllGroups:     true,
		AllUsers:      true,
		Dashboards:    &dash,
		AllDashboards: true,
		Datamodels:    &dm,
		AllDatamodels: true,
	})
}

func runMigrateShares(app *App, cmd *cobra.Command, args []string) error {
	result, err := app.migrator().MigrateDashboardShares(cmd.Context(), shareSourceIDs, shareTargetIDs, shareChangeOwner)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Shares: %d succeeded, %d failed\n", result.ShareSuccessCount, result.ShareFailCount)
	return writeResults(cmd, report.Results{{Kind: "dashboard-shares", Result: result}})
}

// runPlan runs plan and prints one summary line per kind that ran. The
// partial report is still printed when a step fails.
func runPlan(app *App, cmd *cobra.Command, plan migration.Plan) error {
	rep, err := app.migrator().Run(cmd.Context(), plan)
	if rep != nil {
		results := report.Results{
			{Kind: "groups", Result: rep.Groups},
			{Kind: "users", Result: rep.Users},
			{Kind: "dashboards", Result: rep.Dashboards},
			{Kind: "datamodels", Result: rep.Datamodels},
		}
		for _, r := range results {
			printSummary(cmd, r.Kind, r.Result)
		}
		if werr := writeResults(cmd, results); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func printSummary(cmd *cobra.Command, kind string, r *models.MigrationResult) {
	if r == nil {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d succeeded, %d skipped, %d failed\n", kind, len(r.Succeeded), len(r.Skipped), len(r.Failed))
	for _, name := range r.Failed {
		fmt.Fprintf(out, "  FAILED: %s\n", name)
	}
	if r.ShareSuccessCount+r.ShareFailCount > 0 {
		fmt.Fprintf(out, "  shares: %d succeeded, %d failed\n", r.ShareSuccessCount, r.ShareFailCount)
	}
}

func writeResults(cmd *cobra.Command, results report.Results) error {
	if csvPath == "" {
		return nil
	}
	return emit(cmd, results)
}
