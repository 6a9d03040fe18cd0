package cli

import (
	"github.com/spf13/cobra"

	"github.com/rflorenc/sisense-workbench/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write share and column usage reports as CSV",
}

var reportSharesCmd = &cobra.Command{
	Use:   "dashboard-shares",
	Short: "List the grants of every dashboard",
	Args:  cobra.NoArgs,
	RunE:  withApp(needEnv, runReportShares),
}

var reportModelColumnsCmd = &cobra.Command{
	Use:   "datamodel-columns <datamodel>",
	Short: "List the tables and columns of a data model",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(needEnv, runReportModelColumns),
}

var reportDashboardColumnsCmd = &cobra.Command{
	Use:   "dashboard-columns <dashboard>",
	Short: "List the columns a dashboard's filters and widgets use",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(needEnv, runReportDashboardColumns),
}

var reportUnusedColumnsCmd = &cobra.Command{
	Use:   "unused-columns <datamodel>",
	Short: "Flag which data model columns no dashboard uses",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(needEnv, runReportUnusedColumns),
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportSharesCmd, reportModelColumnsCmd, reportDashboardColumnsCmd, reportUnusedColumnsCmd)
	for _, c := range reportCmd.Commands() {
		addCSVFlag(c)
	}
}

func runReportShares(app *App, cmd *cobra.Command, args []string) error {
	rows, err := app.manager().DashboardShareListing(cmd.Context())
	if err != nil {
		return err
	}
	return emit(cmd, report.Shares(rows))
}

func runReportModelColumns(app *App, cmd *cobra.Command, args []string) error {
	cols, err := app.manager().DatamodelColumns(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return emit(cmd, report.ModelColumns(cols))
}

func runReportDashboardColumns(app *App, cmd *cobra.Command, args []string) error {
	cols, err := app.manager().DashboardColumns(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return emit(cmd, report.DashboardColumns(cols))
}

func runReportUnusedColumns(app *App, cmd *cobra.Command, args []string) error {
	cols, err := app.manager().UnusedColumns(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return emit(cmd, report.ModelColumns(cols))
}
