package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rflorenc/sisense-workbench/internal/access"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Data model build schedules",
}

var scheduleBuildCmd = &cobra.Command{
	Use:   "build <datamodel>",
	Short: "Schedule a recurring build (times in UTC)",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(needEnv, runScheduleBuild),
}

var schedule access.Schedule

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleBuildCmd)
	f := scheduleBuildCmd.Flags()
	f.StringSliceVar(&schedule.Days, "days", []string{"*"}, "Days SUN..SAT, or * for every day")
	f.IntVar(&schedule.Hour, "hour", 0, "Hour 0-23")
	f.IntVar(&schedule.Minute, "minute", 0, "Minute 0-59")
	f.StringVar(&schedule.BuildType, "build-type", access.DefaultBuildType, "Build type")
}

func runScheduleBuild(app *App, cmd *cobra.Command, args []string) error {
	s := schedule
	s.Datamodel = args[0]
	cron, err := s.CronString()
	if err != nil {
		return err
	}
	if _, err := app.manager().CreateScheduleBuild(cmd.Context(), s); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %s build of %s at %q\n", s.BuildType, s.Datamodel, cron)
	return nil
}
