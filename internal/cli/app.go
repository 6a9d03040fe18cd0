package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/rflorenc/sisense-workbench/internal/access"
	"github.com/rflorenc/sisense-workbench/internal/config"
	"github.com/rflorenc/sisense-workbench/internal/migration"
	"github.com/rflorenc/sisense-workbench/internal/models"
	"github.com/rflorenc/sisense-workbench/internal/platform"
	"github.com/rflorenc/sisense-workbench/internal/report"
)

var (
	appFS   afero.Fs = afero.NewOsFs()
	connect          = platform.NewTenant
)

// Tenants a command needs.
const (
	needNone = iota
	needEnv
	needPair
)

// App is the bootstrapped state shared by commands.
type App struct {
	Settings *config.Settings
	Log      *logrus.Logger

	// Env is the tenant of single-tenant commands.
	Env *models.Environment
	// Source and Target are set for migration commands.
	Source *models.Environment
	Target *models.Environment
}

type runFunc func(app *App, cmd *cobra.Command, args []string) error

// withApp wraps a command's run function with settings, logging and
// environment loading.
func withApp(need int, fn runFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := bootstrap(cmd, need)
		if err != nil {
			return err
		}
		return fn(app, cmd, args)
	}
}

func bootstrap(cmd *cobra.Command, need int) (*App, error) {
	v := config.NewViper()
	if f := cmd.Flags().Lookup("log-level"); f != nil {
		if err := v.BindPFlag("log.level", f); err != nil {
			return nil, err
		}
	}
	if f := cmd.Flags().Lookup("listen"); f != nil {
		if err := v.BindPFlag("listen", f); err != nil {
			return nil, err
		}
	}
	settings, err := config.LoadSettings(v, appFS, settingsPath)
	if err != nil {
		return nil, err
	}
	if err := config.LoadDotEnv(appFS, settings.DotEnv); err != nil {
		return nil, err
	}
	app := &App{Settings: settings, Log: settings.NewLogger(cmd.ErrOrStderr())}

	switch need {
	case needEnv:
		path := envPath
		if path == "" {
			path = sourcePath
		}
		if path == "" {
			return nil, fmt.Errorf("an environment file is required (--env)")
		}
		if app.Env, err = config.LoadEnvironment(appFS, path); err != nil {
			return nil, err
		}
	case needPair:
		if sourcePath == "" || targetPath == "" {
			return nil, fmt.Errorf("both --source and --target environment files are required")
		}
		if app.Source, err = config.LoadEnvironment(appFS, sourcePath); err != nil {
			return nil, err
		}
		if app.Target, err = config.LoadEnvironment(appFS, targetPath); err != nil {
			return nil, err
		}
	}
	return app, nil
}

func (a *App) tenant(env *models.Environment) *platform.Tenant {
	t := connect(env, a.Log.WithField("env", env.Name))
	t.SetPageSize(a.Settings.PageSize)
	return t
}

func (a *App) migrator() *migration.Migrator {
	m := migration.New(a.tenant(a.Source), a.tenant(a.Target), a.Log)
	m.BatchSize = a.Settings.BatchSize
	m.DashboardSleep = a.Settings.DashboardSleep
	m.DatamodelSleep = a.Settings.DatamodelSleep
	return m
}

func (a *App) manager() *access.Manager {
	return access.New(a.tenant(a.Env), a.Log)
}

// emit prints t as CSV to stdout, or writes it to --csv when set.
func emit(cmd *cobra.Command, t report.Table) error {
	if csvPath != "" {
		if err := report.WriteFile(appFS, csvPath, t); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", len(t.Rows()), csvPath)
		return nil
	}
	return report.Write(cmd.OutOrStdout(), t)
}
