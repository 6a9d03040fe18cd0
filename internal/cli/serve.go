package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/rflorenc/sisense-workbench/internal/api"
	"github.com/rflorenc/sisense-workbench/internal/config"
	"github.com/rflorenc/sisense-workbench/internal/models"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and job log stream",
	Long: `Serve the HTTP API and job log stream.

Environment files listed under "environments" in the settings file, and
those given with --source and --target, are loaded at startup.`,
	Args: cobra.NoArgs,
	RunE: withApp(needNone, runServe),
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "Listen address (default :8080)")
}

func runServe(app *App, cmd *cobra.Command, args []string) error {
	server := api.NewServer(app.Settings, app.Log)

	paths := append([]string{}, app.Settings.Environments...)
	for _, p := range []string{sourcePath, targetPath} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	for _, p := range paths {
		env, err := config.LoadEnvironment(appFS, p)
		if err != nil {
			return err
		}
		server.Environments.Create(env)
		app.Log.Infof("Loaded environment: %s (%s)", env.Name, env.BaseURL())
		pingEnvironment(cmd.Context(), app, env)
	}

	srv := &http.Server{Addr: app.Settings.Listen, Handler: api.NewRouter(server)}
	go func() {
		<-cmd.Context().Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	app.Log.Infof("Workbench %s listening on %s", Version, app.Settings.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// pingEnvironment verifies connectivity and the token early. Failures are
// only logged; the environment stays usable from the API.
func pingEnvironment(ctx context.Context, app *App, env *models.Environment) {
	if err := app.tenant(env).Ping(ctx); err != nil {
		app.Log.Warnf("  PING FAILED: %s: %v", env.Name, err)
		return
	}
	app.Log.Infof("  PING OK: %s: reachable", env.Name)
}
