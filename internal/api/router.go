// Package api serves the workbench HTTP API: environment management,
// resource browsing, asynchronous migration and ownership jobs, and a
// websocket stream of job logs.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/rflorenc/sisense-workbench/internal/config"
	"github.com/rflorenc/sisense-workbench/internal/models"
	"github.com/rflorenc/sisense-workbench/internal/platform"
)

// Server holds shared state for all API handlers.
type Server struct {
	Environments *models.EnvironmentStore
	Jobs         *models.JobStore
	Previews     *PreviewStore
	// Settings tunes batching and paging of jobs. Nil keeps the defaults.
	Settings *config.Settings
	Log      *logrus.Logger

	connect func(env *models.Environment, log logrus.FieldLogger) *platform.Tenant
}

// NewServer creates a server with empty stores.
func NewServer(settings *config.Settings, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{
		Environments: models.NewEnvironmentStore(),
		Jobs:         models.NewJobStore(),
		Previews:     NewPreviewStore(),
		Settings:     settings,
		Log:          log,
		connect:      platform.NewTenant,
	}
}

// NewRouter builds the chi router with all API routes.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		// Environments
		r.Post("/environments", s.CreateEnvironment)
		r.Get("/environments", s.ListEnvironments)
		r.Get("/environments/{id}", s.GetEnvironment)
		r.Put("/environments/{id}", s.UpdateEnvironment)
		r.Delete("/environments/{id}", s.DeleteEnvironment)
		r.Post("/environments/{id}/test", s.TestEnvironment)

		// Resource browsing
		r.Get("/environments/{id}/resources", s.ListResourceTypes)
		r.Get("/environments/{id}/resources/{type}", s.ListResourcesOfType)

		// Migration
		r.Post("/migrate/preview", s.MigrationPreviewHandler)
		r.Get("/migrate/preview/{jobId}", s.GetMigrationPreview)
		r.Post("/migrate/run", s.MigrationRunHandler)

		// Ownership
		r.Post("/ownership", s.OwnershipHandler)

		r.Get("/exclusions", s.GetExclusions)

		// Jobs
		r.Get("/jobs", s.ListJobs)
		r.Get("/jobs/{id}", s.GetJob)
	})

	// WebSocket (outside /api to avoid JSON content-type assumptions)
	r.Get("/ws/jobs/{id}/logs", s.StreamJobLogs)

	return r
}

// tenant builds a tenant for env whose requests log through log.
func (s *Server) tenant(env *models.Environment, log *logrus.Logger) *platform.Tenant {
	connect := s.connect
	if connect == nil {
		connect = platform.NewTenant
	}
	t := connect(env, log.WithField("env", env.Name))
	if s.Settings != nil {
		t.SetPageSize(s.Settings.PageSize)
	}
	return t
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
