package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rflorenc/sisense-workbench/internal/config"
	"github.com/rflorenc/sisense-workbench/internal/models"
)

// environmentRequest is the body of create and update calls. Omitted
// is_ssl and insecure take the same defaults as environment files.
type environmentRequest struct {
	Name       string   `json:"name"`
	Role       string   `json:"role"`
	Domain     string   `json:"domain"`
	Token      string   `json:"token"`
	IsSSL      *bool    `json:"is_ssl"`
	Insecure   *bool    `json:"insecure"`
	Datamodels []string `json:"datamodels"`
}

func (req environmentRequest) file() config.EnvironmentFile {
	return config.EnvironmentFile{
		Name:       req.Name,
		Role:       req.Role,
		Domain:     req.Domain,
		Token:      req.Token,
		IsSSL:      req.IsSSL,
		Insecure:   req.Insecure,
		Datamodels: req.Datamodels,
	}
}

func redactAll(envs []*models.Environment) []models.Environment {
	out := make([]models.Environment, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Redacted())
	}
	return out
}

func (s *Server) CreateEnvironment(w http.ResponseWriter, r *http.Request) {
	var req environmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	f := req.file()
	if err := f.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	env := f.Environment()
	if env.Name == "" {
		env.Name = env.Domain
	}
	s.Environments.Create(env)
	writeJSON(w, http.StatusCreated, env.Redacted())
}

func (s *Server) ListEnvironments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, redactAll(s.Environments.List()))
}

func (s *Server) GetEnvironment(w http.ResponseWriter, r *http.Request) {
	env := s.Environments.Get(chi.URLParam(r, "id"))
	if env == nil {
		writeError(w, http.StatusNotFound, "environment not found")
		return
	}
	writeJSON(w, http.StatusOK, env.Redacted())
}

// UpdateEnvironment replaces an environment. An empty token keeps the
// stored one.
func (s *Server) UpdateEnvironment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	old := s.Environments.Get(id)
	if old == nil {
		writeError(w, http.StatusNotFound, "environment not found")
		return
	}
	var req environmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	f := req.file()
	if f.Token == "" {
		f.Token = old.Token
	}
	if err := f.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	env := f.Environment()
	env.ID = id
	if env.Name == "" {
		env.Name = old.Name
	}
	if !s.Environments.Update(env) {
		writeError(w, http.StatusNotFound, "environment not found")
		return
	}
	writeJSON(w, http.StatusOK, env.Redacted())
}

func (s *Server) DeleteEnvironment(w http.ResponseWriter, r *http.Request) {
	if !s.Environments.Delete(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "environment not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TestEnvironment pings the tenant with the stored token.
func (s *Server) TestEnvironment(w http.ResponseWriter, r *http.Request) {
	env := s.Environments.Get(chi.URLParam(r, "id"))
	if env == nil {
		writeError(w, http.StatusNotFound, "environment not found")
		return
	}
	if err := s.tenant(env, s.Log).Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
