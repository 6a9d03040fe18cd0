package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rflorenc/sisense-workbench/internal/models"
	"github.com/rflorenc/sisense-workbench/internal/platform"
)

func (s *Server) ListResourceTypes(w http.ResponseWriter, r *http.Request) {
	env := s.Environments.Get(chi.URLParam(r, "id"))
	if env == nil {
		writeError(w, http.StatusNotFound, "environment not found")
		return
	}
	writeJSON(w, http.StatusOK, s.tenant(env, s.Log).ResourceTypes())
}

func (s *Server) ListResourcesOfType(w http.ResponseWriter, r *http.Request) {
	env := s.Environments.Get(chi.URLParam(r, "id"))
	if env == nil {
		writeError(w, http.StatusNotFound, "environment not found")
		return
	}
	resourceType := chi.URLParam(r, "type")
	if _, ok := platform.ResourceType(resourceType); !ok {
		writeError(w, http.StatusNotFound, "unknown resource type: "+resourceType)
		return
	}
	resources, err := s.tenant(env, s.Log).ListResources(r.Context(), resourceType)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	// Ensure we return [] not null for empty results
	if resources == nil {
		resources = []models.Resource{}
	}
	writeJSON(w, http.StatusOK, resources)
}
