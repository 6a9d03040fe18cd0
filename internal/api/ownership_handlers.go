package api

import (
	"context"
	"net/http"

	"github.com/rflorenc/sisense-workbench/internal/folders"
)

// OwnershipHandler starts an async folder ownership change on one
// environment.
func (s *Server) OwnershipHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EnvironmentID string `json:"environment_id"`
		folders.Request
	}
	req.ChangeDashboardOwnership = true
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Request.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	env := s.Environments.Get(req.EnvironmentID)
	if env == nil {
		writeError(w, http.StatusNotFound, "environment not found")
		return
	}

	job := s.Jobs.Create("ownership-change", env.ID)
	log := job.Logger(s.Log)

	go func() {
		owner := folders.NewOwner(s.tenant(env, log), log)
		result, err := owner.ChangeOwnership(context.Background(), req.Request)
		if err != nil {
			log.Error(err.Error())
			job.Fail(err.Error())
			return
		}
		job.Complete(result)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}
