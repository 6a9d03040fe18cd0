package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/rflorenc/sisense-workbench/internal/migration"
	"github.com/rflorenc/sisense-workbench/internal/models"
)

// PreviewStore provides thread-safe storage for migration previews, keyed
// by the preview job ID.
type PreviewStore struct {
	mu       sync.RWMutex
	previews map[string]*models.MigrationPreview
}

func NewPreviewStore() *PreviewStore {
	return &PreviewStore{previews: make(map[string]*models.MigrationPreview)}
}

func (ps *PreviewStore) Store(jobID string, p *models.MigrationPreview) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.previews[jobID] = p
}

func (ps *PreviewStore) Get(jobID string) *models.MigrationPreview {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.previews[jobID]
}

func (ps *PreviewStore) Delete(jobID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.previews, jobID)
}

// pair looks up the source and target environments of a request.
func (s *Server) pair(w http.ResponseWriter, sourceID, targetID string) (src, dst *models.Environment, ok bool) {
	src = s.Environments.Get(sourceID)
	if src == nil {
		writeError(w, http.StatusNotFound, "source environment not found")
		return nil, nil, false
	}
	dst = s.Environments.Get(targetID)
	if dst == nil {
		writeError(w, http.StatusNotFound, "target environment not found")
		return nil, nil, false
	}
	if src.ID == dst.ID {
		writeError(w, http.StatusBadRequest, "source and target must differ")
		return nil, nil, false
	}
	return src, dst, true
}

func (s *Server) migrator(src, dst *models.Environment, log *logrus.Logger) *migration.Migrator {
	m := migration.New(s.tenant(src, log), s.tenant(dst, log), log)
	if s.Settings != nil {
		m.BatchSize = s.Settings.BatchSize
		m.DashboardSleep = s.Settings.DashboardSleep
		m.DatamodelSleep = s.Settings.DatamodelSleep
	}
	return m
}

// MigrationPreviewHandler starts an async preview job.
func (s *Server) MigrationPreviewHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceID string `json:"source_id"`
		TargetID string `json:"target_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	src, dst, ok := s.pair(w, req.SourceID, req.TargetID)
	if !ok {
		return
	}

	job := s.Jobs.Create("migration-preview", req.SourceID)
	log := job.Logger(s.Log)

	go func() {
		preview, err := s.migrator(src, dst, log).Preview(context.Background())
		if err != nil {
			log.Error(err.Error())
			job.Fail(err.Error())
			return
		}
		s.Previews.Store(job.ID, preview)
		create, skip := preview.Counts()
		job.Complete(map[string]int{"create": create, "skip": skip})
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

// GetMigrationPreview returns the cached preview of a completed preview job.
func (s *Server) GetMigrationPreview(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	job := s.Jobs.Get(jobID)
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	switch job.State() {
	case models.JobRunning:
		writeJSON(w, http.StatusConflict, map[string]string{
			"status":  models.JobRunning,
			"message": "preview is still in progress",
		})
		return
	case models.JobFailed:
		writeJSON(w, http.StatusOK, map[string]any{
			"status": models.JobFailed,
			"error":  job.Error,
		})
		return
	}

	preview := s.Previews.Get(jobID)
	if preview == nil {
		writeError(w, http.StatusNotFound, "preview data not found")
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// MigrationRunHandler validates a plan and runs it as an async job. A
// preview_job_id, when given, drops that cached preview once the run ends.
func (s *Server) MigrationRunHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceID     string         `json:"source_id"`
		TargetID     string         `json:"target_id"`
		PreviewJobID string         `json:"preview_job_id"`
		Plan         migration.Plan `json:"plan"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Plan.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	src, dst, ok := s.pair(w, req.SourceID, req.TargetID)
	if !ok {
		return
	}

	job := s.Jobs.Create("migration-run", req.TargetID)
	log := job.Logger(s.Log)

	go func() {
		report, err := s.migrator(src, dst, log).Run(context.Background(), req.Plan)
		if err != nil {
			log.Error(err.Error())
			job.Fail(err.Error())
		} else {
			job.Complete(report)
		}
		if req.PreviewJobID != "" {
			s.Previews.Delete(req.PreviewJobID)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}
