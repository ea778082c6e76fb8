package api

import (
	"net/http"

	"github.com/nugget/thane-forge/internal/store"
)

type jobRequest struct {
	Type     string `json:"type"`
	ModelTag string `json:"model_tag"`
}

func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListJobs()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, jobs, s.logger)
}

func (s *Server) handleJobCreate(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Type == "" {
		s.errorResponse(w, http.StatusBadRequest, "type is required")
		return
	}
	job := &store.Job{Type: req.Type, ModelTag: req.ModelTag}
	if err := s.store.CreateJob(job); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, job, s.logger)
}

func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, job, s.logger)
}

func (s *Server) handleJobDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteJob(r.PathValue("id")); err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJobStart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.StartJob(id); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	job, err := s.store.GetJob(id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, job, s.logger)
}

func (s *Server) handleJobComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Status == "" {
		req.Status = store.JobSuccess
	}
	id := r.PathValue("id")
	if err := s.store.CompleteJob(id, req.Status, req.Error); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	job, err := s.store.GetJob(id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, job, s.logger)
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.CompleteJob(id, store.JobCancelled, ""); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	job, err := s.store.GetJob(id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, job, s.logger)
}
