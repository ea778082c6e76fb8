package api

import (
	"net/http"
	"strconv"

	"github.com/nugget/thane-forge/internal/store"
)

type logRequest struct {
	Level    string `json:"level"`
	AgentID  string `json:"agent_id"`
	JobID    string `json:"job_id"`
	Message  string `json:"message"`
	MetaJSON string `json:"meta"`
}

func (s *Server) handleLogList(w http.ResponseWriter, r *http.Request) {
	f := store.LogFilter{AgentID: r.URL.Query().Get("agent_id")}
	if v := r.URL.Query().Get("older_than_hours"); v != "" {
		if hrs, err := strconv.ParseFloat(v, 64); err == nil {
			f.OlderThanHrs = hrs
		}
	}
	logs, err := s.store.ListLogs(f)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, logs, s.logger)
}

func (s *Server) handleLogCreate(w http.ResponseWriter, r *http.Request) {
	var req logRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}
	level := req.Level
	if level == "" {
		level = store.LogInfo
	}
	entry := &store.LogEntry{
		Level:    level,
		AgentID:  req.AgentID,
		JobID:    req.JobID,
		Message:  req.Message,
		MetaJSON: req.MetaJSON,
	}
	if err := s.store.CreateLog(entry); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, entry, s.logger)
}

func (s *Server) handleLogDelete(w http.ResponseWriter, r *http.Request) {
	f := store.LogFilter{AgentID: r.URL.Query().Get("agent_id")}
	if v := r.URL.Query().Get("older_than_hours"); v != "" {
		if hrs, err := strconv.ParseFloat(v, 64); err == nil {
			f.OlderThanHrs = hrs
		}
	}
	count, err := s.store.DeleteLogs(f)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"deleted": count}, s.logger)
}
