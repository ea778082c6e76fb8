package api

import (
	"net/http"
	"strconv"

	"github.com/nugget/thane-forge/internal/store"
)

type metricRequest struct {
	Type    string  `json:"type"`
	Value   float64 `json:"value"`
	AgentID string  `json:"agent_id"`
}

func (s *Server) handleMetricList(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.store.ListMetrics()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, metrics, s.logger)
}

func (s *Server) handleMetricCreate(w http.ResponseWriter, r *http.Request) {
	var req metricRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Type == "" {
		s.errorResponse(w, http.StatusBadRequest, "type is required")
		return
	}
	metric := &store.Metric{Type: req.Type, Value: req.Value, AgentID: req.AgentID}
	if err := s.store.CreateMetric(metric); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, metric, s.logger)
}

func (s *Server) handleMetricSummary(w http.ResponseWriter, r *http.Request) {
	sinceHours := 0.0
	if v := r.URL.Query().Get("since_hours"); v != "" {
		if hrs, err := strconv.ParseFloat(v, 64); err == nil {
			sinceHours = hrs
		}
	}
	summary, err := s.store.SummarizeMetrics(sinceHours)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, summary, s.logger)
}
