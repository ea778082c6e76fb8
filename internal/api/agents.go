package api

import (
	"net/http"

	"github.com/nugget/thane-forge/internal/store"
)

type agentRequest struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

func (s *Server) handleAgentList(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, agents, s.logger)
}

func (s *Server) handleAgentCreate(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.Type == "" {
		s.errorResponse(w, http.StatusBadRequest, "name and type are required")
		return
	}
	status := req.Status
	if status == "" {
		status = store.AgentIdle
	}
	agent := &store.Agent{Name: req.Name, Type: req.Type, Status: status}
	if err := s.store.CreateAgent(agent); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, agent, s.logger)
}

func (s *Server) handleAgentGet(w http.ResponseWriter, r *http.Request) {
	agent, err := s.store.GetAgent(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, agent, s.logger)
}

func (s *Server) handleAgentUpdate(w http.ResponseWriter, r *http.Request) {
	agent, err := s.store.GetAgent(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	var req agentRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Name != "" {
		agent.Name = req.Name
	}
	if req.Type != "" {
		agent.Type = req.Type
	}
	if req.Status != "" {
		agent.Status = req.Status
	}
	if err := s.store.UpdateAgent(agent); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, agent, s.logger)
}

func (s *Server) handleAgentDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAgent(r.PathValue("id")); err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAgentSetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Status == "" {
		s.errorResponse(w, http.StatusBadRequest, "status is required")
		return
	}
	if err := s.store.SetAgentStatus(r.PathValue("id"), req.Status); err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	agent, err := s.store.GetAgent(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, agent, s.logger)
}

func (s *Server) handleAgentStart(w http.ResponseWriter, r *http.Request) {
	s.setAgentStatusOr500(w, r, store.AgentActive)
}

func (s *Server) handleAgentStop(w http.ResponseWriter, r *http.Request) {
	s.setAgentStatusOr500(w, r, store.AgentIdle)
}

func (s *Server) setAgentStatusOr500(w http.ResponseWriter, r *http.Request, status string) {
	id := r.PathValue("id")
	if err := s.store.SetAgentStatus(id, status); err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	agent, err := s.store.GetAgent(id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, agent, s.logger)
}
