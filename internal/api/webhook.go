package api

import (
	"errors"
	"net/http"

	"github.com/nugget/thane-forge/internal/webhook"
)

func (s *Server) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	result, err := s.webhook.Receive(r.Context(), r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			s.errorResponse(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, map[string]any{
		"status":     "received",
		"event_id":   result.EventID,
		"event_type": result.EventType,
		"queued":     result.Queued,
	}, s.logger)
}
