// Package api implements the REST and WebSocket surface: CRUD over
// projects, agents, jobs, logs, and metrics, plus the live event
// stream and the GitHub webhook intake endpoint.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nugget/thane-forge/internal/build"
	"github.com/nugget/thane-forge/internal/deps"
	"github.com/nugget/thane-forge/internal/events"
	"github.com/nugget/thane-forge/internal/repo"
	"github.com/nugget/thane-forge/internal/store"
	"github.com/nugget/thane-forge/internal/webhook"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP+WebSocket API server.
type Server struct {
	address string
	port    int

	store           *store.Store
	bus             *events.Bus
	repo            *repo.Manager
	builder         *build.Orchestrator
	resolver        *deps.Resolver
	webhook         *webhook.Intake
	projectsBaseDir string

	hub    *Hub
	logger *slog.Logger
	server *http.Server
}

// New creates a Server. projectsBaseDir is the root under which every
// project's clone path is created (<projectsBaseDir>/<project name>).
func New(address string, port int, st *store.Store, bus *events.Bus, repoMgr *repo.Manager, builder *build.Orchestrator, resolver *deps.Resolver, intake *webhook.Intake, projectsBaseDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:         address,
		port:            port,
		store:           st,
		bus:             bus,
		repo:            repoMgr,
		builder:         builder,
		resolver:        resolver,
		webhook:         intake,
		projectsBaseDir: projectsBaseDir,
		hub:             newHub(logger),
		logger:          logger,
	}
}

// Handler builds the routed mux. Exported so tests can exercise
// routes with httptest without starting a real listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/projects", s.handleProjectList)
	mux.HandleFunc("POST /api/projects", s.handleProjectCreate)
	mux.HandleFunc("GET /api/projects/builds", s.handleBuildList)
	mux.HandleFunc("GET /api/projects/builds/{id}", s.handleBuildGet)
	mux.HandleFunc("POST /api/projects/builds/{id}/retry", s.handleBuildRetry)
	mux.HandleFunc("GET /api/projects/{id}", s.handleProjectGet)
	mux.HandleFunc("PUT /api/projects/{id}", s.handleProjectUpdate)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleProjectDelete)
	mux.HandleFunc("PUT /api/projects/{id}/sync", s.handleProjectSync)
	mux.HandleFunc("POST /api/projects/{id}/build", s.handleProjectBuild)
	mux.HandleFunc("POST /api/projects/{id}/scan-dependencies", s.handleScanDependencies)
	mux.HandleFunc("GET /api/projects/{id}/dependencies", s.handleDependencyList)
	mux.HandleFunc("GET /api/projects/{id}/dependency-tree", s.handleDependencyTree)

	mux.HandleFunc("GET /api/agents", s.handleAgentList)
	mux.HandleFunc("POST /api/agents", s.handleAgentCreate)
	mux.HandleFunc("GET /api/agents/{id}", s.handleAgentGet)
	mux.HandleFunc("PUT /api/agents/{id}", s.handleAgentUpdate)
	mux.HandleFunc("DELETE /api/agents/{id}", s.handleAgentDelete)
	mux.HandleFunc("PUT /api/agents/{id}/status", s.handleAgentSetStatus)
	mux.HandleFunc("POST /api/agents/{id}/start", s.handleAgentStart)
	mux.HandleFunc("POST /api/agents/{id}/stop", s.handleAgentStop)

	mux.HandleFunc("GET /api/jobs", s.handleJobList)
	mux.HandleFunc("POST /api/jobs", s.handleJobCreate)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJobGet)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleJobDelete)
	mux.HandleFunc("POST /api/jobs/{id}/start", s.handleJobStart)
	mux.HandleFunc("POST /api/jobs/{id}/complete", s.handleJobComplete)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", s.handleJobCancel)

	mux.HandleFunc("GET /api/logs", s.handleLogList)
	mux.HandleFunc("POST /api/logs", s.handleLogCreate)
	mux.HandleFunc("DELETE /api/logs", s.handleLogDelete)

	mux.HandleFunc("GET /api/metrics", s.handleMetricList)
	mux.HandleFunc("POST /api/metrics", s.handleMetricCreate)
	mux.HandleFunc("GET /api/metrics/summary", s.handleMetricSummary)

	mux.HandleFunc("POST /api/github/webhook", s.handleGitHubWebhook)

	return s.withLogging(mux)
}

// Start begins serving HTTP and WebSocket requests. It blocks until
// the server stops (via Shutdown or a fatal listen error).
func (s *Server) Start(ctx context.Context) error {
	unsubscribe := s.bus.SubscribeAll(s.hub.broadcast)
	defer unsubscribe()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{"error": message}, s.logger)
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":                "ok",
		"websocket_connections": s.hub.ConnectionCount(),
	}, s.logger)
}
