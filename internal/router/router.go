// Package router selects which language-model provider and model
// serve a repair-loop request, and keeps an in-memory audit trail of
// that decision. It does not perform any conversational analysis —
// selection here is just provider/model/fallback lookup, recorded so
// operators can see why a particular model answered a given request.
package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/thane-forge/internal/clk"
)

// Decision records why a model was selected for one completion request.
type Decision struct {
	RequestID      string    `json:"request_id"`
	Timestamp      time.Time `json:"timestamp"`
	ModelRequested string    `json:"model_requested"`
	ModelSelected  string    `json:"model_selected"`
	Provider       string    `json:"provider"`
	UsedFallback   bool      `json:"used_fallback"`
	Reasoning      string    `json:"reasoning"`

	// Post-execution (filled in by RecordOutcome)
	LatencyMs  int64 `json:"latency_ms,omitempty"`
	TokensUsed int   `json:"tokens_used,omitempty"`
	Success    *bool `json:"success,omitempty"`
}

// ModelRoute maps a model name to the provider that serves it.
type ModelRoute struct {
	Model    string
	Provider string
}

// Config holds router configuration.
type Config struct {
	Routes           []ModelRoute // model -> provider
	DefaultModel     string       // used when the caller names no model
	FallbackProvider string       // provider used when the requested model has no route
	MaxAuditLog      int          // how many decisions to keep in memory
}

// Router resolves model requests to a provider and keeps an audit trail.
type Router struct {
	logger *slog.Logger
	config Config

	mu       sync.RWMutex
	auditLog []Decision
}

// New creates a Router with the given configuration.
func New(logger *slog.Logger, config Config) *Router {
	if config.MaxAuditLog <= 0 {
		config.MaxAuditLog = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:   logger,
		config:   config,
		auditLog: make([]Decision, 0, config.MaxAuditLog),
	}
}

func (r *Router) providerFor(model string) (string, bool) {
	for _, route := range r.config.Routes {
		if route.Model == model {
			return route.Provider, true
		}
	}
	return "", false
}

// Route resolves modelRequested to a (model, provider) pair and
// records the decision. An empty modelRequested uses the configured
// default model.
func (r *Router) Route(ctx context.Context, modelRequested string) (model, provider string, decision *Decision) {
	model = modelRequested
	if model == "" {
		model = r.config.DefaultModel
	}

	d := &Decision{
		RequestID:      clk.NewID(),
		Timestamp:      time.Now(),
		ModelRequested: modelRequested,
		ModelSelected:  model,
	}

	if p, ok := r.providerFor(model); ok {
		d.Provider = p
		d.Reasoning = "matched configured route for model"
	} else {
		d.Provider = r.config.FallbackProvider
		d.UsedFallback = true
		d.Reasoning = "no route configured for model, used fallback provider"
	}

	r.record(*d)

	r.logger.Info("model routed",
		"request_id", d.RequestID,
		"model", d.ModelSelected,
		"provider", d.Provider,
		"fallback", d.UsedFallback,
	)

	return d.ModelSelected, d.Provider, d
}

// RecordOutcome attaches execution results to a previously recorded decision.
func (r *Router) RecordOutcome(requestID string, latencyMs int64, tokensUsed int, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.auditLog) - 1; i >= 0; i-- {
		if r.auditLog[i].RequestID == requestID {
			r.auditLog[i].LatencyMs = latencyMs
			r.auditLog[i].TokensUsed = tokensUsed
			r.auditLog[i].Success = &success
			break
		}
	}
}

func (r *Router) record(d Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.auditLog) >= r.config.MaxAuditLog {
		r.auditLog = r.auditLog[1:]
	}
	r.auditLog = append(r.auditLog, d)
}

// GetAuditLog returns the most recent routing decisions, newest last.
// limit <= 0 returns the entire retained log.
func (r *Router) GetAuditLog(limit int) []Decision {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.auditLog) {
		limit = len(r.auditLog)
	}
	start := len(r.auditLog) - limit
	result := make([]Decision, limit)
	copy(result, r.auditLog[start:])
	return result
}

// Explain returns the decision recorded for requestID, if still retained.
func (r *Router) Explain(requestID string) *Decision {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.auditLog) - 1; i >= 0; i-- {
		if r.auditLog[i].RequestID == requestID {
			d := r.auditLog[i]
			return &d
		}
	}
	return nil
}
