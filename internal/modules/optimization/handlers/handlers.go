// Package handlers provides HTTP handlers for optimizer constraint
// derivation.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/frontieralpha/conviction/internal/domain"
	"github.com/frontieralpha/conviction/internal/modules/optimization"
)

// BeliefsProvider supplies the current belief state for a scope
type BeliefsProvider interface {
	GetBeliefs(scope string) *domain.BeliefState
}

// Handler handles optimization HTTP requests
type Handler struct {
	manager      *optimization.ConstraintsManager
	beliefs      BeliefsProvider
	defaultScope string
	log          zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(
	manager *optimization.ConstraintsManager,
	beliefs BeliefsProvider,
	defaultScope string,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		manager:      manager,
		beliefs:      beliefs,
		defaultScope: defaultScope,
		log:          log.With().Str("handler", "optimization").Logger(),
	}
}

// RegisterRoutes registers all optimization routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimization", func(r chi.Router) {
		r.Get("/constraints", h.HandleGetConstraints)
	})
}

// HandleGetConstraints handles GET /api/optimization/constraints
func (h *Handler) HandleGetConstraints(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = h.defaultScope
	}

	beliefs := h.beliefs.GetBeliefs(scope)
	constraints := h.manager.GetOptimizationConstraints(beliefs)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"scope":       scope,
		"version":     beliefs.Version,
		"constraints": constraints,
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
