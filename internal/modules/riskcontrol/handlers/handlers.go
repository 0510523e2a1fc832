// Package handlers provides HTTP handlers for within-episode risk
// checks.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/frontieralpha/conviction/internal/domain"
	"github.com/frontieralpha/conviction/internal/events"
	"github.com/frontieralpha/conviction/internal/modules/riskcontrol"
)

// BeliefsProvider supplies the current belief state for a scope
type BeliefsProvider interface {
	GetBeliefs(scope string) *domain.BeliefState
}

// Handler handles risk check HTTP requests
type Handler struct {
	controller   *riskcontrol.Controller
	beliefs      BeliefsProvider
	eventBus     *events.Bus
	defaultScope string
	log          zerolog.Logger
}

// NewHandler creates a new risk control handler
func NewHandler(
	controller *riskcontrol.Controller,
	beliefs BeliefsProvider,
	eventBus *events.Bus,
	defaultScope string,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		controller:   controller,
		beliefs:      beliefs,
		eventBus:     eventBus,
		defaultScope: defaultScope,
		log:          log.With().Str("handler", "riskcontrol").Logger(),
	}
}

// RegisterRoutes registers all risk control routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Post("/check", h.HandleCheck)
	})
}

// CheckRequest is the request body for a risk check
type CheckRequest struct {
	Scope          string                     `json:"scope"`
	PortfolioValue float64                    `json:"portfolio_value"`
	Returns        []float64                  `json:"returns"`
	Positions      []domain.PortfolioPosition `json:"positions"`
}

// HandleCheck handles POST /api/risk/check
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	scope := req.Scope
	if scope == "" {
		scope = h.defaultScope
	}

	beliefs := h.beliefs.GetBeliefs(scope)
	result := h.controller.CheckWithinEpisodeRisk(beliefs, req.PortfolioValue, req.Returns, req.Positions)

	if result.Triggered {
		h.eventBus.Publish("riskcontrol", &events.RiskTriggeredData{
			Scope:     scope,
			CVaR:      result.CVaR,
			Severity:  result.Severity,
			Action:    string(result.Action),
			Magnitude: result.Magnitude,
		})
	}

	h.writeJSON(w, http.StatusOK, result)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
