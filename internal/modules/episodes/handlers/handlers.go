// Package handlers provides HTTP handlers for episode lifecycle
// operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/frontieralpha/conviction/internal/domain"
	"github.com/frontieralpha/conviction/internal/modules/episodes"
)

// PredictionsFetcher supplies the optional prediction bundle for a
// cycle-triggering close. May be nil when no ML engine is configured.
type PredictionsFetcher interface {
	FetchPredictions(scope string, episode *domain.Episode) *domain.ModelPredictions
}

// Handler handles episode HTTP requests
type Handler struct {
	service      *episodes.Service
	predictions  PredictionsFetcher
	defaultScope string
	log          zerolog.Logger
}

// NewHandler creates a new episodes handler
func NewHandler(service *episodes.Service, predictions PredictionsFetcher, defaultScope string, log zerolog.Logger) *Handler {
	return &Handler{
		service:      service,
		predictions:  predictions,
		defaultScope: defaultScope,
		log:          log.With().Str("handler", "episodes").Logger(),
	}
}

// RegisterRoutes registers all episode routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/episodes", func(r chi.Router) {
		r.Post("/start", h.HandleStart)
		r.Post("/close", h.HandleClose)
		r.Post("/decisions", h.HandleRecordDecision)
		r.Get("/active", h.HandleGetActive)
		r.Get("/recent", h.HandleGetRecent)
	})
}

// StartRequest is the request body for starting an episode
type StartRequest struct {
	Scope string `json:"scope"`
}

// HandleStart handles POST /api/episodes/start
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	episode, err := h.service.StartEpisode(h.scopeOrDefault(req.Scope))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to start episode")
		http.Error(w, "Failed to start episode", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, episode)
}

// CloseRequest is the request body for closing an episode
type CloseRequest struct {
	Scope        string                 `json:"scope"`
	Metrics      *domain.EpisodeMetrics `json:"metrics,omitempty"`
	TriggerCycle bool                   `json:"trigger_cycle"`
}

// CloseResponse pairs the closed episode with the cycle result, when a
// learning cycle ran.
type CloseResponse struct {
	Episode *domain.Episode     `json:"episode"`
	Cycle   *domain.CycleResult `json:"cycle,omitempty"`
}

// HandleClose handles POST /api/episodes/close
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	var req CloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	scope := h.scopeOrDefault(req.Scope)

	var predictions *domain.ModelPredictions
	if req.TriggerCycle && h.predictions != nil {
		if active, err := h.service.GetActiveEpisode(scope); err == nil && active != nil {
			predictions = h.predictions.FetchPredictions(scope, active)
		}
	}

	episode, cycleResult, err := h.service.CloseEpisode(scope, req.Metrics, req.TriggerCycle, predictions)
	if err != nil {
		if errors.Is(err, episodes.ErrNoActiveEpisode) {
			http.Error(w, "No active episode", http.StatusConflict)
			return
		}
		h.log.Error().Err(err).Msg("Failed to close episode")
		http.Error(w, "Failed to close episode", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, CloseResponse{Episode: episode, Cycle: cycleResult})
}

// DecisionRequest is the request body for recording a decision
type DecisionRequest struct {
	Scope    string                 `json:"scope"`
	Decision domain.TradingDecision `json:"decision"`
}

// HandleRecordDecision handles POST /api/episodes/decisions
func (h *Handler) HandleRecordDecision(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Decision.Symbol == "" {
		http.Error(w, "Decision symbol is required", http.StatusBadRequest)
		return
	}

	episode, err := h.service.RecordDecision(h.scopeOrDefault(req.Scope), req.Decision)
	if err != nil {
		if !req.Decision.Action.IsValid() {
			http.Error(w, "Invalid trading action", http.StatusBadRequest)
			return
		}
		h.log.Error().Err(err).Msg("Failed to record decision")
		http.Error(w, "Failed to record decision", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, episode)
}

// HandleGetActive handles GET /api/episodes/active
func (h *Handler) HandleGetActive(w http.ResponseWriter, r *http.Request) {
	scope := h.scopeOrDefault(r.URL.Query().Get("scope"))

	episode, err := h.service.GetActiveEpisode(scope)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get active episode")
		http.Error(w, "Failed to get active episode", http.StatusInternalServerError)
		return
	}
	if episode == nil {
		http.Error(w, "No active episode", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, episode)
}

// HandleGetRecent handles GET /api/episodes/recent
func (h *Handler) HandleGetRecent(w http.ResponseWriter, r *http.Request) {
	scope := h.scopeOrDefault(r.URL.Query().Get("scope"))

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	recent, err := h.service.GetRecentEpisodes(scope, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get recent episodes")
		http.Error(w, "Failed to get recent episodes", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"scope":    scope,
		"episodes": recent,
	})
}

// scopeOrDefault falls back to the configured default scope
func (h *Handler) scopeOrDefault(scope string) string {
	if scope == "" {
		return h.defaultScope
	}
	return scope
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
