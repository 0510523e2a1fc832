// Package handlers provides HTTP handlers for belief state and
// learning cycle operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/frontieralpha/conviction/internal/domain"
	"github.com/frontieralpha/conviction/internal/modules/learning"
)

// PredictionsFetcher supplies the optional prediction bundle for a
// manually triggered cycle. May be nil when no ML engine is configured.
type PredictionsFetcher interface {
	FetchPredictions(scope string, episode *domain.Episode) *domain.ModelPredictions
}

// Handler handles belief and cycle HTTP requests
type Handler struct {
	service      *learning.Service
	predictions  PredictionsFetcher
	defaultScope string
	log          zerolog.Logger
}

// NewHandler creates a new learning handler
func NewHandler(service *learning.Service, predictions PredictionsFetcher, defaultScope string, log zerolog.Logger) *Handler {
	return &Handler{
		service:      service,
		predictions:  predictions,
		defaultScope: defaultScope,
		log:          log.With().Str("handler", "learning").Logger(),
	}
}

// RegisterRoutes registers all belief and cycle routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/beliefs", func(r chi.Router) {
		r.Get("/", h.HandleGetBeliefs)
		r.Post("/reset", h.HandleResetBeliefs)
		r.Get("/snapshots/{version}", h.HandleGetSnapshot)
	})

	r.Route("/cycles", func(r chi.Router) {
		r.Post("/run", h.HandleRunCycle)
		r.Get("/history", h.HandleGetHistory)
	})
}

// HandleGetBeliefs handles GET /api/beliefs
func (h *Handler) HandleGetBeliefs(w http.ResponseWriter, r *http.Request) {
	scope := h.scopeOrDefault(r.URL.Query().Get("scope"))
	h.writeJSON(w, http.StatusOK, h.service.GetBeliefs(scope))
}

// ResetRequest is the request body for resetting beliefs
type ResetRequest struct {
	Scope string `json:"scope"`
}

// HandleResetBeliefs handles POST /api/beliefs/reset
func (h *Handler) HandleResetBeliefs(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	scope := h.scopeOrDefault(req.Scope)
	if err := h.service.ResetBeliefs(scope); err != nil {
		h.log.Error().Err(err).Msg("Failed to reset beliefs")
		http.Error(w, "Failed to reset beliefs", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, h.service.GetBeliefs(scope))
}

// HandleGetSnapshot handles GET /api/beliefs/snapshots/{version}
func (h *Handler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	scope := h.scopeOrDefault(r.URL.Query().Get("scope"))

	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		http.Error(w, "Invalid version", http.StatusBadRequest)
		return
	}

	snapshot, err := h.service.GetBeliefSnapshot(scope, version)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load belief snapshot")
		http.Error(w, "Failed to load belief snapshot", http.StatusInternalServerError)
		return
	}
	if snapshot == nil {
		http.Error(w, "Snapshot not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, snapshot)
}

// RunCycleRequest is the request body for a manual cycle trigger
type RunCycleRequest struct {
	Scope string `json:"scope"`
}

// HandleRunCycle handles POST /api/cycles/run
func (h *Handler) HandleRunCycle(w http.ResponseWriter, r *http.Request) {
	var req RunCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	scope := h.scopeOrDefault(req.Scope)

	var predictions *domain.ModelPredictions
	if h.predictions != nil {
		predictions = h.predictions.FetchPredictions(scope, nil)
	}

	result, err := h.service.RunCycle(scope, predictions)
	if err != nil {
		h.log.Error().Err(err).Msg("Learning cycle failed")
		http.Error(w, "Learning cycle failed", http.StatusInternalServerError)
		return
	}
	if result == nil {
		http.Error(w, "Not enough closed episodes for a cycle", http.StatusConflict)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleGetHistory handles GET /api/cycles/history
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
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

	history, err := h.service.GetCycleHistory(scope, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load cycle history")
		http.Error(w, "Failed to load cycle history", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"scope":  scope,
		"cycles": history,
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
