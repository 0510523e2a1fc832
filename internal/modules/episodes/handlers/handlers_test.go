package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontieralpha/conviction/internal/database"
	"github.com/frontieralpha/conviction/internal/domain"
	"github.com/frontieralpha/conviction/internal/events"
	"github.com/frontieralpha/conviction/internal/modules/episodes"
)

func newTestRouter(t *testing.T) (chi.Router, *episodes.Service) {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "episodes.db"),
		Profile: database.ProfileStandard,
		Name:    "episodes",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	log := zerolog.Nop()
	repo := episodes.NewRepository(db.Conn(), log)
	service := episodes.NewService(repo, events.NewBus(log), log)

	handler := NewHandler(service, nil, "default", log)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, service
}

func postJSON(t *testing.T, router chi.Router, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleStart(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postJSON(t, router, "/episodes/start", StartRequest{})
	require.Equal(t, http.StatusCreated, rec.Code)

	var episode domain.Episode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &episode))
	assert.Equal(t, 1, episode.Number)
	assert.Equal(t, "default", episode.Scope)
	assert.Equal(t, domain.EpisodeStatusActive, episode.Status)
}

func TestHandleClose(t *testing.T) {
	router, service := newTestRouter(t)

	_, err := service.StartEpisode("default")
	require.NoError(t, err)

	rec := postJSON(t, router, "/episodes/close", CloseRequest{
		Metrics: &domain.EpisodeMetrics{PortfolioReturn: 0.03},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CloseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Episode)
	assert.Equal(t, domain.EpisodeStatusClosed, resp.Episode.Status)
	assert.InDelta(t, 0.03, resp.Episode.PortfolioReturn, 1e-9)
	assert.Nil(t, resp.Cycle)
}

func TestHandleClose_NoActiveEpisode(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postJSON(t, router, "/episodes/close", CloseRequest{})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleRecordDecision(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postJSON(t, router, "/episodes/decisions", DecisionRequest{
		Scope: "aggressive",
		Decision: domain.TradingDecision{
			Symbol:     "AAPL",
			Action:     domain.ActionBuy,
			Confidence: 0.8,
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var episode domain.Episode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &episode))
	assert.Equal(t, "aggressive", episode.Scope)
	require.Len(t, episode.Decisions, 1)
	assert.Equal(t, "AAPL", episode.Decisions[0].Symbol)
}

func TestHandleRecordDecision_Validation(t *testing.T) {
	router, _ := newTestRouter(t)

	// Missing symbol
	rec := postJSON(t, router, "/episodes/decisions", DecisionRequest{
		Decision: domain.TradingDecision{Action: domain.ActionBuy},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown action
	rec = postJSON(t, router, "/episodes/decisions", DecisionRequest{
		Decision: domain.TradingDecision{Symbol: "AAPL", Action: domain.TradingAction("short")},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetActive(t *testing.T) {
	router, service := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/episodes/active", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	started, err := service.StartEpisode("default")
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var episode domain.Episode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &episode))
	assert.Equal(t, started.ID, episode.ID)
}

func TestHandleGetRecent(t *testing.T) {
	router, service := newTestRouter(t)

	for i := 0; i < 3; i++ {
		_, err := service.StartEpisode("default")
		require.NoError(t, err)
		_, _, err = service.CloseEpisode("default", nil, false, nil)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/episodes/recent?limit=2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Scope    string            `json:"scope"`
		Episodes []*domain.Episode `json:"episodes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "default", resp.Scope)
	require.Len(t, resp.Episodes, 2)
	assert.Equal(t, 3, resp.Episodes[0].Number)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/episodes/recent?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
