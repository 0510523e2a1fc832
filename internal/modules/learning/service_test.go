package learning

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontieralpha/conviction/internal/database"
	"github.com/frontieralpha/conviction/internal/domain"
	"github.com/frontieralpha/conviction/internal/events"
	"github.com/frontieralpha/conviction/internal/modules/episodes"
)

func newTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

type testHarness struct {
	episodeService *episodes.Service
	service        *Service
	beliefsRepo    *BeliefsRepository
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	log := zerolog.Nop()
	cfg := testEngineConfig()
	bus := events.NewBus(log)

	episodeRepo := episodes.NewRepository(newTestDB(t, "episodes").Conn(), log)
	beliefsRepo := NewBeliefsRepository(newTestDB(t, "beliefs").Conn(), log)

	service := NewService(
		episodeRepo,
		beliefsRepo,
		episodes.NewComparator(log),
		NewExtractor(cfg, log),
		NewUpdater(cfg, log),
		bus,
		cfg,
		log,
	)

	episodeService := episodes.NewService(episodeRepo, bus, log)
	episodeService.SetCycleRunner(service)

	return &testHarness{
		episodeService: episodeService,
		service:        service,
		beliefsRepo:    beliefsRepo,
	}
}

// closeEpisodeWith opens an episode and closes it with the given metrics
func (h *testHarness) closeEpisodeWith(t *testing.T, scope string, metrics domain.EpisodeMetrics) {
	t.Helper()
	_, err := h.episodeService.StartEpisode(scope)
	require.NoError(t, err)
	_, _, err = h.episodeService.CloseEpisode(scope, &metrics, false, nil)
	require.NoError(t, err)
}

func TestRunCycle_InsufficientHistory(t *testing.T) {
	h := newTestHarness(t)

	result, err := h.service.RunCycle("default", nil)
	require.NoError(t, err)
	assert.Nil(t, result)

	h.closeEpisodeWith(t, "default", domain.EpisodeMetrics{PortfolioReturn: 0.02})

	result, err = h.service.RunCycle("default", nil)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRunCycle_FullCyclePersists(t *testing.T) {
	h := newTestHarness(t)

	h.closeEpisodeWith(t, "default", domain.EpisodeMetrics{
		PortfolioReturn: 0.01,
		MaxDrawdown:     0.10,
		FactorExposures: map[domain.Factor]float64{domain.FactorValue: 0.15},
	})
	h.closeEpisodeWith(t, "default", domain.EpisodeMetrics{
		PortfolioReturn: 0.06,
		MaxDrawdown:     0.04,
		FactorExposures: map[domain.Factor]float64{domain.FactorValue: 0.30},
	})

	result, err := h.service.RunCycle("default", nil)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 1, result.CycleNumber)
	assert.Equal(t, "default", result.Scope)
	assert.InDelta(t, 0.05, result.Comparison.PerformanceDelta, 1e-9)
	assert.NotEmpty(t, result.Insights)
	assert.NotEmpty(t, result.Updates)
	assert.NotEmpty(t, result.Explanation)
	assert.Equal(t, 2, result.NewBeliefs.Version)

	// Beliefs persisted at the new version
	beliefs := h.service.GetBeliefs("default")
	assert.Equal(t, 2, beliefs.Version)

	// Snapshot stored for the new version
	snapshot, err := h.service.GetBeliefSnapshot("default", 2)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, 2, snapshot.Version)

	// Cycle recorded in history
	history, err := h.service.GetCycleHistory("default", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].CycleNumber)
}

func TestRunCycle_NumbersCyclesSequentially(t *testing.T) {
	h := newTestHarness(t)

	h.closeEpisodeWith(t, "default", domain.EpisodeMetrics{PortfolioReturn: 0.01})
	h.closeEpisodeWith(t, "default", domain.EpisodeMetrics{PortfolioReturn: 0.03})

	first, err := h.service.RunCycle("default", nil)
	require.NoError(t, err)
	require.NotNil(t, first)

	h.closeEpisodeWith(t, "default", domain.EpisodeMetrics{PortfolioReturn: 0.02})

	second, err := h.service.RunCycle("default", nil)
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, 1, first.CycleNumber)
	assert.Equal(t, 2, second.CycleNumber)
	assert.Equal(t, first.NewBeliefs.Version+1, second.NewBeliefs.Version)

	history, err := h.service.GetCycleHistory("default", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].CycleNumber)
	assert.Equal(t, 1, history[1].CycleNumber)
}

func TestGetBeliefs_DefaultsWhenEmpty(t *testing.T) {
	h := newTestHarness(t)

	beliefs := h.service.GetBeliefs("default")
	require.NotNil(t, beliefs)
	assert.Equal(t, 1, beliefs.Version)
	assert.InDelta(t, 0.20, beliefs.FactorWeights[domain.FactorValue], 1e-9)
}

func TestResetBeliefs(t *testing.T) {
	h := newTestHarness(t)

	h.closeEpisodeWith(t, "default", domain.EpisodeMetrics{PortfolioReturn: 0.01})
	h.closeEpisodeWith(t, "default", domain.EpisodeMetrics{PortfolioReturn: 0.05})

	result, err := h.service.RunCycle("default", nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, 2, h.service.GetBeliefs("default").Version)

	require.NoError(t, h.service.ResetBeliefs("default"))
	assert.Equal(t, 1, h.service.GetBeliefs("default").Version)

	// Snapshots survive the reset
	snapshot, err := h.service.GetBeliefSnapshot("default", 2)
	require.NoError(t, err)
	assert.NotNil(t, snapshot)
}

func TestSaveBeliefs_VersionConflict(t *testing.T) {
	h := newTestHarness(t)

	beliefs := domain.DefaultBeliefState()
	beliefs.Version = 2
	require.NoError(t, h.beliefsRepo.SaveBeliefs(beliefs, "default", 1))

	// A second cycle that also loaded version 1 must be rejected
	stale := domain.DefaultBeliefState()
	stale.Version = 2
	err := h.beliefsRepo.SaveBeliefs(stale, "default", 1)
	assert.ErrorIs(t, err, ErrBeliefVersionConflict)

	// The stored state is the first writer's
	stored, err := h.beliefsRepo.GetBeliefs("default")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
}

func TestGetSnapshot_MissingVersion(t *testing.T) {
	h := newTestHarness(t)

	snapshot, err := h.beliefsRepo.GetSnapshot("default", 99)
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestBeliefsRoundTrip(t *testing.T) {
	h := newTestHarness(t)

	beliefs := domain.DefaultBeliefState()
	beliefs.Version = 2
	beliefs.CurrentRegime = domain.RegimeBear
	beliefs.FactorWeights[domain.FactorMomentum] = 0.35
	beliefs.Priors = []string{"rotate into quality in drawdowns"}

	require.NoError(t, h.beliefsRepo.SaveBeliefs(beliefs, "default", 1))

	loaded, err := h.beliefsRepo.GetBeliefs("default")
	require.NoError(t, err)
	assert.Equal(t, domain.RegimeBear, loaded.CurrentRegime)
	assert.InDelta(t, 0.35, loaded.FactorWeights[domain.FactorMomentum], 1e-9)
	assert.Equal(t, beliefs.Priors, loaded.Priors)

	snapshot, err := h.beliefsRepo.GetSnapshot("default", 2)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, domain.RegimeBear, snapshot.CurrentRegime)
}
