package scheduler

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontieralpha/conviction/internal/domain"
	"github.com/frontieralpha/conviction/internal/modules/episodes"
)

type mockEpisodeService struct {
	active      *domain.Episode
	activeErr   error
	closeErr    error
	closeCalled bool
	closedPreds *domain.ModelPredictions
	startCalled bool
	startErr    error
}

func (m *mockEpisodeService) GetActiveEpisode(scope string) (*domain.Episode, error) {
	return m.active, m.activeErr
}

func (m *mockEpisodeService) StartEpisode(scope string) (*domain.Episode, error) {
	m.startCalled = true
	if m.startErr != nil {
		return nil, m.startErr
	}
	return &domain.Episode{ID: "next", Scope: scope}, nil
}

func (m *mockEpisodeService) CloseEpisode(scope string, metrics *domain.EpisodeMetrics, triggerCycle bool, predictions *domain.ModelPredictions) (*domain.Episode, *domain.CycleResult, error) {
	m.closeCalled = true
	m.closedPreds = predictions
	if m.closeErr != nil {
		return nil, nil, m.closeErr
	}
	return m.active, &domain.CycleResult{CycleNumber: 1}, nil
}

type mockPredictionsFetcher struct {
	predictions *domain.ModelPredictions
	called      bool
}

func (m *mockPredictionsFetcher) FetchPredictions(scope string, episode *domain.Episode) *domain.ModelPredictions {
	m.called = true
	return m.predictions
}

func TestEpisodeRolloverJob_Name(t *testing.T) {
	job := NewEpisodeRolloverJob(&mockEpisodeService{}, nil, "default", zerolog.Nop())
	assert.Equal(t, "episode_rollover[default]", job.Name())
}

func TestEpisodeRolloverJob_ClosesAndRestarts(t *testing.T) {
	preds := &domain.ModelPredictions{}
	service := &mockEpisodeService{active: &domain.Episode{ID: "cur", Scope: "default"}}
	fetcher := &mockPredictionsFetcher{predictions: preds}

	job := NewEpisodeRolloverJob(service, fetcher, "default", zerolog.Nop())
	require.NoError(t, job.Run())

	assert.True(t, fetcher.called)
	assert.True(t, service.closeCalled)
	assert.Same(t, preds, service.closedPreds)
	assert.True(t, service.startCalled)
}

func TestEpisodeRolloverJob_BootstrapsWhenNoneActive(t *testing.T) {
	service := &mockEpisodeService{closeErr: episodes.ErrNoActiveEpisode}
	fetcher := &mockPredictionsFetcher{}

	job := NewEpisodeRolloverJob(service, fetcher, "default", zerolog.Nop())
	require.NoError(t, job.Run())

	// No active episode: predictions are not fetched, close failure is
	// tolerated, and the next episode still starts
	assert.False(t, fetcher.called)
	assert.True(t, service.startCalled)
}

func TestEpisodeRolloverJob_PropagatesCloseFailure(t *testing.T) {
	service := &mockEpisodeService{
		active:   &domain.Episode{ID: "cur"},
		closeErr: errors.New("disk full"),
	}

	job := NewEpisodeRolloverJob(service, nil, "default", zerolog.Nop())
	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to close episode")
	assert.False(t, service.startCalled)
}

func TestEpisodeRolloverJob_PropagatesStartFailure(t *testing.T) {
	service := &mockEpisodeService{
		active:   &domain.Episode{ID: "cur"},
		startErr: errors.New("db locked"),
	}

	job := NewEpisodeRolloverJob(service, nil, "default", zerolog.Nop())
	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start next episode")
}
