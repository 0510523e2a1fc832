package scheduler

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/frontieralpha/conviction/internal/domain"
	"github.com/frontieralpha/conviction/internal/modules/episodes"
)

// EpisodeServiceInterface defines the episode operations the rollover
// job needs. Used to enable testing with mocks.
type EpisodeServiceInterface interface {
	GetActiveEpisode(scope string) (*domain.Episode, error)
	StartEpisode(scope string) (*domain.Episode, error)
	CloseEpisode(scope string, metrics *domain.EpisodeMetrics, triggerCycle bool, predictions *domain.ModelPredictions) (*domain.Episode, *domain.CycleResult, error)
}

// PredictionsFetcherInterface defines the optional prediction source.
// Used to enable testing with mocks.
type PredictionsFetcherInterface interface {
	FetchPredictions(scope string, episode *domain.Episode) *domain.ModelPredictions
}

// EpisodeRolloverJob closes the active episode on schedule, runs the
// learning cycle, and opens the next episode. This is the periodic
// heartbeat of the engine when no caller drives the lifecycle manually.
type EpisodeRolloverJob struct {
	episodeService EpisodeServiceInterface
	predictions    PredictionsFetcherInterface
	scope          string
	log            zerolog.Logger
}

// NewEpisodeRolloverJob creates a rollover job for one scope.
// predictions may be nil when no ML engine is configured.
func NewEpisodeRolloverJob(
	episodeService EpisodeServiceInterface,
	predictions PredictionsFetcherInterface,
	scope string,
	log zerolog.Logger,
) *EpisodeRolloverJob {
	return &EpisodeRolloverJob{
		episodeService: episodeService,
		predictions:    predictions,
		scope:          scope,
		log:            log.With().Str("component", "episode_rollover").Logger(),
	}
}

// Name returns the job name
func (j *EpisodeRolloverJob) Name() string {
	return fmt.Sprintf("episode_rollover[%s]", j.scope)
}

// Run closes the active episode with a learning cycle and starts the
// next one. With no active episode it only starts one, so the first
// scheduled run bootstraps the lifecycle.
func (j *EpisodeRolloverJob) Run() error {
	active, err := j.episodeService.GetActiveEpisode(j.scope)
	if err != nil {
		return fmt.Errorf("failed to check active episode: %w", err)
	}

	var preds *domain.ModelPredictions
	if j.predictions != nil && active != nil {
		preds = j.predictions.FetchPredictions(j.scope, active)
	}

	closed, cycleResult, err := j.episodeService.CloseEpisode(j.scope, nil, true, preds)
	if err != nil && !errors.Is(err, episodes.ErrNoActiveEpisode) {
		return fmt.Errorf("failed to close episode: %w", err)
	}

	next, err := j.episodeService.StartEpisode(j.scope)
	if err != nil {
		return fmt.Errorf("failed to start next episode: %w", err)
	}

	event := j.log.Info().
		Str("scope", j.scope).
		Str("next_episode", next.ID)
	if closed != nil {
		event = event.Str("closed_episode", closed.ID)
	}
	if cycleResult != nil {
		event = event.Int("cycle", cycleResult.CycleNumber)
	}
	event.Msg("Episode rollover completed")

	return nil
}
