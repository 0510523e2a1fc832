package episodes

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/frontieralpha/conviction/internal/domain"
	"github.com/frontieralpha/conviction/internal/events"
	"github.com/frontieralpha/conviction/pkg/formulas"
)

// ErrNoActiveEpisode is returned when an operation requires an active
// episode and none exists for the scope.
var ErrNoActiveEpisode = errors.New("no active episode")

// CycleRunner triggers a learning cycle for a scope. Implemented by the
// learning module; injected here to keep the dependency one-directional.
type CycleRunner interface {
	RunCycle(scope string, predictions *domain.ModelPredictions) (*domain.CycleResult, error)
}

// Service is the episode lifecycle manager. It opens episodes, appends
// decisions, and closes episodes with realized metrics, optionally
// triggering a learning cycle on close.
type Service struct {
	repo        *Repository
	cycleRunner CycleRunner
	eventBus    *events.Bus
	log         zerolog.Logger
}

// NewService creates a new episode lifecycle service
func NewService(repo *Repository, eventBus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		eventBus: eventBus,
		log:      log.With().Str("component", "episode_service").Logger(),
	}
}

// SetCycleRunner wires the learning cycle runner. Must be called before
// CloseEpisode can trigger cycles.
func (s *Service) SetCycleRunner(runner CycleRunner) {
	s.cycleRunner = runner
}

// StartEpisode opens a new active episode for the scope. Any episode
// already active in the scope is closed first with metrics derived from
// its recorded decision outcomes.
func (s *Service) StartEpisode(scope string) (*domain.Episode, error) {
	active, err := s.repo.GetActiveEpisode(scope)
	if err != nil {
		return nil, fmt.Errorf("failed to check active episode: %w", err)
	}

	if active != nil {
		s.log.Info().
			Str("episode_id", active.ID).
			Msg("Closing previous active episode before starting new one")
		if err := s.closeEpisodeRecord(active, nil); err != nil {
			return nil, fmt.Errorf("failed to close previous episode: %w", err)
		}
	}

	number, err := s.repo.NextEpisodeNumber(scope)
	if err != nil {
		return nil, err
	}

	episode := &domain.Episode{
		ID:        uuid.New().String(),
		Number:    number,
		Scope:     scope,
		Status:    domain.EpisodeStatusActive,
		StartedAt: time.Now().UTC(),
	}

	if err := s.repo.CreateEpisode(episode); err != nil {
		return nil, err
	}

	s.eventBus.Publish("episodes", &events.EpisodeStartedData{
		EpisodeID: episode.ID,
		Number:    episode.Number,
		Scope:     scope,
	})

	return episode, nil
}

// GetActiveEpisode returns the scope's active episode, nil when none
func (s *Service) GetActiveEpisode(scope string) (*domain.Episode, error) {
	return s.repo.GetActiveEpisode(scope)
}

// GetRecentEpisodes returns the most recently closed episodes, newest first
func (s *Service) GetRecentEpisodes(scope string, n int) ([]*domain.Episode, error) {
	return s.repo.GetRecentEpisodes(scope, n)
}

// RecordDecision appends a decision to the scope's active episode.
// When no episode is active one is started implicitly; this leniency
// masks caller sequencing bugs, so it is logged at warn level.
func (s *Service) RecordDecision(scope string, decision domain.TradingDecision) (*domain.Episode, error) {
	if !decision.Action.IsValid() {
		return nil, fmt.Errorf("invalid trading action %q", decision.Action)
	}

	episode, err := s.repo.GetActiveEpisode(scope)
	if err != nil {
		return nil, fmt.Errorf("failed to get active episode: %w", err)
	}

	if episode == nil {
		s.log.Warn().
			Str("scope", scope).
			Str("symbol", decision.Symbol).
			Msg("No active episode, starting one implicitly")
		episode, err = s.StartEpisode(scope)
		if err != nil {
			return nil, err
		}
	}

	if decision.ID == "" {
		decision.ID = uuid.New().String()
	}
	if decision.Timestamp.IsZero() {
		decision.Timestamp = time.Now().UTC()
	}

	// Clean numeric inputs at the boundary
	decision.Confidence = formulas.Clamp01(formulas.Sanitize(decision.Confidence, 0))
	decision.WeightBefore = formulas.Sanitize(decision.WeightBefore, 0)
	decision.WeightAfter = formulas.Sanitize(decision.WeightAfter, 0)

	if err := s.repo.SaveDecision(decision, episode.ID, scope); err != nil {
		return nil, err
	}
	episode.Decisions = append(episode.Decisions, decision)

	s.eventBus.Publish("episodes", &events.DecisionRecordedData{
		EpisodeID:  episode.ID,
		Symbol:     decision.Symbol,
		Action:     string(decision.Action),
		Confidence: decision.Confidence,
	})

	return episode, nil
}

// CloseEpisode closes the scope's active episode, stamping end time and
// realized metrics. Calling it with no active episode fails with
// ErrNoActiveEpisode. When triggerCycle is true and at least two closed
// episodes exist, the full learning cycle runs and its result is
// returned alongside the closed episode; with fewer episodes the cycle
// result is nil, signaling insufficient data rather than an error.
func (s *Service) CloseEpisode(scope string, metrics *domain.EpisodeMetrics, triggerCycle bool, predictions *domain.ModelPredictions) (*domain.Episode, *domain.CycleResult, error) {
	episode, err := s.repo.GetActiveEpisode(scope)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get active episode: %w", err)
	}
	if episode == nil {
		return nil, nil, ErrNoActiveEpisode
	}

	if err := s.closeEpisodeRecord(episode, metrics); err != nil {
		return nil, nil, err
	}

	var cycleResult *domain.CycleResult
	if triggerCycle && s.cycleRunner != nil {
		closed, err := s.repo.GetRecentEpisodes(scope, 2)
		if err != nil {
			return nil, nil, err
		}
		if len(closed) >= 2 {
			cycleResult, err = s.cycleRunner.RunCycle(scope, predictions)
			if err != nil {
				return nil, nil, fmt.Errorf("learning cycle failed: %w", err)
			}
		} else {
			s.log.Info().
				Str("scope", scope).
				Int("closed_episodes", len(closed)).
				Msg("Not enough episode history for a learning cycle")
		}
	}

	return episode, cycleResult, nil
}

// closeEpisodeRecord stamps end time and metrics and persists the close
func (s *Service) closeEpisodeRecord(episode *domain.Episode, metrics *domain.EpisodeMetrics) error {
	now := time.Now().UTC()
	episode.Status = domain.EpisodeStatusClosed
	episode.EndedAt = &now

	if metrics == nil {
		derived := s.deriveMetrics(episode)
		metrics = &derived
	}

	episode.PortfolioReturn = formulas.Sanitize(metrics.PortfolioReturn, 0)
	episode.SharpeRatio = formulas.Sanitize(metrics.SharpeRatio, 0)
	episode.MaxDrawdown = formulas.Sanitize(metrics.MaxDrawdown, 0)
	episode.FactorExposures = metrics.FactorExposures
	if episode.FactorExposures == nil {
		episode.FactorExposures = make(map[domain.Factor]float64)
	}

	if err := s.repo.UpdateEpisode(episode); err != nil {
		return err
	}

	s.eventBus.Publish("episodes", &events.EpisodeClosedData{
		EpisodeID:       episode.ID,
		Number:          episode.Number,
		Scope:           episode.Scope,
		PortfolioReturn: episode.PortfolioReturn,
		Decisions:       len(episode.Decisions),
	})

	s.log.Info().
		Str("episode_id", episode.ID).
		Int("decisions", len(episode.Decisions)).
		Float64("return", episode.PortfolioReturn).
		Msg("Episode closed")

	return nil
}

// deriveMetrics computes realized metrics from recorded decision
// outcomes when the caller supplies none. Decisions without outcomes
// contribute nothing.
func (s *Service) deriveMetrics(episode *domain.Episode) domain.EpisodeMetrics {
	var returns []float64
	exposures := make(map[domain.Factor]float64)
	attributed := 0

	for _, d := range episode.Decisions {
		if d.OutcomeReturn != nil {
			returns = append(returns, formulas.Sanitize(*d.OutcomeReturn, 0))
		}
		if len(d.Attribution) > 0 {
			for f, v := range d.Attribution {
				exposures[f] += formulas.Sanitize(v, 0)
			}
			attributed++
		}
	}

	if attributed > 0 {
		for f := range exposures {
			exposures[f] /= float64(attributed)
		}
	}

	compounded := 1.0
	for _, r := range returns {
		compounded *= 1 + r
	}

	return domain.EpisodeMetrics{
		PortfolioReturn: compounded - 1,
		SharpeRatio:     formulas.SharpeRatio(returns, 0),
		MaxDrawdown:     formulas.MaxDrawdown(returns),
		FactorExposures: exposures,
	}
}
