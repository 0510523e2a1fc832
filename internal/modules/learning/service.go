package learning

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/frontieralpha/conviction/internal/config"
	"github.com/frontieralpha/conviction/internal/domain"
	"github.com/frontieralpha/conviction/internal/events"
	"github.com/frontieralpha/conviction/internal/modules/episodes"
)

// Service orchestrates one learning cycle: compare the two most recent
// closed episodes, extract insights, update beliefs, and persist the
// result atomically as the next belief version plus a history entry.
// It implements episodes.CycleRunner.
type Service struct {
	episodeRepo *episodes.Repository
	beliefsRepo *BeliefsRepository
	comparator  *episodes.Comparator
	extractor   *Extractor
	updater     *Updater
	eventBus    *events.Bus
	cfg         config.EngineConfig
	log         zerolog.Logger
}

// NewService creates a new learning cycle service
func NewService(
	episodeRepo *episodes.Repository,
	beliefsRepo *BeliefsRepository,
	comparator *episodes.Comparator,
	extractor *Extractor,
	updater *Updater,
	eventBus *events.Bus,
	cfg config.EngineConfig,
	log zerolog.Logger,
) *Service {
	return &Service{
		episodeRepo: episodeRepo,
		beliefsRepo: beliefsRepo,
		comparator:  comparator,
		extractor:   extractor,
		updater:     updater,
		eventBus:    eventBus,
		cfg:         cfg,
		log:         log.With().Str("component", "learning_service").Logger(),
	}
}

// RunCycle executes a full comparison -> extraction -> update cycle for
// a scope. With fewer than two closed episodes it returns (nil, nil):
// insufficient data is not an error, just no result.
func (s *Service) RunCycle(scope string, predictions *domain.ModelPredictions) (*domain.CycleResult, error) {
	recent, err := s.episodeRepo.GetRecentEpisodes(scope, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent episodes: %w", err)
	}
	if len(recent) < 2 {
		s.log.Info().
			Str("scope", scope).
			Int("closed_episodes", len(recent)).
			Msg("Skipping cycle, need at least two closed episodes")
		return nil, nil
	}

	current, previous := recent[0], recent[1]
	beliefs := s.GetBeliefs(scope)

	comparison := s.comparator.Compare(current, previous)
	insights := s.extractor.ExtractInsights(comparison, predictions)
	metaPrompt := s.extractor.GenerateMetaPrompt(comparison, insights, predictions)
	newBeliefs, updates := s.updater.UpdateBeliefs(beliefs, comparison, insights, metaPrompt, predictions)

	cycleNumber, err := s.beliefsRepo.NextCycleNumber(scope)
	if err != nil {
		return nil, err
	}

	result := &domain.CycleResult{
		CycleNumber: cycleNumber,
		Scope:       scope,
		Comparison:  comparison,
		Insights:    insights,
		MetaPrompt:  metaPrompt,
		Updates:     updates,
		NewBeliefs:  newBeliefs,
		CompletedAt: time.Now().UTC(),
	}
	result.Explanation = buildExplanation(result)

	if err := s.beliefsRepo.SaveBeliefs(newBeliefs, scope, beliefs.Version); err != nil {
		return nil, fmt.Errorf("failed to save beliefs: %w", err)
	}
	if err := s.beliefsRepo.SaveCycleResult(result, cycleNumber, scope); err != nil {
		return nil, fmt.Errorf("failed to save cycle result: %w", err)
	}

	s.eventBus.Publish("learning", &events.CycleCompletedData{
		Scope:         scope,
		CycleNumber:   cycleNumber,
		Insights:      len(insights),
		Updates:       len(updates),
		BeliefVersion: newBeliefs.Version,
	})
	s.eventBus.Publish("learning", &events.BeliefsUpdatedData{
		Scope:   scope,
		Version: newBeliefs.Version,
		Regime:  string(newBeliefs.CurrentRegime),
	})

	s.log.Info().
		Str("scope", scope).
		Int("cycle", cycleNumber).
		Int("insights", len(insights)).
		Int("updates", len(updates)).
		Msg("Learning cycle completed")

	return result, nil
}

// GetBeliefs loads the belief state for a scope, falling back to the
// documented defaults when none exists or the load fails. Load failures
// are absorbed (logged) so a broken row never fails the request.
func (s *Service) GetBeliefs(scope string) *domain.BeliefState {
	beliefs, err := s.beliefsRepo.GetBeliefs(scope)
	if err != nil {
		s.log.Error().Err(err).Str("scope", scope).Msg("Failed to load beliefs, using defaults")
		return domain.DefaultBeliefState()
	}
	if beliefs == nil {
		return domain.DefaultBeliefState()
	}
	return beliefs
}

// ResetBeliefs deletes the stored belief state so the next load returns
// defaults. Snapshots and cycle history are retained.
func (s *Service) ResetBeliefs(scope string) error {
	return s.beliefsRepo.DeleteBeliefs(scope)
}

// GetCycleHistory returns the most recent cycle results, newest first
func (s *Service) GetCycleHistory(scope string, n int) ([]*domain.CycleResult, error) {
	return s.beliefsRepo.GetCycleHistory(scope, n)
}

// GetBeliefSnapshot returns a specific historical belief version
func (s *Service) GetBeliefSnapshot(scope string, version int) (*domain.BeliefState, error) {
	return s.beliefsRepo.GetSnapshot(scope, version)
}

// buildExplanation renders a human-readable summary of a cycle
func buildExplanation(result *domain.CycleResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Cycle %d compared episodes %s (current) and %s (previous): ",
		result.CycleNumber, result.Comparison.CurrentEpisodeID, result.Comparison.PreviousEpisodeID)
	fmt.Fprintf(&b, "performance delta %+.2f%%, decision overlap %.2f. ",
		result.Comparison.PerformanceDelta*100, result.Comparison.DecisionOverlap)
	fmt.Fprintf(&b, "%d insights extracted, %d belief fields updated (version %d). ",
		len(result.Insights), len(result.Updates), result.NewBeliefs.Version)
	fmt.Fprintf(&b, "Direction: %s", result.MetaPrompt.OptimizationDirection)

	return b.String()
}
