package episodes

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/frontieralpha/conviction/internal/domain"
)

// Comparator turns two closed episodes into a structured comparison.
// It is a pure function of its inputs; the struct only carries a logger.
type Comparator struct {
	log zerolog.Logger
}

// NewComparator creates a new episode comparator
func NewComparator(log zerolog.Logger) *Comparator {
	return &Comparator{
		log: log.With().Str("component", "episode_comparator").Logger(),
	}
}

// Compare builds an EpisodeComparison from the current and previous
// closed episodes. The decision overlap tau is a proxy for how much the
// strategy changed between periods: 0 means fully divergent decisions
// (fast learning should follow), 1 means identical decisions.
func (c *Comparator) Compare(current, previous *domain.Episode) *domain.EpisodeComparison {
	ensureDefaults(current)
	ensureDefaults(previous)

	currentKeys := current.DecisionKeys()
	previousKeys := previous.DecisionKeys()

	shared := 0
	for key := range previousKeys {
		if currentKeys[key] {
			shared++
		}
	}

	denominator := len(previousKeys)
	if len(current.Decisions) > denominator {
		denominator = len(current.Decisions)
	}
	if denominator < 1 {
		denominator = 1
	}
	tau := float64(shared) / float64(denominator)

	// Higher return wins; ties favor the current episode
	better, worse := current, previous
	if previous.PortfolioReturn > current.PortfolioReturn {
		better, worse = previous, current
	}

	comparison := &domain.EpisodeComparison{
		CurrentEpisodeID:    current.ID,
		PreviousEpisodeID:   previous.ID,
		PerformanceDelta:    current.PortfolioReturn - previous.PortfolioReturn,
		DecisionOverlap:     tau,
		SharedSymbols:       sharedSymbols(current, previous),
		Better:              better,
		Worse:               worse,
		BetterEpisodeID:     better.ID,
		WorseEpisodeID:      worse.ID,
		ProfitableDecisions: classifyProfitable(better),
		LosingDecisions:     classifyLosing(worse),
	}

	c.log.Debug().
		Str("current", current.ID).
		Str("previous", previous.ID).
		Float64("tau", tau).
		Float64("performance_delta", comparison.PerformanceDelta).
		Msg("Episodes compared")

	return comparison
}

// ensureDefaults fills missing derived fields so downstream consumers
// never see nil exposure maps
func ensureDefaults(e *domain.Episode) {
	if e.FactorExposures == nil {
		e.FactorExposures = make(map[domain.Factor]float64)
	}
}

// sharedSymbols returns the sorted set of symbols traded in both episodes
func sharedSymbols(current, previous *domain.Episode) []string {
	currentSymbols := make(map[string]bool, len(current.Decisions))
	for _, d := range current.Decisions {
		currentSymbols[d.Symbol] = true
	}

	seen := make(map[string]bool)
	var shared []string
	for _, d := range previous.Decisions {
		if currentSymbols[d.Symbol] && !seen[d.Symbol] {
			seen[d.Symbol] = true
			shared = append(shared, d.Symbol)
		}
	}

	sort.Strings(shared)
	return shared
}

// classifyProfitable selects the decisions of the better episode that
// plausibly contributed to its outperformance. Decisions with a realized
// outcome are classified by that outcome; the rest fall back to an
// action/confidence heuristic (buys, and holds with conviction).
func classifyProfitable(better *domain.Episode) []domain.TradingDecision {
	var result []domain.TradingDecision
	for _, d := range better.Decisions {
		if d.OutcomeReturn != nil {
			if *d.OutcomeReturn > 0 {
				result = append(result, d)
			}
			continue
		}
		if d.Action == domain.ActionBuy || (d.Action == domain.ActionHold && d.Confidence > 0.5) {
			result = append(result, d)
		}
	}
	return result
}

// classifyLosing selects the decisions of the worse episode that
// plausibly contributed to its underperformance, preferring realized
// outcomes over the heuristic when available.
func classifyLosing(worse *domain.Episode) []domain.TradingDecision {
	var result []domain.TradingDecision
	for _, d := range worse.Decisions {
		if d.OutcomeReturn != nil {
			if *d.OutcomeReturn < 0 {
				result = append(result, d)
			}
			continue
		}
		if d.Action == domain.ActionSell || (d.Action == domain.ActionHold && d.Confidence <= 0.5) {
			result = append(result, d)
		}
	}
	return result
}
