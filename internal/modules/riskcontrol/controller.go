// Package riskcontrol evaluates within-episode tail risk against the
// current belief state and proposes a bounded corrective action.
package riskcontrol

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/frontieralpha/conviction/internal/config"
	"github.com/frontieralpha/conviction/internal/domain"
	"github.com/frontieralpha/conviction/pkg/formulas"
)

// hedgeProxies are the fixed instruments hedge actions are taken
// against: inverse index, gold, and volatility exposure.
var hedgeProxies = []string{"SH", "GLD", "VIXY"}

// Controller runs tail-risk checks. It holds no state across calls -
// the severity ladder is a deterministic function of the inputs.
type Controller struct {
	cfg config.EngineConfig
	log zerolog.Logger
}

// NewController creates a new risk controller
func NewController(cfg config.EngineConfig, log zerolog.Logger) *Controller {
	return &Controller{
		cfg: cfg,
		log: log.With().Str("component", "risk_controller").Logger(),
	}
}

// CheckWithinEpisodeRisk computes CVaR over the live returns series and
// compares it against the belief state's max-drawdown threshold. On
// trigger, exactly one action is selected by severity band:
//
//	severity > 1.5          reduce exposure on the three largest positions
//	1.2 < severity <= 1.5   hedge against fixed proxy instruments
//	1.0 < severity <= 1.2   rebalance positions over the concentration limit
//
// Disabled risk control or an empty returns series yields a
// non-triggered result.
func (c *Controller) CheckWithinEpisodeRisk(
	beliefs *domain.BeliefState,
	portfolioValue float64,
	returns []float64,
	positions []domain.PortfolioPosition,
) domain.WithinEpisodeRiskControl {
	result := domain.WithinEpisodeRiskControl{
		Action:    domain.RiskActionNone,
		CheckedAt: time.Now().UTC(),
	}

	if !c.cfg.RiskControlEnabled || len(returns) == 0 {
		return result
	}

	// Clean the series at the boundary
	cleaned := make([]float64, len(returns))
	for i, r := range returns {
		cleaned[i] = formulas.Sanitize(r, 0)
	}

	cvar := formulas.CalculateCVaR(cleaned, c.cfg.CVaRConfidenceLevel)
	threshold := formulas.Sanitize(beliefs.MaxDrawdownThreshold, 0.15)
	if threshold <= 0 {
		threshold = 0.15
	}

	result.CVaR = cvar
	result.Threshold = threshold
	result.Triggered = math.Abs(cvar) > threshold

	if !result.Triggered {
		return result
	}

	severity := math.Abs(cvar) / threshold
	result.Severity = severity

	switch {
	case severity > 1.5:
		result.Action = domain.RiskActionReduceExposure
		result.Magnitude = math.Min(0.3, (severity-1)*0.2)
		result.Targets = largestPositions(positions, 3)
		result.Reason = fmt.Sprintf("CVaR %.2f%% breached threshold %.2f%% at severity %.2f; cutting largest positions",
			cvar*100, threshold*100, severity)

	case severity > 1.2:
		result.Action = domain.RiskActionHedge
		result.Magnitude = math.Min(0.2, (severity-1)*0.15)
		result.Targets = append([]string(nil), hedgeProxies...)
		result.Reason = fmt.Sprintf("CVaR %.2f%% breached threshold %.2f%% at severity %.2f; hedging via proxies",
			cvar*100, threshold*100, severity)

	default:
		result.Action = domain.RiskActionRebalance
		result.Magnitude = math.Min(0.1, (severity-1)*0.1)
		result.Targets = overConcentrated(positions, beliefs.ConcentrationLimit)
		result.Reason = fmt.Sprintf("CVaR %.2f%% breached threshold %.2f%% at severity %.2f; trimming concentrated positions",
			cvar*100, threshold*100, severity)
	}

	c.log.Warn().
		Float64("cvar", cvar).
		Float64("severity", severity).
		Str("action", string(result.Action)).
		Float64("magnitude", result.Magnitude).
		Msg("Within-episode risk control triggered")

	return result
}

// largestPositions returns the n largest positions by weight,
// with a symbol tiebreak for deterministic output.
func largestPositions(positions []domain.PortfolioPosition, n int) []string {
	sorted := make([]domain.PortfolioPosition, len(positions))
	copy(sorted, positions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Weight != sorted[j].Weight {
			return sorted[i].Weight > sorted[j].Weight
		}
		return sorted[i].Symbol < sorted[j].Symbol
	})

	if len(sorted) > n {
		sorted = sorted[:n]
	}

	symbols := make([]string, len(sorted))
	for i, p := range sorted {
		symbols[i] = p.Symbol
	}
	return symbols
}

// overConcentrated returns the symbols whose weight exceeds the
// concentration limit, sorted for deterministic output.
func overConcentrated(positions []domain.PortfolioPosition, limit float64) []string {
	var symbols []string
	for _, p := range positions {
		if p.Weight > limit {
			symbols = append(symbols, p.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}
