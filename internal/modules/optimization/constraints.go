// Package optimization derives optimizer constraints from the current
// belief state for the portfolio optimizer collaborator.
package optimization

import (
	"github.com/rs/zerolog"

	"github.com/frontieralpha/conviction/internal/domain"
	"github.com/frontieralpha/conviction/pkg/formulas"
)

// Regime multipliers applied to the volatility target and risk budget
const (
	bullMultiplier     = 1.1
	bearMultiplier     = 0.8
	volatileMultiplier = 0.7
	neutralMultiplier  = 1.0
)

// ConstraintsManager translates beliefs into optimization constraints
type ConstraintsManager struct {
	log zerolog.Logger
}

// NewConstraintsManager creates a new constraints manager
func NewConstraintsManager(log zerolog.Logger) *ConstraintsManager {
	return &ConstraintsManager{
		log: log.With().Str("component", "constraints").Logger(),
	}
}

// GetOptimizationConstraints builds the optimizer input from the
// current beliefs: per-factor target bands from weight and confidence,
// weight bounds from the concentration and minimum-position beliefs,
// and a regime-scaled volatility target and risk budget. Low confidence
// widens a factor's tolerance band, letting the optimizer drift further
// from an uncertain target.
func (cm *ConstraintsManager) GetOptimizationConstraints(beliefs *domain.BeliefState) *domain.OptimizationConstraints {
	targets := make(map[domain.Factor]domain.TargetBand, len(beliefs.FactorWeights))
	for _, factor := range domain.SortedFactorKeys(beliefs.FactorWeights) {
		weight := formulas.Clamp01(formulas.Sanitize(beliefs.FactorWeights[factor], 0.2))
		confidence := formulas.Clamp01(formulas.Sanitize(beliefs.FactorConfidence[factor], 0.5))

		targets[factor] = domain.TargetBand{
			Target:    weight,
			Tolerance: formulas.Clamp(0.05+(1-confidence)*0.15, 0.05, 0.20),
		}
	}

	multiplier := regimeMultiplier(beliefs.CurrentRegime)

	constraints := &domain.OptimizationConstraints{
		FactorTargets:    targets,
		MaxWeight:        formulas.Clamp01(beliefs.ConcentrationLimit),
		MinWeight:        formulas.Clamp01(beliefs.MinPositionSize),
		VolatilityTarget: beliefs.VolatilityTarget * multiplier,
		RiskBudget:       formulas.Clamp01(beliefs.RiskTolerance) * multiplier,
	}

	cm.log.Debug().
		Str("regime", string(beliefs.CurrentRegime)).
		Float64("multiplier", multiplier).
		Float64("volatility_target", constraints.VolatilityTarget).
		Msg("Optimization constraints derived")

	return constraints
}

// regimeMultiplier scales risk appetite by market regime
func regimeMultiplier(regime domain.Regime) float64 {
	switch regime {
	case domain.RegimeBull:
		return bullMultiplier
	case domain.RegimeBear:
		return bearMultiplier
	case domain.RegimeVolatile:
		return volatileMultiplier
	default:
		return neutralMultiplier
	}
}
