package optimization

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontieralpha/conviction/internal/domain"
)

func TestGetOptimizationConstraints_Defaults(t *testing.T) {
	manager := NewConstraintsManager(zerolog.Nop())
	beliefs := domain.DefaultBeliefState()

	constraints := manager.GetOptimizationConstraints(beliefs)

	require.Len(t, constraints.FactorTargets, len(domain.Factors()))
	for factor, band := range constraints.FactorTargets {
		assert.InDelta(t, 0.20, band.Target, 1e-9, "factor %s", factor)
		// confidence 0.50: 0.05 + 0.5*0.15
		assert.InDelta(t, 0.125, band.Tolerance, 1e-9, "factor %s", factor)
	}

	assert.InDelta(t, 0.25, constraints.MaxWeight, 1e-9)
	assert.InDelta(t, 0.01, constraints.MinWeight, 1e-9)
	// sideways regime leaves the volatility target untouched
	assert.InDelta(t, 0.12, constraints.VolatilityTarget, 1e-9)
	assert.InDelta(t, 0.50, constraints.RiskBudget, 1e-9)
}

func TestGetOptimizationConstraints_ToleranceBand(t *testing.T) {
	manager := NewConstraintsManager(zerolog.Nop())

	tests := []struct {
		name          string
		confidence    float64
		wantTolerance float64
	}{
		{name: "full confidence hits floor", confidence: 1.0, wantTolerance: 0.05},
		{name: "zero confidence hits ceiling", confidence: 0.0, wantTolerance: 0.20},
		{name: "mid confidence interpolates", confidence: 0.6, wantTolerance: 0.11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			beliefs := domain.DefaultBeliefState()
			for _, f := range domain.Factors() {
				beliefs.FactorConfidence[f] = tt.confidence
			}

			constraints := manager.GetOptimizationConstraints(beliefs)
			assert.InDelta(t, tt.wantTolerance, constraints.FactorTargets[domain.FactorValue].Tolerance, 1e-9)
		})
	}
}

func TestGetOptimizationConstraints_RegimeMultipliers(t *testing.T) {
	manager := NewConstraintsManager(zerolog.Nop())

	tests := []struct {
		regime     domain.Regime
		multiplier float64
	}{
		{domain.RegimeBull, 1.1},
		{domain.RegimeBear, 0.8},
		{domain.RegimeVolatile, 0.7},
		{domain.RegimeSideways, 1.0},
	}

	for _, tt := range tests {
		t.Run(string(tt.regime), func(t *testing.T) {
			beliefs := domain.DefaultBeliefState()
			beliefs.CurrentRegime = tt.regime

			constraints := manager.GetOptimizationConstraints(beliefs)
			assert.InDelta(t, 0.12*tt.multiplier, constraints.VolatilityTarget, 1e-9)
			assert.InDelta(t, 0.50*tt.multiplier, constraints.RiskBudget, 1e-9)
		})
	}
}

func TestGetOptimizationConstraints_SanitizesCorruptBeliefs(t *testing.T) {
	manager := NewConstraintsManager(zerolog.Nop())

	beliefs := domain.DefaultBeliefState()
	beliefs.FactorWeights[domain.FactorValue] = math.NaN()
	beliefs.FactorConfidence[domain.FactorMomentum] = math.Inf(1)

	constraints := manager.GetOptimizationConstraints(beliefs)

	// NaN weight falls back to the neutral target
	assert.InDelta(t, 0.20, constraints.FactorTargets[domain.FactorValue].Target, 1e-9)
	// Inf confidence falls back to 0.5 before the band is derived
	assert.InDelta(t, 0.125, constraints.FactorTargets[domain.FactorMomentum].Tolerance, 1e-9)
}
