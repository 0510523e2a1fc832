// Package domain provides core domain models and types.
package domain

import (
	"sort"
	"time"
)

// Regime represents a categorical market-state classification
type Regime string

const (
	RegimeBull     Regime = "bull"
	RegimeBear     Regime = "bear"
	RegimeSideways Regime = "sideways"
	RegimeVolatile Regime = "volatile"
)

// IsValid reports whether the regime is one of the known classifications
func (r Regime) IsValid() bool {
	switch r {
	case RegimeBull, RegimeBear, RegimeSideways, RegimeVolatile:
		return true
	}
	return false
}

// Factor identifies an investment factor tracked by the belief state
type Factor string

const (
	FactorValue      Factor = "value"
	FactorMomentum   Factor = "momentum"
	FactorQuality    Factor = "quality"
	FactorVolatility Factor = "low_volatility"
	FactorGrowth     Factor = "growth"
)

// Factors returns the canonical factor list in stable order.
// Iteration over factor maps must go through this list so that cycle
// output is deterministic (Go map order is randomized).
func Factors() []Factor {
	return []Factor{FactorValue, FactorMomentum, FactorQuality, FactorVolatility, FactorGrowth}
}

// SortedFactorKeys returns the keys of a factor-keyed map in stable order
func SortedFactorKeys[V any](m map[Factor]V) []Factor {
	keys := make([]Factor, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// BeliefState is a versioned snapshot of the engine's quantitative
// convictions: factor weights and confidences, scalar risk parameters,
// the current market regime, and accumulated conceptual priors.
// It is never mutated in place - every learning cycle produces a new
// version via Clone.
type BeliefState struct {
	Version          int                `json:"version"`
	UpdatedAt        time.Time          `json:"updated_at"`
	FactorWeights    map[Factor]float64 `json:"factor_weights"`
	FactorConfidence map[Factor]float64 `json:"factor_confidence"`

	// Scalar risk parameters
	RiskTolerance          float64 `json:"risk_tolerance"`
	MaxDrawdownThreshold   float64 `json:"max_drawdown_threshold"`
	VolatilityTarget       float64 `json:"volatility_target"`
	MomentumHorizonDays    int     `json:"momentum_horizon_days"`
	MeanReversionThreshold float64 `json:"mean_reversion_threshold"`
	ConcentrationLimit     float64 `json:"concentration_limit"`
	MinPositionSize        float64 `json:"min_position_size"`
	RebalanceThreshold     float64 `json:"rebalance_threshold"`

	CurrentRegime    Regime  `json:"current_regime"`
	RegimeConfidence float64 `json:"regime_confidence"`

	// Priors accumulates concept statements from past cycles
	Priors []string `json:"priors"`
}

// DefaultBeliefState returns the documented starting beliefs used when
// no persisted state exists. The five factor weights sum to 1 here but
// are not re-normalized after updates.
func DefaultBeliefState() *BeliefState {
	weights := make(map[Factor]float64, len(Factors()))
	confidence := make(map[Factor]float64, len(Factors()))
	for _, f := range Factors() {
		weights[f] = 0.20
		confidence[f] = 0.50
	}

	return &BeliefState{
		Version:                1,
		UpdatedAt:              time.Now().UTC(),
		FactorWeights:          weights,
		FactorConfidence:       confidence,
		RiskTolerance:          0.50,
		MaxDrawdownThreshold:   0.15,
		VolatilityTarget:       0.12,
		MomentumHorizonDays:    90,
		MeanReversionThreshold: 2.0,
		ConcentrationLimit:     0.25,
		MinPositionSize:        0.01,
		RebalanceThreshold:     0.05,
		CurrentRegime:          RegimeSideways,
		RegimeConfidence:       0.50,
		Priors:                 []string{},
	}
}

// Clone returns a deep copy of the belief state
func (b *BeliefState) Clone() *BeliefState {
	clone := *b

	clone.FactorWeights = make(map[Factor]float64, len(b.FactorWeights))
	for f, w := range b.FactorWeights {
		clone.FactorWeights[f] = w
	}

	clone.FactorConfidence = make(map[Factor]float64, len(b.FactorConfidence))
	for f, c := range b.FactorConfidence {
		clone.FactorConfidence[f] = c
	}

	clone.Priors = make([]string, len(b.Priors))
	copy(clone.Priors, b.Priors)

	return &clone
}
