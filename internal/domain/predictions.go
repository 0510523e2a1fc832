package domain

import "time"

// RegimePrediction is an external model's market regime call
type RegimePrediction struct {
	Regime        Regime             `json:"regime"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[Regime]float64 `json:"probabilities"`
	Timestamp     time.Time          `json:"timestamp"`

	// RegimeChanged indicates the prediction differs from the previous call
	RegimeChanged  bool   `json:"regime_changed"`
	PreviousRegime Regime `json:"previous_regime,omitempty"`
}

// MomentumPrediction is an external model's per-factor momentum signal
type MomentumPrediction struct {
	Signal     float64 `json:"signal"`
	Confidence float64 `json:"confidence"`
	UpperBound float64 `json:"upper_bound"`
	LowerBound float64 `json:"lower_bound"`
}

// FactorAttribution holds one factor's contribution decomposition
type FactorAttribution struct {
	Exposure     float64 `json:"exposure"`
	Contribution float64 `json:"contribution"`
	ShapleyValue float64 `json:"shapley_value"`
	Direction    string  `json:"direction"`
}

// AttributionResult decomposes realized return into factor contributions
type AttributionResult struct {
	TotalReturn    float64                      `json:"total_return"`
	FactorReturn   float64                      `json:"factor_return"`
	ResidualReturn float64                      `json:"residual_return"`
	Factors        map[Factor]FactorAttribution `json:"factors"`
	Summary        string                       `json:"summary"`
}

// ModelPredictions bundles the optional external model outputs consumed
// by a learning cycle. A nil *ModelPredictions means no predictions were
// available; the Has* accessors are nil-safe so callers can branch on
// presence without threading nullable fields through every signature.
type ModelPredictions struct {
	Regime         *RegimePrediction             `json:"regime,omitempty"`
	FactorMomentum map[Factor]MomentumPrediction `json:"factor_momentum,omitempty"`
	Attribution    *AttributionResult            `json:"attribution,omitempty"`
}

// HasRegime reports whether a regime prediction is present
func (p *ModelPredictions) HasRegime() bool {
	return p != nil && p.Regime != nil
}

// HasMomentum reports whether factor momentum predictions are present
func (p *ModelPredictions) HasMomentum() bool {
	return p != nil && len(p.FactorMomentum) > 0
}

// HasAttribution reports whether a factor attribution result is present
func (p *ModelPredictions) HasAttribution() bool {
	return p != nil && p.Attribution != nil && len(p.Attribution.Factors) > 0
}

// RegimeChanged reports whether the predictions carry a changed regime
func (p *ModelPredictions) RegimeChanged() bool {
	return p.HasRegime() && p.Regime.RegimeChanged
}
