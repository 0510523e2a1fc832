package learning

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/frontieralpha/conviction/internal/config"
	"github.com/frontieralpha/conviction/internal/domain"
	"github.com/frontieralpha/conviction/pkg/formulas"
)

// Neutral baselines each belief field decays toward before an update is
// applied, and the valid domain of each scalar field.
const (
	neutralFactorWeight     = 0.20
	neutralRiskTolerance    = 0.50
	neutralConcentration    = 0.25
	neutralRebalance        = 0.05
	minConcentrationLimit   = 0.05
	maxConcentrationLimit   = 0.50
	minRebalanceThreshold   = 0.01
	maxRebalanceThreshold   = 0.20
	momentumBoostConfidence = 0.70 // momentum predictions below this are ignored
)

// Updater turns insights and a meta-prompt into a new belief state and
// an auditable list of field-level updates, subject to hard bounds: no
// single cycle can move any field outside its domain or by more than
// the configured maximum step, regardless of how extreme the upstream
// insights or predictions are.
type Updater struct {
	cfg config.EngineConfig
	log zerolog.Logger
}

// NewUpdater creates a new belief updater
func NewUpdater(cfg config.EngineConfig, log zerolog.Logger) *Updater {
	return &Updater{
		cfg: cfg,
		log: log.With().Str("component", "belief_updater").Logger(),
	}
}

// LearningRate computes the rate for a cycle from the decision overlap
// tau: divergent decisions accelerate learning, identical decisions
// slow it. A fresh regime signal doubles the rate. The configured
// ceiling is never exceeded regardless of signal strength.
func (u *Updater) LearningRate(tau float64, predictions *domain.ModelPredictions) float64 {
	tau = formulas.Clamp01(formulas.Sanitize(tau, 1))

	rate := u.cfg.BaseLearningRate * (1 - tau)
	if predictions.RegimeChanged() {
		rate *= 2
	}

	return formulas.Clamp(rate, u.cfg.MinLearningRate, u.cfg.MaxLearningRate)
}

// UpdateBeliefs produces a new belief version from the cycle inputs.
// The input state is never mutated; every changed field yields one
// BeliefUpdate audit record. The version increments and UpdatedAt is
// stamped exactly once per cycle regardless of how many fields changed.
func (u *Updater) UpdateBeliefs(
	current *domain.BeliefState,
	comparison *domain.EpisodeComparison,
	insights []domain.ConceptualInsight,
	metaPrompt *domain.MetaPrompt,
	predictions *domain.ModelPredictions,
) (*domain.BeliefState, []domain.BeliefUpdate) {
	now := time.Now().UTC()
	rate := u.LearningRate(comparison.DecisionOverlap, predictions)

	beliefs := current.Clone()
	beliefs.Version = current.Version + 1
	beliefs.UpdatedAt = now

	var updates []domain.BeliefUpdate
	importance := u.importanceScale(predictions)

	for _, insight := range insights {
		if insight.Confidence < u.cfg.MinInsightConfidence {
			continue
		}

		switch insight.Type {
		case domain.InsightFactor:
			u.applyFactorInsight(beliefs, insight, rate, importance, now, &updates)
		case domain.InsightRisk:
			u.applyScalarInsight(beliefs, insight, rate, now, &updates,
				"risk_tolerance", &beliefs.RiskTolerance, neutralRiskTolerance, 0, 1)
		case domain.InsightAllocation:
			u.applyScalarInsight(beliefs, insight, rate, now, &updates,
				"concentration_limit", &beliefs.ConcentrationLimit, neutralConcentration,
				minConcentrationLimit, maxConcentrationLimit)
		case domain.InsightTiming:
			u.applyScalarInsight(beliefs, insight, rate, now, &updates,
				"rebalance_threshold", &beliefs.RebalanceThreshold, neutralRebalance,
				minRebalanceThreshold, maxRebalanceThreshold)
		}

		beliefs.Priors = append(beliefs.Priors, insight.Concept)
	}

	u.applyRegimePrediction(beliefs, predictions, rate, now, &updates)
	u.applyMomentumPredictions(beliefs, predictions, rate, now, &updates)

	// Keep only the most recent priors
	if len(beliefs.Priors) > u.cfg.MaxPriors {
		beliefs.Priors = beliefs.Priors[len(beliefs.Priors)-u.cfg.MaxPriors:]
	}

	u.log.Info().
		Int("version", beliefs.Version).
		Float64("learning_rate", rate).
		Int("updates", len(updates)).
		Msg("Beliefs updated")

	return beliefs, updates
}

// importanceScale normalizes absolute Shapley values into (0,1] scaling
// factors so larger moves concentrate on factors proven to matter.
// Returns nil when no attribution is present (no scaling).
func (u *Updater) importanceScale(predictions *domain.ModelPredictions) map[domain.Factor]float64 {
	if !predictions.HasAttribution() {
		return nil
	}

	maxAbs := 0.0
	for _, fa := range predictions.Attribution.Factors {
		if abs := math.Abs(formulas.Sanitize(fa.ShapleyValue, 0)); abs > maxAbs {
			maxAbs = abs
		}
	}
	if maxAbs == 0 {
		return nil
	}

	scale := make(map[domain.Factor]float64, len(predictions.Attribution.Factors))
	for f, fa := range predictions.Attribution.Factors {
		scale[f] = math.Abs(formulas.Sanitize(fa.ShapleyValue, 0)) / maxAbs
	}
	return scale
}

// applyFactorInsight moves a factor weight, scaling the rate by the
// factor's attribution importance when available.
func (u *Updater) applyFactorInsight(
	beliefs *domain.BeliefState,
	insight domain.ConceptualInsight,
	rate float64,
	importance map[domain.Factor]float64,
	now time.Time,
	updates *[]domain.BeliefUpdate,
) {
	factor := insight.Factor
	if factor == "" {
		return
	}

	effectiveRate := rate
	if importance != nil {
		if scale, ok := importance[factor]; ok {
			effectiveRate = formulas.Clamp(rate*scale, u.cfg.MinLearningRate, u.cfg.MaxLearningRate)
		}
	}

	old := beliefs.FactorWeights[factor]
	updated := u.boundedStep(old, neutralFactorWeight, insight.Impact.Sign(), effectiveRate, insight.Confidence, 0, 1)
	if updated == old {
		return
	}

	beliefs.FactorWeights[factor] = updated
	*updates = append(*updates, domain.BeliefUpdate{
		Field:        "factor_weight." + string(factor),
		OldValue:     old,
		NewValue:     updated,
		LearningRate: effectiveRate,
		Explanation:  insight.Concept,
		Timestamp:    now,
	})
}

// applyScalarInsight moves a scalar belief field within its domain
func (u *Updater) applyScalarInsight(
	beliefs *domain.BeliefState,
	insight domain.ConceptualInsight,
	rate float64,
	now time.Time,
	updates *[]domain.BeliefUpdate,
	field string,
	value *float64,
	neutral, min, max float64,
) {
	old := *value
	updated := u.boundedStep(old, neutral, insight.Impact.Sign(), rate, insight.Confidence, min, max)
	if updated == old {
		return
	}

	*value = updated
	*updates = append(*updates, domain.BeliefUpdate{
		Field:        field,
		OldValue:     old,
		NewValue:     updated,
		LearningRate: rate,
		Explanation:  insight.Concept,
		Timestamp:    now,
	})
}

// boundedStep decays the existing value toward its neutral baseline,
// applies the signed insight move, and clamps both the total per-cycle
// movement and the resulting value into the field's domain.
func (u *Updater) boundedStep(old, neutral, sign, rate, confidence, min, max float64) float64 {
	decayed := old + (neutral-old)*u.cfg.BeliefDecayRate
	proposed := decayed + sign*rate*formulas.Clamp01(formulas.Sanitize(confidence, 0))

	// The total movement, decay included, never exceeds the maximum step
	step := formulas.Clamp(proposed-old, -u.cfg.MaxBeliefChange, u.cfg.MaxBeliefChange)

	return formulas.Clamp(old+step, min, max)
}

// applyRegimePrediction sets the belief regime directly from an external
// regime prediction. Confirmation of an unchanged regime never lowers
// confidence; only a new regime can reset it downward.
func (u *Updater) applyRegimePrediction(
	beliefs *domain.BeliefState,
	predictions *domain.ModelPredictions,
	rate float64,
	now time.Time,
	updates *[]domain.BeliefUpdate,
) {
	if !predictions.HasRegime() {
		return
	}

	prediction := predictions.Regime
	if !prediction.Regime.IsValid() {
		u.log.Warn().Str("regime", string(prediction.Regime)).Msg("Ignoring prediction with unknown regime")
		return
	}

	oldRegime := beliefs.CurrentRegime
	oldConfidence := beliefs.RegimeConfidence
	newConfidence := formulas.Clamp01(formulas.Sanitize(prediction.Confidence, 0))

	if prediction.Regime == oldRegime && !prediction.RegimeChanged {
		if newConfidence < oldConfidence {
			newConfidence = oldConfidence
		}
	}

	beliefs.CurrentRegime = prediction.Regime
	beliefs.RegimeConfidence = newConfidence

	if prediction.Regime != oldRegime || prediction.RegimeChanged {
		*updates = append(*updates, domain.BeliefUpdate{
			Field:        "current_regime",
			OldValue:     oldConfidence,
			NewValue:     newConfidence,
			LearningRate: rate,
			Explanation: fmt.Sprintf("Regime set to %s (was %s) from external prediction at confidence %.2f",
				prediction.Regime, oldRegime, prediction.Confidence),
			Timestamp: now,
		})
	} else if newConfidence != oldConfidence {
		*updates = append(*updates, domain.BeliefUpdate{
			Field:        "regime_confidence",
			OldValue:     oldConfidence,
			NewValue:     newConfidence,
			LearningRate: rate,
			Explanation:  fmt.Sprintf("Regime %s confirmed; confidence raised", prediction.Regime),
			Timestamp:    now,
		})
	}
}

// applyMomentumPredictions boosts factor confidence (not weight) for
// factors with high-confidence momentum signals.
func (u *Updater) applyMomentumPredictions(
	beliefs *domain.BeliefState,
	predictions *domain.ModelPredictions,
	rate float64,
	now time.Time,
	updates *[]domain.BeliefUpdate,
) {
	if !predictions.HasMomentum() {
		return
	}

	for _, factor := range domain.SortedFactorKeys(predictions.FactorMomentum) {
		prediction := predictions.FactorMomentum[factor]
		confidence := formulas.Clamp01(formulas.Sanitize(prediction.Confidence, 0))
		if confidence < momentumBoostConfidence {
			continue
		}

		old := beliefs.FactorConfidence[factor]
		boost := formulas.Clamp(rate*confidence, 0, u.cfg.MaxBeliefChange)
		updated := formulas.Clamp01(old + boost)
		if updated == old {
			continue
		}

		beliefs.FactorConfidence[factor] = updated
		*updates = append(*updates, domain.BeliefUpdate{
			Field:        "factor_confidence." + string(factor),
			OldValue:     old,
			NewValue:     updated,
			LearningRate: rate,
			Explanation: fmt.Sprintf("[momentum_boost] %s momentum signal %+.3f at confidence %.2f",
				factor, prediction.Signal, confidence),
			Timestamp: now,
		})
	}
}
