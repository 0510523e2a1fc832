package learning

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontieralpha/conviction/internal/config"
	"github.com/frontieralpha/conviction/internal/domain"
)

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		BaseLearningRate:      0.10,
		MinLearningRate:       0.01,
		MaxLearningRate:       0.30,
		BeliefDecayRate:       0.05,
		MaxBeliefChange:       0.15,
		MaxInsightsPerEpisode: 10,
		MinInsightConfidence:  0.30,
		MaxPriors:             50,
		CVaRConfidenceLevel:   0.95,
		RiskControlEnabled:    true,
	}
}

func TestLearningRate(t *testing.T) {
	updater := NewUpdater(testEngineConfig(), zerolog.Nop())

	tests := []struct {
		name        string
		tau         float64
		predictions *domain.ModelPredictions
		want        float64
	}{
		{
			name: "divergent decisions learn at base rate",
			tau:  0,
			want: 0.10,
		},
		{
			name: "identical decisions learn at the floor",
			tau:  1,
			want: 0.01,
		},
		{
			name: "half overlap halves the rate",
			tau:  0.5,
			want: 0.05,
		},
		{
			name: "regime change doubles the rate",
			tau:  0,
			predictions: &domain.ModelPredictions{
				Regime: &domain.RegimePrediction{
					Regime:        domain.RegimeBear,
					RegimeChanged: true,
					Confidence:    0.9,
				},
			},
			want: 0.20,
		},
		{
			name: "regime confirmation does not accelerate",
			tau:  0.5,
			predictions: &domain.ModelPredictions{
				Regime: &domain.RegimePrediction{
					Regime:     domain.RegimeBull,
					Confidence: 0.9,
				},
			},
			want: 0.05,
		},
		{
			name: "NaN tau treated as full overlap",
			tau:  math.NaN(),
			want: 0.01,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, updater.LearningRate(tt.tau, tt.predictions), 1e-9)
		})
	}
}

func TestLearningRate_DoublingNeverExceedsCeiling(t *testing.T) {
	cfg := testEngineConfig()
	cfg.BaseLearningRate = 0.25
	updater := NewUpdater(cfg, zerolog.Nop())

	rate := updater.LearningRate(0, &domain.ModelPredictions{
		Regime: &domain.RegimePrediction{Regime: domain.RegimeBear, RegimeChanged: true, Confidence: 1},
	})
	assert.InDelta(t, 0.30, rate, 1e-9)
}

func factorInsight(factor domain.Factor, impact domain.ImpactDirection, confidence float64) domain.ConceptualInsight {
	return domain.ConceptualInsight{
		ID:         "ins-" + string(factor),
		Type:       domain.InsightFactor,
		Factor:     factor,
		Concept:    "test insight for " + string(factor),
		Confidence: confidence,
		Impact:     impact,
	}
}

func emptyComparison(tau float64) *domain.EpisodeComparison {
	return &domain.EpisodeComparison{
		CurrentEpisodeID:  "cur",
		PreviousEpisodeID: "prev",
		DecisionOverlap:   tau,
	}
}

func TestUpdateBeliefs_DoesNotMutateInput(t *testing.T) {
	updater := NewUpdater(testEngineConfig(), zerolog.Nop())
	current := domain.DefaultBeliefState()
	originalWeight := current.FactorWeights[domain.FactorMomentum]

	insights := []domain.ConceptualInsight{
		factorInsight(domain.FactorMomentum, domain.ImpactPositive, 0.9),
	}

	updated, updates := updater.UpdateBeliefs(current, emptyComparison(0), insights, &domain.MetaPrompt{}, nil)

	assert.Equal(t, originalWeight, current.FactorWeights[domain.FactorMomentum])
	assert.Equal(t, 1, current.Version)
	assert.Equal(t, 2, updated.Version)
	assert.NotEmpty(t, updates)
}

func TestUpdateBeliefs_FactorWeightMovesByRateTimesConfidence(t *testing.T) {
	updater := NewUpdater(testEngineConfig(), zerolog.Nop())
	current := domain.DefaultBeliefState()

	insights := []domain.ConceptualInsight{
		factorInsight(domain.FactorValue, domain.ImpactPositive, 0.8),
	}

	// tau=0 so rate is base 0.10; weight starts at neutral 0.20 so decay
	// contributes nothing: 0.20 + 0.10*0.8 = 0.28
	updated, updates := updater.UpdateBeliefs(current, emptyComparison(0), insights, &domain.MetaPrompt{}, nil)

	assert.InDelta(t, 0.28, updated.FactorWeights[domain.FactorValue], 1e-9)
	require.Len(t, updates, 1)
	assert.Equal(t, "factor_weight.value", updates[0].Field)
	assert.InDelta(t, 0.20, updates[0].OldValue, 1e-9)
	assert.InDelta(t, 0.28, updates[0].NewValue, 1e-9)
}

func TestUpdateBeliefs_LowConfidenceInsightsSkipped(t *testing.T) {
	updater := NewUpdater(testEngineConfig(), zerolog.Nop())
	current := domain.DefaultBeliefState()

	insights := []domain.ConceptualInsight{
		factorInsight(domain.FactorValue, domain.ImpactPositive, 0.1),
	}

	updated, updates := updater.UpdateBeliefs(current, emptyComparison(0), insights, &domain.MetaPrompt{}, nil)

	assert.Empty(t, updates)
	assert.Equal(t, current.FactorWeights[domain.FactorValue], updated.FactorWeights[domain.FactorValue])
	assert.Empty(t, updated.Priors)
}

func TestUpdateBeliefs_StepNeverExceedsMaxChange(t *testing.T) {
	cfg := testEngineConfig()
	cfg.BaseLearningRate = 0.30
	cfg.MaxLearningRate = 0.30
	updater := NewUpdater(cfg, zerolog.Nop())

	current := domain.DefaultBeliefState()
	current.FactorWeights[domain.FactorGrowth] = 0.90

	insights := []domain.ConceptualInsight{
		factorInsight(domain.FactorGrowth, domain.ImpactNegative, 1.0),
	}

	updated, _ := updater.UpdateBeliefs(current, emptyComparison(0), insights, &domain.MetaPrompt{}, nil)

	// Decay pulls toward 0.20 and the insight pushes down 0.30 more, but
	// total movement is capped at MaxBeliefChange
	moved := math.Abs(updated.FactorWeights[domain.FactorGrowth] - 0.90)
	assert.InDelta(t, cfg.MaxBeliefChange, moved, 1e-9)
}

func TestUpdateBeliefs_AllFieldsStayInDomain(t *testing.T) {
	updater := NewUpdater(testEngineConfig(), zerolog.Nop())

	current := domain.DefaultBeliefState()
	current.FactorWeights[domain.FactorQuality] = 0.99
	current.RiskTolerance = 0.02
	current.ConcentrationLimit = 0.06
	current.RebalanceThreshold = 0.015

	insights := []domain.ConceptualInsight{
		factorInsight(domain.FactorQuality, domain.ImpactPositive, 1.0),
		{ID: "r", Type: domain.InsightRisk, Concept: "cut risk", Confidence: 1.0, Impact: domain.ImpactNegative},
		{ID: "a", Type: domain.InsightAllocation, Concept: "concentrate less", Confidence: 1.0, Impact: domain.ImpactNegative},
		{ID: "t", Type: domain.InsightTiming, Concept: "rebalance sooner", Confidence: 1.0, Impact: domain.ImpactNegative},
	}

	updated, _ := updater.UpdateBeliefs(current, emptyComparison(0), insights, &domain.MetaPrompt{}, nil)

	for factor, w := range updated.FactorWeights {
		assert.GreaterOrEqual(t, w, 0.0, "weight of %s", factor)
		assert.LessOrEqual(t, w, 1.0, "weight of %s", factor)
	}
	assert.GreaterOrEqual(t, updated.RiskTolerance, 0.0)
	assert.GreaterOrEqual(t, updated.ConcentrationLimit, 0.05)
	assert.GreaterOrEqual(t, updated.RebalanceThreshold, 0.01)
}

func TestUpdateBeliefs_Deterministic(t *testing.T) {
	updater := NewUpdater(testEngineConfig(), zerolog.Nop())

	insights := []domain.ConceptualInsight{
		factorInsight(domain.FactorValue, domain.ImpactPositive, 0.8),
		factorInsight(domain.FactorMomentum, domain.ImpactNegative, 0.6),
		{ID: "r", Type: domain.InsightRisk, Concept: "risk off", Confidence: 0.7, Impact: domain.ImpactNegative},
	}
	predictions := &domain.ModelPredictions{
		FactorMomentum: map[domain.Factor]domain.MomentumPrediction{
			domain.FactorValue:   {Signal: 0.5, Confidence: 0.9},
			domain.FactorQuality: {Signal: 0.2, Confidence: 0.8},
		},
	}

	first, firstUpdates := updater.UpdateBeliefs(domain.DefaultBeliefState(), emptyComparison(0.25), insights, &domain.MetaPrompt{}, predictions)
	second, secondUpdates := updater.UpdateBeliefs(domain.DefaultBeliefState(), emptyComparison(0.25), insights, &domain.MetaPrompt{}, predictions)

	assert.Equal(t, first.FactorWeights, second.FactorWeights)
	assert.Equal(t, first.FactorConfidence, second.FactorConfidence)
	require.Equal(t, len(firstUpdates), len(secondUpdates))
	for i := range firstUpdates {
		assert.Equal(t, firstUpdates[i].Field, secondUpdates[i].Field)
		assert.Equal(t, firstUpdates[i].NewValue, secondUpdates[i].NewValue)
	}
}

func TestUpdateBeliefs_RegimePredictionSetsRegime(t *testing.T) {
	updater := NewUpdater(testEngineConfig(), zerolog.Nop())
	current := domain.DefaultBeliefState()

	predictions := &domain.ModelPredictions{
		Regime: &domain.RegimePrediction{
			Regime:         domain.RegimeBear,
			Confidence:     0.85,
			RegimeChanged:  true,
			PreviousRegime: domain.RegimeSideways,
		},
	}

	updated, updates := updater.UpdateBeliefs(current, emptyComparison(0.5), nil, &domain.MetaPrompt{}, predictions)

	assert.Equal(t, domain.RegimeBear, updated.CurrentRegime)
	assert.InDelta(t, 0.85, updated.RegimeConfidence, 1e-9)

	var found bool
	for _, u := range updates {
		if u.Field == "current_regime" {
			found = true
		}
	}
	assert.True(t, found, "expected a current_regime update record")
}

func TestUpdateBeliefs_RegimeConfirmationNeverLowersConfidence(t *testing.T) {
	updater := NewUpdater(testEngineConfig(), zerolog.Nop())
	current := domain.DefaultBeliefState()
	current.CurrentRegime = domain.RegimeBull
	current.RegimeConfidence = 0.90

	predictions := &domain.ModelPredictions{
		Regime: &domain.RegimePrediction{Regime: domain.RegimeBull, Confidence: 0.60},
	}

	updated, _ := updater.UpdateBeliefs(current, emptyComparison(0.5), nil, &domain.MetaPrompt{}, predictions)

	assert.Equal(t, domain.RegimeBull, updated.CurrentRegime)
	assert.InDelta(t, 0.90, updated.RegimeConfidence, 1e-9)
}

func TestUpdateBeliefs_InvalidRegimeIgnored(t *testing.T) {
	updater := NewUpdater(testEngineConfig(), zerolog.Nop())
	current := domain.DefaultBeliefState()

	predictions := &domain.ModelPredictions{
		Regime: &domain.RegimePrediction{Regime: domain.Regime("sideways_up"), Confidence: 0.9, RegimeChanged: true},
	}

	updated, updates := updater.UpdateBeliefs(current, emptyComparison(0.5), nil, &domain.MetaPrompt{}, predictions)

	assert.Equal(t, current.CurrentRegime, updated.CurrentRegime)
	assert.Empty(t, updates)
}

func TestUpdateBeliefs_MomentumBoostsConfidenceNotWeight(t *testing.T) {
	updater := NewUpdater(testEngineConfig(), zerolog.Nop())
	current := domain.DefaultBeliefState()

	predictions := &domain.ModelPredictions{
		FactorMomentum: map[domain.Factor]domain.MomentumPrediction{
			domain.FactorMomentum: {Signal: 0.8, Confidence: 0.90},
			domain.FactorValue:    {Signal: 0.5, Confidence: 0.50}, // below boost threshold
		},
	}

	updated, updates := updater.UpdateBeliefs(current, emptyComparison(0), nil, &domain.MetaPrompt{}, predictions)

	// rate 0.10 * confidence 0.90 on top of base confidence 0.50
	assert.InDelta(t, 0.59, updated.FactorConfidence[domain.FactorMomentum], 1e-9)
	assert.Equal(t, current.FactorConfidence[domain.FactorValue], updated.FactorConfidence[domain.FactorValue])
	assert.Equal(t, current.FactorWeights[domain.FactorMomentum], updated.FactorWeights[domain.FactorMomentum])

	require.Len(t, updates, 1)
	assert.Equal(t, "factor_confidence.momentum", updates[0].Field)
	assert.Contains(t, updates[0].Explanation, "[momentum_boost]")
}

func TestUpdateBeliefs_ShapleyImportanceScalesFactorRates(t *testing.T) {
	updater := NewUpdater(testEngineConfig(), zerolog.Nop())
	current := domain.DefaultBeliefState()

	insights := []domain.ConceptualInsight{
		factorInsight(domain.FactorValue, domain.ImpactPositive, 1.0),
		factorInsight(domain.FactorGrowth, domain.ImpactPositive, 1.0),
	}
	predictions := &domain.ModelPredictions{
		Attribution: &domain.AttributionResult{
			Factors: map[domain.Factor]domain.FactorAttribution{
				domain.FactorValue:  {ShapleyValue: 0.04},
				domain.FactorGrowth: {ShapleyValue: 0.01},
			},
		},
	}

	updated, _ := updater.UpdateBeliefs(current, emptyComparison(0), insights, &domain.MetaPrompt{}, predictions)

	valueMove := updated.FactorWeights[domain.FactorValue] - 0.20
	growthMove := updated.FactorWeights[domain.FactorGrowth] - 0.20

	// value has 4x the importance, so it moves further; growth's scaled
	// rate is floored at MinLearningRate rather than vanishing
	assert.Greater(t, valueMove, growthMove)
	assert.InDelta(t, 0.10, valueMove, 1e-9)
	assert.InDelta(t, 0.025, growthMove, 1e-9)
}

func TestUpdateBeliefs_PriorsAccumulateAndCap(t *testing.T) {
	cfg := testEngineConfig()
	cfg.MaxPriors = 3
	updater := NewUpdater(cfg, zerolog.Nop())

	current := domain.DefaultBeliefState()
	current.Priors = []string{"p1", "p2", "p3"}

	insights := []domain.ConceptualInsight{
		factorInsight(domain.FactorValue, domain.ImpactPositive, 0.8),
	}

	updated, _ := updater.UpdateBeliefs(current, emptyComparison(0), insights, &domain.MetaPrompt{}, nil)

	require.Len(t, updated.Priors, 3)
	assert.Equal(t, []string{"p2", "p3", "test insight for value"}, updated.Priors)
}
