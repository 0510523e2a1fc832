package learning

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/frontieralpha/conviction/internal/config"
	"github.com/frontieralpha/conviction/internal/domain"
	"github.com/frontieralpha/conviction/pkg/formulas"
)

// exposureDeltaThreshold is the minimum factor-exposure difference
// between the better and worse episode worth an insight.
const exposureDeltaThreshold = 0.02

// Extractor turns an episode comparison, optionally enriched with
// external model predictions, into a ranked list of conceptual insights
// and a meta-prompt summarizing the direction of adaptation.
type Extractor struct {
	cfg config.EngineConfig
	log zerolog.Logger
}

// NewExtractor creates a new concept extractor
func NewExtractor(cfg config.EngineConfig, log zerolog.Logger) *Extractor {
	return &Extractor{
		cfg: cfg,
		log: log.With().Str("component", "concept_extractor").Logger(),
	}
}

// ExtractInsights produces up to MaxInsightsPerEpisode insights from the
// comparison, discarding any below MinInsightConfidence. Insights are
// ranked by confidence, descending.
func (e *Extractor) ExtractInsights(comparison *domain.EpisodeComparison, predictions *domain.ModelPredictions) []domain.ConceptualInsight {
	var insights []domain.ConceptualInsight

	insights = append(insights, e.factorExposureInsights(comparison)...)
	insights = append(insights, e.sharedSymbolInsights(comparison)...)
	insights = append(insights, e.performanceInsights(comparison)...)

	if predictions.HasRegime() {
		insights = append(insights, e.regimeInsight(comparison, predictions.Regime))
	}

	// Discard low-confidence insights
	filtered := insights[:0]
	for _, ins := range insights {
		if ins.Confidence >= e.cfg.MinInsightConfidence {
			filtered = append(filtered, ins)
		}
	}

	// Rank by confidence, highest first; stable so extraction order
	// breaks ties deterministically
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Confidence > filtered[j].Confidence
	})

	if len(filtered) > e.cfg.MaxInsightsPerEpisode {
		filtered = filtered[:e.cfg.MaxInsightsPerEpisode]
	}

	e.log.Debug().
		Int("insights", len(filtered)).
		Bool("with_predictions", predictions != nil).
		Msg("Insights extracted")

	return filtered
}

// factorExposureInsights compares realized factor exposures between the
// better and worse episode. A factor the better episode leaned into
// harder is evidence for increasing its weight, and vice versa.
func (e *Extractor) factorExposureInsights(comparison *domain.EpisodeComparison) []domain.ConceptualInsight {
	better, worse := comparison.Better, comparison.Worse

	union := make(map[domain.Factor]bool)
	for f := range better.FactorExposures {
		union[f] = true
	}
	for f := range worse.FactorExposures {
		union[f] = true
	}

	var insights []domain.ConceptualInsight
	for _, f := range domain.SortedFactorKeys(union) {
		delta := better.FactorExposures[f] - worse.FactorExposures[f]
		if math.Abs(delta) < exposureDeltaThreshold {
			continue
		}

		impact := domain.ImpactPositive
		verb := "higher"
		if delta < 0 {
			impact = domain.ImpactNegative
			verb = "lower"
		}

		insights = append(insights, domain.ConceptualInsight{
			ID:     uuid.New().String(),
			Type:   domain.InsightFactor,
			Factor: f,
			Concept: fmt.Sprintf("The better-performing episode carried %s %s exposure (%+.3f vs %+.3f)",
				verb, f, better.FactorExposures[f], worse.FactorExposures[f]),
			Evidence: []string{
				fmt.Sprintf("better episode %s exposure %.3f", f, better.FactorExposures[f]),
				fmt.Sprintf("worse episode %s exposure %.3f", f, worse.FactorExposures[f]),
			},
			Confidence:      formulas.Clamp01(0.4 + math.Abs(delta)*2),
			SourceEpisodeID: comparison.CurrentEpisodeID,
			Impact:          impact,
		})
	}

	return insights
}

// sharedSymbolInsights reads timing signal out of symbols traded in both
// episodes: the same names with different results point at execution
// timing rather than selection.
func (e *Extractor) sharedSymbolInsights(comparison *domain.EpisodeComparison) []domain.ConceptualInsight {
	if len(comparison.SharedSymbols) == 0 {
		return nil
	}

	impact := domain.ImpactPositive
	if comparison.PerformanceDelta < 0 {
		impact = domain.ImpactNegative
	}

	return []domain.ConceptualInsight{{
		ID:   uuid.New().String(),
		Type: domain.InsightTiming,
		Concept: fmt.Sprintf("%d symbols traded in both episodes with a %+.2f%% performance gap; timing dominated selection",
			len(comparison.SharedSymbols), comparison.PerformanceDelta*100),
		Evidence: []string{
			"shared symbols: " + strings.Join(comparison.SharedSymbols, ", "),
			fmt.Sprintf("performance delta %+.4f", comparison.PerformanceDelta),
		},
		Confidence:      formulas.Clamp01(0.3 + math.Abs(comparison.PerformanceDelta)*3),
		SourceEpisodeID: comparison.CurrentEpisodeID,
		Impact:          impact,
	}}
}

// performanceInsights reacts to the raw sign of the performance delta
func (e *Extractor) performanceInsights(comparison *domain.EpisodeComparison) []domain.ConceptualInsight {
	delta := comparison.PerformanceDelta
	confidence := formulas.Clamp01(0.35 + math.Abs(delta)*4)

	if delta >= 0 {
		return []domain.ConceptualInsight{{
			ID:   uuid.New().String(),
			Type: domain.InsightAllocation,
			Concept: fmt.Sprintf("Performance improved by %+.2f%% over the previous episode; current allocation tilts are working",
				delta*100),
			Evidence:        []string{fmt.Sprintf("performance delta %+.4f", delta)},
			Confidence:      confidence,
			SourceEpisodeID: comparison.CurrentEpisodeID,
			Impact:          domain.ImpactPositive,
		}}
	}

	return []domain.ConceptualInsight{{
		ID:   uuid.New().String(),
		Type: domain.InsightRisk,
		Concept: fmt.Sprintf("Performance deteriorated by %.2f%%; risk taken in the current episode was not rewarded",
			math.Abs(delta)*100),
		Evidence: []string{
			fmt.Sprintf("performance delta %+.4f", delta),
			fmt.Sprintf("%d losing decisions identified", len(comparison.LosingDecisions)),
		},
		Confidence:      confidence,
		SourceEpisodeID: comparison.CurrentEpisodeID,
		Impact:          domain.ImpactNegative,
	}}
}

// regimeInsight converts an external regime prediction into an insight.
// A regime transition is high-salience and carries the prediction's own
// confidence; a confirmation is discounted below the raw confidence
// because it adds no new information.
func (e *Extractor) regimeInsight(comparison *domain.EpisodeComparison, prediction *domain.RegimePrediction) domain.ConceptualInsight {
	if prediction.RegimeChanged {
		return domain.ConceptualInsight{
			ID:   uuid.New().String(),
			Type: domain.InsightRegime,
			Concept: fmt.Sprintf("ML detected transition: %s → %s",
				prediction.PreviousRegime, prediction.Regime),
			Evidence: []string{
				fmt.Sprintf("regime transition %s → %s at confidence %.2f",
					prediction.PreviousRegime, prediction.Regime, prediction.Confidence),
			},
			Confidence:      formulas.Clamp01(prediction.Confidence),
			SourceEpisodeID: comparison.CurrentEpisodeID,
			Impact:          domain.ImpactNeutral,
		}
	}

	return domain.ConceptualInsight{
		ID:      uuid.New().String(),
		Type:    domain.InsightRegime,
		Concept: fmt.Sprintf("ML confirms regime: %s", prediction.Regime),
		Evidence: []string{
			fmt.Sprintf("regime %s confirmed at confidence %.2f", prediction.Regime, prediction.Confidence),
		},
		Confidence:      formulas.Clamp01(prediction.Confidence * 0.7),
		SourceEpisodeID: comparison.CurrentEpisodeID,
		Impact:          domain.ImpactNeutral,
	}
}

// GenerateMetaPrompt synthesizes the cycle's direction of adaptation:
// an optimization-direction sentence, key learnings, per-factor
// adjustment suggestions, risk guidance, and timing insight. With
// factor-attribution predictions it additionally produces
// explore/exploit guidance and a factor-importance ranking.
func (e *Extractor) GenerateMetaPrompt(comparison *domain.EpisodeComparison, insights []domain.ConceptualInsight, predictions *domain.ModelPredictions) *domain.MetaPrompt {
	prompt := &domain.MetaPrompt{
		OptimizationDirection: e.optimizationDirection(comparison, predictions),
		KeyLearnings:          keyLearnings(insights),
		FactorAdjustments:     factorAdjustments(insights),
		RiskGuidance:          riskGuidance(comparison),
		TimingInsight:         timingInsight(comparison),
	}

	if predictions.HasAttribution() {
		ranking := rankFactorImportance(predictions.Attribution)
		prompt.FactorImportance = ranking
		prompt.ExploreExploit = exploreExploitGuidance(ranking)
	}

	return prompt
}

func (e *Extractor) optimizationDirection(comparison *domain.EpisodeComparison, predictions *domain.ModelPredictions) string {
	var direction string
	if comparison.PerformanceDelta >= 0 {
		direction = fmt.Sprintf("Reinforce the current strategy: performance improved %+.2f%% episode over episode",
			comparison.PerformanceDelta*100)
	} else {
		direction = fmt.Sprintf("Correct course: performance dropped %.2f%% episode over episode",
			math.Abs(comparison.PerformanceDelta)*100)
	}

	if predictions.HasRegime() {
		direction = fmt.Sprintf("[Regime: %s] %s", predictions.Regime.Regime, direction)
	}

	return direction
}

func keyLearnings(insights []domain.ConceptualInsight) []string {
	learnings := make([]string, 0, len(insights))
	for _, ins := range insights {
		learnings = append(learnings, fmt.Sprintf("- %s (confidence %.2f)", ins.Concept, ins.Confidence))
	}
	return learnings
}

func factorAdjustments(insights []domain.ConceptualInsight) map[domain.Factor]string {
	adjustments := make(map[domain.Factor]string)
	for _, ins := range insights {
		if ins.Type != domain.InsightFactor || ins.Factor == "" {
			continue
		}
		switch ins.Impact {
		case domain.ImpactPositive:
			adjustments[ins.Factor] = fmt.Sprintf("increase weight (supported at confidence %.2f)", ins.Confidence)
		case domain.ImpactNegative:
			adjustments[ins.Factor] = fmt.Sprintf("decrease weight (contradicted at confidence %.2f)", ins.Confidence)
		default:
			adjustments[ins.Factor] = "hold weight"
		}
	}
	return adjustments
}

func riskGuidance(comparison *domain.EpisodeComparison) string {
	worse := comparison.Worse
	if worse.MaxDrawdown > comparison.Better.MaxDrawdown {
		return fmt.Sprintf("The worse episode drew down %.2f%% vs %.2f%%; keep drawdown control tight",
			worse.MaxDrawdown*100, comparison.Better.MaxDrawdown*100)
	}
	return fmt.Sprintf("Drawdowns were comparable (%.2f%% vs %.2f%%); risk posture can stay unchanged",
		comparison.Better.MaxDrawdown*100, worse.MaxDrawdown*100)
}

func timingInsight(comparison *domain.EpisodeComparison) string {
	tau := comparison.DecisionOverlap
	switch {
	case tau == 0:
		return "Decisions fully diverged from the previous episode; learn aggressively from the outcome gap"
	case tau < 0.5:
		return fmt.Sprintf("Decision overlap %.2f: the strategy shifted substantially between episodes", tau)
	default:
		return fmt.Sprintf("Decision overlap %.2f: episodes were similar, so differences in outcome carry timing signal", tau)
	}
}

// rankFactorImportance orders factors by absolute Shapley importance,
// descending, with a stable name tiebreak.
func rankFactorImportance(attribution *domain.AttributionResult) []domain.FactorImportance {
	ranking := make([]domain.FactorImportance, 0, len(attribution.Factors))
	for _, f := range domain.SortedFactorKeys(attribution.Factors) {
		ranking = append(ranking, domain.FactorImportance{
			Factor:     f,
			Importance: attribution.Factors[f].ShapleyValue,
		})
	}

	sort.SliceStable(ranking, func(i, j int) bool {
		return math.Abs(ranking[i].Importance) > math.Abs(ranking[j].Importance)
	})

	return ranking
}

// exploreExploitGuidance names the factors proven to matter (exploit)
// and the ones with weak or negative importance (explore).
func exploreExploitGuidance(ranking []domain.FactorImportance) string {
	var exploit, explore []string
	for _, fi := range ranking {
		if fi.Importance > 0 && len(exploit) < 2 {
			exploit = append(exploit, string(fi.Factor))
		}
	}
	for i := len(ranking) - 1; i >= 0; i-- {
		if ranking[i].Importance <= 0 || math.Abs(ranking[i].Importance) < 0.01 {
			if len(explore) < 2 {
				explore = append(explore, string(ranking[i].Factor))
			}
		}
	}

	switch {
	case len(exploit) > 0 && len(explore) > 0:
		return fmt.Sprintf("Exploit %s; explore %s with small positions",
			strings.Join(exploit, ", "), strings.Join(explore, ", "))
	case len(exploit) > 0:
		return fmt.Sprintf("Exploit %s; all factors show meaningful importance", strings.Join(exploit, ", "))
	default:
		return "No factor shows positive importance; explore broadly with reduced sizing"
	}
}
