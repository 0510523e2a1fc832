package domain

import "time"

// EpisodeComparison is the derived, ephemeral result of comparing two
// closed episodes. It feeds the concept extractor and belief updater
// within a single learning cycle and is not persisted on its own.
type EpisodeComparison struct {
	CurrentEpisodeID  string  `json:"current_episode_id"`
	PreviousEpisodeID string  `json:"previous_episode_id"`
	PerformanceDelta  float64 `json:"performance_delta"`

	// DecisionOverlap is the tau ratio of shared (symbol, action) keys
	// between the two episodes. 0 means fully divergent decisions,
	// 1 means identical decisions.
	DecisionOverlap float64 `json:"decision_overlap"`

	SharedSymbols []string `json:"shared_symbols"`

	// Better and Worse point at the compared episodes by realized
	// return. Ties favor the current episode.
	Better *Episode `json:"-"`
	Worse  *Episode `json:"-"`

	BetterEpisodeID string `json:"better_episode_id"`
	WorseEpisodeID  string `json:"worse_episode_id"`

	ProfitableDecisions []TradingDecision `json:"profitable_decisions"`
	LosingDecisions     []TradingDecision `json:"losing_decisions"`
}

// InsightType classifies what a conceptual insight is about
type InsightType string

const (
	InsightFactor     InsightType = "factor"
	InsightSentiment  InsightType = "sentiment"
	InsightTiming     InsightType = "timing"
	InsightRisk       InsightType = "risk"
	InsightAllocation InsightType = "allocation"
	InsightRegime     InsightType = "regime"
)

// ImpactDirection indicates which way an insight pushes its belief field
type ImpactDirection string

const (
	ImpactPositive ImpactDirection = "positive"
	ImpactNegative ImpactDirection = "negative"
	ImpactNeutral  ImpactDirection = "neutral"
)

// Sign returns the numeric sign of the impact direction
func (d ImpactDirection) Sign() float64 {
	switch d {
	case ImpactPositive:
		return 1
	case ImpactNegative:
		return -1
	}
	return 0
}

// ConceptualInsight is a single structured learning extracted from an
// episode comparison, optionally enriched by external model predictions.
type ConceptualInsight struct {
	ID              string          `json:"id"`
	Type            InsightType     `json:"type"`
	Concept         string          `json:"concept"`
	Evidence        []string        `json:"evidence"`
	Confidence      float64         `json:"confidence"`
	SourceEpisodeID string          `json:"source_episode_id"`
	Impact          ImpactDirection `json:"impact"`

	// Factor names the factor an insight targets, for factor-typed insights
	Factor Factor `json:"factor,omitempty"`
}

// MetaPrompt summarizes the direction of adaptation for one cycle.
// It drives the belief update and doubles as the cycle's audit summary.
type MetaPrompt struct {
	OptimizationDirection string             `json:"optimization_direction"`
	KeyLearnings          []string           `json:"key_learnings"`
	FactorAdjustments     map[Factor]string  `json:"factor_adjustments"`
	RiskGuidance          string             `json:"risk_guidance"`
	TimingInsight         string             `json:"timing_insight"`
	ExploreExploit        string             `json:"explore_exploit,omitempty"`
	FactorImportance      []FactorImportance `json:"factor_importance,omitempty"`
}

// FactorImportance ranks a factor by attribution importance
type FactorImportance struct {
	Factor     Factor  `json:"factor"`
	Importance float64 `json:"importance"`
}

// BeliefUpdate is one audit record for a single mutated belief field
type BeliefUpdate struct {
	Field        string    `json:"field"`
	OldValue     float64   `json:"old_value"`
	NewValue     float64   `json:"new_value"`
	LearningRate float64   `json:"learning_rate"`
	Explanation  string    `json:"explanation"`
	Timestamp    time.Time `json:"timestamp"`
}

// CycleResult is the full output of one learning cycle, retained as
// history alongside the new belief state it produced.
type CycleResult struct {
	CycleNumber int                 `json:"cycle_number"`
	Scope       string              `json:"scope"`
	Comparison  *EpisodeComparison  `json:"comparison"`
	Insights    []ConceptualInsight `json:"insights"`
	MetaPrompt  *MetaPrompt         `json:"meta_prompt"`
	Updates     []BeliefUpdate      `json:"updates"`
	NewBeliefs  *BeliefState        `json:"new_beliefs"`
	Explanation string              `json:"explanation"`
	CompletedAt time.Time           `json:"completed_at"`
}
