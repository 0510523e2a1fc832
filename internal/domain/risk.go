package domain

import "time"

// RiskAction is the corrective action proposed by the risk controller
type RiskAction string

const (
	RiskActionNone           RiskAction = "none"
	RiskActionReduceExposure RiskAction = "reduce_exposure"
	RiskActionHedge          RiskAction = "hedge"
	RiskActionRebalance      RiskAction = "rebalance"
)

// PortfolioPosition is the minimal position view the risk controller
// needs: a symbol and its current portfolio weight.
type PortfolioPosition struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
}

// WithinEpisodeRiskControl is the result of a tail-risk check against
// live intra-episode data.
type WithinEpisodeRiskControl struct {
	Triggered bool       `json:"triggered"`
	CVaR      float64    `json:"cvar"`
	Threshold float64    `json:"threshold"`
	Severity  float64    `json:"severity"`
	Action    RiskAction `json:"action"`
	Magnitude float64    `json:"magnitude"`

	// Targets lists the symbols the action applies to
	Targets   []string  `json:"targets,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// TargetBand is a per-factor optimization target with tolerance
type TargetBand struct {
	Target    float64 `json:"target"`
	Tolerance float64 `json:"tolerance"`
}

// OptimizationConstraints is the belief-derived input handed to the
// optimizer collaborator.
type OptimizationConstraints struct {
	FactorTargets    map[Factor]TargetBand `json:"factor_targets"`
	MaxWeight        float64               `json:"max_weight"`
	MinWeight        float64               `json:"min_weight"`
	VolatilityTarget float64               `json:"volatility_target"`
	RiskBudget       float64               `json:"risk_budget"`
}
