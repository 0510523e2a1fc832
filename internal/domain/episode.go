package domain

import "time"

// EpisodeStatus represents the lifecycle state of an episode
type EpisodeStatus string

const (
	// EpisodeStatusActive - episode is open and accumulating decisions
	EpisodeStatusActive EpisodeStatus = "active"
	// EpisodeStatusClosed - episode has realized metrics and is immutable history
	EpisodeStatusClosed EpisodeStatus = "closed"
)

// TradingAction represents the action taken by a trading decision
type TradingAction string

const (
	ActionBuy       TradingAction = "buy"
	ActionSell      TradingAction = "sell"
	ActionHold      TradingAction = "hold"
	ActionRebalance TradingAction = "rebalance"
)

// IsValid reports whether the action is one of the known actions
func (a TradingAction) IsValid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold, ActionRebalance:
		return true
	}
	return false
}

// TradingDecision is a single decision recorded within an episode.
// Decisions are immutable once recorded and owned by their episode.
type TradingDecision struct {
	ID           string             `json:"id"`
	Timestamp    time.Time          `json:"timestamp"`
	Symbol       string             `json:"symbol"`
	Action       TradingAction      `json:"action"`
	WeightBefore float64            `json:"weight_before"`
	WeightAfter  float64            `json:"weight_after"`
	Reason       string             `json:"reason"`
	Confidence   float64            `json:"confidence"`
	Attribution  map[Factor]float64 `json:"attribution,omitempty"`

	// OutcomeReturn is the realized return of the decision, when known.
	// Nil until an outcome has been observed.
	OutcomeReturn *float64 `json:"outcome_return,omitempty"`
}

// Key returns the (symbol, action) identity used for overlap comparison
// between consecutive episodes.
func (d TradingDecision) Key() string {
	return d.Symbol + "|" + string(d.Action)
}

// EpisodeMetrics holds the realized performance stamped onto an episode
// when it closes.
type EpisodeMetrics struct {
	PortfolioReturn float64            `json:"portfolio_return"`
	SharpeRatio     float64            `json:"sharpe_ratio"`
	MaxDrawdown     float64            `json:"max_drawdown"`
	FactorExposures map[Factor]float64 `json:"factor_exposures"`
}

// Episode is a bounded evaluation period containing an append-only
// sequence of trading decisions and, once closed, realized performance.
type Episode struct {
	ID        string            `json:"id"`
	Number    int               `json:"number"`
	Scope     string            `json:"scope"`
	Status    EpisodeStatus     `json:"status"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
	Decisions []TradingDecision `json:"decisions"`

	// Realized metrics, populated on close
	PortfolioReturn float64            `json:"portfolio_return"`
	SharpeRatio     float64            `json:"sharpe_ratio"`
	MaxDrawdown     float64            `json:"max_drawdown"`
	FactorExposures map[Factor]float64 `json:"factor_exposures,omitempty"`
}

// IsClosed reports whether the episode has been closed
func (e *Episode) IsClosed() bool {
	return e.Status == EpisodeStatusClosed
}

// DecisionKeys returns the set of (symbol, action) keys in the episode
func (e *Episode) DecisionKeys() map[string]bool {
	keys := make(map[string]bool, len(e.Decisions))
	for _, d := range e.Decisions {
		keys[d.Key()] = true
	}
	return keys
}
