package events

// EventData is the interface that all event data types must implement.
// This allows for type-safe event data while maintaining flexibility.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// EpisodeStartedData contains data for EpisodeStarted events
type EpisodeStartedData struct {
	EpisodeID string `json:"episode_id"`
	Number    int    `json:"number"`
	Scope     string `json:"scope"`
}

// EventType returns the event type for EpisodeStartedData
func (d *EpisodeStartedData) EventType() EventType {
	return EpisodeStarted
}

// DecisionRecordedData contains data for DecisionRecorded events
type DecisionRecordedData struct {
	EpisodeID  string  `json:"episode_id"`
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
}

// EventType returns the event type for DecisionRecordedData
func (d *DecisionRecordedData) EventType() EventType {
	return DecisionRecorded
}

// EpisodeClosedData contains data for EpisodeClosed events
type EpisodeClosedData struct {
	EpisodeID       string  `json:"episode_id"`
	Number          int     `json:"number"`
	Scope           string  `json:"scope"`
	PortfolioReturn float64 `json:"portfolio_return"`
	Decisions       int     `json:"decisions"`
}

// EventType returns the event type for EpisodeClosedData
func (d *EpisodeClosedData) EventType() EventType {
	return EpisodeClosed
}

// CycleCompletedData contains data for CycleCompleted events
type CycleCompletedData struct {
	Scope         string `json:"scope"`
	CycleNumber   int    `json:"cycle_number"`
	Insights      int    `json:"insights"`
	Updates       int    `json:"updates"`
	BeliefVersion int    `json:"belief_version"`
}

// EventType returns the event type for CycleCompletedData
func (d *CycleCompletedData) EventType() EventType {
	return CycleCompleted
}

// BeliefsUpdatedData contains data for BeliefsUpdated events
type BeliefsUpdatedData struct {
	Scope   string `json:"scope"`
	Version int    `json:"version"`
	Regime  string `json:"regime"`
}

// EventType returns the event type for BeliefsUpdatedData
func (d *BeliefsUpdatedData) EventType() EventType {
	return BeliefsUpdated
}

// RiskTriggeredData contains data for RiskTriggered events
type RiskTriggeredData struct {
	Scope     string  `json:"scope"`
	CVaR      float64 `json:"cvar"`
	Severity  float64 `json:"severity"`
	Action    string  `json:"action"`
	Magnitude float64 `json:"magnitude"`
}

// EventType returns the event type for RiskTriggeredData
func (d *RiskTriggeredData) EventType() EventType {
	return RiskTriggered
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Module  string `json:"module"`
	Message string `json:"message"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
