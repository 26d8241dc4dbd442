// Package events provides event management functionality.
package events

import (
	"time"
)

// EventType represents different event types
type EventType string

const (
	// Evaluation lifecycle
	StrategyEvaluationRequested EventType = "STRATEGY_EVALUATION_REQUESTED"
	StrategyEvaluated           EventType = "STRATEGY_EVALUATED"
	PortfolioAllocationProduced EventType = "PORTFOLIO_ALLOCATION_PRODUCED"
	DecisionEvaluated           EventType = "DECISION_EVALUATED"

	// Data maintenance
	BackfillStarted     EventType = "BACKFILL_STARTED"
	BackfillCompleted   EventType = "BACKFILL_COMPLETED"
	StrategyFilesSynced EventType = "STRATEGY_FILES_SYNCED"
	BarsLoaded          EventType = "BARS_LOADED"

	// System
	ErrorOccurred       EventType = "ERROR_OCCURRED"
	SystemStatusChanged EventType = "SYSTEM_STATUS_CHANGED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// AllTypes lists every event type the stream endpoint can subscribe to
func AllTypes() []EventType {
	return []EventType{
		StrategyEvaluationRequested,
		StrategyEvaluated,
		PortfolioAllocationProduced,
		DecisionEvaluated,
		BackfillStarted,
		BackfillCompleted,
		StrategyFilesSynced,
		BarsLoaded,
		ErrorOccurred,
		SystemStatusChanged,
	}
}
