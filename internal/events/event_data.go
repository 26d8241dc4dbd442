package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// StrategyEvaluationRequestedData contains data for StrategyEvaluationRequested events
type StrategyEvaluationRequestedData struct {
	EventID       string `json:"event_id"`
	CorrelationID string `json:"correlation_id"`
	StrategyID    string `json:"strategy_id"`
	RequestedAt   string `json:"requested_at"`
}

// EventType returns the event type for StrategyEvaluationRequestedData
func (d *StrategyEvaluationRequestedData) EventType() EventType {
	return StrategyEvaluationRequested
}

// StrategyEvaluatedData contains data for StrategyEvaluated events
type StrategyEvaluatedData struct {
	CorrelationID string            `json:"correlation_id"`
	CausationID   string            `json:"causation_id,omitempty"`
	StrategyID    string            `json:"strategy_id"`
	Success       bool              `json:"success"`
	Error         string            `json:"error,omitempty"`
	TargetWeights map[string]string `json:"target_weights"`
	Decisions     int               `json:"decisions"`
	AsOf          string            `json:"as_of"`
}

// EventType returns the event type for StrategyEvaluatedData
func (d *StrategyEvaluatedData) EventType() EventType {
	return StrategyEvaluated
}

// PortfolioAllocationProducedData contains data for PortfolioAllocationProduced events
type PortfolioAllocationProducedData struct {
	CorrelationID string            `json:"correlation_id"`
	CausationID   string            `json:"causation_id,omitempty"`
	StrategyID    string            `json:"strategy_id"`
	TargetWeights map[string]string `json:"target_weights"`
	Fallback      bool              `json:"fallback"`
	AsOf          string            `json:"as_of"`
}

// EventType returns the event type for PortfolioAllocationProducedData
func (d *PortfolioAllocationProducedData) EventType() EventType {
	return PortfolioAllocationProduced
}

// DecisionEvaluatedData contains data for DecisionEvaluated events, one per
// conditional branch taken during an evaluation
type DecisionEvaluatedData struct {
	CorrelationID   string            `json:"correlation_id"`
	Condition       string            `json:"condition"`
	Result          bool              `json:"result"`
	Branch          string            `json:"branch"`
	IndicatorValues map[string]string `json:"indicator_values,omitempty"`
}

// EventType returns the event type for DecisionEvaluatedData
func (d *DecisionEvaluatedData) EventType() EventType {
	return DecisionEvaluated
}

// BackfillStartedData contains data for BackfillStarted events
type BackfillStartedData struct {
	StrategyID   string `json:"strategy_id"`
	Groups       int    `json:"groups"`
	LookbackDays int    `json:"lookback_days"`
	EndDate      string `json:"end_date"`
}

// EventType returns the event type for BackfillStartedData
func (d *BackfillStartedData) EventType() EventType {
	return BackfillStarted
}

// BackfillCompletedData contains data for BackfillCompleted events
type BackfillCompletedData struct {
	StrategyID string  `json:"strategy_id"`
	Written    int     `json:"written"`
	Failed     int     `json:"failed"`
	Duration   float64 `json:"duration_seconds"`
}

// EventType returns the event type for BackfillCompletedData
func (d *BackfillCompletedData) EventType() EventType {
	return BackfillCompleted
}

// StrategyFilesSyncedData contains data for StrategyFilesSynced events
type StrategyFilesSyncedData struct {
	Bucket     string `json:"bucket"`
	Downloaded int    `json:"downloaded"`
	Skipped    int    `json:"skipped"`
}

// EventType returns the event type for StrategyFilesSyncedData
func (d *StrategyFilesSyncedData) EventType() EventType {
	return StrategyFilesSynced
}

// BarsLoadedData contains data for BarsLoaded events
type BarsLoadedData struct {
	Source string `json:"source"`
	Rows   int    `json:"rows"`
}

// EventType returns the event type for BarsLoadedData
func (d *BarsLoadedData) EventType() EventType {
	return BarsLoaded
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// SystemStatusChangedData contains data for SystemStatusChanged events
type SystemStatusChangedData struct {
	Status    string `json:"status,omitempty"`
	Timestamp string `json:"timestamp"`
}

// EventType returns the event type for SystemStatusChangedData
func (d *SystemStatusChangedData) EventType() EventType {
	return SystemStatusChanged
}

// GetTypedData attempts to convert the event's data map to typed EventData
// Returns the typed data if conversion is successful, nil otherwise
func (e *Event) GetTypedData() EventData {
	if e.Data == nil {
		return nil
	}

	switch e.Type {
	case StrategyEvaluationRequested:
		var data StrategyEvaluationRequestedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case StrategyEvaluated:
		var data StrategyEvaluatedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case PortfolioAllocationProduced:
		var data PortfolioAllocationProducedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case DecisionEvaluated:
		var data DecisionEvaluatedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case BackfillStarted:
		var data BackfillStartedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case BackfillCompleted:
		var data BackfillCompletedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case StrategyFilesSynced:
		var data StrategyFilesSyncedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case BarsLoaded:
		var data BarsLoadedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case ErrorOccurred:
		var data ErrorEventData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case SystemStatusChanged:
		var data SystemStatusChangedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	}

	return nil
}

// convertMapToStruct converts a map[string]interface{} to a struct
func convertMapToStruct(m map[string]interface{}, v interface{}) error {
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, v)
}

// convertEventDataToMap converts typed EventData to map[string]interface{}
func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}

	return result
}

// Timestamp formats a time for event payloads
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
