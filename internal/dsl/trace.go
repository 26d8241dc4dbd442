package dsl

import (
	"time"

	"github.com/google/uuid"
)

// DecisionNode records one conditional evaluation for explainability.
// The enrichment fields are optional color for natural-language explanation
// generation and are never required for correctness.
type DecisionNode struct {
	Condition       string            `json:"condition"`
	Result          bool              `json:"result"`
	Branch          string            `json:"branch"` // "then" or "else"
	IndicatorValues map[string]string `json:"indicator_values,omitempty"`

	// Optional enrichment
	ConditionType   string `json:"condition_type,omitempty"`
	SymbolsInvolved string `json:"symbols_involved,omitempty"`
	OperatorType    string `json:"operator_type,omitempty"`
	Threshold       string `json:"threshold,omitempty"`
	IndicatorName   string `json:"indicator_name,omitempty"`
}

// Trace is the per-run record of one strategy evaluation. It is created at
// the start of a run and marked completed exactly once.
type Trace struct {
	TraceID       string         `json:"trace_id"`
	CorrelationID string         `json:"correlation_id"`
	StrategyID    string         `json:"strategy_id"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   time.Time      `json:"completed_at,omitempty"`
	Success       bool           `json:"success"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	DecisionPath  []DecisionNode `json:"decision_path"`

	completed bool
}

// NewTrace starts a trace for one evaluation run
func NewTrace(correlationID, strategyID string) *Trace {
	return &Trace{
		TraceID:       uuid.NewString(),
		CorrelationID: correlationID,
		StrategyID:    strategyID,
		StartedAt:     time.Now().UTC(),
	}
}

// AddDecision appends a decision node. The path is append-only and ordered
// by evaluation order; it is never reordered or deduplicated.
func (t *Trace) AddDecision(node DecisionNode) {
	t.DecisionPath = append(t.DecisionPath, node)
}

// MarkCompleted transitions the trace to its terminal state. Later calls
// are ignored so the completion record is written exactly once.
func (t *Trace) MarkCompleted(success bool, errorMessage string) {
	if t.completed {
		return
	}
	t.completed = true
	t.CompletedAt = time.Now().UTC()
	t.Success = success
	t.ErrorMessage = errorMessage
}

// Completed reports whether MarkCompleted has been called
func (t *Trace) Completed() bool {
	return t.completed
}
