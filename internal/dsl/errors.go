package dsl

import (
	"errors"
	"fmt"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/indicators"
)

// EvaluationError wraps any failure during AST evaluation with the fragment
// of source being evaluated and the correlation id, so the engine can build
// a diagnostic error event.
type EvaluationError struct {
	Fragment      string
	CorrelationID string
	Err           error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation failed at %s (correlation_id=%s): %v", e.Fragment, e.CorrelationID, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// evalErr wraps err with node context unless it already carries it
func evalErr(node *Node, correlationID string, err error) error {
	var existing *EvaluationError
	if errors.As(err, &existing) {
		return err
	}

	fragment := node.String()
	if len(fragment) > 120 {
		fragment = fragment[:120] + "..."
	}
	return &EvaluationError{Fragment: fragment, CorrelationID: correlationID, Err: err}
}

// IsIndicatorError reports whether err originates at the indicator boundary
func IsIndicatorError(err error) bool {
	var compErr *indicators.ComputationError
	return errors.As(err, &compErr)
}

// IsParseError reports whether err is a strategy source parse failure
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}
