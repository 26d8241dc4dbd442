package dsl

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/indicators"
)

// handlerFunc is the uniform operator signature: the full call node (for
// condition text) plus the run context. Operators receive unevaluated
// argument nodes and control their own evaluation order.
type handlerFunc func(e *Evaluator, node *Node, ctx *Context) (Value, error)

// Evaluator is the tree-walking interpreter. It is stateless across runs;
// all per-run state lives in the Context, so one Evaluator can serve many
// sequential evaluations (each with a fresh Context).
type Evaluator struct {
	indicators   *indicators.Service
	groupReturns GroupReturnSource
	publisher    EventPublisher
	debug        bool
	log          zerolog.Logger

	handlers map[string]handlerFunc
}

// NewEvaluator creates an evaluator with the closed operator dispatch table
func NewEvaluator(indicatorSvc *indicators.Service, groupReturns GroupReturnSource, log zerolog.Logger) *Evaluator {
	e := &Evaluator{
		indicators:   indicatorSvc,
		groupReturns: groupReturns,
		log:          log.With().Str("component", "evaluator").Logger(),
	}

	e.handlers = map[string]handlerFunc{
		"asset":            (*Evaluator).evalAsset,
		"group":            (*Evaluator).evalGroup,
		"weight-equal":     (*Evaluator).evalWeightEqual,
		"weight-specified": (*Evaluator).evalWeightSpecified,
		"if":               (*Evaluator).evalIf,

		">":   (*Evaluator).evalComparison,
		">=":  (*Evaluator).evalComparison,
		"<":   (*Evaluator).evalComparison,
		"<=":  (*Evaluator).evalComparison,
		"=":   (*Evaluator).evalComparison,
		"and": (*Evaluator).evalAnd,
		"or":  (*Evaluator).evalOr,
		"not": (*Evaluator).evalNot,

		"rsi":                              (*Evaluator).evalIndicator,
		"current-price":                    (*Evaluator).evalIndicator,
		"moving-average-price":             (*Evaluator).evalIndicator,
		"moving-average-return":            (*Evaluator).evalIndicator,
		"cumulative-return":                (*Evaluator).evalIndicator,
		"exponential-moving-average-price": (*Evaluator).evalIndicator,
		"stdev-return":                     (*Evaluator).evalIndicator,
		"max-drawdown":                     (*Evaluator).evalIndicator,
		"volatility":                       (*Evaluator).evalIndicator,

		"filter":        (*Evaluator).evalFilter,
		"select-top":    (*Evaluator).evalSelectTop,
		"select-bottom": (*Evaluator).evalSelectBottom,
	}

	return e
}

// SetPublisher attaches an optional event publisher for streaming
// intermediate decision events.
func (e *Evaluator) SetPublisher(p EventPublisher) {
	e.publisher = p
}

// SetDebug toggles debug/filter trace accumulation for new runs
func (e *Evaluator) SetDebug(debug bool) {
	e.debug = debug
}

// Evaluate runs the full strategy tree and returns the normalized
// allocation plus the trace. On error the trace is returned unfinished; the
// engine owns failure completion and the fail-open-to-cash policy.
func (e *Evaluator) Evaluate(ast *Node, correlationID, strategyID string, asOf time.Time) (*StrategyAllocation, *Trace, error) {
	trace := NewTrace(correlationID, strategyID)
	ctx := e.newContext(correlationID, trace, asOf)

	value, err := e.evalNode(ast, ctx)
	if err != nil {
		return nil, trace, evalErr(ast, correlationID, err)
	}

	fragment, err := asFragment(value)
	if err != nil {
		return nil, trace, evalErr(ast, correlationID, err)
	}
	if fragment.TotalWeight().IsZero() {
		return nil, trace, evalErr(ast, correlationID, fmt.Errorf("evaluation produced no allocation"))
	}

	normalized := fragment.Normalize()
	allocation := &StrategyAllocation{
		TargetWeights: normalized.Weights,
		CorrelationID: correlationID,
		AsOf:          asOf,
	}

	trace.MarkCompleted(true, "")
	return allocation, trace, nil
}

// EvaluateFragment evaluates a sub-tree (typically a group body) to a
// normalized fragment. Used by backfill to compute a group's selections for
// one historical day without the full allocation wrapper.
func (e *Evaluator) EvaluateFragment(node *Node, correlationID string, asOf time.Time) (*PortfolioFragment, error) {
	trace := NewTrace(correlationID, "fragment")
	ctx := e.newContext(correlationID, trace, asOf)

	value, err := e.evalNode(node, ctx)
	if err != nil {
		return nil, evalErr(node, correlationID, err)
	}
	fragment, err := asFragment(value)
	if err != nil {
		return nil, evalErr(node, correlationID, err)
	}
	return fragment.Normalize(), nil
}

func (e *Evaluator) newContext(correlationID string, trace *Trace, asOf time.Time) *Context {
	ctx := NewContext(e.indicators, e.groupReturns, correlationID, trace, asOf, e.debug, e.log)
	ctx.Publisher = e.publisher
	ctx.evaluateNode = e.evalNode
	return ctx
}

// evalNode is the dispatch core: a pre-order walk over the tree. Lists
// whose head is a known operator dispatch to its handler with unevaluated
// arguments; other lists and vectors evaluate children into a value list;
// atoms self-evaluate; bare unknown symbols are an error.
func (e *Evaluator) evalNode(node *Node, ctx *Context) (Value, error) {
	switch node.Kind {
	case NodeNumber:
		return NumberValue(node.Num), nil
	case NodeString:
		return StringValue(node.Str), nil
	case NodeBool:
		return BoolValue(node.Bool), nil
	case NodeNil:
		return NilValue(), nil
	case NodeKeyword:
		return StringValue(node.Str), nil
	case NodeSymbol:
		return NilValue(), fmt.Errorf("unknown symbol %q at %d:%d", node.Str, node.Line, node.Col)

	case NodeList:
		if handler, ok := e.handlers[node.Head()]; ok {
			return handler(e, node, ctx)
		}
		return e.evalChildren(node, ctx)

	case NodeVector:
		return e.evalChildren(node, ctx)

	default:
		return NilValue(), fmt.Errorf("unhandled node kind %d", node.Kind)
	}
}

// evalChildren evaluates each child, collecting results into a list value
func (e *Evaluator) evalChildren(node *Node, ctx *Context) (Value, error) {
	items := make([]Value, 0, len(node.Children))
	for _, child := range node.Children {
		v, err := e.evalNode(child, ctx)
		if err != nil {
			return NilValue(), err
		}
		items = append(items, v)
	}
	return ListValue(items), nil
}

// asFragment converts an evaluation result into a portfolio fragment.
// A list of fragments (e.g. a bare vector of assets) combines equally.
func asFragment(v Value) (*PortfolioFragment, error) {
	switch v.Kind {
	case ValFragment:
		return v.Fragment, nil
	case ValList:
		return combineEqually(v.List)
	default:
		return nil, fmt.Errorf("expression did not produce a portfolio (got value kind %d)", v.Kind)
	}
}

// combineEqually normalizes each child fragment and merges them at equal
// weight, the same composition weight-equal uses.
func combineEqually(items []Value) (*PortfolioFragment, error) {
	fragments := make([]*PortfolioFragment, 0, len(items))
	for _, item := range items {
		f, err := asFragment(item)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, f)
	}
	if len(fragments) == 0 {
		return nil, fmt.Errorf("empty portfolio expression")
	}

	combined := NewFragment()
	share := equalShare(len(fragments))
	for _, f := range fragments {
		combined.Merge(f.Normalize().Scale(share))
	}
	return combined, nil
}
