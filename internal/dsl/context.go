package dsl

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/indicators"
)

// DatedReturn is one day of a group's portfolio return series
type DatedReturn struct {
	Date   time.Time
	Return decimal.Decimal
}

// GroupReturnSource resolves a group's historical daily return series for
// filter ranking. Implementations read the precomputed cache and may fall
// back to on-demand backfill when coverage is short.
type GroupReturnSource interface {
	HistoricalReturns(groupName string, lookbackDays int, endDate time.Time) ([]DatedReturn, error)
}

// EventPublisher streams intermediate evaluation events (optional)
type EventPublisher interface {
	PublishDecision(correlationID string, node DecisionNode)
}

// Context carries per-run shared state through recursive evaluation, so no
// global mutable state is needed. One Context instance flows through every
// nested operator call within a single run: the trace, debug and filter
// accumulators it owns collect a single ordered narrative regardless of
// recursion depth.
type Context struct {
	Indicators    *indicators.Service
	GroupReturns  GroupReturnSource
	Publisher     EventPublisher // optional
	CorrelationID string
	Trace         *Trace
	AsOf          time.Time
	Debug         bool

	// evaluateNode re-enters the evaluator, letting operators evaluate
	// their own argument nodes lazily.
	evaluateNode func(*Node, *Context) (Value, error)

	debugTraces  *[]string
	filterTraces *[]string

	// indicatorObs is non-nil while an if condition is being evaluated;
	// indicator handlers record their values here so the decision node can
	// carry them.
	indicatorObs map[string]string

	log zerolog.Logger
}

// captureIndicators begins recording indicator values for a condition.
// Returns the previous capture map so nested conditions restore correctly.
func (c *Context) captureIndicators() map[string]string {
	prev := c.indicatorObs
	c.indicatorObs = make(map[string]string)
	return prev
}

// endCapture finishes a capture, restoring the previous one
func (c *Context) endCapture(prev map[string]string) map[string]string {
	captured := c.indicatorObs
	c.indicatorObs = prev
	return captured
}

// observeIndicator records an indicator value when a capture is active
func (c *Context) observeIndicator(ref, value string) {
	if c.indicatorObs != nil {
		c.indicatorObs[ref] = value
	}
}

// NewContext creates the per-run context. The accumulator slices are owned
// here and shared by pointer with every nested call.
func NewContext(
	indicatorSvc *indicators.Service,
	groupReturns GroupReturnSource,
	correlationID string,
	trace *Trace,
	asOf time.Time,
	debug bool,
	log zerolog.Logger,
) *Context {
	debugTraces := make([]string, 0)
	filterTraces := make([]string, 0)
	return &Context{
		Indicators:    indicatorSvc,
		GroupReturns:  groupReturns,
		CorrelationID: correlationID,
		Trace:         trace,
		AsOf:          asOf,
		Debug:         debug,
		debugTraces:   &debugTraces,
		filterTraces:  &filterTraces,
		log:           log.With().Str("component", "dsl").Str("correlation_id", correlationID).Logger(),
	}
}

// Eval evaluates a child node through the evaluator callback
func (c *Context) Eval(node *Node) (Value, error) {
	if c.evaluateNode == nil {
		return NilValue(), fmt.Errorf("context has no evaluator attached")
	}
	return c.evaluateNode(node, c)
}

// AsDecimal coerces any value to a decimal. Total: never errors.
//   - bool -> 1 or 0 (checked before the numeric case)
//   - number -> itself
//   - string -> parsed decimal, else zero with a warning
//   - single-element list -> unwrapped
//   - nil / other composites -> zero
func (c *Context) AsDecimal(v Value) decimal.Decimal {
	switch v.Kind {
	case ValBool:
		if v.Bool {
			return decimal.NewFromInt(1)
		}
		return decimal.Zero
	case ValNumber:
		return v.Num
	case ValString:
		d, err := decimal.NewFromString(v.Str)
		if err != nil {
			c.log.Warn().Str("value", v.Str).Msg("Non-numeric string coerced to zero")
			return decimal.Zero
		}
		return d
	case ValList:
		if len(v.List) == 1 {
			return c.AsDecimal(v.List[0])
		}
		return decimal.Zero
	default:
		return decimal.Zero
	}
}

// CoerceParamValue normalizes a parameter value to a primitive. Total:
// booleans become ints, nil becomes zero, a single-element list is
// unwrapped recursively, other composites are stringified.
func (c *Context) CoerceParamValue(v Value) Value {
	switch v.Kind {
	case ValBool:
		if v.Bool {
			return NumberValue(decimal.NewFromInt(1))
		}
		return NumberValue(decimal.Zero)
	case ValNil:
		return NumberValue(decimal.Zero)
	case ValList:
		if len(v.List) == 1 {
			return c.CoerceParamValue(v.List[0])
		}
		return StringValue(fmt.Sprintf("%v", v.List))
	case ValFragment:
		return StringValue(fmt.Sprintf("%v", v.Fragment.Weights))
	default:
		return v
	}
}

// AddDecision records a conditional outcome on the shared trace and streams
// it when a publisher is attached.
func (c *Context) AddDecision(node DecisionNode) {
	c.Trace.AddDecision(node)
	if c.Publisher != nil {
		c.Publisher.PublishDecision(c.CorrelationID, node)
	}
}

// AddDebugTrace is a no-op unless debug mode is on. When active it also
// emits a structured log line for live debugging.
func (c *Context) AddDebugTrace(format string, args ...interface{}) {
	if !c.Debug {
		return
	}
	msg := fmt.Sprintf(format, args...)
	*c.debugTraces = append(*c.debugTraces, msg)
	c.log.Debug().Msg(msg)
}

// AddFilterTrace records filter ranking detail; no-op unless debug mode is on
func (c *Context) AddFilterTrace(format string, args ...interface{}) {
	if !c.Debug {
		return
	}
	msg := fmt.Sprintf(format, args...)
	*c.filterTraces = append(*c.filterTraces, msg)
	c.log.Debug().Str("trace", "filter").Msg(msg)
}

// DebugTraces returns the accumulated debug trace lines
func (c *Context) DebugTraces() []string {
	return *c.debugTraces
}

// FilterTraces returns the accumulated filter trace lines
func (c *Context) FilterTraces() []string {
	return *c.filterTraces
}
