package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/dsl"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/events"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/groupcache"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/indicators"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/marketdata"
)

// Engine runs strategy evaluations behind a never-fail boundary: any
// failure inside evaluation degrades to an all-cash allocation instead of
// propagating an error to callers.
type Engine struct {
	resolver   *Resolver
	indicators *indicators.Service
	bars       marketdata.CutoffStore
	returns    *groupcache.CachedReturnSource
	manager    *events.Manager
	debug      bool
	log        zerolog.Logger

	mu        sync.Mutex
	processed map[string]struct{} // event IDs already handled
}

// NewEngine creates an evaluation engine
func NewEngine(
	resolver *Resolver,
	indicatorSvc *indicators.Service,
	bars marketdata.CutoffStore,
	returns *groupcache.CachedReturnSource,
	manager *events.Manager,
	debug bool,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		resolver:   resolver,
		indicators: indicatorSvc,
		bars:       bars,
		returns:    returns,
		manager:    manager,
		debug:      debug,
		log:        log.With().Str("component", "engine").Logger(),
		processed:  make(map[string]struct{}),
	}
}

// Result is the outcome of one evaluation run
type Result struct {
	Allocation *dsl.StrategyAllocation
	Trace      *dsl.Trace
	StrategyID string
	Fallback   bool
}

// EvaluateStrategy resolves, parses, and evaluates a strategy as of the
// given time. It always returns a usable result: on any failure the
// allocation is 100% CASH and the trace carries the error.
func (e *Engine) EvaluateStrategy(strategyID, correlationID string, asOf time.Time) *Result {
	return e.run(strategyID, correlationID, "", asOf)
}

func (e *Engine) run(strategyID, correlationID, causationID string, asOf time.Time) *Result {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := e.log.With().Str("correlation_id", correlationID).Str("strategy_id", strategyID).Logger()

	allocation, trace, err := e.evaluate(strategyID, correlationID, asOf)
	result := &Result{Allocation: allocation, Trace: trace, StrategyID: strategyID}

	if err != nil {
		log.Error().Err(err).Msg("Strategy evaluation failed, falling back to cash")
		if e.manager != nil {
			e.manager.EmitError("engine", err, map[string]interface{}{
				"correlation_id": correlationID,
				"strategy_id":    strategyID,
			})
		}

		result.Allocation = dsl.CashFallbackAllocation(correlationID, asOf)
		result.Fallback = true
		if result.Trace == nil {
			result.Trace = dsl.NewTrace(correlationID, strategyID)
		}
		result.Trace.MarkCompleted(false, err.Error())
	}

	e.publishResult(result, causationID, err)
	return result
}

// HandleEvent processes a StrategyEvaluationRequested event. Duplicate
// event IDs are acknowledged without re-evaluating.
func (e *Engine) HandleEvent(event *events.Event) {
	data, ok := event.GetTypedData().(*events.StrategyEvaluationRequestedData)
	if !ok {
		e.log.Warn().Str("event_type", string(event.Type)).Msg("Ignoring event with unexpected payload")
		return
	}

	if data.EventID != "" && !e.markProcessed(data.EventID) {
		e.log.Info().Str("event_id", data.EventID).Msg("Duplicate evaluation request, skipping")
		return
	}

	e.run(data.StrategyID, data.CorrelationID, data.EventID, time.Now().UTC())
}

// markProcessed records an event ID, reporting false when already seen
func (e *Engine) markProcessed(eventID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, seen := e.processed[eventID]; seen {
		return false
	}
	e.processed[eventID] = struct{}{}
	return true
}

func (e *Engine) evaluate(strategyID, correlationID string, asOf time.Time) (*dsl.StrategyAllocation, *dsl.Trace, error) {
	path, found := e.resolver.Resolve(strategyID)
	if !found {
		return nil, nil, fmt.Errorf("strategy %q not found (tried default %s)", strategyID, path)
	}

	ast, err := dsl.ParseFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Make every filter-targeted group eligible for on-demand backfill
	e.returns.Register(groupcache.DiscoverFilterGroups(ast))

	// Indicators must not see bars after the as-of date, so evaluation
	// reads through a cutoff port pinned to it.
	indicatorSvc := e.indicators
	if e.bars != nil {
		indicatorSvc = e.indicators.WithPort(marketdata.NewCutoffPort(e.bars, asOf))
	}

	evaluator := dsl.NewEvaluator(indicatorSvc, e.returns, e.log)
	evaluator.SetDebug(e.debug)
	if e.manager != nil {
		evaluator.SetPublisher(&decisionPublisher{manager: e.manager})
	}

	return evaluator.Evaluate(ast, correlationID, strategyID, asOf)
}

func (e *Engine) publishResult(result *Result, causationID string, evalErr error) {
	if e.manager == nil {
		return
	}

	weights := weightStrings(result.Allocation.TargetWeights)
	asOf := result.Allocation.AsOf.UTC().Format(time.RFC3339)

	evaluated := &events.StrategyEvaluatedData{
		CorrelationID: result.Allocation.CorrelationID,
		CausationID:   causationID,
		StrategyID:    result.StrategyID,
		Success:       evalErr == nil,
		TargetWeights: weights,
		Decisions:     len(result.Trace.DecisionPath),
		AsOf:          asOf,
	}
	if evalErr != nil {
		evaluated.Error = evalErr.Error()
	}
	e.manager.EmitTyped(events.StrategyEvaluated, "engine", evaluated)

	e.manager.EmitTyped(events.PortfolioAllocationProduced, "engine", &events.PortfolioAllocationProducedData{
		CorrelationID: result.Allocation.CorrelationID,
		CausationID:   causationID,
		StrategyID:    result.StrategyID,
		TargetWeights: weights,
		Fallback:      result.Fallback,
		AsOf:          asOf,
	})
}

func weightStrings(weights map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(weights))
	for symbol, weight := range weights {
		out[symbol] = weight.String()
	}
	return out
}

// decisionPublisher forwards conditional decisions to the event bus as they
// are taken, so stream consumers can follow an evaluation live.
type decisionPublisher struct {
	manager *events.Manager
}

func (p *decisionPublisher) PublishDecision(correlationID string, node dsl.DecisionNode) {
	p.manager.EmitTyped(events.DecisionEvaluated, "engine", &events.DecisionEvaluatedData{
		CorrelationID:   correlationID,
		Condition:       node.Condition,
		Result:          node.Result,
		Branch:          node.Branch,
		IndicatorValues: node.IndicatorValues,
	})
}
