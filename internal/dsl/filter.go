package dsl

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/indicators"
)

// returnMetrics maps a filter metric symbol to the function applied over a
// group's own daily return series. Metrics outside this map are valid only
// for asset candidates, where they compute from the asset's price history.
var returnMetrics = map[string]func([]float64, int) (float64, bool){
	"moving-average-return": indicators.MeanReturn,
	"stdev-return":          indicators.StdevOfReturns,
	"cumulative-return":     indicators.CumulativeFromReturns,
	"max-drawdown":          indicators.MaxDrawdownFromReturns,
	"volatility":            indicators.AnnualizedVolatility,
}

const defaultMetricWindow = 10

type selectionKind int

const (
	selectTop selectionKind = iota
	selectBottom
)

type selection struct {
	kind selectionKind
	n    int
}

type metricSpec struct {
	name   string
	window int
}

type rankedCandidate struct {
	index  int // original position, for stable tie-break
	node   *Node
	name   string
	metric decimal.Decimal
}

// evalFilter implements
//
//	(filter metric-expr [candidates...])
//	(filter metric-expr (select-top n) [candidates...])
//
// Candidates rank by the metric computed over each group's cached
// historical returns (assets rank by the metric over their own prices).
// Ties keep source order; the selected candidates combine equally.
func (e *Evaluator) evalFilter(node *Node, ctx *Context) (Value, error) {
	args := node.Args()
	if len(args) < 2 || len(args) > 3 {
		return NilValue(), fmt.Errorf("filter requires metric and candidates at %d:%d", node.Line, node.Col)
	}

	metric, err := parseMetricSpec(args[0])
	if err != nil {
		return NilValue(), err
	}

	sel := selection{kind: selectTop, n: 1}
	candidatesNode := args[len(args)-1]
	if len(args) == 3 {
		sel, err = parseSelection(args[1])
		if err != nil {
			return NilValue(), err
		}
	}

	return e.rankAndSelect(node, ctx, metric, sel, candidatesNode)
}

// evalSelectTop implements the standalone (select-top n metric-expr [candidates...]).
// The two-argument form (select-top n [candidates...]) ranks by cumulative
// return over the default window.
func (e *Evaluator) evalSelectTop(node *Node, ctx *Context) (Value, error) {
	return e.evalStandaloneSelect(node, ctx, selectTop)
}

// evalSelectBottom mirrors evalSelectTop with ascending ranking
func (e *Evaluator) evalSelectBottom(node *Node, ctx *Context) (Value, error) {
	return e.evalStandaloneSelect(node, ctx, selectBottom)
}

func (e *Evaluator) evalStandaloneSelect(node *Node, ctx *Context, kind selectionKind) (Value, error) {
	args := node.Args()
	if len(args) < 2 || len(args) > 3 {
		return NilValue(), fmt.Errorf("%s requires a count and candidates at %d:%d", node.Head(), node.Line, node.Col)
	}

	nv, err := e.evalNode(args[0], ctx)
	if err != nil {
		return NilValue(), err
	}
	n := int(ctx.AsDecimal(nv).IntPart())

	metric := metricSpec{name: "cumulative-return", window: 30}
	candidatesNode := args[len(args)-1]
	if len(args) == 3 {
		metric, err = parseMetricSpec(args[1])
		if err != nil {
			return NilValue(), err
		}
	}

	return e.rankAndSelect(node, ctx, metric, selection{kind: kind, n: n}, candidatesNode)
}

func (e *Evaluator) rankAndSelect(node *Node, ctx *Context, metric metricSpec, sel selection, candidatesNode *Node) (Value, error) {
	if sel.n <= 0 {
		return NilValue(), fmt.Errorf("selection count must be positive, got %d", sel.n)
	}

	candidates := candidatesNode.Children
	if candidatesNode.Kind != NodeVector && candidatesNode.Kind != NodeList {
		return NilValue(), fmt.Errorf("filter candidates must be a vector at %d:%d", candidatesNode.Line, candidatesNode.Col)
	}
	if len(candidates) == 0 {
		return NilValue(), fmt.Errorf("filter has no candidates at %d:%d", candidatesNode.Line, candidatesNode.Col)
	}

	ranked := make([]rankedCandidate, 0, len(candidates))
	for i, candidate := range candidates {
		entry, err := e.scoreCandidate(ctx, metric, i, candidate)
		if err != nil {
			return NilValue(), err
		}
		ranked = append(ranked, entry)
		ctx.AddFilterTrace("candidate %q %s=%s", entry.name, metric.name, entry.metric)
	}

	// Stable sort: candidates with equal metrics keep source order.
	// This tie-break is part of the language contract.
	sort.SliceStable(ranked, func(a, b int) bool {
		if sel.kind == selectTop {
			return ranked[a].metric.GreaterThan(ranked[b].metric)
		}
		return ranked[a].metric.LessThan(ranked[b].metric)
	})

	n := sel.n
	if n > len(ranked) {
		n = len(ranked)
	}
	chosen := ranked[:n]

	names := make([]string, 0, n)
	for _, c := range chosen {
		names = append(names, c.name)
	}
	ctx.AddFilterTrace("selected %v", names)

	// Selected candidates combine at equal weight.
	combined := NewFragment()
	share := equalShare(len(chosen))
	for _, c := range chosen {
		v, err := e.evalNode(c.node, ctx)
		if err != nil {
			return NilValue(), fmt.Errorf("filter selected %q: %w", c.name, err)
		}
		fragment, err := asFragment(v)
		if err != nil {
			return NilValue(), fmt.Errorf("filter selected %q: %w", c.name, err)
		}
		combined.Merge(fragment.Normalize().Scale(share))
	}

	return FragmentValue(combined.Normalize()), nil
}

// scoreCandidate computes the ranking metric for one candidate.
// Groups resolve their own historical portfolio returns through the cache;
// assets compute the metric from their own price history.
func (e *Evaluator) scoreCandidate(ctx *Context, metric metricSpec, index int, candidate *Node) (rankedCandidate, error) {
	switch candidate.Head() {
	case "group":
		args := candidate.Args()
		if len(args) == 0 || args[0].Kind != NodeString {
			return rankedCandidate{}, fmt.Errorf("filter group candidate missing name at %d:%d", candidate.Line, candidate.Col)
		}
		name := args[0].Str

		value, err := e.groupMetric(ctx, metric, name)
		if err != nil {
			return rankedCandidate{}, err
		}
		return rankedCandidate{index: index, node: candidate, name: name, metric: value}, nil

	case "asset":
		args := candidate.Args()
		if len(args) == 0 {
			return rankedCandidate{}, fmt.Errorf("filter asset candidate missing symbol at %d:%d", candidate.Line, candidate.Col)
		}
		symbol, err := e.symbolArg(args[0], ctx)
		if err != nil {
			return rankedCandidate{}, err
		}

		value, err := ctx.Indicators.GetIndicator(symbol, indicators.Type(metric.name), indicators.Params{Window: metric.window})
		if err != nil {
			return rankedCandidate{}, err
		}
		return rankedCandidate{index: index, node: candidate, name: symbol, metric: value}, nil

	default:
		return rankedCandidate{}, fmt.Errorf("filter candidate must be a group or asset at %d:%d", candidate.Line, candidate.Col)
	}
}

// groupMetric computes the metric over a group's cached daily return series
func (e *Evaluator) groupMetric(ctx *Context, metric metricSpec, groupName string) (decimal.Decimal, error) {
	fn, ok := returnMetrics[metric.name]
	if !ok {
		return decimal.Zero, fmt.Errorf("metric %q cannot rank group portfolios", metric.name)
	}
	if ctx.GroupReturns == nil {
		return decimal.Zero, fmt.Errorf("no group return source configured for filter over %q", groupName)
	}

	// Fetch double the window in trading weekdays so days the backfill
	// skipped (market holidays, no-data days) still leave enough returns.
	series, err := ctx.GroupReturns.HistoricalReturns(groupName, metric.window*2, ctx.AsOf)
	if err != nil {
		return decimal.Zero, fmt.Errorf("historical returns for group %q: %w", groupName, err)
	}

	returns := make([]float64, 0, len(series))
	for _, dr := range series {
		f, _ := dr.Return.Float64()
		returns = append(returns, f)
	}

	value, ok := fn(returns, metric.window)
	if !ok {
		return decimal.Zero, fmt.Errorf("group %q has %d cached returns, metric %s needs %d",
			groupName, len(returns), metric.name, metric.window)
	}

	return decimal.NewFromFloat(value), nil
}

// parseMetricSpec reads a metric expression like (moving-average-return {:window 10})
func parseMetricSpec(node *Node) (metricSpec, error) {
	if node.Kind != NodeList || node.Head() == "" {
		return metricSpec{}, fmt.Errorf("filter metric must be an indicator expression at %d:%d", node.Line, node.Col)
	}

	spec := metricSpec{name: node.Head(), window: defaultMetricWindow}
	for _, arg := range node.Args() {
		if arg.Kind != NodeVector && arg.Kind != NodeList {
			continue
		}
		for i := 0; i+1 < len(arg.Children); i += 2 {
			key, val := arg.Children[i], arg.Children[i+1]
			if key.Kind == NodeKeyword && key.Str == "window" && val.Kind == NodeNumber {
				spec.window = int(val.Num.IntPart())
			}
		}
	}

	if spec.window <= 0 {
		return metricSpec{}, fmt.Errorf("metric window must be positive at %d:%d", node.Line, node.Col)
	}
	return spec, nil
}

// parseSelection reads (select-top n) / (select-bottom n)
func parseSelection(node *Node) (selection, error) {
	head := node.Head()
	if node.Kind != NodeList || (head != "select-top" && head != "select-bottom") {
		return selection{}, fmt.Errorf("expected (select-top n) or (select-bottom n) at %d:%d", node.Line, node.Col)
	}

	kind := selectTop
	if head == "select-bottom" {
		kind = selectBottom
	}

	args := node.Args()
	n := 1
	if len(args) > 0 {
		if args[0].Kind != NodeNumber {
			return selection{}, fmt.Errorf("selection count must be a number at %d:%d", args[0].Line, args[0].Col)
		}
		n = int(args[0].Num.IntPart())
	}

	return selection{kind: kind, n: n}, nil
}
