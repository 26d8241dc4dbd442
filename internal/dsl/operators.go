package dsl

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// equalShare returns 1/n as a decimal
func equalShare(n int) decimal.Decimal {
	return decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(n)))
}

// evalAsset implements (asset "SYM") and the long form (asset "SYM" "Display Name").
func (e *Evaluator) evalAsset(node *Node, ctx *Context) (Value, error) {
	args := node.Args()
	if len(args) == 0 {
		return NilValue(), fmt.Errorf("asset requires a ticker symbol at %d:%d", node.Line, node.Col)
	}

	symbol, err := e.symbolArg(args[0], ctx)
	if err != nil {
		return NilValue(), fmt.Errorf("asset ticker: %w", err)
	}

	ctx.AddDebugTrace("asset %s", symbol)
	return FragmentValue(SingleAssetFragment(symbol)), nil
}

// evalGroup implements (group "Name" body...). The body fragments combine
// equally and the display name is recorded on the result for cache key
// derivation. Pure structural groups need no cache lookups themselves.
func (e *Evaluator) evalGroup(node *Node, ctx *Context) (Value, error) {
	args := node.Args()
	if len(args) < 2 {
		return NilValue(), fmt.Errorf("group requires a name and a body at %d:%d", node.Line, node.Col)
	}
	if args[0].Kind != NodeString {
		return NilValue(), fmt.Errorf("group name must be a string literal at %d:%d", args[0].Line, args[0].Col)
	}
	name := args[0].Str

	ctx.AddDebugTrace("group %q enter", name)

	items := make([]Value, 0, len(args)-1)
	for _, body := range args[1:] {
		v, err := e.evalNode(body, ctx)
		if err != nil {
			return NilValue(), err
		}
		items = append(items, v)
	}

	fragment, err := combineEqually(items)
	if err != nil {
		return NilValue(), fmt.Errorf("group %q: %w", name, err)
	}
	fragment.GroupName = name

	ctx.AddDebugTrace("group %q -> %d symbols", name, len(fragment.Weights))
	return FragmentValue(fragment), nil
}

// evalWeightEqual implements (weight-equal [expr...]). Each child fragment
// is normalized then merged at equal share; overlapping symbols sum and the
// result renormalizes to 1.
func (e *Evaluator) evalWeightEqual(node *Node, ctx *Context) (Value, error) {
	exprs := flattenArgs(node.Args())
	if len(exprs) == 0 {
		return NilValue(), fmt.Errorf("weight-equal requires at least one expression at %d:%d", node.Line, node.Col)
	}

	combined := NewFragment()
	share := equalShare(len(exprs))
	for _, expr := range exprs {
		v, err := e.evalNode(expr, ctx)
		if err != nil {
			return NilValue(), err
		}
		fragment, err := asFragment(v)
		if err != nil {
			return NilValue(), fmt.Errorf("weight-equal child: %w", err)
		}
		combined.Merge(fragment.Normalize().Scale(share))
	}

	return FragmentValue(combined.Normalize()), nil
}

// evalWeightSpecified implements (weight-specified w1 expr1 w2 expr2 ...).
// Weights are renormalized over the children, so specifications that do not
// sum to 1 still produce a fully invested portfolio.
func (e *Evaluator) evalWeightSpecified(node *Node, ctx *Context) (Value, error) {
	args := flattenArgs(node.Args())
	if len(args) == 0 || len(args)%2 != 0 {
		return NilValue(), fmt.Errorf("weight-specified requires weight/expression pairs at %d:%d", node.Line, node.Col)
	}

	combined := NewFragment()
	for i := 0; i < len(args); i += 2 {
		wv, err := e.evalNode(args[i], ctx)
		if err != nil {
			return NilValue(), err
		}
		weight := ctx.AsDecimal(wv)
		if weight.IsNegative() {
			return NilValue(), fmt.Errorf("weight-specified weight must be non-negative, got %s", weight)
		}

		v, err := e.evalNode(args[i+1], ctx)
		if err != nil {
			return NilValue(), err
		}
		fragment, err := asFragment(v)
		if err != nil {
			return NilValue(), fmt.Errorf("weight-specified child: %w", err)
		}
		combined.Merge(fragment.Normalize().Scale(weight))
	}

	if combined.TotalWeight().IsZero() {
		return NilValue(), fmt.Errorf("weight-specified produced zero total weight at %d:%d", node.Line, node.Col)
	}
	return FragmentValue(combined.Normalize()), nil
}

// evalIf implements (if condition then else). Only the taken branch is
// evaluated, and the decision is appended to the shared path in evaluation
// order.
func (e *Evaluator) evalIf(node *Node, ctx *Context) (Value, error) {
	args := node.Args()
	if len(args) < 2 || len(args) > 3 {
		return NilValue(), fmt.Errorf("if requires condition, then and optional else at %d:%d", node.Line, node.Col)
	}

	condition := args[0]
	observations := ctx.captureIndicators()
	condValue, err := e.evalNode(condition, ctx)
	indicatorValues := ctx.endCapture(observations)
	if err != nil {
		return NilValue(), fmt.Errorf("if condition: %w", err)
	}

	result := isTruthy(condValue)
	branch := "then"
	if !result {
		branch = "else"
	}

	ctx.AddDecision(DecisionNode{
		Condition:       condition.String(),
		Result:          result,
		Branch:          branch,
		IndicatorValues: indicatorValues,
		ConditionType:   condition.Head(),
	})
	ctx.AddDebugTrace("if %s -> %s", condition.String(), branch)

	if result {
		return e.evalNode(args[1], ctx)
	}
	if len(args) == 3 {
		return e.evalNode(args[2], ctx)
	}
	return NilValue(), nil
}

// isTruthy follows the language's truthiness: nil and false are false,
// zero numbers and empty strings are false, everything else is true.
func isTruthy(v Value) bool {
	switch v.Kind {
	case ValNil:
		return false
	case ValBool:
		return v.Bool
	case ValNumber:
		return !v.Num.IsZero()
	case ValString:
		return v.Str != ""
	default:
		return true
	}
}

// flattenArgs unwraps a single vector argument so (op [a b c]) and
// (op a b c) are equivalent.
func flattenArgs(args []*Node) []*Node {
	if len(args) == 1 && args[0].Kind == NodeVector {
		return args[0].Children
	}
	return args
}

// symbolArg resolves an argument node to an asset ticker string
func (e *Evaluator) symbolArg(node *Node, ctx *Context) (string, error) {
	if node.Kind == NodeString {
		return node.Str, nil
	}
	v, err := e.evalNode(node, ctx)
	if err != nil {
		return "", err
	}
	if v.Kind != ValString || v.Str == "" {
		return "", fmt.Errorf("expected ticker string at %d:%d", node.Line, node.Col)
	}
	return v.Str, nil
}
