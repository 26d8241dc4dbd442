package dsl

import (
	"fmt"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/indicators"
)

// evalComparison implements the numeric predicates > >= < <= =.
// Both sides coerce through AsDecimal before comparison.
func (e *Evaluator) evalComparison(node *Node, ctx *Context) (Value, error) {
	op := node.Head()
	args := node.Args()
	if len(args) != 2 {
		return NilValue(), fmt.Errorf("%s requires exactly two arguments at %d:%d", op, node.Line, node.Col)
	}

	leftValue, err := e.evalNode(args[0], ctx)
	if err != nil {
		return NilValue(), err
	}
	rightValue, err := e.evalNode(args[1], ctx)
	if err != nil {
		return NilValue(), err
	}

	left := ctx.AsDecimal(leftValue)
	right := ctx.AsDecimal(rightValue)

	var result bool
	switch op {
	case ">":
		result = left.GreaterThan(right)
	case ">=":
		result = left.GreaterThanOrEqual(right)
	case "<":
		result = left.LessThan(right)
	case "<=":
		result = left.LessThanOrEqual(right)
	case "=":
		result = left.Equal(right)
	default:
		return NilValue(), fmt.Errorf("unknown comparison operator %q", op)
	}

	ctx.AddDebugTrace("%s %s %s -> %t", left, op, right, result)
	return BoolValue(result), nil
}

// evalAnd short-circuits on the first falsy argument
func (e *Evaluator) evalAnd(node *Node, ctx *Context) (Value, error) {
	for _, arg := range node.Args() {
		v, err := e.evalNode(arg, ctx)
		if err != nil {
			return NilValue(), err
		}
		if !isTruthy(v) {
			return BoolValue(false), nil
		}
	}
	return BoolValue(true), nil
}

// evalOr short-circuits on the first truthy argument
func (e *Evaluator) evalOr(node *Node, ctx *Context) (Value, error) {
	for _, arg := range node.Args() {
		v, err := e.evalNode(arg, ctx)
		if err != nil {
			return NilValue(), err
		}
		if isTruthy(v) {
			return BoolValue(true), nil
		}
	}
	return BoolValue(false), nil
}

// evalNot negates its single argument's truthiness
func (e *Evaluator) evalNot(node *Node, ctx *Context) (Value, error) {
	args := node.Args()
	if len(args) != 1 {
		return NilValue(), fmt.Errorf("not requires exactly one argument at %d:%d", node.Line, node.Col)
	}
	v, err := e.evalNode(args[0], ctx)
	if err != nil {
		return NilValue(), err
	}
	return BoolValue(!isTruthy(v)), nil
}

// evalIndicator implements the indicator functions, e.g.
// (rsi "SPY" {:window 10}). The symbol and parameter map are evaluated,
// then the indicator service computes the value with decimal precision.
func (e *Evaluator) evalIndicator(node *Node, ctx *Context) (Value, error) {
	name := node.Head()
	args := node.Args()
	if len(args) == 0 {
		return NilValue(), fmt.Errorf("%s requires a ticker symbol at %d:%d", name, node.Line, node.Col)
	}

	symbol, err := e.symbolArg(args[0], ctx)
	if err != nil {
		return NilValue(), fmt.Errorf("%s symbol: %w", name, err)
	}

	params := indicators.Params{}
	if len(args) > 1 {
		params, err = e.parseParams(args[1], ctx)
		if err != nil {
			return NilValue(), fmt.Errorf("%s params: %w", name, err)
		}
	}

	value, err := ctx.Indicators.GetIndicator(symbol, indicators.Type(name), params)
	if err != nil {
		return NilValue(), err
	}

	ref := fmt.Sprintf("%s(%s)", name, symbol)
	if params.Window > 0 {
		ref = fmt.Sprintf("%s(%s,%d)", name, symbol, params.Window)
	}
	ctx.observeIndicator(ref, value.String())
	ctx.AddDebugTrace("%s = %s", ref, value)

	return NumberValue(value), nil
}

// parseParams reads a parameter map node like {:window 10}
func (e *Evaluator) parseParams(node *Node, ctx *Context) (indicators.Params, error) {
	params := indicators.Params{}

	if node.Kind != NodeVector && node.Kind != NodeList {
		return params, fmt.Errorf("parameter map expected at %d:%d", node.Line, node.Col)
	}
	if len(node.Children)%2 != 0 {
		return params, fmt.Errorf("parameter map has odd number of forms at %d:%d", node.Line, node.Col)
	}

	for i := 0; i < len(node.Children); i += 2 {
		key := node.Children[i]
		if key.Kind != NodeKeyword {
			return params, fmt.Errorf("parameter key must be a keyword at %d:%d", key.Line, key.Col)
		}

		raw, err := e.evalNode(node.Children[i+1], ctx)
		if err != nil {
			return params, err
		}
		value := ctx.CoerceParamValue(raw)

		switch key.Str {
		case "window":
			params.Window = int(ctx.AsDecimal(value).IntPart())
		default:
			// Unknown parameter keys are tolerated for forward compatibility
			ctx.AddDebugTrace("ignoring parameter :%s", key.Str)
		}
	}

	return params, nil
}
