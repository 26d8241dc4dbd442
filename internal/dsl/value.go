package dsl

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValueKind tags the dynamic value variants flowing through evaluation
type ValueKind int

const (
	ValNil ValueKind = iota
	ValNumber
	ValString
	ValBool
	ValList
	ValFragment
)

// Value is the dynamic result of evaluating a node. Numbers are
// fixed-precision decimals; floating point would drift across long backfill
// sequences.
type Value struct {
	Kind     ValueKind
	Num      decimal.Decimal
	Str      string
	Bool     bool
	List     []Value
	Fragment *PortfolioFragment
}

// NumberValue wraps a decimal
func NumberValue(d decimal.Decimal) Value {
	return Value{Kind: ValNumber, Num: d}
}

// StringValue wraps a string
func StringValue(s string) Value {
	return Value{Kind: ValString, Str: s}
}

// BoolValue wraps a boolean
func BoolValue(b bool) Value {
	return Value{Kind: ValBool, Bool: b}
}

// ListValue wraps a value list
func ListValue(items []Value) Value {
	return Value{Kind: ValList, List: items}
}

// FragmentValue wraps a portfolio fragment
func FragmentValue(f *PortfolioFragment) Value {
	return Value{Kind: ValFragment, Fragment: f}
}

// NilValue is the nil result
func NilValue() Value {
	return Value{Kind: ValNil}
}

// PortfolioFragment is a possibly partial symbol -> weight map produced by
// evaluating part of the tree. Weights need not sum to 1 mid-evaluation; the
// top-level result is normalized before leaving the evaluator.
type PortfolioFragment struct {
	Weights   map[string]decimal.Decimal
	GroupName string // display name recorded by the group operator, for cache key derivation
}

// NewFragment creates an empty fragment
func NewFragment() *PortfolioFragment {
	return &PortfolioFragment{Weights: make(map[string]decimal.Decimal)}
}

// SingleAssetFragment creates a fragment holding one symbol at full weight
func SingleAssetFragment(symbol string) *PortfolioFragment {
	f := NewFragment()
	f.Weights[strings.ToUpper(symbol)] = decimal.NewFromInt(1)
	return f
}

// Add accumulates weight for a symbol (case-normalized upper)
func (f *PortfolioFragment) Add(symbol string, weight decimal.Decimal) {
	symbol = strings.ToUpper(symbol)
	f.Weights[symbol] = f.Weights[symbol].Add(weight)
}

// Merge sums another fragment's weights into this one
func (f *PortfolioFragment) Merge(other *PortfolioFragment) {
	if other == nil {
		return
	}
	for symbol, weight := range other.Weights {
		f.Add(symbol, weight)
	}
}

// Scale multiplies every weight by factor, returning a new fragment
func (f *PortfolioFragment) Scale(factor decimal.Decimal) *PortfolioFragment {
	scaled := NewFragment()
	scaled.GroupName = f.GroupName
	for symbol, weight := range f.Weights {
		scaled.Weights[symbol] = weight.Mul(factor)
	}
	return scaled
}

// TotalWeight sums all weights
func (f *PortfolioFragment) TotalWeight() decimal.Decimal {
	total := decimal.Zero
	for _, weight := range f.Weights {
		total = total.Add(weight)
	}
	return total
}

// Normalize rescales weights to sum to exactly 1. A fragment with zero total
// weight cannot be normalized and is returned unchanged.
func (f *PortfolioFragment) Normalize() *PortfolioFragment {
	total := f.TotalWeight()
	if total.IsZero() {
		return f
	}

	normalized := NewFragment()
	normalized.GroupName = f.GroupName
	symbols := f.SortedSymbols()
	running := decimal.Zero
	for i, symbol := range symbols {
		if i == len(symbols)-1 {
			// Last symbol absorbs the rounding remainder so the sum is exact
			normalized.Weights[symbol] = decimal.NewFromInt(1).Sub(running)
			break
		}
		w := f.Weights[symbol].Div(total)
		normalized.Weights[symbol] = w
		running = running.Add(w)
	}
	return normalized
}

// SortedSymbols returns the symbols in deterministic lexical order
func (f *PortfolioFragment) SortedSymbols() []string {
	symbols := make([]string, 0, len(f.Weights))
	for symbol := range f.Weights {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// StrategyAllocation is the final output contract the DSL core exposes to
// downstream execution: target weights summing to ~1.0, or the degenerate
// all-cash allocation on total failure.
type StrategyAllocation struct {
	TargetWeights map[string]decimal.Decimal `json:"target_weights"`
	CorrelationID string                     `json:"correlation_id"`
	AsOf          time.Time                  `json:"as_of"`
}

// CashFallbackAllocation is the fail-open-to-cash degenerate allocation.
// Downstream consumers never receive an empty allocation.
func CashFallbackAllocation(correlationID string, asOf time.Time) *StrategyAllocation {
	return &StrategyAllocation{
		TargetWeights: map[string]decimal.Decimal{"CASH": decimal.NewFromInt(1)},
		CorrelationID: correlationID,
		AsOf:          asOf,
	}
}
