package dsl

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSumsToExactlyOne(t *testing.T) {
	f := NewFragment()
	// Three equal thirds would leave a repeating-decimal remainder
	f.Add("SPY", decimal.NewFromInt(1))
	f.Add("QQQ", decimal.NewFromInt(1))
	f.Add("IWM", decimal.NewFromInt(1))

	normalized := f.Normalize()
	assert.True(t, normalized.TotalWeight().Equal(decimal.NewFromInt(1)),
		"total = %s", normalized.TotalWeight())
}

func TestNormalizeLastSymbolAbsorbsRemainder(t *testing.T) {
	f := NewFragment()
	f.Add("AAA", decimal.NewFromInt(1))
	f.Add("BBB", decimal.NewFromInt(1))
	f.Add("CCC", decimal.NewFromInt(1))

	normalized := f.Normalize()

	// Lexically last symbol carries whatever remains after the others
	third := decimal.NewFromInt(1).Div(decimal.NewFromInt(3))
	assert.True(t, normalized.Weights["AAA"].Equal(third))
	assert.True(t, normalized.Weights["BBB"].Equal(third))
	expected := decimal.NewFromInt(1).Sub(third).Sub(third)
	assert.True(t, normalized.Weights["CCC"].Equal(expected))
}

func TestNormalizeZeroTotalUnchanged(t *testing.T) {
	f := NewFragment()
	normalized := f.Normalize()
	assert.Empty(t, normalized.Weights)
}

func TestFragmentAddUpperCasesSymbols(t *testing.T) {
	f := NewFragment()
	f.Add("spy", decimal.NewFromInt(1))
	f.Add("SPY", decimal.NewFromInt(1))

	require.Len(t, f.Weights, 1)
	assert.True(t, f.Weights["SPY"].Equal(decimal.NewFromInt(2)))
}

func TestMergeSumsOverlappingSymbols(t *testing.T) {
	a := SingleAssetFragment("SPY")
	b := NewFragment()
	b.Add("SPY", decimal.RequireFromString("0.5"))
	b.Add("QQQ", decimal.RequireFromString("0.5"))

	a.Merge(b)
	assert.True(t, a.Weights["SPY"].Equal(decimal.RequireFromString("1.5")))
	assert.True(t, a.Weights["QQQ"].Equal(decimal.RequireFromString("0.5")))
}

func TestScaleReturnsNewFragment(t *testing.T) {
	f := SingleAssetFragment("SPY")
	half := f.Scale(decimal.RequireFromString("0.5"))

	assert.True(t, half.Weights["SPY"].Equal(decimal.RequireFromString("0.5")))
	// Original untouched
	assert.True(t, f.Weights["SPY"].Equal(decimal.NewFromInt(1)))
}

func TestSortedSymbolsDeterministic(t *testing.T) {
	f := NewFragment()
	f.Add("QQQ", decimal.NewFromInt(1))
	f.Add("AAPL", decimal.NewFromInt(1))
	f.Add("SPY", decimal.NewFromInt(1))

	assert.Equal(t, []string{"AAPL", "QQQ", "SPY"}, f.SortedSymbols())
}

func TestCashFallbackAllocation(t *testing.T) {
	alloc := CashFallbackAllocation("corr-1", time.Now())

	require.Len(t, alloc.TargetWeights, 1)
	assert.True(t, alloc.TargetWeights["CASH"].Equal(decimal.NewFromInt(1)))
	assert.Equal(t, "corr-1", alloc.CorrelationID)
}
