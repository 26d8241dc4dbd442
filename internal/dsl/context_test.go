package dsl

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func testContext(t *testing.T) *Context {
	t.Helper()
	trace := NewTrace("corr-test", "strategy-test")
	return NewContext(nil, nil, "corr-test", trace, time.Now(), false, zerolog.Nop())
}

// The coercion is total: every value kind maps to a decimal, never an error.
func TestAsDecimalCoercionTable(t *testing.T) {
	ctx := testContext(t)

	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"bool true", BoolValue(true), "1"},
		{"bool false", BoolValue(false), "0"},
		{"number", NumberValue(decimal.RequireFromString("3.14")), "3.14"},
		{"numeric string", StringValue("2.5"), "2.5"},
		{"non-numeric string", StringValue("hello"), "0"},
		{"empty string", StringValue(""), "0"},
		{"nil", NilValue(), "0"},
		{"single-element list", ListValue([]Value{NumberValue(decimal.NewFromInt(7))}), "7"},
		{"multi-element list", ListValue([]Value{NumberValue(decimal.NewFromInt(1)), NumberValue(decimal.NewFromInt(2))}), "0"},
		{"empty list", ListValue(nil), "0"},
		{"fragment", FragmentValue(SingleAssetFragment("SPY")), "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ctx.AsDecimal(tt.in)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"AsDecimal(%s) = %s, want %s", tt.name, got, tt.want)
		})
	}
}

func TestAsDecimalNestedListUnwrap(t *testing.T) {
	ctx := testContext(t)

	// [[5]] unwraps recursively to 5
	nested := ListValue([]Value{ListValue([]Value{NumberValue(decimal.NewFromInt(5))})})
	assert.True(t, ctx.AsDecimal(nested).Equal(decimal.NewFromInt(5)))
}

func TestCoerceParamValue(t *testing.T) {
	ctx := testContext(t)

	assert.True(t, ctx.CoerceParamValue(BoolValue(true)).Num.Equal(decimal.NewFromInt(1)))
	assert.True(t, ctx.CoerceParamValue(BoolValue(false)).Num.Equal(decimal.Zero))
	assert.True(t, ctx.CoerceParamValue(NilValue()).Num.Equal(decimal.Zero))

	single := ListValue([]Value{StringValue("x")})
	assert.Equal(t, ValString, ctx.CoerceParamValue(single).Kind)
	assert.Equal(t, "x", ctx.CoerceParamValue(single).Str)
}

func TestIndicatorCaptureRestoresNesting(t *testing.T) {
	ctx := testContext(t)

	outer := ctx.captureIndicators()
	ctx.observeIndicator("rsi(SPY,10)", "65")

	// A nested condition starts its own capture
	inner := ctx.captureIndicators()
	ctx.observeIndicator("rsi(QQQ,10)", "40")
	innerValues := ctx.endCapture(inner)

	ctx.observeIndicator("current-price(SPY)", "500")
	outerValues := ctx.endCapture(outer)

	assert.Equal(t, map[string]string{"rsi(QQQ,10)": "40"}, innerValues)
	assert.Equal(t, map[string]string{
		"rsi(SPY,10)":        "65",
		"current-price(SPY)": "500",
	}, outerValues)
}

func TestDebugTracesNoOpWhenDisabled(t *testing.T) {
	ctx := testContext(t)
	ctx.AddDebugTrace("should not appear")
	ctx.AddFilterTrace("should not appear")
	assert.Empty(t, ctx.DebugTraces())
	assert.Empty(t, ctx.FilterTraces())
}

func TestDebugTracesAccumulateWhenEnabled(t *testing.T) {
	trace := NewTrace("corr", "strat")
	ctx := NewContext(nil, nil, "corr", trace, time.Now(), true, zerolog.Nop())

	ctx.AddDebugTrace("step %d", 1)
	ctx.AddDebugTrace("step %d", 2)
	ctx.AddFilterTrace("candidate %q", "Group A")

	assert.Equal(t, []string{"step 1", "step 2"}, ctx.DebugTraces())
	assert.Equal(t, []string{`candidate "Group A"`}, ctx.FilterTraces())
}
