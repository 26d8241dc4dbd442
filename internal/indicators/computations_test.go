package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyReturns(t *testing.T) {
	returns := DailyReturns([]float64{100, 110, 99})
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)
}

func TestDailyReturnsSkipsZeroPreviousClose(t *testing.T) {
	returns := DailyReturns([]float64{100, 0, 110})
	// 0 -> 110 has no usable base; only 100 -> 0 survives.
	require.Len(t, returns, 1)
	assert.InDelta(t, -1.0, returns[0], 1e-9)
}

func TestDailyReturnsSkipsNaN(t *testing.T) {
	returns := DailyReturns([]float64{100, math.NaN(), 110})
	assert.Empty(t, returns)
}

func TestDailyReturnsTooShort(t *testing.T) {
	assert.Nil(t, DailyReturns([]float64{100}))
	assert.Nil(t, DailyReturns(nil))
}

func TestMeanReturn(t *testing.T) {
	value, ok := MeanReturn([]float64{0.01, 0.02, 0.03}, 3)
	require.True(t, ok)
	assert.InDelta(t, 0.02, value, 1e-9)

	// Window takes the most recent tail.
	value, ok = MeanReturn([]float64{0.10, 0.01, 0.03}, 2)
	require.True(t, ok)
	assert.InDelta(t, 0.02, value, 1e-9)

	_, ok = MeanReturn([]float64{0.01}, 2)
	assert.False(t, ok)
}

func TestStdevOfReturnsNeedsTwoPoints(t *testing.T) {
	_, ok := StdevOfReturns([]float64{0.01}, 1)
	assert.False(t, ok)

	value, ok := StdevOfReturns([]float64{0.01, 0.01, 0.01}, 3)
	require.True(t, ok)
	assert.InDelta(t, 0.0, value, 1e-9)
}

func TestAnnualizedVolatilityScaling(t *testing.T) {
	sd, ok := StdevOfReturns([]float64{0.01, 0.03, 0.02, 0.04}, 4)
	require.True(t, ok)

	vol, ok := AnnualizedVolatility([]float64{0.01, 0.03, 0.02, 0.04}, 4)
	require.True(t, ok)
	assert.InDelta(t, sd*math.Sqrt(252), vol, 1e-12)
}

func TestCumulativeFromReturns(t *testing.T) {
	value, ok := CumulativeFromReturns([]float64{0.10, 0.10}, 2)
	require.True(t, ok)
	assert.InDelta(t, 0.21, value, 1e-9)

	_, ok = CumulativeFromReturns([]float64{0.10}, 2)
	assert.False(t, ok)
}

func TestMaxDrawdownFromReturns(t *testing.T) {
	// Up 10%, down 20%, up 5%: deepest decline is the 20% drop.
	value, ok := MaxDrawdownFromReturns([]float64{0.10, -0.20, 0.05}, 3)
	require.True(t, ok)
	assert.InDelta(t, 0.20, value, 1e-9)
}

func TestMaxDrawdownFromPrices(t *testing.T) {
	assert.InDelta(t, 0.5, MaxDrawdownFromPrices([]float64{100, 120, 60, 80}), 1e-9)
	assert.InDelta(t, 0.0, MaxDrawdownFromPrices([]float64{100, 110, 120}), 1e-9)
	assert.InDelta(t, 0.0, MaxDrawdownFromPrices([]float64{100}), 1e-9)
}

func TestTradingWeekdaysBack(t *testing.T) {
	friday := time.Date(2026, time.August, 28, 0, 0, 0, 0, time.UTC)

	// One trading day back from Friday is Thursday.
	assert.Equal(t, time.Date(2026, time.August, 27, 0, 0, 0, 0, time.UTC),
		TradingWeekdaysBack(friday, 1))

	// Five trading days back spans the weekend to the prior Friday.
	assert.Equal(t, time.Date(2026, time.August, 21, 0, 0, 0, 0, time.UTC),
		TradingWeekdaysBack(friday, 5))

	monday := time.Date(2026, time.August, 24, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.August, 21, 0, 0, 0, 0, time.UTC),
		TradingWeekdaysBack(monday, 1))
}
