package indicators

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/marketdata"
)

type fakeBarPort struct {
	closes map[string][]float64
}

func (p *fakeBarPort) GetBars(symbol string, limit int) ([]marketdata.Bar, error) {
	series := p.closes[symbol]
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}

	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	bars := make([]marketdata.Bar, 0, len(series))
	for i, px := range series {
		price := decimal.NewFromFloat(px)
		bars = append(bars, marketdata.Bar{
			Symbol: symbol, Timestamp: day.AddDate(0, 0, i),
			Open: price, High: price, Low: price, Close: price, Volume: 1,
		})
	}
	return bars, nil
}

func (p *fakeBarPort) GetLatestBar(symbol string) (*marketdata.Bar, error) {
	bars, err := p.GetBars(symbol, 1)
	if err != nil || len(bars) == 0 {
		return nil, err
	}
	return &bars[0], nil
}

func newFakeService(closes map[string][]float64) *Service {
	return NewService(&fakeBarPort{closes: closes}, zerolog.Nop())
}

func TestCurrentPrice(t *testing.T) {
	svc := newFakeService(map[string][]float64{"SPY": {100, 101, 102}})

	value, err := svc.GetIndicator("SPY", CurrentPrice, Params{})
	require.NoError(t, err)
	assert.True(t, value.Equal(decimal.NewFromInt(102)))
}

func TestCurrentPriceNoBarsIsError(t *testing.T) {
	svc := newFakeService(nil)

	_, err := svc.GetIndicator("SPY", CurrentPrice, Params{})
	require.Error(t, err)

	var compErr *ComputationError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, CurrentPrice, compErr.Indicator)
	assert.Equal(t, "SPY", compErr.Symbol)
}

func TestRSINeutralFallbackOnShortSeries(t *testing.T) {
	svc := newFakeService(map[string][]float64{"SPY": {100, 101}})

	value, err := svc.GetIndicator("SPY", RSI, Params{Window: 14})
	require.NoError(t, err)
	assert.True(t, value.Equal(decimal.NewFromInt(50)))
}

func TestRSIRisingSeriesIsHigh(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	svc := newFakeService(map[string][]float64{"SPY": closes})

	value, err := svc.GetIndicator("SPY", RSI, Params{Window: 5})
	require.NoError(t, err)
	assert.True(t, value.GreaterThan(decimal.NewFromInt(90)), "got %s", value)
}

func TestMovingAveragePrice(t *testing.T) {
	svc := newFakeService(map[string][]float64{"SPY": {100, 102, 104, 106}})

	value, err := svc.GetIndicator("SPY", MovingAveragePrice, Params{Window: 2})
	require.NoError(t, err)
	assert.True(t, value.Equal(decimal.NewFromInt(105)), "got %s", value)
}

func TestMovingAveragePriceInsufficientBars(t *testing.T) {
	svc := newFakeService(map[string][]float64{"SPY": {100}})

	_, err := svc.GetIndicator("SPY", MovingAveragePrice, Params{Window: 5})
	var compErr *ComputationError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, MovingAveragePrice, compErr.Indicator)
}

func TestCumulativeReturnExact(t *testing.T) {
	svc := newFakeService(map[string][]float64{"SPY": {100, 105, 110}})

	value, err := svc.GetIndicator("SPY", CumulativeReturn, Params{Window: 2})
	require.NoError(t, err)
	assert.True(t, value.Equal(decimal.RequireFromString("0.1")), "got %s", value)
}

func TestWindowMustBePositive(t *testing.T) {
	svc := newFakeService(map[string][]float64{"SPY": {100, 101}})

	for _, kind := range []Type{MovingAveragePrice, MovingAverageReturn, CumulativeReturn, MaxDrawdown, StdevReturn, Volatility} {
		_, err := svc.GetIndicator("SPY", kind, Params{Window: 0})
		assert.Error(t, err, "indicator %s accepted zero window", kind)
	}
}

func TestUnsupportedIndicatorType(t *testing.T) {
	svc := newFakeService(nil)

	_, err := svc.GetIndicator("SPY", Type("bogus"), Params{Window: 5})
	require.Error(t, err)

	var compErr *ComputationError
	assert.True(t, errors.As(err, &compErr))
}

func TestWithPortRedirectsReads(t *testing.T) {
	base := newFakeService(map[string][]float64{"SPY": {100}})
	other := base.WithPort(&fakeBarPort{closes: map[string][]float64{"SPY": {200}}})

	value, err := other.GetIndicator("SPY", CurrentPrice, Params{})
	require.NoError(t, err)
	assert.True(t, value.Equal(decimal.NewFromInt(200)))

	// The original service is untouched.
	value, err = base.GetIndicator("SPY", CurrentPrice, Params{})
	require.NoError(t, err)
	assert.True(t, value.Equal(decimal.NewFromInt(100)))
}
