// Package indicators computes technical indicators over historical bars.
// It is the boundary the DSL evaluator calls for every condition; values are
// returned with decimal precision and insufficient data is a typed error.
package indicators

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/marketdata"
)

// Type identifies a technical indicator
type Type string

const (
	RSI                           Type = "rsi"
	CurrentPrice                  Type = "current-price"
	MovingAveragePrice            Type = "moving-average-price"
	MovingAverageReturn           Type = "moving-average-return"
	CumulativeReturn              Type = "cumulative-return"
	ExponentialMovingAveragePrice Type = "exponential-moving-average-price"
	StdevReturn                   Type = "stdev-return"
	MaxDrawdown                   Type = "max-drawdown"
	Volatility                    Type = "volatility"
)

// Params holds indicator parameters parsed from the DSL parameter map
type Params struct {
	Window int
}

// ComputationError signals that an indicator could not be computed,
// typically because the historical window has fewer bars than required.
type ComputationError struct {
	Symbol    string
	Indicator Type
	Reason    string
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("indicator %s(%s) failed: %s", e.Indicator, e.Symbol, e.Reason)
}

// rsiNeutral is the boundary fallback when RSI has no usable series.
// This fallback exists only here, never inside evaluator logic.
var rsiNeutral = decimal.NewFromInt(50)

// Service computes indicators from a market data port.
// It is a pure function of (symbol, type, params, as-of data); safe for
// concurrent reads when the underlying port is.
type Service struct {
	data marketdata.Port
	log  zerolog.Logger
}

// NewService creates a new indicator service
func NewService(data marketdata.Port, log zerolog.Logger) *Service {
	return &Service{
		data: data,
		log:  log.With().Str("component", "indicators").Logger(),
	}
}

// WithPort returns a service reading from a different port, sharing the
// logger. Used by backfill to re-point indicator computation at a
// historical-cutoff adapter for each evaluation day.
func (s *Service) WithPort(data marketdata.Port) *Service {
	return &Service{data: data, log: s.log}
}

// GetIndicator computes a single indicator value for the symbol.
// The port decides what "now" means: a cutoff port pins computation to its
// as-of date, the plain store sees everything.
func (s *Service) GetIndicator(symbol string, kind Type, params Params) (decimal.Decimal, error) {
	switch kind {
	case CurrentPrice:
		return s.currentPrice(symbol)
	case RSI:
		return s.rsi(symbol, params.Window)
	case MovingAveragePrice:
		return s.priceSeries(symbol, kind, params.Window, smaLast)
	case ExponentialMovingAveragePrice:
		return s.priceSeries(symbol, kind, params.Window, emaLast)
	case MovingAverageReturn:
		return s.returnSeries(symbol, kind, params.Window, MeanReturn)
	case StdevReturn:
		return s.returnSeries(symbol, kind, params.Window, StdevOfReturns)
	case Volatility:
		return s.returnSeries(symbol, kind, params.Window, AnnualizedVolatility)
	case CumulativeReturn:
		return s.cumulativeReturn(symbol, params.Window)
	case MaxDrawdown:
		return s.maxDrawdown(symbol, params.Window)
	default:
		return decimal.Zero, &ComputationError{Symbol: symbol, Indicator: kind, Reason: "unsupported indicator type"}
	}
}

func (s *Service) currentPrice(symbol string) (decimal.Decimal, error) {
	bar, err := s.data.GetLatestBar(symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch latest bar for %s: %w", symbol, err)
	}
	if bar == nil {
		// current-price has no fallback
		return decimal.Zero, &ComputationError{Symbol: symbol, Indicator: CurrentPrice, Reason: "no bars available"}
	}
	return bar.Close, nil
}

func (s *Service) rsi(symbol string, window int) (decimal.Decimal, error) {
	if window <= 0 {
		window = 14
	}

	closes, err := s.closes(symbol, window*3+1)
	if err != nil {
		return decimal.Zero, err
	}

	value, ok := rsiLast(closes, window)
	if !ok {
		// Neutral fallback for missing series windows, boundary only
		s.log.Warn().Str("symbol", symbol).Int("window", window).
			Msg("RSI series too short, using neutral 50")
		return rsiNeutral, nil
	}

	return decimal.NewFromFloat(value), nil
}

// priceSeries computes an indicator that is a function of raw closing prices
func (s *Service) priceSeries(symbol string, kind Type, window int, fn func([]float64, int) (float64, bool)) (decimal.Decimal, error) {
	if window <= 0 {
		return decimal.Zero, &ComputationError{Symbol: symbol, Indicator: kind, Reason: "window must be positive"}
	}

	closes, err := s.closes(symbol, window*2)
	if err != nil {
		return decimal.Zero, err
	}

	value, ok := fn(closes, window)
	if !ok {
		return decimal.Zero, &ComputationError{
			Symbol:    symbol,
			Indicator: kind,
			Reason:    fmt.Sprintf("need %d bars, have %d", window, len(closes)),
		}
	}

	return decimal.NewFromFloat(value), nil
}

// returnSeries computes an indicator that is a function of daily returns
func (s *Service) returnSeries(symbol string, kind Type, window int, fn func([]float64, int) (float64, bool)) (decimal.Decimal, error) {
	if window <= 0 {
		return decimal.Zero, &ComputationError{Symbol: symbol, Indicator: kind, Reason: "window must be positive"}
	}

	closes, err := s.closes(symbol, window+2)
	if err != nil {
		return decimal.Zero, err
	}

	returns := DailyReturns(closes)
	value, ok := fn(returns, window)
	if !ok {
		return decimal.Zero, &ComputationError{
			Symbol:    symbol,
			Indicator: kind,
			Reason:    fmt.Sprintf("need %d returns, have %d", window, len(returns)),
		}
	}

	return decimal.NewFromFloat(value), nil
}

func (s *Service) cumulativeReturn(symbol string, window int) (decimal.Decimal, error) {
	if window <= 0 {
		return decimal.Zero, &ComputationError{Symbol: symbol, Indicator: CumulativeReturn, Reason: "window must be positive"}
	}

	bars, err := s.data.GetBars(symbol, window+1)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch bars for %s: %w", symbol, err)
	}
	if len(bars) < window+1 {
		return decimal.Zero, &ComputationError{
			Symbol:    symbol,
			Indicator: CumulativeReturn,
			Reason:    fmt.Sprintf("need %d bars, have %d", window+1, len(bars)),
		}
	}

	first := bars[0].Close
	last := bars[len(bars)-1].Close
	if first.IsZero() {
		return decimal.Zero, &ComputationError{Symbol: symbol, Indicator: CumulativeReturn, Reason: "zero base price"}
	}

	return last.Sub(first).Div(first), nil
}

func (s *Service) maxDrawdown(symbol string, window int) (decimal.Decimal, error) {
	if window <= 0 {
		return decimal.Zero, &ComputationError{Symbol: symbol, Indicator: MaxDrawdown, Reason: "window must be positive"}
	}

	closes, err := s.closes(symbol, window)
	if err != nil {
		return decimal.Zero, err
	}
	if len(closes) < 2 {
		return decimal.Zero, &ComputationError{
			Symbol:    symbol,
			Indicator: MaxDrawdown,
			Reason:    fmt.Sprintf("need at least 2 bars, have %d", len(closes)),
		}
	}

	return decimal.NewFromFloat(MaxDrawdownFromPrices(closes)), nil
}

// closes fetches up to limit closing prices, oldest first
func (s *Service) closes(symbol string, limit int) ([]float64, error) {
	bars, err := s.data.GetBars(symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", symbol, err)
	}

	closes := make([]float64, 0, len(bars))
	for _, bar := range bars {
		px, _ := bar.Close.Float64()
		closes = append(closes, px)
	}
	return closes, nil
}

// TradingWeekdaysBack returns the calendar date lookback trading weekdays
// before end, stepping Mon-Fri with no holiday awareness.
func TradingWeekdaysBack(end time.Time, lookback int) time.Time {
	day := end
	for i := 0; i < lookback; {
		day = day.AddDate(0, 0, -1)
		if day.Weekday() != time.Saturday && day.Weekday() != time.Sunday {
			i++
		}
	}
	return day
}
