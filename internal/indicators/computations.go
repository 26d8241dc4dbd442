package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// DailyReturns converts a close series (oldest first) into simple daily
// returns. Days with a zero or missing previous close are skipped rather
// than producing a division by zero.
func DailyReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev == 0 || math.IsNaN(prev) || math.IsNaN(closes[i]) {
			continue
		}
		returns = append(returns, (closes[i]-prev)/prev)
	}
	return returns
}

// rsiLast returns the most recent RSI value over the window
func rsiLast(closes []float64, window int) (float64, bool) {
	if len(closes) < window+1 {
		return 0, false
	}

	series := talib.Rsi(closes, window)
	last := series[len(series)-1]
	if math.IsNaN(last) {
		return 0, false
	}
	return last, true
}

// smaLast returns the most recent simple moving average over the window
func smaLast(closes []float64, window int) (float64, bool) {
	if len(closes) < window {
		return 0, false
	}

	series := talib.Sma(closes, window)
	last := series[len(series)-1]
	if math.IsNaN(last) {
		return 0, false
	}
	return last, true
}

// emaLast returns the most recent exponential moving average over the window
func emaLast(closes []float64, window int) (float64, bool) {
	if len(closes) < window {
		return 0, false
	}

	series := talib.Ema(closes, window)
	last := series[len(series)-1]
	if math.IsNaN(last) {
		return 0, false
	}
	return last, true
}

// MeanReturn averages the last window daily returns
func MeanReturn(returns []float64, window int) (float64, bool) {
	tail, ok := lastN(returns, window)
	if !ok {
		return 0, false
	}
	return stat.Mean(tail, nil), true
}

// StdevOfReturns is the sample standard deviation of the last window returns
func StdevOfReturns(returns []float64, window int) (float64, bool) {
	tail, ok := lastN(returns, window)
	if !ok || len(tail) < 2 {
		return 0, false
	}
	return stat.StdDev(tail, nil), true
}

// AnnualizedVolatility scales the return stdev by sqrt(252 trading days)
func AnnualizedVolatility(returns []float64, window int) (float64, bool) {
	sd, ok := StdevOfReturns(returns, window)
	if !ok {
		return 0, false
	}
	return sd * math.Sqrt(252), true
}

// CumulativeFromReturns compounds the last window returns
func CumulativeFromReturns(returns []float64, window int) (float64, bool) {
	tail, ok := lastN(returns, window)
	if !ok {
		return 0, false
	}

	cumulative := 1.0
	for _, r := range tail {
		cumulative *= 1 + r
	}
	return cumulative - 1, true
}

// MaxDrawdownFromReturns rebuilds an equity curve from the last window
// returns and measures its largest peak-to-trough decline (as a positive
// fraction).
func MaxDrawdownFromReturns(returns []float64, window int) (float64, bool) {
	tail, ok := lastN(returns, window)
	if !ok {
		return 0, false
	}

	equity := make([]float64, 0, len(tail)+1)
	equity = append(equity, 1.0)
	value := 1.0
	for _, r := range tail {
		value *= 1 + r
		equity = append(equity, value)
	}
	return MaxDrawdownFromPrices(equity), true
}

// MaxDrawdownFromPrices measures the largest peak-to-trough decline of a
// price series (as a positive fraction).
func MaxDrawdownFromPrices(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}

	peak := prices[0]
	maxDD := 0.0
	for _, px := range prices[1:] {
		if px > peak {
			peak = px
			continue
		}
		if peak > 0 {
			dd := (peak - px) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func lastN(values []float64, n int) ([]float64, bool) {
	if n <= 0 || len(values) < n {
		return nil, false
	}
	return values[len(values)-n:], true
}
