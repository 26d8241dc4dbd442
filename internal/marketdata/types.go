// Package marketdata provides historical bar storage and the data ports
// consumed by indicator computation and group return backfill.
package marketdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar represents one daily OHLCV bar. Price fields use decimal precision so
// return arithmetic does not drift across long backfill sequences.
type Bar struct {
	Symbol    string
	Timestamp time.Time // UTC midnight of the trading day
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
}

// Date returns the bar's trading day truncated to a calendar date in UTC.
func (b Bar) Date() time.Time {
	return time.Date(b.Timestamp.Year(), b.Timestamp.Month(), b.Timestamp.Day(), 0, 0, 0, 0, time.UTC)
}

// Port defines read access to historical bars.
// Implementations must return bars ordered oldest first.
type Port interface {
	// GetBars returns up to limit most recent bars for the symbol, oldest first.
	GetBars(symbol string, limit int) ([]Bar, error)

	// GetLatestBar returns the most recent bar for the symbol, or nil when the
	// store has no data for it (not an error).
	GetLatestBar(symbol string) (*Bar, error)
}
