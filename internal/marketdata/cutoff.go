package marketdata

import "time"

// CutoffStore is the narrow contract the cutoff adapter needs from a bar store.
type CutoffStore interface {
	GetBarsUpTo(symbol string, limit int, cutoff time.Time) ([]Bar, error)
}

// CutoffPort wraps a bar store with an as-of date so that indicator
// computation during backfill only sees bars at or before that date.
// This is the point-in-time discipline guard: no look-ahead, ever.
type CutoffPort struct {
	store CutoffStore
	asOf  time.Time
}

// NewCutoffPort creates a Port that hides all bars after asOf
func NewCutoffPort(store CutoffStore, asOf time.Time) *CutoffPort {
	return &CutoffPort{store: store, asOf: asOf}
}

// AsOf returns the cutoff date
func (p *CutoffPort) AsOf() time.Time {
	return p.asOf
}

// GetBars returns up to limit bars at or before the cutoff, oldest first
func (p *CutoffPort) GetBars(symbol string, limit int) ([]Bar, error) {
	return p.store.GetBarsUpTo(symbol, limit, p.asOf)
}

// GetLatestBar returns the most recent bar at or before the cutoff, or nil when none exists
func (p *CutoffPort) GetLatestBar(symbol string) (*Bar, error) {
	bars, err := p.store.GetBarsUpTo(symbol, 1, p.asOf)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}
	return &bars[0], nil
}
