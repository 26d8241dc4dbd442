package groupcache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/dsl"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/indicators"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/marketdata"
)

// GroupResult summarizes one group's backfill outcome
type GroupResult struct {
	Name    string
	GroupID string
	Written int
	Skipped int // days with no usable data
	Failed  int // days whose evaluation raised
	Elapsed time.Duration
}

// Summary reports a whole backfill batch. One group failing every day never
// aborts the batch; it just shows up here.
type Summary struct {
	Groups       []GroupResult
	LookbackDays int
	EndDate      time.Time
}

// TotalWritten sums written days across groups
func (s *Summary) TotalWritten() int {
	total := 0
	for _, g := range s.Groups {
		total += g.Written
	}
	return total
}

// Backfiller evaluates filter-targeted groups day by day and persists their
// portfolio returns. Each day is evaluated through a historical-cutoff port
// so indicators never see data past the record date.
type Backfiller struct {
	repo  *Repository
	store *marketdata.Store
	inds  *indicators.Service
	log   zerolog.Logger
}

// NewBackfiller creates a backfiller
func NewBackfiller(repo *Repository, store *marketdata.Store, inds *indicators.Service, log zerolog.Logger) *Backfiller {
	return &Backfiller{
		repo:  repo,
		store: store,
		inds:  inds,
		log:   log.With().Str("component", "backfill").Logger(),
	}
}

// Run discovers every filter-targeted group in the strategy and backfills
// each over the lookback window ending at endDate.
func (b *Backfiller) Run(ast *dsl.Node, lookbackDays int, endDate time.Time) (*Summary, error) {
	groups := DiscoverFilterGroups(ast)
	if len(groups) == 0 {
		b.log.Info().Msg("Strategy has no filter-targeted groups, nothing to backfill")
		return &Summary{LookbackDays: lookbackDays, EndDate: endDate}, nil
	}

	b.log.Info().Int("groups", len(groups)).Int("lookback_days", lookbackDays).
		Str("end_date", endDate.Format("2006-01-02")).Msg("Starting group return backfill")

	summary := &Summary{LookbackDays: lookbackDays, EndDate: endDate}
	for _, fg := range groups {
		result := b.BackfillGroup(fg, lookbackDays, endDate)
		summary.Groups = append(summary.Groups, result)

		// Verification: re-read and compare against what we wrote
		count, err := b.repo.CountInWindow(result.GroupID, lookbackDays, endDate)
		if err != nil {
			b.log.Error().Err(err).Str("group", fg.Name).Msg("Backfill verification read failed")
		} else if count < result.Written {
			b.log.Error().Str("group", fg.Name).Int("written", result.Written).Int("readable", count).
				Msg("Backfill verification mismatch")
		}
	}

	return summary, nil
}

// BackfillGroup walks each trading weekday (Mon-Fri, no holiday calendar)
// in the lookback window and caches the group's daily portfolio return.
// Single-day failures are counted, logged, and skipped.
func (b *Backfiller) BackfillGroup(fg FilterGroup, lookbackDays int, endDate time.Time) GroupResult {
	started := time.Now()
	result := GroupResult{Name: fg.Name, GroupID: DeriveGroupID(fg.Name)}

	for _, day := range tradingDays(endDate, lookbackDays) {
		written, err := b.backfillDay(fg, day)
		if err != nil {
			result.Failed++
			b.log.Warn().Err(err).Str("group", fg.Name).
				Str("date", day.Format("2006-01-02")).Msg("Backfill day failed")
			continue
		}
		if written {
			result.Written++
		} else {
			result.Skipped++
		}
	}

	result.Elapsed = time.Since(started)
	b.log.Info().Str("group", fg.Name).Int("written", result.Written).
		Int("skipped", result.Skipped).Int("failed", result.Failed).
		Dur("elapsed", result.Elapsed).Msg("Group backfill complete")

	return result
}

// backfillDay evaluates the group as of one day and writes its return.
// Returns false (no error) when the day has no usable data.
func (b *Backfiller) backfillDay(fg FilterGroup, day time.Time) (bool, error) {
	// Pin indicator computation to the record date: strict point-in-time,
	// never peeking forward.
	cutoff := marketdata.NewCutoffPort(b.store, day)
	evaluator := dsl.NewEvaluator(b.inds.WithPort(cutoff), b.cacheOnlySource(), b.log)

	correlationID := "backfill-" + uuid.NewString()
	fragment, err := evaluator.EvaluateFragment(fg.Node, correlationID, day)
	if err != nil {
		return false, fmt.Errorf("group body evaluation: %w", err)
	}

	dailyReturn, selections, ok, err := b.weightedDailyReturn(fragment, day)
	if err != nil {
		return false, err
	}
	if !ok {
		// No symbol had usable data: skip, don't cache
		return false, nil
	}

	if err := b.repo.WriteHistoricalReturn(DeriveGroupID(fg.Name), day, fg.Name, selections, dailyReturn); err != nil {
		return false, err
	}
	return true, nil
}

// weightedDailyReturn computes the group's return for one day: the
// weight-weighted average of per-symbol close-over-close returns, with
// weights renormalized over symbols that produced a return. Symbols lacking
// data are excluded, not zero-filled.
func (b *Backfiller) weightedDailyReturn(fragment *dsl.PortfolioFragment, day time.Time) (decimal.Decimal, map[string]string, bool, error) {
	selections := make(map[string]string, len(fragment.Weights))
	weightedSum := decimal.Zero
	totalWeight := decimal.Zero

	for _, symbol := range fragment.SortedSymbols() {
		weight := fragment.Weights[symbol]
		if !weight.IsPositive() {
			continue
		}
		selections[symbol] = weight.String()

		bars, err := b.store.GetBarsUpTo(symbol, 2, day)
		if err != nil {
			return decimal.Zero, nil, false, fmt.Errorf("bars for %s: %w", symbol, err)
		}
		if len(bars) < 2 {
			// Not enough history for this symbol that day
			continue
		}

		prev, curr := bars[0].Close, bars[1].Close
		if prev.IsZero() {
			// Treated as no data for this day, never a division error
			continue
		}

		ret := curr.Sub(prev).Div(prev)
		weightedSum = weightedSum.Add(weight.Mul(ret))
		totalWeight = totalWeight.Add(weight)
	}

	if totalWeight.IsZero() {
		return decimal.Zero, nil, false, nil
	}

	return weightedSum.Div(totalWeight), selections, true, nil
}

// cacheOnlySource builds the return source used while evaluating group
// bodies during backfill. It reads the cache without on-demand fallback;
// deepest-first ordering means inner groups are already cached by the time
// outer bodies need them.
func (b *Backfiller) cacheOnlySource() dsl.GroupReturnSource {
	return &repoSource{repo: b.repo}
}

type repoSource struct {
	repo *Repository
}

func (s *repoSource) HistoricalReturns(groupName string, lookbackDays int, endDate time.Time) ([]dsl.DatedReturn, error) {
	return s.repo.LookupHistoricalReturns(DeriveGroupID(groupName), lookbackDays, endDate)
}

// tradingDays lists the lookback trading weekdays ending at endDate
// (inclusive when endDate is a weekday), oldest first.
func tradingDays(endDate time.Time, lookback int) []time.Time {
	days := make([]time.Time, 0, lookback)
	day := time.Date(endDate.Year(), endDate.Month(), endDate.Day(), 0, 0, 0, 0, time.UTC)
	for len(days) < lookback {
		if day.Weekday() != time.Saturday && day.Weekday() != time.Sunday {
			days = append(days, day)
		}
		day = day.AddDate(0, 0, -1)
	}

	// Collected newest first; reverse to oldest first for readable logs
	for i, j := 0, len(days)-1; i < j; i, j = i+1, j-1 {
		days[i], days[j] = days[j], days[i]
	}
	return days
}
