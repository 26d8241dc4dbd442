package groupcache

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/dsl"
)

// CachedReturnSource serves group return series to the evaluator from the
// cache, backfilling on demand when coverage falls short. Groups must be
// registered (from strategy discovery) before their bodies can be
// re-evaluated; an unregistered group is served cache-only.
type CachedReturnSource struct {
	repo       *Repository
	backfiller *Backfiller
	log        zerolog.Logger

	mu     sync.RWMutex
	groups map[string]FilterGroup // keyed by group name
}

// NewCachedReturnSource creates a source over repo with backfill fallback
func NewCachedReturnSource(repo *Repository, backfiller *Backfiller, log zerolog.Logger) *CachedReturnSource {
	return &CachedReturnSource{
		repo:       repo,
		backfiller: backfiller,
		log:        log.With().Str("component", "group_returns").Logger(),
		groups:     make(map[string]FilterGroup),
	}
}

// Register makes the discovered groups eligible for on-demand backfill.
// Call it once per strategy load, before evaluation.
func (s *CachedReturnSource) Register(groups []FilterGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range groups {
		s.groups[g.Name] = g
	}
}

// HistoricalReturns satisfies dsl.GroupReturnSource. When the cache holds
// fewer days than requested and the group's body is known, the missing
// window is backfilled inline before re-reading.
func (s *CachedReturnSource) HistoricalReturns(groupName string, lookbackDays int, endDate time.Time) ([]dsl.DatedReturn, error) {
	groupID := DeriveGroupID(groupName)

	returns, err := s.repo.LookupHistoricalReturns(groupID, lookbackDays, endDate)
	if err != nil {
		return nil, err
	}
	// Callers ask for twice the window they need as headroom, and market
	// holidays leave permanent gaps in the window. Half coverage of the
	// request is enough; refilling those gaps on every evaluation would
	// re-run the whole backfill for nothing.
	if len(returns) >= minCoverage(lookbackDays) {
		return returns, nil
	}

	s.mu.RLock()
	fg, known := s.groups[groupName]
	s.mu.RUnlock()
	if !known {
		// Nothing to evaluate from: serve whatever the cache holds
		return returns, nil
	}

	s.log.Info().Str("group", groupName).Int("cached", len(returns)).
		Int("requested", lookbackDays).Msg("Cache coverage short, backfilling on demand")

	result := s.backfiller.BackfillGroup(fg, lookbackDays, endDate)
	if result.Written == 0 && result.Failed > 0 {
		s.log.Warn().Str("group", groupName).Int("failed", result.Failed).
			Msg("On-demand backfill produced no new days")
	}

	return s.repo.LookupHistoricalReturns(groupID, lookbackDays, endDate)
}

func minCoverage(lookbackDays int) int {
	return (lookbackDays + 1) / 2
}
