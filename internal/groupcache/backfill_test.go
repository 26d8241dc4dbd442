package groupcache

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/dsl"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/indicators"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/marketdata"
)

const testBarsSchema = `
CREATE TABLE IF NOT EXISTS bars (
    symbol      TEXT NOT NULL,
    ts          INTEGER NOT NULL,
    open        TEXT NOT NULL,
    high        TEXT NOT NULL,
    low         TEXT NOT NULL,
    close       TEXT NOT NULL,
    volume      INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (symbol, ts)
) STRICT;
`

func newTestBackfiller(t *testing.T) (*Backfiller, *marketdata.Store, *Repository) {
	t.Helper()

	barsDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { barsDB.Close() })
	_, err = barsDB.Exec(testBarsSchema)
	require.NoError(t, err)

	store := marketdata.NewStore(barsDB, zerolog.Nop())
	repo := newTestRepository(t)
	inds := indicators.NewService(store, zerolog.Nop())

	return NewBackfiller(repo, store, inds, zerolog.Nop()), store, repo
}

// seedCloses writes one bar per trading weekday ending at end, oldest close
// first in the closes slice.
func seedCloses(t *testing.T, store *marketdata.Store, symbol string, end time.Time, closes []float64) {
	t.Helper()

	days := make([]time.Time, 0, len(closes))
	day := end
	for len(days) < len(closes) {
		if day.Weekday() != time.Saturday && day.Weekday() != time.Sunday {
			days = append(days, day)
		}
		day = day.AddDate(0, 0, -1)
	}

	bars := make([]marketdata.Bar, 0, len(closes))
	for i, px := range closes {
		price := decimal.NewFromFloat(px)
		bars = append(bars, marketdata.Bar{
			Symbol:    symbol,
			Timestamp: days[len(days)-1-i],
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    1000,
		})
	}
	require.NoError(t, store.UpsertBars(bars))
}

func groupNode(t *testing.T, source string) FilterGroup {
	t.Helper()
	node, err := dsl.Parse(source)
	require.NoError(t, err)
	require.Equal(t, "group", node.Head())

	args := node.Args()
	require.NotEmpty(t, args)
	return FilterGroup{Name: args[0].Str, Node: node}
}

func TestBackfillGroupWritesDailyReturns(t *testing.T) {
	backfiller, store, repo := newTestBackfiller(t)

	end := utcDate(2026, time.August, 28) // Friday
	seedCloses(t, store, "SPY", end, []float64{100, 101, 102, 103, 104})

	fg := groupNode(t, `(group "Single" (asset "SPY"))`)
	result := backfiller.BackfillGroup(fg, 3, end)

	assert.Equal(t, 3, result.Written)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 0, result.Failed)

	series, err := repo.LookupHistoricalReturns(result.GroupID, 3, end)
	require.NoError(t, err)
	require.Len(t, series, 3)

	// Wednesday the 26th closed at 102 after 101.
	want := decimal.NewFromInt(1).Div(decimal.NewFromInt(101))
	assert.True(t, series[0].Return.Equal(want), "got %s", series[0].Return)
}

func TestBackfillGroupSkipsDaysWithoutData(t *testing.T) {
	backfiller, _, _ := newTestBackfiller(t)

	end := utcDate(2026, time.August, 28)
	fg := groupNode(t, `(group "Empty" (asset "NODATA"))`)
	result := backfiller.BackfillGroup(fg, 3, end)

	assert.Equal(t, 0, result.Written)
	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, 0, result.Failed)
}

func TestBackfillGroupRenormalizesOverCoveredSymbols(t *testing.T) {
	backfiller, store, repo := newTestBackfiller(t)

	end := utcDate(2026, time.August, 28)
	seedCloses(t, store, "SPY", end, []float64{100, 101, 102, 103, 104})
	// QQQ has no bars; its weight is excluded, not zero-filled.
	fg := groupNode(t, `(group "Mixed" (asset "SPY") (asset "QQQ"))`)

	result := backfiller.BackfillGroup(fg, 1, end)
	require.Equal(t, 1, result.Written)

	series, err := repo.LookupHistoricalReturns(result.GroupID, 1, end)
	require.NoError(t, err)
	require.Len(t, series, 1)

	// Friday: 104 after 103, full weight on the covered symbol.
	want := decimal.NewFromInt(1).Div(decimal.NewFromInt(103))
	assert.True(t, series[0].Return.Equal(want), "got %s", series[0].Return)

	selections, err := repo.GetSelections(result.GroupID, end)
	require.NoError(t, err)
	assert.Contains(t, selections, "SPY")
	assert.Contains(t, selections, "QQQ")
}

func TestBackfillGroupCountsFailedDays(t *testing.T) {
	backfiller, _, _ := newTestBackfiller(t)

	end := utcDate(2026, time.August, 28)
	// A group body that cannot evaluate fails every day without aborting.
	node, err := dsl.Parse(`(group "Broken" (weight-specified 1))`)
	require.NoError(t, err)
	fg := FilterGroup{Name: "Broken", Node: node}

	result := backfiller.BackfillGroup(fg, 3, end)
	assert.Equal(t, 0, result.Written)
	assert.Equal(t, 3, result.Failed)
}

func TestBackfillRunDiscoversAndVerifies(t *testing.T) {
	backfiller, store, repo := newTestBackfiller(t)

	end := utcDate(2026, time.August, 28)
	seedCloses(t, store, "AAA", end, []float64{100, 101, 102, 103, 104})
	seedCloses(t, store, "BBB", end, []float64{200, 198, 202, 204, 206})

	ast, err := dsl.Parse(`
(filter (cumulative-return {:window 3})
  (select-top 1)
  [(group "First" (asset "AAA"))
   (group "Second" (asset "BBB"))])`)
	require.NoError(t, err)

	summary, err := backfiller.Run(ast, 3, end)
	require.NoError(t, err)
	require.Len(t, summary.Groups, 2)
	assert.Equal(t, 6, summary.TotalWritten())

	for _, g := range summary.Groups {
		count, err := repo.CountInWindow(g.GroupID, 3, end)
		require.NoError(t, err)
		assert.Equal(t, g.Written, count)
	}
}

func TestBackfillRunNoFilterGroups(t *testing.T) {
	backfiller, _, _ := newTestBackfiller(t)

	ast, err := dsl.Parse(`(weight-equal [(asset "SPY")])`)
	require.NoError(t, err)

	summary, err := backfiller.Run(ast, 5, utcDate(2026, time.August, 28))
	require.NoError(t, err)
	assert.Empty(t, summary.Groups)
	assert.Equal(t, 0, summary.TotalWritten())
}
