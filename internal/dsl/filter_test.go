package dsl

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeatReturns(value float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

func TestFilterSelectTopGroupByCumulativeReturn(t *testing.T) {
	e := newTestEvaluator(t, nil, map[string][]float64{
		"Alpha": repeatReturns(0.01, 10),
		"Beta":  repeatReturns(0.02, 10),
	})

	alloc, _, err := evaluate(t, e, `
(filter (cumulative-return {:window 3})
  (select-top 1)
  [(group "Alpha" (asset "AAA"))
   (group "Beta" (asset "BBB"))])`)
	require.NoError(t, err)

	require.Len(t, alloc.TargetWeights, 1)
	assert.True(t, alloc.TargetWeights["BBB"].Equal(decimal.NewFromInt(1)))
}

func TestFilterSelectBottomPicksLowest(t *testing.T) {
	e := newTestEvaluator(t, nil, map[string][]float64{
		"Alpha": repeatReturns(0.01, 10),
		"Beta":  repeatReturns(0.02, 10),
	})

	alloc, _, err := evaluate(t, e, `
(filter (cumulative-return {:window 3})
  (select-bottom 1)
  [(group "Alpha" (asset "AAA"))
   (group "Beta" (asset "BBB"))])`)
	require.NoError(t, err)

	require.Len(t, alloc.TargetWeights, 1)
	assert.True(t, alloc.TargetWeights["AAA"].Equal(decimal.NewFromInt(1)))
}

func TestFilterTieKeepsSourceOrder(t *testing.T) {
	e := newTestEvaluator(t, nil, map[string][]float64{
		"First":  repeatReturns(0.015, 10),
		"Second": repeatReturns(0.015, 10),
		"Third":  repeatReturns(0.015, 10),
	})

	alloc, _, err := evaluate(t, e, `
(filter (cumulative-return {:window 3})
  (select-top 2)
  [(group "First" (asset "AAA"))
   (group "Second" (asset "BBB"))
   (group "Third" (asset "CCC"))])`)
	require.NoError(t, err)

	require.Len(t, alloc.TargetWeights, 2)
	assert.Contains(t, alloc.TargetWeights, "AAA")
	assert.Contains(t, alloc.TargetWeights, "BBB")
	assert.NotContains(t, alloc.TargetWeights, "CCC")
}

func TestFilterSelectionCountClampsToCandidates(t *testing.T) {
	e := newTestEvaluator(t, nil, map[string][]float64{
		"Alpha": repeatReturns(0.01, 10),
		"Beta":  repeatReturns(0.02, 10),
	})

	alloc, _, err := evaluate(t, e, `
(filter (cumulative-return {:window 3})
  (select-top 5)
  [(group "Alpha" (asset "AAA"))
   (group "Beta" (asset "BBB"))])`)
	require.NoError(t, err)

	half := decimal.RequireFromString("0.5")
	require.Len(t, alloc.TargetWeights, 2)
	assert.True(t, alloc.TargetWeights["AAA"].Equal(half))
	assert.True(t, alloc.TargetWeights["BBB"].Equal(half))
}

func TestFilterAssetCandidatesRankByPriceHistory(t *testing.T) {
	e := newTestEvaluator(t, map[string][]float64{
		"AAA": {100, 101, 102},
		"BBB": {100, 105, 110},
	}, nil)

	alloc, _, err := evaluate(t, e, `
(filter (cumulative-return {:window 2})
  (select-top 1)
  [(asset "AAA") (asset "BBB")])`)
	require.NoError(t, err)

	require.Len(t, alloc.TargetWeights, 1)
	assert.True(t, alloc.TargetWeights["BBB"].Equal(decimal.NewFromInt(1)))
}

func TestFilterRanksMixedGroupAndAssetCandidates(t *testing.T) {
	// Groups score from their cached return series, assets from their own
	// price history; a mixed vector compares the two under one metric.
	e := newTestEvaluator(t, map[string][]float64{
		"BBB": {100, 105, 110},
	}, map[string][]float64{
		"Alpha": repeatReturns(0.01, 10),
	})

	alloc, _, err := evaluate(t, e, `
(filter (cumulative-return {:window 2})
  (select-top 1)
  [(group "Alpha" (asset "AAA"))
   (asset "BBB")])`)
	require.NoError(t, err)

	// Alpha compounds to ~2% over the window; BBB's prices gained 10%.
	require.Len(t, alloc.TargetWeights, 1)
	assert.True(t, alloc.TargetWeights["BBB"].Equal(decimal.NewFromInt(1)))
}

func TestStandaloneSelectTopWithMetric(t *testing.T) {
	e := newTestEvaluator(t, nil, map[string][]float64{
		"Alpha": repeatReturns(0.01, 10),
		"Beta":  repeatReturns(0.03, 10),
	})

	alloc, _, err := evaluate(t, e, `
(select-top 1 (moving-average-return {:window 3})
  [(group "Alpha" (asset "AAA"))
   (group "Beta" (asset "BBB"))])`)
	require.NoError(t, err)

	require.Len(t, alloc.TargetWeights, 1)
	assert.True(t, alloc.TargetWeights["BBB"].Equal(decimal.NewFromInt(1)))
}

func TestStandaloneSelectTopDefaultsToCumulativeReturn(t *testing.T) {
	// Two-argument form ranks by cumulative return over a 30-day window.
	e := newTestEvaluator(t, nil, map[string][]float64{
		"Alpha": repeatReturns(0.001, 40),
		"Beta":  repeatReturns(0.002, 40),
	})

	alloc, _, err := evaluate(t, e, `
(select-top 1
  [(group "Alpha" (asset "AAA"))
   (group "Beta" (asset "BBB"))])`)
	require.NoError(t, err)

	require.Len(t, alloc.TargetWeights, 1)
	assert.True(t, alloc.TargetWeights["BBB"].Equal(decimal.NewFromInt(1)))
}

func TestStandaloneSelectBottom(t *testing.T) {
	e := newTestEvaluator(t, nil, map[string][]float64{
		"Alpha": repeatReturns(0.01, 10),
		"Beta":  repeatReturns(0.03, 10),
	})

	alloc, _, err := evaluate(t, e, `
(select-bottom 1 (stdev-return {:window 3})
  [(group "Alpha" (asset "AAA"))
   (group "Beta" (asset "BBB"))])`)
	require.NoError(t, err)

	// Constant return series have zero stdev; the tie keeps source order.
	require.Len(t, alloc.TargetWeights, 1)
	assert.Contains(t, alloc.TargetWeights, "AAA")
}

func TestFilterPriceMetricCannotRankGroups(t *testing.T) {
	e := newTestEvaluator(t, nil, map[string][]float64{
		"Alpha": repeatReturns(0.01, 10),
	})

	_, _, err := evaluate(t, e, `
(filter (rsi {:window 5})
  (select-top 1)
  [(group "Alpha" (asset "AAA"))])`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot rank group portfolios")
}

func TestFilterInsufficientCachedReturns(t *testing.T) {
	e := newTestEvaluator(t, nil, map[string][]float64{
		"Alpha": {0.01},
	})

	_, _, err := evaluate(t, e, `
(filter (cumulative-return {:window 5})
  (select-top 1)
  [(group "Alpha" (asset "AAA"))])`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cached returns")
}

func TestFilterRejectsNonPositiveCount(t *testing.T) {
	e := newTestEvaluator(t, nil, map[string][]float64{
		"Alpha": repeatReturns(0.01, 10),
	})

	_, _, err := evaluate(t, e, `
(filter (cumulative-return {:window 3})
  (select-top 0)
  [(group "Alpha" (asset "AAA"))])`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")
}

func TestFilterRejectsEmptyCandidates(t *testing.T) {
	e := newTestEvaluator(t, nil, nil)

	_, _, err := evaluate(t, e, `
(filter (cumulative-return {:window 3}) (select-top 1) [])`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
}

func TestFilterSelectedGroupBodyEvaluates(t *testing.T) {
	// The winning group's body is evaluated after selection; a multi-asset
	// body lands with its internal weighting intact.
	e := newTestEvaluator(t, nil, map[string][]float64{
		"Alpha": repeatReturns(0.01, 10),
		"Beta":  repeatReturns(0.02, 10),
	})

	alloc, _, err := evaluate(t, e, `
(filter (cumulative-return {:window 3})
  (select-top 1)
  [(group "Alpha" (asset "AAA"))
   (group "Beta" (weight-equal [(asset "BBB") (asset "CCC")]))])`)
	require.NoError(t, err)

	half := decimal.RequireFromString("0.5")
	require.Len(t, alloc.TargetWeights, 2)
	assert.True(t, alloc.TargetWeights["BBB"].Equal(half))
	assert.True(t, alloc.TargetWeights["CCC"].Equal(half))
}
