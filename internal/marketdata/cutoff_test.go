package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCutoffPortHidesFutureBars(t *testing.T) {
	store := newTestStore(t)
	for day := 24; day <= 28; day++ {
		require.NoError(t, store.UpsertBar(testBar("SPY", 2026, time.August, day, float64(day))))
	}

	asOf := time.Date(2026, time.August, 26, 0, 0, 0, 0, time.UTC)
	port := NewCutoffPort(store, asOf)

	bars, err := port.GetBars("SPY", 10)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, 26, bars[len(bars)-1].Timestamp.Day())

	latest, err := port.GetLatestBar("SPY")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 26, latest.Timestamp.Day())

	assert.Equal(t, asOf, port.AsOf())
}

func TestCutoffPortLatestBarMissingSymbol(t *testing.T) {
	store := newTestStore(t)
	port := NewCutoffPort(store, time.Date(2026, time.August, 26, 0, 0, 0, 0, time.UTC))

	latest, err := port.GetLatestBar("NOPE")
	require.NoError(t, err)
	assert.Nil(t, latest)
}
