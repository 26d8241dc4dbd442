package events

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusEmitDispatchesToSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received []*Event
	bus.Subscribe(StrategyEvaluated, func(event *Event) {
		received = append(received, event)
	})

	bus.Emit(StrategyEvaluated, "engine", map[string]interface{}{"strategy_id": "momentum"})

	require.Len(t, received, 1)
	assert.Equal(t, StrategyEvaluated, received[0].Type)
	assert.Equal(t, "engine", received[0].Module)
	assert.Equal(t, "momentum", received[0].Data["strategy_id"])
	assert.False(t, received[0].Timestamp.IsZero())
}

func TestBusEmitOnlyMatchingType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	calls := 0
	bus.Subscribe(BackfillStarted, func(event *Event) { calls++ })

	bus.Emit(StrategyEvaluated, "engine", nil)
	assert.Equal(t, 0, calls)

	bus.Emit(BackfillStarted, "scheduler", nil)
	assert.Equal(t, 1, calls)
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	first, second := 0, 0
	bus.Subscribe(ErrorOccurred, func(event *Event) { first++ })
	bus.Subscribe(ErrorOccurred, func(event *Event) { second++ })

	bus.Emit(ErrorOccurred, "engine", nil)
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestManagerEmitTypedRoundTrip(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var received *Event
	bus.Subscribe(StrategyEvaluated, func(event *Event) { received = event })

	manager.EmitTyped(StrategyEvaluated, "engine", &StrategyEvaluatedData{
		CorrelationID: "corr-1",
		StrategyID:    "momentum",
		Success:       true,
		TargetWeights: map[string]string{"SPY": "0.6", "BIL": "0.4"},
		Decisions:     3,
		AsOf:          "2026-08-28",
	})

	require.NotNil(t, received)

	typed := received.GetTypedData()
	require.NotNil(t, typed)
	data, ok := typed.(*StrategyEvaluatedData)
	require.True(t, ok)

	assert.Equal(t, "corr-1", data.CorrelationID)
	assert.Equal(t, "momentum", data.StrategyID)
	assert.True(t, data.Success)
	assert.Equal(t, "0.6", data.TargetWeights["SPY"])
	assert.Equal(t, 3, data.Decisions)
}

func TestManagerEmitError(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var received *Event
	bus.Subscribe(ErrorOccurred, func(event *Event) { received = event })

	manager.EmitError("engine", errors.New("strategy file missing"),
		map[string]interface{}{"strategy_id": "momentum"})

	require.NotNil(t, received)
	data, ok := received.GetTypedData().(*ErrorEventData)
	require.True(t, ok)
	assert.Equal(t, "strategy file missing", data.Error)
	assert.Equal(t, "momentum", data.Context["strategy_id"])
}

func TestGetTypedDataNilForEmptyData(t *testing.T) {
	event := &Event{Type: StrategyEvaluated}
	assert.Nil(t, event.GetTypedData())
}

func TestEventDataTypesMatchConstants(t *testing.T) {
	cases := []struct {
		data EventData
		want EventType
	}{
		{&StrategyEvaluationRequestedData{}, StrategyEvaluationRequested},
		{&StrategyEvaluatedData{}, StrategyEvaluated},
		{&PortfolioAllocationProducedData{}, PortfolioAllocationProduced},
		{&DecisionEvaluatedData{}, DecisionEvaluated},
		{&BackfillStartedData{}, BackfillStarted},
		{&BackfillCompletedData{}, BackfillCompleted},
		{&StrategyFilesSyncedData{}, StrategyFilesSynced},
		{&BarsLoadedData{}, BarsLoaded},
		{&ErrorEventData{}, ErrorOccurred},
		{&SystemStatusChangedData{}, SystemStatusChanged},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.data.EventType())
	}
}

func TestAllTypesCoversEveryConstant(t *testing.T) {
	types := AllTypes()
	assert.Contains(t, types, StrategyEvaluationRequested)
	assert.Contains(t, types, PortfolioAllocationProduced)
	assert.Contains(t, types, DecisionEvaluated)
	assert.Contains(t, types, ErrorOccurred)
}
