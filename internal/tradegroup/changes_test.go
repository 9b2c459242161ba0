package tradegroup

import (
	"context"
	"testing"
	"time"

	"tradehook/internal/alert"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDetectChanges(t *testing.T) {
	groupID := "ETHUSDT-LONG-20260301100000-AAAAAAAA"
	seq := []Record{
		{GroupID: groupID, AlertType: alert.TypeEntry, StopLoss: alert.Float(1900), TakeProfit: alert.Float(2100), Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{GroupID: groupID, AlertType: alert.TypePartial, Timestamp: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)},
	}

	newService := func() *Service {
		history := new(MockHistory)
		history.On("GroupAlerts", mock.Anything, groupID).Return(seq, nil)
		return newTestService(history, DefaultSymbolConfig)
	}

	t.Run("moved stop loss", func(t *testing.T) {
		cs, err := newService().DetectChanges(context.Background(), groupID, alert.Float(1950), alert.Float(2100))
		require.NoError(t, err)
		assert.True(t, cs.StopLossChanged)
		assert.False(t, cs.TakeProfitChanged)
		require.NotNil(t, cs.PrevStopLoss)
		assert.Equal(t, 1900.0, *cs.PrevStopLoss)
	})

	t.Run("unchanged values", func(t *testing.T) {
		cs, err := newService().DetectChanges(context.Background(), groupID, alert.Float(1900), alert.Float(2100))
		require.NoError(t, err)
		assert.False(t, cs.StopLossChanged)
		assert.False(t, cs.TakeProfitChanged)
	})

	t.Run("sub epsilon move is not a change", func(t *testing.T) {
		cs, err := newService().DetectChanges(context.Background(), groupID, alert.Float(1900.00005), nil)
		require.NoError(t, err)
		assert.False(t, cs.StopLossChanged)
	})

	t.Run("disappearing value is not a change", func(t *testing.T) {
		cs, err := newService().DetectChanges(context.Background(), groupID, nil, nil)
		require.NoError(t, err)
		assert.False(t, cs.StopLossChanged)
		assert.False(t, cs.TakeProfitChanged)
	})

	t.Run("newly appearing value is a change", func(t *testing.T) {
		history := new(MockHistory)
		history.On("GroupAlerts", mock.Anything, groupID).Return([]Record{
			{GroupID: groupID, AlertType: alert.TypeEntry},
		}, nil)
		svc := newTestService(history, DefaultSymbolConfig)

		cs, err := svc.DetectChanges(context.Background(), groupID, alert.Float(1950), nil)
		require.NoError(t, err)
		assert.True(t, cs.StopLossChanged)
		assert.Nil(t, cs.PrevStopLoss)
	})

	t.Run("latest prior value wins", func(t *testing.T) {
		history := new(MockHistory)
		history.On("GroupAlerts", mock.Anything, groupID).Return([]Record{
			{GroupID: groupID, AlertType: alert.TypeEntry, StopLoss: alert.Float(1900)},
			{GroupID: groupID, AlertType: alert.TypePartial, StopLoss: alert.Float(1950)},
		}, nil)
		svc := newTestService(history, DefaultSymbolConfig)

		cs, err := svc.DetectChanges(context.Background(), groupID, alert.Float(1950), nil)
		require.NoError(t, err)
		assert.False(t, cs.StopLossChanged)
		require.NotNil(t, cs.PrevStopLoss)
		assert.Equal(t, 1950.0, *cs.PrevStopLoss)
	})
}
