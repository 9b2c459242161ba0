package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_BasicStrategyPayload(t *testing.T) {
	n := Normalize(map[string]any{
		"symbol":          "btcusdt",
		"action":          "Buy",
		"order_type":      "enter_long",
		"order_price":     "42000.5",
		"order_contracts": 0.5,
		"market_position": "long",
		"position_size":   0.5,
	})

	assert.Equal(t, "BTCUSDT", n.Symbol)
	assert.Equal(t, "buy", n.Action)
	assert.Equal(t, "enter_long", n.OrderType)
	assert.Equal(t, TypeEntry, n.AlertType)
	require.NotNil(t, n.OrderPrice)
	assert.Equal(t, 42000.5, *n.OrderPrice)
	require.NotNil(t, n.OrderContracts)
	assert.Equal(t, 0.5, *n.OrderContracts)
}

func TestNormalize_NilPayload(t *testing.T) {
	n := Normalize(nil)
	assert.Equal(t, TypeUnknown, n.AlertType)
	assert.Empty(t, n.Symbol)
	assert.Nil(t, n.OrderPrice)
}

func TestNormalize_ZeroIsNotAbsent(t *testing.T) {
	// position_size 0 must survive alias resolution; a truthiness check
	// would drop it and lose the closure signal.
	n := Normalize(map[string]any{
		"symbol":          "EURUSD",
		"position_size":   "0",
		"market_position": "flat",
		"order_type":      "exit_long",
	})
	require.NotNil(t, n.PositionSize)
	assert.Equal(t, 0.0, *n.PositionSize)
	assert.True(t, n.IsPositionClosed)
}

func TestNormalize_SubMessageFieldsMergeIn(t *testing.T) {
	n := Normalize(map[string]any{
		"symbol":              "ETHUSDT",
		"order_type":          "enter_short",
		"order_alert_message": `{"leverage": 10, "stop_loss_price": 2100.5, "tp_count": 3}`,
	})
	require.NotNil(t, n.Leverage)
	assert.Equal(t, 10.0, *n.Leverage)
	require.NotNil(t, n.StopLossPrice)
	assert.Equal(t, 2100.5, *n.StopLossPrice)
	require.NotNil(t, n.TPCount)
	assert.Equal(t, 3, *n.TPCount)
}

func TestNormalize_SubMessageStopLossWinsOverOuter(t *testing.T) {
	n := Normalize(map[string]any{
		"symbol":              "ETHUSDT",
		"order_type":          "enter_long",
		"stop_loss_price":     1900.0,
		"order_alert_message": `{"stop_loss_price": 1950.0}`,
	})
	require.NotNil(t, n.StopLossPrice)
	assert.Equal(t, 1950.0, *n.StopLossPrice)
}

func TestNormalize_OuterContractsWinOverSub(t *testing.T) {
	n := Normalize(map[string]any{
		"symbol":              "ETHUSDT",
		"order_type":          "enter_long",
		"contracts":           2.0,
		"order_alert_message": `{"order_contracts": 5}`,
	})
	require.NotNil(t, n.OrderContracts)
	assert.Equal(t, 2.0, *n.OrderContracts)
}

func TestNormalize_PlaceholderTreatedAsAbsent(t *testing.T) {
	n := Normalize(map[string]any{
		"symbol":      "{{ticker}}",
		"instrument":  "GBPUSD",
		"action":      "{{strategy.order.action}}",
		"order_type":  "enter_long",
		"order_price": "{{strategy.order.price}}",
	})
	assert.Equal(t, "GBPUSD", n.Symbol)
	assert.Empty(t, n.Action)
	assert.Nil(t, n.OrderPrice)
}

func TestNormalize_ExitStrategyFieldFallbacks(t *testing.T) {
	n := Normalize(map[string]any{
		"symbol":     "XAUUSD",
		"order_type": "enter_long",
		"exit_stop":  1900.0,
		"exit_limit": 2000.0,
	})
	require.NotNil(t, n.StopLossPrice)
	assert.Equal(t, 1900.0, *n.StopLossPrice)
	require.NotNil(t, n.TakeProfitPrice)
	assert.Equal(t, 2000.0, *n.TakeProfitPrice)
}

func TestNormalize_TPLevelAliases(t *testing.T) {
	n := Normalize(map[string]any{
		"symbol":           "NAS100",
		"order_type":       "enter_long",
		"take_profit_1":    100.0,
		"tp2":              200.0,
		"Long TP3 Price":   300.0,
		"take_profit_4":    "400",
		"TP5":              500.0,
	})
	for i, want := range []float64{100, 200, 300, 400, 500} {
		require.NotNil(t, n.TakeProfit(i+1), "level %d", i+1)
		assert.Equal(t, want, *n.TakeProfit(i+1))
	}
	// TakeProfitPrice falls back to the first level.
	require.NotNil(t, n.TakeProfitPrice)
	assert.Equal(t, 100.0, *n.TakeProfitPrice)
}

func TestNormalize_UnparsableNumericDegradesToAbsent(t *testing.T) {
	n := Normalize(map[string]any{
		"symbol":      "EURUSD",
		"order_type":  "enter_long",
		"order_price": "not-a-number",
		"leverage":    "NaN",
	})
	assert.Nil(t, n.OrderPrice)
	assert.Nil(t, n.Leverage)
	assert.Equal(t, TypeEntry, n.AlertType)
}

func TestNormalize_Timestamps(t *testing.T) {
	t.Run("RFC3339", func(t *testing.T) {
		n := Normalize(map[string]any{"timestamp": "2026-03-01T12:30:00Z"})
		assert.Equal(t, time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC), n.Timestamp)
	})
	t.Run("unix seconds", func(t *testing.T) {
		n := Normalize(map[string]any{"timestamp": 1767225600.0})
		assert.Equal(t, int64(1767225600), n.Timestamp.Unix())
	})
	t.Run("unix milliseconds", func(t *testing.T) {
		n := Normalize(map[string]any{"timestamp": 1767225600123.0})
		assert.Equal(t, int64(1767225600), n.Timestamp.Unix())
	})
	t.Run("garbage", func(t *testing.T) {
		n := Normalize(map[string]any{"timestamp": "yesterday"})
		assert.True(t, n.Timestamp.IsZero())
	})
}

func TestNormalize_PlotValuesCollected(t *testing.T) {
	n := Normalize(map[string]any{
		"symbol":              "BTCUSDT",
		"order_type":          "enter_long",
		"plot_0":              1.0,
		"plot_2":              "45000",
		"plot_x":              9.0,
		"order_alert_message": `{"plot_0": -1, "plot_3": 39000}`,
	})
	assert.Equal(t, 1.0, n.PlotValues["plot_0"]) // outer wins
	assert.Equal(t, 45000.0, n.PlotValues["plot_2"])
	assert.Equal(t, 39000.0, n.PlotValues["plot_3"])
	assert.NotContains(t, n.PlotValues, "plot_x")
}
