package tradegroup

import (
	"context"
	"regexp"
	"testing"
	"time"

	"tradehook/internal/alert"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) RecentAlerts(ctx context.Context, userID int64, symbol, direction string, since time.Time) ([]Record, error) {
	args := m.Called(ctx, userID, symbol, direction, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Record), args.Error(1)
}

func (m *MockHistory) GroupAlerts(ctx context.Context, groupID string) ([]Record, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Record), args.Error(1)
}

type fixedConfig struct {
	cfg SymbolConfig
}

func (f fixedConfig) Get(ctx context.Context, userID int64, symbol, broker string) (SymbolConfig, error) {
	return f.cfg, nil
}

func newTestService(history HistoryQuery, cfg SymbolConfig) *Service {
	s := NewService(history, fixedConfig{cfg})
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

var groupIDPattern = regexp.MustCompile(`^BTCUSDT-LONG-20260301120000-[0-9A-F]{8}$`)

func entryAlert() *alert.Normalized {
	return &alert.Normalized{
		Symbol:         "BTCUSDT",
		Action:         "buy",
		OrderType:      "enter_long",
		AlertType:      alert.TypeEntry,
		OrderPrice:     alert.Float(42000),
		MarketPosition: "long",
	}
}

func TestDetermine_EntryMintsNewGroup(t *testing.T) {
	svc := newTestService(new(MockHistory), DefaultSymbolConfig)

	res, err := svc.Determine(context.Background(), 1, "test", entryAlert())
	require.NoError(t, err)
	assert.True(t, res.IsNewGroup)
	assert.Equal(t, "long", res.Direction)
	assert.Regexp(t, groupIDPattern, res.GroupID)
	require.NotNil(t, res.EntryPrice)
	assert.Equal(t, 42000.0, *res.EntryPrice)
}

func TestDetermine_ConsecutiveEntriesGetDistinctIDs(t *testing.T) {
	svc := newTestService(new(MockHistory), DefaultSymbolConfig)

	first, err := svc.Determine(context.Background(), 1, "test", entryAlert())
	require.NoError(t, err)
	second, err := svc.Determine(context.Background(), 1, "test", entryAlert())
	require.NoError(t, err)
	assert.NotEqual(t, first.GroupID, second.GroupID)
}

func TestDetermine_ExitMatchesActiveGroup(t *testing.T) {
	history := new(MockHistory)
	svc := newTestService(history, DefaultSymbolConfig)

	groupID := "BTCUSDT-LONG-20260301100000-AABBCCDD"
	open := []Record{{
		GroupID:      groupID,
		Symbol:       "BTCUSDT",
		Direction:    "long",
		AlertType:    alert.TypeEntry,
		OrderPrice:   alert.Float(41000),
		PositionSize: alert.Float(1),
		Timestamp:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}}
	history.On("RecentAlerts", mock.Anything, int64(1), "BTCUSDT", "long", mock.Anything).Return(open, nil)
	history.On("GroupAlerts", mock.Anything, groupID).Return(open, nil)

	res, err := svc.Determine(context.Background(), 1, "test", &alert.Normalized{
		Symbol:         "BTCUSDT",
		Action:         "sell",
		OrderType:      "exit_long",
		AlertType:      alert.TypeExit,
		OrderPrice:     alert.Float(43000),
		MarketPosition: "flat",
	})
	require.NoError(t, err)
	assert.Equal(t, groupID, res.GroupID)
	assert.False(t, res.IsNewGroup)
	require.NotNil(t, res.EntryPrice)
	assert.Equal(t, 41000.0, *res.EntryPrice)
}

func TestDetermine_ExitSkipsClosedGroups(t *testing.T) {
	history := new(MockHistory)
	svc := newTestService(history, DefaultSymbolConfig)

	closedID := "BTCUSDT-LONG-20260301090000-11111111"
	closed := []Record{
		{GroupID: closedID, Symbol: "BTCUSDT", Direction: "long", AlertType: alert.TypeEntry, Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		{GroupID: closedID, Symbol: "BTCUSDT", Direction: "long", AlertType: alert.TypeExit, Timestamp: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)},
	}
	history.On("RecentAlerts", mock.Anything, int64(1), "BTCUSDT", "long", mock.Anything).Return(closed[:1], nil)
	history.On("GroupAlerts", mock.Anything, closedID).Return(closed, nil)

	res, err := svc.Determine(context.Background(), 1, "test", &alert.Normalized{
		Symbol:    "BTCUSDT",
		OrderType: "exit_long",
		AlertType: alert.TypeExit,
	})
	require.NoError(t, err)
	// No open candidate: an orphan group is synthesized, never a drop.
	assert.NotEqual(t, closedID, res.GroupID)
	assert.Regexp(t, groupIDPattern, res.GroupID)
	assert.False(t, res.IsNewGroup)
}

func TestDetermine_SizeMatchDisambiguates(t *testing.T) {
	history := new(MockHistory)
	svc := newTestService(history, DefaultSymbolConfig)

	groupA := "BTCUSDT-LONG-20260301080000-AAAAAAAA"
	groupB := "BTCUSDT-LONG-20260301090000-BBBBBBBB"
	recA := Record{GroupID: groupA, Symbol: "BTCUSDT", Direction: "long", AlertType: alert.TypeEntry, PositionSize: alert.Float(2), Timestamp: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	recB := Record{GroupID: groupB, Symbol: "BTCUSDT", Direction: "long", AlertType: alert.TypeEntry, PositionSize: alert.Float(5), Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	history.On("RecentAlerts", mock.Anything, int64(1), "BTCUSDT", "long", mock.Anything).Return([]Record{recB, recA}, nil)
	history.On("GroupAlerts", mock.Anything, groupA).Return([]Record{recA}, nil)
	history.On("GroupAlerts", mock.Anything, groupB).Return([]Record{recB}, nil)

	res, err := svc.Determine(context.Background(), 1, "test", &alert.Normalized{
		Symbol:       "BTCUSDT",
		OrderType:    "exit_long",
		AlertType:    alert.TypeExit,
		PositionSize: alert.Float(2.00005),
	})
	require.NoError(t, err)
	assert.Equal(t, groupA, res.GroupID)
}

func TestDetermine_TimestampProximityDisambiguates(t *testing.T) {
	history := new(MockHistory)
	svc := newTestService(history, DefaultSymbolConfig)

	groupA := "BTCUSDT-LONG-20260301080000-AAAAAAAA"
	groupB := "BTCUSDT-LONG-20260301113000-BBBBBBBB"
	recA := Record{GroupID: groupA, Symbol: "BTCUSDT", Direction: "long", AlertType: alert.TypeEntry, Timestamp: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	recB := Record{GroupID: groupB, Symbol: "BTCUSDT", Direction: "long", AlertType: alert.TypeEntry, Timestamp: time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)}

	history.On("RecentAlerts", mock.Anything, int64(1), "BTCUSDT", "long", mock.Anything).Return([]Record{recB, recA}, nil)
	history.On("GroupAlerts", mock.Anything, groupA).Return([]Record{recA}, nil)
	history.On("GroupAlerts", mock.Anything, groupB).Return([]Record{recB}, nil)

	res, err := svc.Determine(context.Background(), 1, "test", &alert.Normalized{
		Symbol:    "BTCUSDT",
		OrderType: "exit_long",
		AlertType: alert.TypeExit,
		Timestamp: time.Date(2026, 3, 1, 11, 45, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, groupB, res.GroupID)
}

func TestDetermine_OppositeDirectionProbe(t *testing.T) {
	history := new(MockHistory)
	svc := newTestService(history, DefaultSymbolConfig)

	shortID := "BTCUSDT-SHORT-20260301100000-CCCCCCCC"
	shortRec := Record{GroupID: shortID, Symbol: "BTCUSDT", Direction: "short", AlertType: alert.TypeEntry, Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}

	// Direction was only inferred from market_position, so the empty
	// long side triggers a probe of the short side.
	history.On("RecentAlerts", mock.Anything, int64(1), "BTCUSDT", "long", mock.Anything).Return([]Record{}, nil)
	history.On("RecentAlerts", mock.Anything, int64(1), "BTCUSDT", "short", mock.Anything).Return([]Record{shortRec}, nil)
	history.On("GroupAlerts", mock.Anything, shortID).Return([]Record{shortRec}, nil)

	res, err := svc.Determine(context.Background(), 1, "test", &alert.Normalized{
		Symbol:         "BTCUSDT",
		AlertType:      alert.TypeStopLoss,
		MarketPosition: "long",
	})
	require.NoError(t, err)
	assert.Equal(t, shortID, res.GroupID)
	assert.Equal(t, "short", res.Direction)
}

func TestDetermine_ReversalClosesPreviousDirection(t *testing.T) {
	history := new(MockHistory)
	svc := newTestService(history, DefaultSymbolConfig)

	longID := "BTCUSDT-LONG-20260301100000-DDDDDDDD"
	longRec := Record{GroupID: longID, Symbol: "BTCUSDT", Direction: "long", AlertType: alert.TypeEntry, Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	history.On("RecentAlerts", mock.Anything, int64(1), "BTCUSDT", "long", mock.Anything).Return([]Record{longRec}, nil)
	history.On("GroupAlerts", mock.Anything, longID).Return([]Record{longRec}, nil)

	res, err := svc.Determine(context.Background(), 1, "test", &alert.Normalized{
		Symbol:             "BTCUSDT",
		Action:             "sell",
		PrevMarketPosition: "long",
		MarketPosition:     "short",
	})
	require.NoError(t, err)
	assert.Equal(t, longID, res.GroupID)
	assert.Equal(t, "long", res.Direction)
}

func TestDetermine_NoDirectionLeavesUngrouped(t *testing.T) {
	svc := newTestService(new(MockHistory), DefaultSymbolConfig)

	res, err := svc.Determine(context.Background(), 1, "test", &alert.Normalized{Symbol: "BTCUSDT"})
	require.NoError(t, err)
	assert.Empty(t, res.GroupID)
	assert.Empty(t, res.Direction)
}

func TestResolveIntent(t *testing.T) {
	tests := []struct {
		name    string
		n       alert.Normalized
		wantDir string
		entry   bool
		exit    bool
	}{
		{"order type long entry", alert.Normalized{OrderType: "enter_long", AlertType: alert.TypeEntry}, "long", true, false},
		{"order type short exit", alert.Normalized{OrderType: "exit_short", AlertType: alert.TypeExit}, "short", false, true},
		{"flat to long transition", alert.Normalized{PrevMarketPosition: "flat", MarketPosition: "long"}, "long", true, false},
		{"long to flat transition", alert.Normalized{PrevMarketPosition: "long", MarketPosition: "flat"}, "long", false, true},
		{"market position alone", alert.Normalized{MarketPosition: "short", AlertType: alert.TypeTP1}, "short", false, true},
		{"buy action fallback", alert.Normalized{Action: "buy"}, "long", true, false},
		{"sell action fallback", alert.Normalized{Action: "sell"}, "short", true, false},
		{"nothing", alert.Normalized{}, "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := resolveIntent(&tt.n)
			assert.Equal(t, tt.wantDir, it.direction)
			assert.Equal(t, tt.entry, it.isEntry)
			assert.Equal(t, tt.exit, it.isExit)
		})
	}
}
