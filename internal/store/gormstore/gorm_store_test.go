package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tradehook/internal/alert"
	"tradehook/internal/tradegroup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := NewGormStore(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(groupID string, at time.Time) AlertRecord {
	return AlertRecord{
		Record: tradegroup.Record{
			UserID:       1,
			Broker:       "test",
			Symbol:       "BTCUSDT",
			GroupID:      groupID,
			Direction:    "long",
			AlertType:    alert.TypeEntry,
			Level:        "ENTRY",
			OrderPrice:   alert.Float(42000),
			PositionSize: alert.Float(1),
			Timestamp:    at,
		},
		Action:     "buy",
		OrderType:  "enter_long",
		IsNewGroup: true,
		RawPayload: []byte(`{"symbol":"BTCUSDT"}`),
	}
}

func TestGormStore_AppendAndGroupAlerts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	groupID := "BTCUSDT-LONG-20260301100000-AABBCCDD"

	id, err := store.AppendAlert(ctx, sampleRecord(groupID, base))
	require.NoError(t, err)
	assert.Positive(t, id)

	exit := sampleRecord(groupID, base.Add(time.Hour))
	exit.AlertType = alert.TypeExit
	exit.Level = "EXIT"
	exit.PositionSize = alert.Float(0)
	exit.RealizedPnLPercent = alert.Float(5)
	_, err = store.AppendAlert(ctx, exit)
	require.NoError(t, err)

	seq, err := store.GroupAlerts(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, seq, 2)
	// Oldest first.
	assert.Equal(t, alert.TypeEntry, seq[0].AlertType)
	assert.Equal(t, alert.TypeExit, seq[1].AlertType)
	require.NotNil(t, seq[1].PositionSize)
	assert.Zero(t, *seq[1].PositionSize)
	require.NotNil(t, seq[1].RealizedPnLPercent)
	assert.Equal(t, 5.0, *seq[1].RealizedPnLPercent)
	assert.Equal(t, base, seq[0].Timestamp)
}

func TestGormStore_RecentAlerts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	old := sampleRecord("OLD-GROUP", base.Add(-10*24*time.Hour))
	_, err := store.AppendAlert(ctx, old)
	require.NoError(t, err)

	recent := sampleRecord("NEW-GROUP", base)
	_, err = store.AppendAlert(ctx, recent)
	require.NoError(t, err)

	short := sampleRecord("SHORT-GROUP", base)
	short.Direction = "short"
	_, err = store.AppendAlert(ctx, short)
	require.NoError(t, err)

	got, err := store.RecentAlerts(ctx, 1, "BTCUSDT", "long", base.Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "NEW-GROUP", got[0].GroupID)
}

func TestGormStore_ListAlerts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rec := sampleRecord("G1", base.Add(time.Duration(i)*time.Minute))
		if i == 2 {
			rec.Record.UserID = 2
		}
		_, err := store.AppendAlert(ctx, rec)
		require.NoError(t, err)
	}

	all, err := store.ListAlerts(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	// Newest first for the API.
	assert.True(t, all[0].Timestamp.After(all[2].Timestamp))

	mine, err := store.ListAlerts(ctx, ListFilter{UserID: 2})
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	assert.Equal(t, "buy", mine[0].Action)
	assert.JSONEq(t, `{"symbol":"BTCUSDT"}`, string(mine[0].RawPayload))

	limited, err := store.ListAlerts(ctx, ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestGormStore_EmptyPath(t *testing.T) {
	_, err := NewGormStore("")
	assert.Error(t, err)
}
