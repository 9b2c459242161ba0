package rawlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *RawLogStore {
	t.Helper()
	store, err := NewRawLogStore(filepath.Join(t.TempDir(), "rawlog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRawLogStore_RecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	id, err := store.Record(ctx, Entry{
		TS:         now,
		Broker:     "Test",
		Identifier: "hook-1",
		Body:       `{"symbol": "BTCUSDT"}`,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = store.Record(ctx, Entry{
		TS:         now + 1,
		Broker:     "test",
		Identifier: "hook-1",
		Body:       "garbage",
		ParseError: "body was not valid JSON",
	})
	require.NoError(t, err)

	all, err := store.Recent(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Newest first; broker stored lowercased.
	assert.Equal(t, "garbage", all[0].Body)
	assert.Equal(t, "test", all[1].Broker)

	failed, err := store.Recent(ctx, Query{OnlyFailed: true})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "garbage", failed[0].Body)

	none, err := store.Recent(ctx, Query{Broker: "other"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRawLogStore_ClosedStore(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())

	_, err := store.Record(context.Background(), Entry{Body: "x"})
	assert.Error(t, err)
	_, err = store.Recent(context.Background(), Query{})
	assert.Error(t, err)
}
