package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekit/internal/ir"
)

func TestFilter_CompileEmpty(t *testing.T) {
	query, params := Filter{}.compile()
	assert.Equal(t,
		"SELECT seq, kind, store, type, key, digest, payload, error, request_id FROM entries WHERE 1 = 1 ORDER BY run_id COLLATE BINARY ASC, seq ASC",
		query)
	assert.Empty(t, params)
}

func TestFilter_CompileBindsEveryValue(t *testing.T) {
	f := Filter{
		Run:       "run-1",
		Kind:      ir.KindFetchStart,
		Store:     "modules/analytics-4",
		KeyPrefix: `{"propertyID":`,
		Limit:     10,
	}
	query, params := f.compile()

	assert.Contains(t, query, "run_id = ? AND kind = ? AND store = ? AND substr(key, 1, length(?)) = ?")
	assert.Contains(t, query, "ORDER BY run_id COLLATE BINARY ASC, seq ASC LIMIT ?")
	assert.NotContains(t, query, "run-1")
	assert.Equal(t, []any{"run-1", "fetch_start", "modules/analytics-4", `{"propertyID":`, `{"propertyID":`, 10}, params)
}

func TestQuery_Filters(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t, WithRunID("run-1"))

	entries := []ir.TraceEntry{
		{Seq: 1, Kind: ir.KindDispatch, Store: "core/site", Type: "SET_REFERENCE_SITE_URL"},
		{Seq: 2, Kind: ir.KindFetchStart, Store: "modules/analytics-4", Type: "getWebDataStreams", Key: `{"propertyID":"P1"}`},
		{Seq: 3, Kind: ir.KindFetchStart, Store: "modules/analytics-4", Type: "getWebDataStreams", Key: `{"propertyID":"P2"}`},
		{Seq: 4, Kind: ir.KindFetchFinish, Store: "modules/analytics-4", Type: "getWebDataStreams", Key: `{"propertyID":"P1"}`},
	}
	for _, e := range entries {
		require.NoError(t, j.Append(ctx, e))
	}

	t.Run("kind", func(t *testing.T) {
		got, err := j.Query(ctx, Filter{Kind: ir.KindFetchStart})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(2), got[0].Seq)
		assert.Equal(t, int64(3), got[1].Seq)
	})

	t.Run("exact key", func(t *testing.T) {
		got, err := j.Query(ctx, Filter{Key: `{"propertyID":"P1"}`})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("key prefix is case sensitive", func(t *testing.T) {
		got, err := j.Query(ctx, Filter{KeyPrefix: `{"propertyID"`})
		require.NoError(t, err)
		assert.Len(t, got, 3)

		got, err = j.Query(ctx, Filter{KeyPrefix: `{"PROPERTYID"`})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := j.Query(ctx, Filter{Store: "modules/analytics-4", Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(2), got[0].Seq)
	})

	t.Run("no match", func(t *testing.T) {
		got, err := j.Query(ctx, Filter{Run: "run-2"})
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}
