package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekit/internal/ir"
	"github.com/roach88/storekit/internal/journal"
)

// seedJournal writes two runs to a new journal and returns its path.
func seedJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.db")
	ctx := context.Background()

	key, err := ir.NewResolverKey("modules/analytics-4", "getWebDataStreams", "P1")
	require.NoError(t, err)

	runs := map[string][]ir.TraceEntry{
		"run-1": {
			{Seq: 1, Kind: ir.KindResolverStart, Store: key.Store, Type: key.Selector, Key: key.String(), Digest: key.Digest()},
			{Seq: 2, Kind: ir.KindFetchStart, Store: key.Store, Type: "getWebDataStreams", Key: `{"propertyID":"P1"}`, Request: "req-1"},
			{Seq: 3, Kind: ir.KindFetchDedup, Store: key.Store, Type: "getWebDataStreams", Key: `{"propertyID":"P1"}`},
			{Seq: 4, Kind: ir.KindFetchFinish, Store: key.Store, Type: "getWebDataStreams", Key: `{"propertyID":"P1"}`, Request: "req-1", Error: "network down"},
			{Seq: 5, Kind: ir.KindResolverFinish, Store: key.Store, Type: key.Selector, Key: key.String(), Digest: key.Digest()},
		},
		"run-2": {
			{Seq: 1, Kind: ir.KindDispatch, Store: "core/site", Type: "SET_REFERENCE_SITE_URL"},
		},
	}
	for _, id := range []string{"run-1", "run-2"} {
		j, err := journal.Open(path, journal.WithRunID(id))
		require.NoError(t, err)
		for _, e := range runs[id] {
			require.NoError(t, j.Append(ctx, e))
		}
		require.NoError(t, j.Close())
	}
	return path
}

func TestTrace_LatestRun(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "trace", "--journal", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Run: run-2")
	assert.Contains(t, out, "SET_REFERENCE_SITE_URL")
	assert.Contains(t, out, "Stats: 1 entries, 1 dispatches")
}

func TestTrace_RunJSONWithStats(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "trace", "--journal", path, "--run", "run-1", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "run-1", resp.Data.Run)
	assert.Len(t, resp.Data.Entries, 5)
	assert.Equal(t, TraceStats{
		TotalEntries: 5,
		Resolutions:  1,
		Requests:     1,
		Deduplicated: 1,
		Failures:     1,
	}, resp.Data.Stats)
}

func TestTrace_FilterByKind(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "trace", "--journal", path, "--run", "run-1", "--kind", "fetch_finish")
	require.NoError(t, err)
	assert.Contains(t, out, "error=network down")
	assert.NotContains(t, out, "resolver_start")
}

func TestTrace_ByResolverKey(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "trace", "--journal", path, "--key", `modules/analytics-4/getWebDataStreams("P1")`, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Entries, 2)
	assert.Equal(t, ir.KindResolverStart, resp.Data.Entries[0].Kind)
	assert.Equal(t, ir.KindResolverFinish, resp.Data.Entries[1].Kind)
}

func TestTrace_ByRequestKey(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "trace", "--journal", path, "--key", `{"propertyID":"P1"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "fetch_start")
	assert.Contains(t, out, "fetch_dedup")
	assert.Contains(t, out, "fetch_finish")
	assert.NotContains(t, out, "SET_REFERENCE_SITE_URL")
}

func TestTrace_KeyPrefixAndLimit(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "trace", "--journal", path, "--run", "run-1",
		"--key-prefix", "modules/analytics-4/getWebDataStreams(", "--limit", "1", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Entries, 1)
	assert.Equal(t, ir.KindResolverStart, resp.Data.Entries[0].Kind)
}

func TestTrace_ListRuns(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "trace", "--journal", path, "--list", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data []journal.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "run-1", resp.Data[0].ID)
	assert.Equal(t, 5, resp.Data[0].Entries)
	assert.Equal(t, 1, resp.Data[1].Entries)
}

func TestTrace_EmptyJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")

	out, err := execute(t, "trace", "--journal", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No entries found.")
}

func TestResolverDigest(t *testing.T) {
	key, err := ir.NewResolverKey("modules/analytics-4", "getWebDataStreams", "P1", 2)
	require.NoError(t, err)
	assert.Equal(t, key.Digest(), resolverDigest(key.String()))

	noArgs, err := ir.NewResolverKey("core/site", "getReferenceSiteURL")
	require.NoError(t, err)
	assert.Equal(t, noArgs.Digest(), resolverDigest(noArgs.String()))

	assert.Empty(t, resolverDigest(`{"propertyID":"P1"}`))
}
