package api

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixturesYAML = `
- request:
    type: modules
    identifier: analytics-4
    datapoint: account-summaries
  response:
    - _id: A1
      propertySummaries:
        - _id: P1
- request:
    type: modules
    identifier: analytics-4
    datapoint: webdatastreams
    query:
      propertyID: P1
  error:
    message: network down
    code: fetch_error
`

func TestParseFixtures(t *testing.T) {
	f, err := ParseFixtures(strings.NewReader(fixturesYAML))
	require.NoError(t, err)

	got, err := f.Get(context.Background(), Request{Type: "modules", Identifier: "analytics-4", Datapoint: "account-summaries", UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"_id": "A1", "propertySummaries": []any{map[string]any{"_id": "P1"}}},
	}, got)

	_, err = f.Get(context.Background(), Request{
		Type: "modules", Identifier: "analytics-4", Datapoint: "webdatastreams",
		Query: map[string]any{"propertyID": "P1"},
	})
	assert.Equal(t, &Error{Message: "network down", Code: "fetch_error"}, err)
}

func TestParseFixtures_UnknownField(t *testing.T) {
	_, err := ParseFixtures(strings.NewReader("- request: {type: a}\n  respons: 1\n"))
	assert.Error(t, err)
}

func TestFixtures_NumbersReadLikeJSON(t *testing.T) {
	f, err := NewFixtures(Fixture{
		Request:  Request{Type: "core", Identifier: "site", Datapoint: "count"},
		Response: map[string]any{"n": 3},
	})
	require.NoError(t, err)

	got, err := f.Get(context.Background(), Request{Type: "core", Identifier: "site", Datapoint: "count"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": float64(3)}, got)
}

func TestFixtures_Missing(t *testing.T) {
	f, err := NewFixtures()
	require.NoError(t, err)

	_, err = f.Get(context.Background(), Request{Type: "core", Identifier: "site", Datapoint: "nope"})
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "no_fixture", ae.Code)
	assert.Equal(t, 404, ae.StatusCode())
}

func TestFixtures_CountsCalls(t *testing.T) {
	req := Request{Type: "core", Identifier: "site", Datapoint: "x", Query: map[string]any{"a": 1}}
	f, err := NewFixtures(Fixture{Request: req, Response: "ok"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.Get(context.Background(), req)
		}()
	}
	wg.Wait()

	// 1 and 1.0 address the same fixture
	same := req
	same.Query = map[string]any{"a": 1.0}
	assert.Equal(t, 5, f.Calls(same))
	assert.Equal(t, 5, f.TotalCalls())
}

func TestFixtures_ErrorsAreCopies(t *testing.T) {
	req := Request{Type: "core", Identifier: "site", Datapoint: "x"}
	f, err := NewFixtures(Fixture{Request: req, Error: &Error{Message: "boom"}})
	require.NoError(t, err)

	_, err1 := f.Get(context.Background(), req)
	err1.(*Error).Message = "changed"
	_, err2 := f.Get(context.Background(), req)
	assert.Equal(t, "boom", err2.Error())
}
