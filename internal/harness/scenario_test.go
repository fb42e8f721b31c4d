package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "Reads the reference URL"
site:
  referenceSiteURL: https://example.com
steps:
  - select: { store: core/site, name: getReferenceSiteURL }
    expect: { value: "https://example.com" }
`

func TestParseScenario_Minimal(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	require.NotNil(t, scenario.Site)
	assert.Equal(t, "https://example.com", scenario.Site.ReferenceSiteURL)
	require.Len(t, scenario.Steps, 1)

	op, call := scenario.Steps[0].op()
	assert.Equal(t, OpSelect, op)
	assert.Equal(t, "core/site", call.Store)
	assert.Equal(t, "getReferenceSiteURL", call.Name)

	require.NotNil(t, scenario.Steps[0].Expect)
	assert.True(t, scenario.Steps[0].Expect.HasValue)
	assert.Equal(t, "https://example.com", scenario.Steps[0].Expect.Value)
}

func TestParseScenario_ExplicitNullValue(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: null_value
description: "x"
site: { referenceSiteURL: "https://example.com" }
steps:
  - select: { store: core/site, name: getReferenceSiteURL }
    expect: { value: null }
  - select: { store: core/site, name: getReferenceSiteURL }
    expect: { error: "boom" }
`))
	require.NoError(t, err)

	assert.True(t, scenario.Steps[0].Expect.HasValue)
	assert.Nil(t, scenario.Steps[0].Expect.Value)
	assert.False(t, scenario.Steps[1].Expect.HasValue)
}

func TestParseScenario_Fixtures(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: fixtures
description: "x"
site: { referenceSiteURL: "https://example.com", modules: [analytics-4] }
fixtures:
  - request: { type: modules, identifier: analytics-4, datapoint: webdatastreams, query: { propertyID: P1 } }
    response: []
  - request: { type: modules, identifier: analytics-4, datapoint: account-summaries }
    error: { message: forbidden, status: 403 }
steps:
  - resolve_select: { store: modules/analytics-4, name: getWebDataStreams, args: [P1] }
`))
	require.NoError(t, err)

	require.Len(t, scenario.Fixtures, 2)
	assert.Equal(t, "modules/analytics-4/data/webdatastreams", scenario.Fixtures[0].Request.Path())
	assert.Equal(t, "P1", scenario.Fixtures[0].Request.Query["propertyID"])
	require.NotNil(t, scenario.Fixtures[1].Error)
	assert.Equal(t, 403, scenario.Fixtures[1].Error.Status)
	assert.Equal(t, []string{"analytics-4"}, scenario.Site.Modules)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: x\nsite: {referenceSiteURL: u}\nsteps: [{select: {store: s, name: n}}]",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: x\nsite: {referenceSiteURL: u}\nsteps: [{select: {store: s, name: n}}]",
			wantErr: "description is required",
		},
		{
			name:    "no site or config",
			yaml:    "name: x\ndescription: x\nsteps: [{select: {store: s, name: n}}]",
			wantErr: "exactly one of site and config",
		},
		{
			name:    "site and config",
			yaml:    "name: x\ndescription: x\nconfig: dir\nsite: {referenceSiteURL: u}\nsteps: [{select: {store: s, name: n}}]",
			wantErr: "exactly one of site and config",
		},
		{
			name:    "no steps",
			yaml:    "name: x\ndescription: x\nsite: {referenceSiteURL: u}",
			wantErr: "steps list is required",
		},
		{
			name:    "two operations in one step",
			yaml:    "name: x\ndescription: x\nsite: {referenceSiteURL: u}\nsteps: [{select: {store: s, name: n}, dispatch: {store: s, name: n}}]",
			wantErr: "steps[0]: exactly one of",
		},
		{
			name:    "call without name",
			yaml:    "name: x\ndescription: x\nsite: {referenceSiteURL: u}\nsteps: [{select: {store: s}}]",
			wantErr: "store and name are required",
		},
		{
			name:    "error with value",
			yaml:    "name: x\ndescription: x\nsite: {referenceSiteURL: u}\nsteps: [{select: {store: s, name: n}, expect: {error: e, value: 1}}]",
			wantErr: "error excludes value",
		},
		{
			name:    "unknown assertion type",
			yaml:    "name: x\ndescription: x\nsite: {referenceSiteURL: u}\nsteps: [{select: {store: s, name: n}}]\nassertions: [{type: nope}]",
			wantErr: `unknown type "nope"`,
		},
		{
			name:    "trace_order with one entry",
			yaml:    "name: x\ndescription: x\nsite: {referenceSiteURL: u}\nsteps: [{select: {store: s, name: n}}]\nassertions: [{type: trace_order, entries: [a]}]",
			wantErr: "at least 2 entries",
		},
		{
			name:    "request_count without request",
			yaml:    "name: x\ndescription: x\nsite: {referenceSiteURL: u}\nsteps: [{select: {store: s, name: n}}]\nassertions: [{type: request_count, count: 1}]",
			wantErr: "requires request",
		},
		{
			name:    "unknown field",
			yaml:    "name: x\ndescription: x\nsite: {referenceSiteURL: u}\nsteps: [{select: {store: s, name: n}}]\nassertion: []",
			wantErr: "field assertion not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_ConfigRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	content := "name: x\ndescription: x\nconfig: site\nsteps: [{select: {store: s, name: n}}]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "site"), scenario.Config)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestFindScenarios(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{"match-account-id.yaml", "network-down.yaml", "no-accounts.yaml"}, names)
}
