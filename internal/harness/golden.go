package harness

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/storekit/internal/ir"
)

// TraceSnapshot captures the trace of a scenario execution.
// Payloads and digests are omitted: the snapshot records what happened and
// in which order, not the data that flowed.
type TraceSnapshot struct {
	Scenario string
	Trace    []ir.TraceEntry
}

// toCanonicalMap converts a TraceSnapshot to plain maps for canonical JSON
// serialization, keeping only the non-empty fields of each entry.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, entry := range s.Trace {
		entryMap := map[string]any{
			"seq":  entry.Seq,
			"kind": string(entry.Kind),
		}
		for k, v := range map[string]string{
			"store":   entry.Store,
			"type":    entry.Type,
			"key":     entry.Key,
			"error":   entry.Error,
			"request": entry.Request,
		} {
			if v != "" {
				entryMap[k] = v
			}
		}
		traceList[i] = entryMap
	}

	return map[string]any{
		"scenario": s.Scenario,
		"trace":    traceList,
	}
}

// Marshal returns the snapshot as canonical JSON indented by two spaces.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	data, err := ir.MarshalCanonical(s.toCanonicalMap())
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check Pass; returns an error if the
// scenario could not be set up. Trace mismatches fail t via goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		Scenario: scenarioName,
		Trace:    result.Trace,
	}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
