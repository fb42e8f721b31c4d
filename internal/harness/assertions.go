package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/roach88/storekit/internal/api"
	"github.com/roach88/storekit/internal/datastore"
	"github.com/roach88/storekit/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string          // Assertion type for categorization
	Expected string          // Human-readable expected outcome
	Actual   string          // Human-readable actual outcome
	Trace    []ir.TraceEntry // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, entry := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", entry.Seq, describeEntry(entry))
		}
	}

	return buf.String()
}

func describeEntry(e ir.TraceEntry) string {
	s := fmt.Sprintf("%s %s %s", e.Kind, e.Store, e.Type)
	if e.Key != "" {
		s += " " + e.Key
	}
	if e.Error != "" {
		s += " error=" + e.Error
	}
	return s
}

// AssertionContext gives assertions access to the scenario's registry and
// network fixtures.
type AssertionContext struct {
	Registry *datastore.Registry
	Fixtures *api.Fixtures
}

// matches reports whether e satisfies the assertion's non-empty matchers.
func (a Assertion) matches(e ir.TraceEntry) bool {
	return (a.Kind == "" || string(e.Kind) == a.Kind) &&
		(a.Store == "" || e.Store == a.Store) &&
		(a.EntryType == "" || e.Type == a.EntryType) &&
		(a.Key == "" || e.Key == a.Key)
}

func (a Assertion) describeMatcher() string {
	var parts []string
	for _, f := range []struct{ name, value string }{
		{"kind", a.Kind},
		{"store", a.Store},
		{"type", a.EntryType},
		{"key", a.Key},
	} {
		if f.value != "" {
			parts = append(parts, f.name+"="+f.value)
		}
	}
	return strings.Join(parts, " ")
}

// assertTraceContains checks that some entry matches.
func assertTraceContains(trace []ir.TraceEntry, assertion Assertion) error {
	for _, entry := range trace {
		if assertion.matches(entry) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: "entry with " + assertion.describeMatcher(),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that entries named "kind:type" appear in the
// specified order. Entries don't need to be consecutive.
func assertTraceOrder(trace []ir.TraceEntry, assertion Assertion) error {
	pos := 0
	for i, name := range assertion.Entries {
		kind, typ, _ := strings.Cut(name, ":")
		found := false
		for pos < len(trace) {
			e := trace[pos]
			pos++
			if string(e.Kind) == kind && (typ == "" || e.Type == typ) {
				found = true
				break
			}
		}
		if !found {
			actual := fmt.Sprintf("%s not found after %v", name, assertion.Entries[:i])
			if i == 0 {
				actual = fmt.Sprintf("%s not found", name)
			}
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("entries in order: %v", assertion.Entries),
				Actual:   actual,
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that exactly Count entries match.
func assertTraceCount(trace []ir.TraceEntry, assertion Assertion) error {
	count := 0
	for _, entry := range trace {
		if assertion.matches(entry) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d entries with %s", assertion.Count, assertion.describeMatcher()),
			Actual:   fmt.Sprintf("%d entries", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertRequestCount checks how many times a request reached the network.
func assertRequestCount(fixtures *api.Fixtures, assertion Assertion) error {
	calls := fixtures.Calls(*assertion.Request)
	if calls != assertion.Count {
		return &AssertionError{
			Type:     AssertRequestCount,
			Expected: fmt.Sprintf("%d requests to %s", assertion.Count, assertion.Request.Path()),
			Actual:   fmt.Sprintf("%d requests", calls),
		}
	}
	return nil
}

// assertFinalState checks the value at a gjson path in a store's state.
func assertFinalState(reg *datastore.Registry, assertion Assertion) error {
	state, err := reg.State(assertion.Store)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("state of %s", assertion.Store),
			Actual:   err.Error(),
		}
	}

	actual, err := valueAt(map[string]any(state), assertion.Path)
	if err != nil {
		return fmt.Errorf("final_state %s: %w", assertion.Store, err)
	}
	expected, err := normalize(assertion.Value)
	if err != nil {
		return fmt.Errorf("final_state %s: expected value: %w", assertion.Store, err)
	}

	if !reflect.DeepEqual(expected, actual) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s at %s = %s", assertion.Store, assertion.Path, render(expected)),
			Actual:   render(actual),
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertRequestCount:
			if actx == nil || actx.Fixtures == nil {
				err = fmt.Errorf("assertion[%d]: request_count requires fixtures", i)
			} else {
				err = assertRequestCount(actx.Fixtures, assertion)
			}
		case AssertFinalState:
			if actx == nil || actx.Registry == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a registry", i)
			} else {
				err = assertFinalState(actx.Registry, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// normalize converts v to its JSON shape: numbers become float64, structs
// and typed maps become map[string]any.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// valueAt returns the value at a gjson path in v, in its JSON shape.
// An empty path returns v itself; a missing path returns nil.
func valueAt(v any, path string) (any, error) {
	if path == "" {
		return normalize(v)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return gjson.GetBytes(data, path).Value(), nil
}

func render(v any) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
