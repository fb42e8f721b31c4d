package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/storekit/internal/api"
)

// Scenario defines a conformance test scenario: a site, canned network
// responses, a sequence of registry operations with expected outcomes, and
// assertions over the resulting trace and state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Site declares the site inline. Exactly one of Site and Config is set.
	Site *SiteConfig `yaml:"site,omitempty"`

	// Config is a directory of CUE site configuration, relative to the
	// scenario file.
	Config string `yaml:"config,omitempty"`

	// Fixtures answer the stores' network requests.
	// Requests without a fixture fail with code "no_fixture".
	Fixtures []api.Fixture `yaml:"fixtures,omitempty"`

	// Steps run in order. Each waits for its outcome before the next.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace, request counts and state.
	// Supported types: trace_contains, trace_order, trace_count,
	// request_count, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// SiteConfig is an inline site declaration.
type SiteConfig struct {
	ReferenceSiteURL string   `yaml:"referenceSiteURL"`
	Modules          []string `yaml:"modules,omitempty"`
}

// Step is one registry operation. Exactly one operation field is set.
type Step struct {
	Dispatch      *Call `yaml:"dispatch,omitempty"`
	ResolveSelect *Call `yaml:"resolve_select,omitempty"`
	Select        *Call `yaml:"select,omitempty"`
	Invalidate    *Call `yaml:"invalidate,omitempty"`

	// Expect validates the step's outcome. If nil the step must not fail.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Call names a store member and its arguments.
type Call struct {
	Store string `yaml:"store"`
	Name  string `yaml:"name"`
	Args  []any  `yaml:"args,omitempty"`
}

// Step operation names.
const (
	OpDispatch      = "dispatch"
	OpResolveSelect = "resolve_select"
	OpSelect        = "select"
	OpInvalidate    = "invalidate"
)

// op returns the step's operation and call.
func (s *Step) op() (string, *Call) {
	var (
		name  string
		call  *Call
		count int
	)
	for _, c := range []struct {
		name string
		call *Call
	}{
		{OpDispatch, s.Dispatch},
		{OpResolveSelect, s.ResolveSelect},
		{OpSelect, s.Select},
		{OpInvalidate, s.Invalidate},
	} {
		if c.call != nil {
			name, call = c.name, c.call
			count++
		}
	}
	if count != 1 {
		return "", nil
	}
	return name, call
}

// Expect specifies a step's expected outcome.
type Expect struct {
	// Value is compared with the step's value (or the value at Path) after
	// both are normalized to their JSON shape. Only checked if present, so
	// "value: null" expects a nil value.
	Value    any  `yaml:"value"`
	HasValue bool `yaml:"-"`

	// Path is a gjson path into the step's value, e.g. "0.propertySummaries.#".
	Path string `yaml:"path,omitempty"`

	// Error is a substring the step's error must contain. The step is
	// expected to fail.
	Error string `yaml:"error,omitempty"`
}

// UnmarshalYAML records whether the value key was present.
func (e *Expect) UnmarshalYAML(node *yaml.Node) error {
	type plain Expect
	if err := node.Decode((*plain)(e)); err != nil {
		return err
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "value" {
			e.HasValue = true
		}
	}
	return nil
}

// Assertion validates trace, requests or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an entry matches Kind/Store/EntryType/Key
	// - "trace_order": entries named in Entries appear in order
	// - "trace_count": exactly Count entries match
	// - "request_count": Request reached the network Count times
	// - "final_state": the value at Path in Store's state equals Value
	Type string `yaml:"type"`

	// Entry matchers (trace_contains, trace_count). Empty fields match
	// anything.
	Kind      string `yaml:"kind,omitempty"`
	Store     string `yaml:"store,omitempty"`
	EntryType string `yaml:"entry_type,omitempty"`
	Key       string `yaml:"key,omitempty"`

	// Entries lists "kind:type" names in expected order (trace_order).
	Entries []string `yaml:"entries,omitempty"`

	// Count is the expected number (trace_count, request_count).
	Count int `yaml:"count"`

	// Request is the counted request (request_count).
	Request *api.Request `yaml:"request,omitempty"`

	// Path is a gjson path into the store state (final_state).
	Path string `yaml:"path,omitempty"`

	// Value is the expected value at Path (final_state).
	Value any `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertRequestCount  = "request_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
//
// Config paths are resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Config != "" && !filepath.IsAbs(scenario.Config) {
		scenario.Config = filepath.Join(filepath.Dir(path), scenario.Config)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the .yaml files directly inside dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	yml, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, err
	}
	matches = append(matches, yml...)
	slices.Sort(matches)
	return matches, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if (s.Site == nil) == (s.Config == "") {
		return fmt.Errorf("exactly one of site and config is required")
	}
	if s.Site != nil && s.Site.ReferenceSiteURL == "" {
		return fmt.Errorf("site.referenceSiteURL is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i := range s.Steps {
		op, call := s.Steps[i].op()
		if op == "" {
			return fmt.Errorf("steps[%d]: exactly one of dispatch, resolve_select, select, invalidate is required", i)
		}
		if call.Store == "" || call.Name == "" {
			return fmt.Errorf("steps[%d].%s: store and name are required", i, op)
		}
		if e := s.Steps[i].Expect; e != nil && e.Error != "" && (e.HasValue || e.Path != "") {
			return fmt.Errorf("steps[%d].expect: error excludes value and path", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Kind == "" && a.Store == "" && a.EntryType == "" && a.Key == "" {
			return fmt.Errorf("assertions[%d]: trace_contains requires at least one matcher", index)
		}
	case AssertTraceCount:
		if a.Kind == "" && a.Store == "" && a.EntryType == "" && a.Key == "" {
			return fmt.Errorf("assertions[%d]: trace_count requires at least one matcher", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertTraceOrder:
		if len(a.Entries) < 2 {
			return fmt.Errorf("assertions[%d]: trace_order requires at least 2 entries", index)
		}
	case AssertRequestCount:
		if a.Request == nil {
			return fmt.Errorf("assertions[%d]: request_count requires request", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertFinalState:
		if a.Store == "" || a.Path == "" {
			return fmt.Errorf("assertions[%d]: final_state requires store and path", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}
	return nil
}
