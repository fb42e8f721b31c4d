package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/roach88/storekit/internal/api"
	"github.com/roach88/storekit/internal/config"
	"github.com/roach88/storekit/internal/datastore"
	"github.com/roach88/storekit/internal/engine"
	"github.com/roach88/storekit/internal/modules"
)

// StepTimeout bounds each step so a deadlocked scenario fails instead of
// hanging.
const StepTimeout = 5 * time.Second

// Harness is the scenario execution engine. It owns one registry and the
// fixtures answering its requests.
type Harness struct {
	registry *datastore.Registry
	fixtures *api.Fixtures
	logger   *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the harness logger. Registry logs always go to the same
// logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh registry with request ids "req-1",
// "req-2", ... so that identical scenarios produce identical traces.
//
// Execution flow:
//  1. Resolve the site from the inline declaration or the CUE config
//  2. Build fixtures and a registry, and register the site's stores
//  3. Execute steps, validating expect clauses
//  4. Evaluate assertions against the trace, fixtures and state
//
// A returned error means the scenario could not be set up; step and
// assertion failures are reported in the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	site, err := siteFor(scenario)
	if err != nil {
		return nil, err
	}

	h.fixtures, err = api.NewFixtures(scenario.Fixtures...)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixtures: %w", err)
	}

	h.registry = datastore.NewRegistry(
		datastore.WithLogger(h.logger),
		datastore.WithIDGenerator(engine.NewSequenceGenerator("req")),
	)
	if err := modules.Register(h.registry, site, h.fixtures); err != nil {
		return nil, fmt.Errorf("failed to register stores: %w", err)
	}

	result := NewResult()
	for i := range scenario.Steps {
		h.executeStep(i, &scenario.Steps[i], result)
	}
	result.Trace = h.registry.Trace()

	actx := &AssertionContext{
		Registry: h.registry,
		Fixtures: h.fixtures,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// siteFor returns the scenario's site configuration.
func siteFor(scenario *Scenario) (*config.Site, error) {
	if scenario.Site != nil {
		mods := scenario.Site.Modules
		if mods == nil {
			mods = []string{}
		}
		return &config.Site{
			ReferenceSiteURL: scenario.Site.ReferenceSiteURL,
			Modules:          mods,
		}, nil
	}

	site, errs := config.Load(scenario.Config)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load config %s: %w", scenario.Config, errors.Join(errs...))
	}
	return site, nil
}

// executeStep performs one step and validates its expect clause.
func (h *Harness) executeStep(i int, step *Step, result *Result) {
	op, call := step.op()

	ctx, cancel := context.WithTimeout(context.Background(), StepTimeout)
	defer cancel()

	value, err := h.perform(ctx, op, call)

	sr := StepResult{Step: i, Op: op, Value: value}
	if err != nil {
		sr.Error = err.Error()
	}
	result.Steps = append(result.Steps, sr)

	h.logger.Info("step completed",
		"step", i,
		"op", op,
		"store", call.Store,
		"name", call.Name,
		"error", sr.Error,
	)

	if msg := checkExpect(step.Expect, value, err); msg != "" {
		result.AddErrorf("steps[%d] %s %s/%s: %s", i, op, call.Store, call.Name, msg)
	}
}

// perform runs the registry operation named by op.
func (h *Harness) perform(ctx context.Context, op string, call *Call) (any, error) {
	handle := h.registry.Handle(ctx)
	switch op {
	case OpDispatch:
		return handle.Dispatch(call.Store).Do(call.Name, call.Args...).Wait(ctx)
	case OpResolveSelect:
		return handle.ResolveSelect(call.Store).Get(call.Name, call.Args...).Wait(ctx)
	case OpSelect:
		return handle.Select(call.Store).Get(call.Name, call.Args...)
	case OpInvalidate:
		return nil, h.registry.InvalidateResolution(ctx, call.Store, call.Name, call.Args...)
	}
	return nil, fmt.Errorf("unknown step operation %q", op)
}

// checkExpect returns a failure message, or "" if the outcome is expected.
func checkExpect(expect *Expect, value any, err error) string {
	if expect != nil && expect.Error != "" {
		switch {
		case err == nil:
			return fmt.Sprintf("expected error containing %q, got value %s", expect.Error, render(value))
		case !strings.Contains(err.Error(), expect.Error):
			return fmt.Sprintf("expected error containing %q, got %q", expect.Error, err.Error())
		}
		return ""
	}
	if err != nil {
		return fmt.Sprintf("unexpected error: %v", err)
	}
	if expect == nil || !expect.HasValue {
		return ""
	}

	actual, verr := valueAt(value, expect.Path)
	if verr != nil {
		return fmt.Sprintf("value: %v", verr)
	}
	want, verr := normalize(expect.Value)
	if verr != nil {
		return fmt.Sprintf("expected value: %v", verr)
	}
	if !reflect.DeepEqual(want, actual) {
		where := "value"
		if expect.Path != "" {
			where = "value at " + expect.Path
		}
		return fmt.Sprintf("%s: expected %s, got %s", where, render(want), render(actual))
	}
	return ""
}

// Outcome is the result of one scenario file in a directory run.
type Outcome struct {
	Path     string
	Scenario *Scenario
	Result   *Result
	Err      error // load or setup failure
}

// Passed reports whether the scenario loaded, ran and passed.
func (o Outcome) Passed() bool {
	return o.Err == nil && o.Result != nil && o.Result.Pass
}

// RunDir loads and runs every scenario file in dir, in name order.
func RunDir(dir string, opts ...Option) ([]Outcome, error) {
	paths, err := FindScenarios(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", dir)
	}

	outcomes := make([]Outcome, 0, len(paths))
	for _, path := range paths {
		o := Outcome{Path: filepath.Clean(path)}
		o.Scenario, o.Err = LoadScenario(path)
		if o.Err == nil {
			o.Result, o.Err = Run(o.Scenario, opts...)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}
