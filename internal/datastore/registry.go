package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/storekit/internal/engine"
	"github.com/roach88/storekit/internal/ir"
)

// Journal receives every trace entry the registry records.
// Implemented by journal.Journal (SQLite).
type Journal interface {
	Append(ctx context.Context, e ir.TraceEntry) error
}

// Registry is a table of named stores.
//
// It resolves cross-store select, dispatch and resolveSelect calls by name,
// owns the resolution bookkeeping for every store, and records a trace of
// dispatches, resolutions and network requests.
//
// A Registry is an explicit value: tests build isolated registries and
// nothing in this package keeps a process-wide instance.
//
// Thread-safety model:
//   - RegisterStore, Handle, Select and metadata queries: any goroutine
//   - dispatches to one store are applied one at a time, in call order
//   - Run: exactly one goroutine delivers change notifications
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*storeInstance

	resolutions *resolutions

	clock    *engine.Clock
	ids      engine.IDGenerator
	journal  Journal
	logger   *slog.Logger
	maxSteps int

	traceMu sync.Mutex
	trace   []ir.TraceEntry

	queue   *changeQueue
	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithJournal mirrors every trace entry to j.
func WithJournal(j Journal) RegistryOption {
	return func(r *Registry) {
		r.journal = j
	}
}

// WithIDGenerator sets the request id generator.
// Default: engine.UUIDv7Generator.
func WithIDGenerator(g engine.IDGenerator) RegistryOption {
	return func(r *Registry) {
		r.ids = g
	}
}

// WithClock sets the logical clock stamping trace entries.
func WithClock(c *engine.Clock) RegistryOption {
	return func(r *Registry) {
		r.clock = c
	}
}

// WithMaxSteps sets the per-run effect limit of every store's interpreter.
func WithMaxSteps(n int) RegistryOption {
	return func(r *Registry) {
		r.maxSteps = n
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		stores:      make(map[string]*storeInstance),
		resolutions: newResolutions(),
		clock:       engine.NewClock(),
		ids:         engine.UUIDv7Generator{},
		logger:      slog.Default(),
		maxSteps:    engine.DefaultMaxSteps,
		queue:       newChangeQueue(),
		subs:        make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterStore adds a store under name, with state initialized from the
// definition's initial state.
//
// Fails if the name is taken, if a store control collides with a built-in
// control, or if a resolver has no selector of the same name.
func (r *Registry) RegisterStore(name string, def *Definition) error {
	if name == "" {
		return fmt.Errorf("register store: empty name")
	}
	if def == nil {
		return fmt.Errorf("register store %s: nil definition", name)
	}
	for resolver := range def.Resolvers {
		if _, ok := def.Selectors[resolver]; !ok {
			return fmt.Errorf("register store %s: resolver %q has no selector: %w",
				name, resolver, &UnknownSelectorError{Store: name, Selector: resolver})
		}
	}

	controls := engine.NewControls()
	if err := registerBuiltins(controls); err != nil {
		return fmt.Errorf("register store %s: %w", name, err)
	}
	for _, tag := range slices.Sorted(maps.Keys(def.Controls)) {
		if err := controls.Register(tag, def.Controls[tag]); err != nil {
			return fmt.Errorf("register store %s: %w", name, err)
		}
	}

	inst := &storeInstance{
		name:  name,
		def:   def,
		state: def.InitialState.Clone(),
		reg:   r,
	}
	inst.interp = engine.New(controls,
		engine.WithActionHandler(inst.apply),
		engine.WithMaxSteps(r.maxSteps),
		engine.WithLogger(r.logger),
		engine.WithLabel(name),
	)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.stores[name]; exists {
		return &DuplicateNameError{Namespace: "stores", Name: name}
	}
	r.stores[name] = inst

	r.logger.Info("store registered",
		"store", name,
		"actions", len(def.Actions),
		"selectors", len(def.Selectors),
		"resolvers", len(def.Resolvers),
	)
	return nil
}

// Logger returns the logger the registry was built with.
func (r *Registry) Logger() *slog.Logger {
	return r.logger
}

// Stores returns the registered store names in sorted order.
func (r *Registry) Stores() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.stores))
}

func (r *Registry) store(name string) (*storeInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.stores[name]
	if !ok {
		return nil, &UnknownStoreError{Store: name}
	}
	return inst, nil
}

// Handle returns a registry handle whose dispatches and resolutions run
// under ctx.
func (r *Registry) Handle(ctx context.Context) *Handle {
	return &Handle{reg: r, ctx: ctx, chain: chainFrom(ctx)}
}

// Select reads a selector of a store. It never triggers a resolver.
func (r *Registry) Select(store string) Selector {
	return r.Handle(context.Background()).Select(store)
}

// State returns a snapshot of a store's current state.
func (r *Registry) State(store string) (State, error) {
	inst, err := r.store(store)
	if err != nil {
		return nil, err
	}
	return inst.snapshot(), nil
}

// Trace returns a copy of the recorded trace in seq order.
func (r *Registry) Trace() []ir.TraceEntry {
	r.traceMu.Lock()
	defer r.traceMu.Unlock()
	return slices.Clone(r.trace)
}

// record stamps e with the next seq and appends it to the trace and the
// journal. Journal failures are logged, never returned: the trace is
// diagnostic and must not fail the operation it describes.
func (r *Registry) record(ctx context.Context, e ir.TraceEntry) int64 {
	r.traceMu.Lock()
	e.Seq = r.clock.Next()
	r.trace = append(r.trace, e)
	r.traceMu.Unlock()

	if r.journal != nil {
		if err := r.journal.Append(context.WithoutCancel(ctx), e); err != nil {
			r.logger.Error("journal append failed",
				"seq", e.Seq,
				"kind", e.Kind,
				"error", err,
			)
		}
	}
	return e.Seq
}

// Subscribe registers fn to receive every change delivered by Run.
// The returned function removes the subscription.
func (r *Registry) Subscribe(fn func(Change)) (unsubscribe func()) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn

	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.subs, id)
	}
}

func (r *Registry) notify(c Change) {
	r.subMu.Lock()
	n := len(r.subs)
	r.subMu.Unlock()
	if n > 0 {
		r.queue.Enqueue(c)
	}
}

// Run delivers queued changes to subscribers until ctx is cancelled or
// Stop is called.
//
// CRITICAL: Must be called from exactly ONE goroutine. Subscribers are
// invoked on it one change at a time, in dispatch order.
func (r *Registry) Run(ctx context.Context) error {
	r.logger.Debug("registry notification loop starting")

	for {
		if c, ok := r.queue.TryDequeue(); ok {
			r.deliver(c)
			continue
		}

		select {
		case <-ctx.Done():
			r.logger.Debug("registry notification loop stopping: context cancelled")
			r.queue.Close()
			return ctx.Err()

		case <-r.queue.Wait():
			// The signal channel closes with the queue; a closed, drained
			// queue ends the loop.
			if r.queue.Len() == 0 && r.stopped() {
				r.logger.Debug("registry notification loop stopping: closed")
				return nil
			}
		}
	}
}

// Stop closes the notification queue, which makes Run return once drained.
func (r *Registry) Stop() {
	r.queue.Close()
}

func (r *Registry) stopped() bool {
	r.queue.mu.Lock()
	defer r.queue.mu.Unlock()
	return r.queue.closed
}

func (r *Registry) deliver(c Change) {
	r.subMu.Lock()
	subs := make([]func(Change), 0, len(r.subs))
	for _, id := range slices.Sorted(maps.Keys(r.subs)) {
		subs = append(subs, r.subs[id])
	}
	r.subMu.Unlock()

	for _, fn := range subs {
		fn(c)
	}
}
