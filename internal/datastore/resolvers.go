package datastore

import (
	"context"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/storekit/internal/engine"
	"github.com/roach88/storekit/internal/ir"
)

// ResolutionStatus is the lifecycle state of one resolver key.
type ResolutionStatus int

const (
	StatusNone ResolutionStatus = iota
	StatusPending
	StatusDone
	StatusError
)

// String returns the status name.
func (s ResolutionStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	}
	return "none"
}

type resolution struct {
	status ResolutionStatus
	err    error
	future *engine.Future
}

// resolutions guarantees each resolver key runs its resolver body at most
// once until invalidated. Concurrent callers share the in-flight future.
type resolutions struct {
	mu      sync.Mutex
	entries map[ir.ResolverKey]*resolution
}

func newResolutions() *resolutions {
	return &resolutions{entries: make(map[ir.ResolverKey]*resolution)}
}

// ensure returns a future settled when the resolver of selector has run
// for args. The first caller for a key starts the resolver; later callers
// get the same future, already settled once the resolution finished.
//
// The resolver runs detached from the caller's cancellation: once started
// it always runs to settlement.
func (r *resolutions) ensure(ctx context.Context, chain *engine.Chain, inst *storeInstance, selector string, args []any) *engine.Future {
	fn, ok := inst.def.Resolvers[selector]
	if !ok {
		return engine.Resolved(nil)
	}

	key, err := ir.NewResolverKey(inst.name, selector, args...)
	if err != nil {
		return engine.Rejected(err)
	}
	if chain.Contains(key.String()) {
		return engine.Rejected(&ResolverCycleError{
			Key:  key,
			Path: append(chain.Path(), key.String()),
		})
	}

	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		r.mu.Unlock()
		return e.future
	}
	e := &resolution{status: StatusPending, future: engine.NewFuture()}
	r.entries[key] = e
	r.mu.Unlock()

	reg := inst.reg
	reg.record(ctx, ir.TraceEntry{
		Kind:   ir.KindResolverStart,
		Store:  inst.name,
		Type:   selector,
		Key:    key.String(),
		Digest: key.Digest(),
	})
	reg.logger.Debug("resolution started", "key", key.String())

	runCtx := inst.runContext(context.WithoutCancel(ctx), chain.Push(key.String()))
	go r.run(runCtx, inst, fn, key, e, args)

	return e.future
}

func (r *resolutions) run(ctx context.Context, inst *storeInstance, fn engine.GeneratorFunc, key ir.ResolverKey, e *resolution, args []any) {
	reg := inst.reg

	err := callResolver(ctx, inst, fn, key, args)
	if err != nil {
		err = &ResolverError{Key: key, Err: err}
	}

	r.mu.Lock()
	if err != nil {
		e.status, e.err = StatusError, err
	} else {
		e.status = StatusDone
	}
	r.mu.Unlock()

	if err != nil {
		reg.record(ctx, ir.TraceEntry{
			Kind:   ir.KindResolverError,
			Store:  inst.name,
			Type:   key.Selector,
			Key:    key.String(),
			Digest: key.Digest(),
			Error:  err.Error(),
		})
		reg.logger.Error("resolution failed", "key", key.String(), "error", err)
	} else {
		reg.record(ctx, ir.TraceEntry{
			Kind:   ir.KindResolverFinish,
			Store:  inst.name,
			Type:   key.Selector,
			Key:    key.String(),
			Digest: key.Digest(),
		})
		reg.logger.Info("resolution finished", "key", key.String())
	}

	e.future.Settle(nil, err)
}

// callResolver runs a resolver body, converting a panic into PanicError.
func callResolver(ctx context.Context, inst *storeInstance, fn engine.GeneratorFunc, key ir.ResolverKey, args []any) (err error) {
	defer func() {
		if p := recover(); p != nil {
			inst.reg.logger.Error("resolver panicked", "key", key.String(), "panic", p)
			err = &engine.PanicError{Value: p, Stack: debug.Stack()}
		}
	}()
	_, err = inst.interp.Call(ctx, fn, args...)
	return err
}

func (r *resolutions) lookup(key ir.ResolverKey) (ResolutionStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return StatusNone, nil
	}
	return e.status, e.err
}

// invalidate drops the entries match selects. Running resolutions are not
// cancelled; their callers still receive the outcome.
func (r *resolutions) invalidate(match func(ir.ResolverKey) bool) []ir.ResolverKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dropped []ir.ResolverKey
	for key := range r.entries {
		if match(key) {
			delete(r.entries, key)
			dropped = append(dropped, key)
		}
	}
	return dropped
}

// ResolutionStatus returns the status of the resolver of selector for args.
func (r *Registry) ResolutionStatus(store, selector string, args ...any) ResolutionStatus {
	key, err := ir.NewResolverKey(store, selector, args...)
	if err != nil {
		return StatusNone
	}
	status, _ := r.resolutions.lookup(key)
	return status
}

// IsResolving reports whether the resolver of selector for args is running.
func (r *Registry) IsResolving(store, selector string, args ...any) bool {
	return r.ResolutionStatus(store, selector, args...) == StatusPending
}

// HasFinishedResolution reports whether the resolver of selector for args
// has settled, successfully or not.
func (r *Registry) HasFinishedResolution(store, selector string, args ...any) bool {
	status := r.ResolutionStatus(store, selector, args...)
	return status == StatusDone || status == StatusError
}

// ResolutionError returns the retained error of a failed resolution, or nil.
func (r *Registry) ResolutionError(store, selector string, args ...any) error {
	key, err := ir.NewResolverKey(store, selector, args...)
	if err != nil {
		return nil
	}
	_, resErr := r.resolutions.lookup(key)
	return resErr
}

// InvalidateResolution forgets the resolution of selector for args; the
// next ResolveSelect runs the resolver again. Cached state is untouched.
func (r *Registry) InvalidateResolution(ctx context.Context, store, selector string, args ...any) error {
	if _, err := r.store(store); err != nil {
		return err
	}
	key, err := ir.NewResolverKey(store, selector, args...)
	if err != nil {
		return err
	}
	r.recordInvalidated(ctx, r.resolutions.invalidate(func(k ir.ResolverKey) bool { return k == key }))
	return nil
}

// InvalidateResolutionForStore forgets every resolution of store.
func (r *Registry) InvalidateResolutionForStore(ctx context.Context, store string) error {
	if _, err := r.store(store); err != nil {
		return err
	}
	r.recordInvalidated(ctx, r.resolutions.invalidate(func(k ir.ResolverKey) bool { return k.Store == store }))
	return nil
}

func (r *Registry) recordInvalidated(ctx context.Context, keys []ir.ResolverKey) {
	sortKeys(keys)
	for _, key := range keys {
		r.record(ctx, ir.TraceEntry{
			Kind:   ir.KindResolverInvalid,
			Store:  key.Store,
			Type:   key.Selector,
			Key:    key.String(),
			Digest: key.Digest(),
		})
	}
}

func sortKeys(keys []ir.ResolverKey) {
	slices.SortFunc(keys, func(a, b ir.ResolverKey) int {
		return strings.Compare(a.String(), b.String())
	})
}
