package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/roach88/storekit/internal/engine"
	"github.com/roach88/storekit/internal/ir"
)

// Built-in control tags registered on every store.
const (
	ControlGetRegistry   = "GET_REGISTRY"
	ControlSelect        = "SELECT"
	ControlResolveSelect = "RESOLVE_SELECT"
	ControlDispatch      = "DISPATCH"
)

// Handle is a view of the registry bound to one run.
//
// Bodies obtain it by yielding GetRegistry(). Dispatches and resolutions
// started through a handle inherit the run's context and resolution chain.
type Handle struct {
	reg   *Registry
	ctx   context.Context
	chain *engine.Chain
}

// Selector reads the selectors of one store.
type Selector struct {
	h     *Handle
	store string
}

// Dispatcher dispatches the actions of one store.
type Dispatcher struct {
	h     *Handle
	store string
}

// ResolvingSelector reads the selectors of one store after ensuring their
// resolvers have run.
type ResolvingSelector struct {
	h     *Handle
	store string
}

// Registry returns the registry behind the handle.
func (h *Handle) Registry() *Registry { return h.reg }

// Logger returns the registry's logger, for bodies that log.
func (h *Handle) Logger() *slog.Logger { return h.reg.logger }

// Select returns the selectors of store.
func (h *Handle) Select(store string) Selector {
	return Selector{h: h, store: store}
}

// Dispatch returns the actions of store.
func (h *Handle) Dispatch(store string) Dispatcher {
	return Dispatcher{h: h, store: store}
}

// ResolveSelect returns the resolving selectors of store.
func (h *Handle) ResolveSelect(store string) ResolvingSelector {
	return ResolvingSelector{h: h, store: store}
}

// Get calls a selector synchronously. Unresolved data reads as nil.
func (s Selector) Get(selector string, args ...any) (any, error) {
	inst, err := s.h.reg.store(s.store)
	if err != nil {
		return nil, err
	}
	return inst.read(selector, args...)
}

// Do runs an action to completion on the calling goroutine and returns its
// settled outcome. Actions dispatched to one store are applied in call order.
func (d Dispatcher) Do(action string, args ...any) *engine.Future {
	inst, err := d.h.reg.store(d.store)
	if err != nil {
		return engine.Rejected(err)
	}
	return inst.dispatch(d.h.ctx, d.h.chain, action, args...)
}

// Get ensures the selector's resolver has run for args, then reads the
// selector. The future rejects with the resolver's error if it failed.
func (s ResolvingSelector) Get(selector string, args ...any) *engine.Future {
	inst, err := s.h.reg.store(s.store)
	if err != nil {
		return engine.Rejected(err)
	}
	if _, ok := inst.def.Selectors[selector]; !ok {
		return engine.Rejected(&UnknownSelectorError{Store: s.store, Selector: selector})
	}

	resolved := s.h.reg.resolutions.ensure(s.h.ctx, s.h.chain, inst, selector, args)
	return engine.Then(resolved, func(_ any, err error) (any, error) {
		if err != nil {
			return nil, err
		}
		return inst.read(selector, args...)
	})
}

// InvalidateResolution forgets the resolution of selector for args so the
// next ResolveSelect runs the resolver again.
func (h *Handle) InvalidateResolution(store, selector string, args ...any) error {
	return h.reg.InvalidateResolution(h.ctx, store, selector, args...)
}

// registryCall is the payload of the SELECT, RESOLVE_SELECT and DISPATCH
// controls.
type registryCall struct {
	Store string `json:"store"`
	Name  string `json:"name"`
	Args  []any  `json:"args,omitempty"`
}

// GetRegistry returns the control yielding the run's *Handle.
func GetRegistry() ir.Control {
	return ir.Control{Type: ControlGetRegistry}
}

// Select returns a control reading selector of store.
func Select(store, selector string, args ...any) ir.Control {
	return ir.Control{Type: ControlSelect, Payload: registryCall{Store: store, Name: selector, Args: args}}
}

// ResolveSelect returns a control resolving and reading selector of store.
func ResolveSelect(store, selector string, args ...any) ir.Control {
	return ir.Control{Type: ControlResolveSelect, Payload: registryCall{Store: store, Name: selector, Args: args}}
}

// Dispatch returns a control dispatching action of store.
func Dispatch(store, action string, args ...any) ir.Control {
	return ir.Control{Type: ControlDispatch, Payload: registryCall{Store: store, Name: action, Args: args}}
}

func registerBuiltins(c *engine.Controls) error {
	builtins := []struct {
		tag string
		h   engine.Handler
	}{
		{ControlGetRegistry, getRegistryHandler},
		{ControlSelect, selectHandler},
		{ControlResolveSelect, resolveSelectHandler},
		{ControlDispatch, dispatchHandler},
	}
	for _, b := range builtins {
		if err := c.Register(b.tag, b.h); err != nil {
			return err
		}
	}
	return nil
}

func handleFrom(ctx context.Context) (*Handle, error) {
	info := runInfoFrom(ctx)
	if info == nil {
		return nil, fmt.Errorf("no registry bound to this run")
	}
	return &Handle{reg: info.store.reg, ctx: ctx, chain: info.chain}, nil
}

func getRegistryHandler(ctx context.Context, _ ir.Control) (any, error) {
	return handleFrom(ctx)
}

func callFrom(c ir.Control) (registryCall, error) {
	call, ok := c.Payload.(registryCall)
	if !ok {
		return registryCall{}, fmt.Errorf("%s: payload is %T", c.Type, c.Payload)
	}
	return call, nil
}

func selectHandler(ctx context.Context, c ir.Control) (any, error) {
	h, err := handleFrom(ctx)
	if err != nil {
		return nil, err
	}
	call, err := callFrom(c)
	if err != nil {
		return nil, err
	}
	return h.Select(call.Store).Get(call.Name, call.Args...)
}

func resolveSelectHandler(ctx context.Context, c ir.Control) (any, error) {
	h, err := handleFrom(ctx)
	if err != nil {
		return nil, err
	}
	call, err := callFrom(c)
	if err != nil {
		return nil, err
	}
	return h.ResolveSelect(call.Store).Get(call.Name, call.Args...), nil
}

func dispatchHandler(ctx context.Context, c ir.Control) (any, error) {
	h, err := handleFrom(ctx)
	if err != nil {
		return nil, err
	}
	call, err := callFrom(c)
	if err != nil {
		return nil, err
	}
	return h.Dispatch(call.Store).Do(call.Name, call.Args...), nil
}

// recoverInto rejects f with a PanicError if the deferring function panicked.
func recoverInto(f *engine.Future, logger *slog.Logger, run string) {
	if r := recover(); r != nil {
		logger.Error("generator panicked",
			"run", run,
			"panic", r,
		)
		f.Reject(&engine.PanicError{Value: r, Stack: debug.Stack()})
	}
}
