package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/roach88/storekit/internal/engine"
	"github.com/roach88/storekit/internal/ir"
)

// storeInstance is a registered store: its definition, its live state and
// the interpreter its actions and resolvers run on.
type storeInstance struct {
	name   string
	def    *Definition
	reg    *Registry
	interp *engine.Interpreter

	mu    sync.RWMutex
	state State
}

// apply runs an action through the reducer. It is the interpreter's action
// handler, so every action a body yields lands here.
//
// The store lock serializes dispatches: actions are applied one at a time in
// the order they arrive, and each is traced under the same lock so trace
// order matches application order.
func (s *storeInstance) apply(ctx context.Context, action ir.Action) (any, error) {
	seq, err := s.reduce(ctx, action)
	if err != nil {
		s.reg.logger.Error("reducer panicked",
			"store", s.name,
			"type", action.Type,
			"error", err,
		)
		return nil, err
	}

	if s.reg.logger.Enabled(ctx, slog.LevelDebug) {
		s.reg.logger.Debug("action applied",
			"store", s.name,
			"type", action.Type,
			"seq", seq,
		)
	}
	s.reg.notify(Change{Seq: seq, Store: s.name, Action: action})
	return action, nil
}

// reduce applies action under the store lock. A panicking reducer leaves the
// state unchanged, records nothing and returns a PanicError.
func (s *storeInstance) reduce(ctx context.Context, action ir.Action) (seq int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reduce %s in %s: %w", action.Type, s.name,
				&engine.PanicError{Value: p, Stack: debug.Stack()})
		}
	}()

	next := s.def.reduce(s.reg.logger, s.state, action)
	s.state = next
	seq = s.reg.record(ctx, ir.TraceEntry{
		Kind:    ir.KindDispatch,
		Store:   s.name,
		Type:    action.Type,
		Payload: action.Payload,
	})
	return seq, nil
}

// read calls a selector against the current state.
func (s *storeInstance) read(selector string, args ...any) (any, error) {
	fn, ok := s.def.Selectors[selector]
	if !ok {
		return nil, &UnknownSelectorError{Store: s.name, Selector: selector}
	}
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()

	// Reducers never mutate a state they were given, so reading the
	// captured map outside the lock is safe.
	return fn(state, args...), nil
}

func (s *storeInstance) snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// runContext attaches the run's store and resolution chain to ctx so that
// built-in controls can find them.
func (s *storeInstance) runContext(ctx context.Context, chain *engine.Chain) context.Context {
	return context.WithValue(ctx, runKey{}, &runInfo{store: s, chain: chain})
}

// dispatch runs an action to completion on the calling goroutine.
func (s *storeInstance) dispatch(ctx context.Context, chain *engine.Chain, action string, args ...any) *engine.Future {
	fn, ok := s.def.Actions[action]
	if !ok {
		return engine.Rejected(&UnknownActionError{Store: s.name, Action: action})
	}

	f := engine.NewFuture()
	func() {
		defer recoverInto(f, s.reg.logger, s.name+"/"+action)
		f.Settle(s.interp.Call(s.runContext(ctx, chain), fn, args...))
	}()
	return f
}

type runKey struct{}

type runInfo struct {
	store *storeInstance
	chain *engine.Chain
}

func runInfoFrom(ctx context.Context) *runInfo {
	info, _ := ctx.Value(runKey{}).(*runInfo)
	return info
}

func chainFrom(ctx context.Context) *engine.Chain {
	if info := runInfoFrom(ctx); info != nil {
		return info.chain
	}
	return nil
}
