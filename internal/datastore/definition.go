package datastore

import (
	"log/slog"
	"maps"

	"github.com/roach88/storekit/internal/engine"
	"github.com/roach88/storekit/internal/ir"
)

// State is a store's state tree: JSON-serializable values under top-level
// keys. Reducers treat it as immutable and return a changed copy.
type State map[string]any

// Clone returns a shallow copy of the state.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	return maps.Clone(s)
}

// With returns a shallow copy of the state with key set to value.
func (s State) With(key string, value any) State {
	next := s.Clone()
	next[key] = value
	return next
}

// Reducer computes the next state for an action. Unrecognized actions must
// return the state unchanged.
type Reducer func(state State, action ir.Action) State

// SelectorFunc is a pure read of store state. It never writes state and
// returns nil for data that has not been resolved yet.
type SelectorFunc func(state State, args ...any) any

// Definition bundles everything a store is made of.
//
// Definitions are authored once and never mutated after registration.
// Resolvers are keyed by the selector they back and receive the same
// arguments as that selector.
type Definition struct {
	// Name labels the fragment in collision and ownership diagnostics.
	Name string

	InitialState State
	Actions      map[string]engine.GeneratorFunc
	Controls     map[string]engine.Handler
	Reducer      Reducer
	Resolvers    map[string]engine.GeneratorFunc
	Selectors    map[string]SelectorFunc

	// SharedKeys lists top-level state keys owned by a sibling fragment
	// that this fragment's reducer may still write when combined.
	SharedKeys []string

	// fragments is set by CombineStores so the registry's logger reaches
	// the ownership guard.
	fragments []fragmentReducer
}

// reduce applies the definition's reducer, treating a nil reducer or a nil
// result as "no change".
func (d *Definition) reduce(logger *slog.Logger, state State, action ir.Action) State {
	if d.fragments != nil {
		return reduceFragments(logger, d.fragments, state, action)
	}
	if d.Reducer == nil {
		return state
	}
	if next := d.Reducer(state, action); next != nil {
		return next
	}
	return state
}
