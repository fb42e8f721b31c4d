package datastore

import (
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/storekit/internal/engine"
	"github.com/roach88/storekit/internal/ir"
)

// CombineStores merges fragments into one definition.
//
// Initial states are merged key by key; a key declared by more than one
// fragment must carry deeply equal values. Actions, selectors, resolvers and
// controls must be disjoint across fragments. Any collision fails the whole
// combination with no partial result.
//
// The combined reducer passes each action through every fragment's reducer
// in argument order. A fragment may only change the keys it declares in its
// initial state plus its SharedKeys; other writes are discarded and logged.
func CombineStores(defs ...*Definition) (*Definition, error) {
	c := &Definition{
		InitialState: State{},
		Actions:      map[string]engine.GeneratorFunc{},
		Controls:     map[string]engine.Handler{},
		Resolvers:    map[string]engine.GeneratorFunc{},
		Selectors:    map[string]SelectorFunc{},
	}

	stateOwner := map[string]string{}
	frags := make([]fragmentReducer, 0, len(defs))
	names := make([]string, 0, len(defs))
	shared := map[string]bool{}

	for i, d := range defs {
		if d == nil {
			return nil, fmt.Errorf("combine stores: fragment %d is nil", i)
		}
		frag := fragmentName(d, i)
		names = append(names, frag)

		for _, key := range slices.Sorted(maps.Keys(d.InitialState)) {
			value := d.InitialState[key]
			if prev, ok := stateOwner[key]; ok {
				if !reflect.DeepEqual(c.InitialState[key], value) {
					return nil, &DuplicateStateKeyError{Key: key, Fragment: frag, Previous: prev}
				}
				continue
			}
			stateOwner[key] = frag
			c.InitialState[key] = value
		}

		if err := mergeNamespace("actions", c.Actions, d.Actions, frag, defs[:i]); err != nil {
			return nil, err
		}
		if err := mergeNamespace("selectors", c.Selectors, d.Selectors, frag, defs[:i]); err != nil {
			return nil, err
		}
		if err := mergeNamespace("resolvers", c.Resolvers, d.Resolvers, frag, defs[:i]); err != nil {
			return nil, err
		}
		if err := mergeNamespace("controls", c.Controls, d.Controls, frag, defs[:i]); err != nil {
			return nil, err
		}

		writable := map[string]bool{}
		for key := range d.InitialState {
			writable[key] = true
		}
		for _, key := range d.SharedKeys {
			writable[key] = true
			shared[key] = true
		}
		if d.Reducer != nil {
			frags = append(frags, fragmentReducer{name: frag, def: d, writable: writable})
		}
	}

	for key := range shared {
		if _, owned := c.InitialState[key]; !owned {
			c.SharedKeys = append(c.SharedKeys, key)
		}
	}
	slices.Sort(c.SharedKeys)

	c.Name = strings.Join(names, "+")
	c.fragments = frags
	c.Reducer = func(state State, action ir.Action) State {
		return reduceFragments(slog.Default(), frags, state, action)
	}
	return c, nil
}

// mergeNamespace copies src into dst, failing on the first name already
// present. Names are visited in sorted order so the reported collision is
// deterministic.
func mergeNamespace[V any](namespace string, dst, src map[string]V, frag string, earlier []*Definition) error {
	for _, name := range slices.Sorted(maps.Keys(src)) {
		if _, exists := dst[name]; exists {
			return &DuplicateNameError{
				Namespace: namespace,
				Name:      name,
				Fragment:  frag,
				Previous:  declaredBy(namespace, name, earlier),
			}
		}
	}
	maps.Copy(dst, src)
	return nil
}

// declaredBy finds the earlier fragment exporting name in namespace.
func declaredBy(namespace, name string, earlier []*Definition) string {
	for i, d := range earlier {
		var found bool
		switch namespace {
		case "actions":
			_, found = d.Actions[name]
		case "selectors":
			_, found = d.Selectors[name]
		case "resolvers":
			_, found = d.Resolvers[name]
		case "controls":
			_, found = d.Controls[name]
		}
		if found {
			return fragmentName(d, i)
		}
	}
	return ""
}

func fragmentName(d *Definition, i int) string {
	if d.Name != "" {
		return d.Name
	}
	return fmt.Sprintf("fragment#%d", i)
}

type fragmentReducer struct {
	name     string
	def      *Definition
	writable map[string]bool
}

// reduceFragments threads state through every fragment in order, logging
// discarded writes to logger.
func reduceFragments(logger *slog.Logger, frags []fragmentReducer, state State, action ir.Action) State {
	next := state
	for _, f := range frags {
		out := f.def.reduce(logger, next, action)
		next = f.guard(logger, next, out, action)
	}
	return next
}

// guard returns out with every change to a key the fragment may not write
// reverted to its value in prev.
func (f fragmentReducer) guard(logger *slog.Logger, prev, out State, action ir.Action) State {
	var violations []string
	for key, v := range out {
		if f.writable[key] {
			continue
		}
		old, existed := prev[key]
		if !existed || !unchanged(old, v) {
			violations = append(violations, key)
		}
	}
	for key := range prev {
		if _, kept := out[key]; !kept && !f.writable[key] {
			violations = append(violations, key)
		}
	}
	if len(violations) == 0 {
		return out
	}

	fixed := out.Clone()
	for _, key := range violations {
		logger.Warn("discarded write outside fragment's state",
			"fragment", f.name,
			"key", key,
			"action", action.Type,
		)
		if old, existed := prev[key]; existed {
			fixed[key] = old
		} else {
			delete(fixed, key)
		}
	}
	return fixed
}

// unchanged compares state values, short-circuiting on shared references
// before falling back to a deep comparison.
func unchanged(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.IsValid() && vb.IsValid() && va.Type() == vb.Type() {
		switch va.Kind() {
		case reflect.Map, reflect.Pointer:
			if va.UnsafePointer() == vb.UnsafePointer() {
				return true
			}
		case reflect.Slice:
			if va.UnsafePointer() == vb.UnsafePointer() && va.Len() == vb.Len() {
				return true
			}
		}
	}
	return reflect.DeepEqual(a, b)
}
