package datastore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/storekit/internal/engine"
	"github.com/roach88/storekit/internal/ir"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T, opts ...RegistryOption) *Registry {
	t.Helper()
	opts = append([]RegistryOption{
		WithLogger(quietLogger()),
		WithIDGenerator(engine.NewSequenceGenerator("req")),
	}, opts...)
	return NewRegistry(opts...)
}

// counterDefinition is a minimal store: a counter with increment and add
// actions and a getCount selector.
func counterDefinition() *Definition {
	return &Definition{
		Name:         "counter",
		InitialState: State{"count": 0},
		Actions: map[string]engine.GeneratorFunc{
			"increment": func(...any) engine.Generator {
				return engine.Emit(ir.Action{Type: "INCREMENT"})
			},
			"add": func(args ...any) engine.Generator {
				return engine.Emit(ir.Action{Type: "ADD", Payload: args[0]})
			},
		},
		Reducer: func(s State, a ir.Action) State {
			switch a.Type {
			case "INCREMENT":
				return s.With("count", s["count"].(int)+1)
			case "ADD":
				return s.With("count", s["count"].(int)+a.Payload.(int))
			default:
				return s
			}
		},
		Selectors: map[string]SelectorFunc{
			"getCount": func(s State, _ ...any) any { return s["count"] },
		},
	}
}

func wait(t *testing.T, f *engine.Future) (any, error) {
	t.Helper()
	select {
	case <-f.Done():
	case <-timeout():
		t.Fatal("future did not settle")
	}
	return f.Wait(context.Background())
}

func mustWait(t *testing.T, f *engine.Future) any {
	t.Helper()
	v, err := wait(t, f)
	require.NoError(t, err)
	return v
}

func countKind(trace []ir.TraceEntry, kind ir.Kind) int {
	n := 0
	for _, e := range trace {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func timeout() <-chan time.Time {
	return time.After(5 * time.Second)
}
