package datastore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekit/internal/engine"
	"github.com/roach88/storekit/internal/ir"
)

// profileDefinition has a getProfile(id) selector backed by a resolver that
// blocks on release before storing a profile, counting its executions.
func profileDefinition(calls *atomic.Int32, release <-chan struct{}, fail error) *Definition {
	return &Definition{
		Name:         "profiles",
		InitialState: State{"profiles": map[string]any{}},
		Reducer: func(s State, a ir.Action) State {
			if a.Type != "RECEIVE_PROFILE" {
				return s
			}
			p := a.Payload.(map[string]any)
			profiles := map[string]any{}
			for k, v := range s["profiles"].(map[string]any) {
				profiles[k] = v
			}
			profiles[p["id"].(string)] = p["name"]
			return s.With("profiles", profiles)
		},
		Selectors: map[string]SelectorFunc{
			"getProfile": func(s State, args ...any) any {
				return s["profiles"].(map[string]any)[args[0].(string)]
			},
		},
		Resolvers: map[string]engine.GeneratorFunc{
			"getProfile": func(args ...any) engine.Generator {
				return engine.FromFunc(func(y *engine.Yielder) (any, error) {
					calls.Add(1)
					if release != nil {
						<-release
					}
					if fail != nil {
						return nil, fail
					}
					id := args[0].(string)
					return y.Yield(ir.Action{Type: "RECEIVE_PROFILE", Payload: map[string]any{"id": id, "name": "name-" + id}})
				})
			},
		},
	}
}

func TestResolvers_ConcurrentCallersShareOneExecution(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	reg := newTestRegistry(t)
	require.NoError(t, reg.RegisterStore("p", profileDefinition(&calls, release, nil)))

	const callers = 25
	futures := make([]*engine.Future, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			futures[i] = reg.Handle(context.Background()).ResolveSelect("p").Get("getProfile", "42")
		}()
	}
	wg.Wait()

	assert.True(t, reg.IsResolving("p", "getProfile", "42"))
	close(release)

	for _, f := range futures {
		assert.Equal(t, "name-42", mustWait(t, f))
	}
	assert.Equal(t, int32(1), calls.Load(), "resolver body must run exactly once")
	assert.True(t, reg.HasFinishedResolution("p", "getProfile", "42"))
	assert.Equal(t, StatusDone, reg.ResolutionStatus("p", "getProfile", "42"))
}

func TestResolvers_DoneKeyDoesNoWork(t *testing.T) {
	var calls atomic.Int32
	reg := newTestRegistry(t)
	require.NoError(t, reg.RegisterStore("p", profileDefinition(&calls, nil, nil)))
	h := reg.Handle(context.Background())

	mustWait(t, h.ResolveSelect("p").Get("getProfile", "1"))
	f := h.ResolveSelect("p").Get("getProfile", "1")

	assert.True(t, f.Settled(), "a finished resolution returns a settled future")
	assert.Equal(t, "name-1", mustWait(t, f))
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolvers_DistinctArgsResolveSeparately(t *testing.T) {
	var calls atomic.Int32
	reg := newTestRegistry(t)
	require.NoError(t, reg.RegisterStore("p", profileDefinition(&calls, nil, nil)))
	h := reg.Handle(context.Background())

	assert.Equal(t, "name-1", mustWait(t, h.ResolveSelect("p").Get("getProfile", "1")))
	assert.Equal(t, "name-2", mustWait(t, h.ResolveSelect("p").Get("getProfile", "2")))
	assert.Equal(t, int32(2), calls.Load())
}

func TestResolvers_SelectNeverResolves(t *testing.T) {
	var calls atomic.Int32
	reg := newTestRegistry(t)
	require.NoError(t, reg.RegisterStore("p", profileDefinition(&calls, nil, nil)))

	v, err := reg.Select("p").Get("getProfile", "1")
	require.NoError(t, err)
	assert.Nil(t, v, "unresolved data reads as nil")
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, StatusNone, reg.ResolutionStatus("p", "getProfile", "1"))
}

func TestResolvers_ErrorRetainedNotRetried(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("backend exploded")
	reg := newTestRegistry(t)
	require.NoError(t, reg.RegisterStore("p", profileDefinition(&calls, nil, boom)))
	h := reg.Handle(context.Background())

	for range 3 {
		_, err := wait(t, h.ResolveSelect("p").Get("getProfile", "1"))
		require.True(t, IsResolverError(err))
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, int32(1), calls.Load(), "failed resolutions are not retried")

	v, _ := reg.Select("p").Get("getProfile", "1")
	assert.Nil(t, v, "selector stays unresolved after a failed resolver")
	assert.Equal(t, StatusError, reg.ResolutionStatus("p", "getProfile", "1"))
	assert.ErrorIs(t, reg.ResolutionError("p", "getProfile", "1"), boom)
	assert.Equal(t, 1, countKind(reg.Trace(), ir.KindResolverError))
}

func TestResolvers_InvalidateRunsAgain(t *testing.T) {
	var calls atomic.Int32
	reg := newTestRegistry(t)
	require.NoError(t, reg.RegisterStore("p", profileDefinition(&calls, nil, nil)))
	ctx := context.Background()
	h := reg.Handle(ctx)

	mustWait(t, h.ResolveSelect("p").Get("getProfile", "1"))
	mustWait(t, h.ResolveSelect("p").Get("getProfile", "2"))

	require.NoError(t, h.InvalidateResolution("p", "getProfile", "1"))
	assert.Equal(t, StatusNone, reg.ResolutionStatus("p", "getProfile", "1"))
	assert.Equal(t, StatusDone, reg.ResolutionStatus("p", "getProfile", "2"))

	mustWait(t, h.ResolveSelect("p").Get("getProfile", "1"))
	assert.Equal(t, int32(3), calls.Load())

	require.NoError(t, reg.InvalidateResolutionForStore(ctx, "p"))
	assert.Equal(t, StatusNone, reg.ResolutionStatus("p", "getProfile", "2"))
	assert.Equal(t, 3, countKind(reg.Trace(), ir.KindResolverInvalid))

	assert.True(t, IsNotFound(reg.InvalidateResolutionForStore(ctx, "missing")))
}

func TestResolvers_SelectorWithoutResolverResolvesImmediately(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.RegisterStore("s", counterDefinition()))

	f := reg.Handle(context.Background()).ResolveSelect("s").Get("getCount")
	assert.True(t, f.Settled())
	assert.Equal(t, 0, mustWait(t, f))
}

func TestResolvers_CallerCancellationDoesNotStopResolution(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	reg := newTestRegistry(t)
	require.NoError(t, reg.RegisterStore("p", profileDefinition(&calls, release, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	f := reg.Handle(ctx).ResolveSelect("p").Get("getProfile", "1")
	cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	again := reg.Handle(context.Background()).ResolveSelect("p").Get("getProfile", "1")
	assert.Equal(t, "name-1", mustWait(t, again))
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolvers_CycleRejected(t *testing.T) {
	def := &Definition{
		Name:         "loop",
		InitialState: State{},
		Selectors: map[string]SelectorFunc{
			"getA": func(State, ...any) any { return nil },
			"getB": func(State, ...any) any { return nil },
		},
		Resolvers: map[string]engine.GeneratorFunc{
			"getA": func(...any) engine.Generator {
				return engine.FromFunc(func(y *engine.Yielder) (any, error) {
					return y.Yield(ResolveSelect("loop", "getB"))
				})
			},
			"getB": func(...any) engine.Generator {
				return engine.FromFunc(func(y *engine.Yielder) (any, error) {
					return y.Yield(ResolveSelect("loop", "getA"))
				})
			},
		},
	}
	reg := newTestRegistry(t)
	require.NoError(t, reg.RegisterStore("loop", def))

	_, err := wait(t, reg.Handle(context.Background()).ResolveSelect("loop").Get("getA"))
	require.True(t, IsResolverCycleError(err))

	var ce *ResolverCycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"loop/getA()", "loop/getB()", "loop/getA()"}, ce.Path)
}

func TestResolvers_PanicBecomesResolverError(t *testing.T) {
	def := &Definition{
		InitialState: State{},
		Selectors:    map[string]SelectorFunc{"get": func(State, ...any) any { return nil }},
		Resolvers: map[string]engine.GeneratorFunc{
			"get": func(...any) engine.Generator { panic("resolver bug") },
		},
	}
	reg := newTestRegistry(t)
	require.NoError(t, reg.RegisterStore("s", def))

	_, err := wait(t, reg.Handle(context.Background()).ResolveSelect("s").Get("get"))
	assert.True(t, IsResolverError(err))
	assert.True(t, engine.IsPanicError(err))
}

func TestResolutionStatusString(t *testing.T) {
	assert.Equal(t, "none", StatusNone.String())
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "done", StatusDone.String())
	assert.Equal(t, "error", StatusError.String())
}
