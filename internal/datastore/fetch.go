package datastore

import (
	"context"
	"fmt"
	"maps"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/storekit/internal/engine"
	"github.com/roach88/storekit/internal/ir"
)

// Params are the request parameters of one fetch, derived from the fetch
// action's arguments. Their canonical JSON is the request key.
type Params map[string]any

// FetchState tracks one request key.
type FetchState struct {
	IsFetching bool        `json:"isFetching"`
	Data       any         `json:"data,omitempty"`
	Error      *FetchError `json:"error,omitempty"`
	RequestID  string      `json:"requestID,omitempty"`
}

// FetchResult is what a fetch action returns. Network failures are reported
// in Error, never thrown.
type FetchResult struct {
	Response any         `json:"response,omitempty"`
	Error    *FetchError `json:"error,omitempty"`
}

// FetchPayload is the payload of the actions a fetch store dispatches.
type FetchPayload struct {
	Key       string      `json:"key"`
	Params    Params      `json:"params"`
	RequestID string      `json:"requestID,omitempty"`
	Response  any         `json:"response,omitempty"`
	Error     *FetchError `json:"error,omitempty"`
}

// FetchStoreOptions configures CreateFetchStore.
type FetchStoreOptions struct {
	// BaseName names the request, e.g. "getAccountSummaries".
	BaseName string

	// ControlCallback performs the request. It is called at most once per
	// request key while a request for that key is in flight.
	ControlCallback func(ctx context.Context, params Params) (any, error)

	// ReducerCallback merges a successful response into domain state.
	// Optional.
	ReducerCallback func(state State, response any, params Params) State

	// ArgsToParams maps fetch arguments to params. Default: no params.
	ArgsToParams func(args ...any) (Params, error)

	// ValidateParams rejects invalid params before a request is made.
	// Optional.
	ValidateParams func(params Params) error

	// SharedKeys lists the domain state keys ReducerCallback writes.
	SharedKeys []string
}

// FetchStore is a definition fragment standardizing request, success and
// error tracking for one network operation, with in-flight deduplication.
//
// For BaseName "getAccountSummaries" it exports:
//
//	actions:   fetchGetAccountSummaries, receiveGetAccountSummaries,
//	           receiveGetAccountSummariesError
//	selectors: isFetchingGetAccountSummaries, getGetAccountSummariesError,
//	           getGetAccountSummariesFetchState
//	types:     FETCH_GET_ACCOUNT_SUMMARIES, RECEIVE_GET_ACCOUNT_SUMMARIES,
//	           RECEIVE_GET_ACCOUNT_SUMMARIES_ERROR
//
// Per-key FetchState lives under the state key "fetch/<BaseName>".
type FetchStore struct {
	*Definition

	opts     FetchStoreOptions
	stateKey string
	types    fetchTypes

	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]bool
}

type fetchTypes struct {
	fetch, receive, receiveError string
	control                      string
}

// CreateFetchStore builds a fetch store fragment.
func CreateFetchStore(opts FetchStoreOptions) (*FetchStore, error) {
	if opts.BaseName == "" {
		return nil, fmt.Errorf("create fetch store: BaseName is required")
	}
	if opts.ControlCallback == nil {
		return nil, fmt.Errorf("create fetch store %s: ControlCallback is required", opts.BaseName)
	}
	if opts.ArgsToParams == nil {
		opts.ArgsToParams = func(...any) (Params, error) { return Params{}, nil }
	}

	pascal := ir.PascalCase(opts.BaseName)
	constant := ir.ConstantCase(opts.BaseName)

	fs := &FetchStore{
		opts:     opts,
		stateKey: FetchStateKey(opts.BaseName),
		types: fetchTypes{
			fetch:        "FETCH_" + constant,
			receive:      "RECEIVE_" + constant,
			receiveError: "RECEIVE_" + constant + "_ERROR",
			control:      "FETCH_" + constant,
		},
		inflight: make(map[string]bool),
	}

	fs.Definition = &Definition{
		Name:         "fetch" + pascal,
		InitialState: State{fs.stateKey: map[string]FetchState{}},
		Actions: map[string]engine.GeneratorFunc{
			"fetch" + pascal:             fs.Fetch,
			"receive" + pascal:           fs.Receive,
			"receive" + pascal + "Error": fs.ReceiveError,
		},
		Controls: map[string]engine.Handler{
			fs.types.control: fs.control,
		},
		Reducer: fs.reduce,
		Selectors: map[string]SelectorFunc{
			"isFetching" + pascal:         fs.selectIsFetching,
			"get" + pascal + "Error":      fs.selectError,
			"get" + pascal + "FetchState": fs.selectFetchState,
		},
		SharedKeys: opts.SharedKeys,
	}
	return fs, nil
}

// FetchStateKey returns the state key holding a fetch store's per-key state.
func FetchStateKey(baseName string) string {
	return "fetch/" + baseName
}

// Fetch is the fetch<BaseName> action. Yield it from a resolver to run the
// request as a subroutine:
//
//	res, err := y.Yield(store.Fetch(propertyID))
func (fs *FetchStore) Fetch(args ...any) engine.Generator {
	return engine.FromFunc(func(y *engine.Yielder) (any, error) {
		params, key, err := fs.request(args...)
		if err != nil {
			return nil, err
		}
		return y.Yield(ir.Control{
			Type:    fs.types.control,
			Payload: FetchPayload{Key: key, Params: params},
		})
	})
}

// Receive is the receive<BaseName>(response, params) action.
func (fs *FetchStore) Receive(args ...any) engine.Generator {
	var response any
	if len(args) > 0 {
		response = args[0]
	}
	payload, err := fs.payloadFor(args)
	if err != nil {
		return errorGenerator(err)
	}
	payload.Response = response
	return engine.Emit(ir.Action{Type: fs.types.receive, Payload: payload})
}

// ReceiveError is the receive<BaseName>Error(error, params) action.
func (fs *FetchStore) ReceiveError(args ...any) engine.Generator {
	if len(args) == 0 {
		return errorGenerator(fmt.Errorf("%s: error argument is required", fs.types.receiveError))
	}
	payload, err := fs.payloadFor(args)
	if err != nil {
		return errorGenerator(err)
	}
	payload.Error = toFetchError(args[0])
	return engine.Emit(ir.Action{Type: fs.types.receiveError, Payload: payload})
}

// payloadFor reads the optional params argument of the receive actions.
func (fs *FetchStore) payloadFor(args []any) (FetchPayload, error) {
	params := Params{}
	if len(args) > 1 {
		switch p := args[1].(type) {
		case Params:
			params = p
		case map[string]any:
			params = Params(p)
		case nil:
		default:
			return FetchPayload{}, fmt.Errorf("%s: params must be a map, got %T", fs.Name, args[1])
		}
	}
	key, err := ir.RequestKey(map[string]any(params))
	if err != nil {
		return FetchPayload{}, err
	}
	return FetchPayload{Key: key, Params: params}, nil
}

func (fs *FetchStore) request(args ...any) (Params, string, error) {
	params, err := fs.opts.ArgsToParams(args...)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", fs.Name, err)
	}
	if params == nil {
		params = Params{}
	}
	if fs.opts.ValidateParams != nil {
		if err := fs.opts.ValidateParams(params); err != nil {
			return nil, "", fmt.Errorf("%s: invalid params: %w", fs.Name, err)
		}
	}
	key, err := ir.RequestKey(map[string]any(params))
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", fs.Name, err)
	}
	return params, key, nil
}

// control performs the request. Concurrent calls for one key in one store
// share a single ControlCallback invocation; only that leading call
// dispatches the FETCH and RECEIVE actions.
func (fs *FetchStore) control(ctx context.Context, c ir.Control) (any, error) {
	req, ok := c.Payload.(FetchPayload)
	if !ok {
		return nil, fmt.Errorf("%s: payload is %T", c.Type, c.Payload)
	}
	info := runInfoFrom(ctx)
	if info == nil {
		return nil, fmt.Errorf("%s: no store bound to this run", c.Type)
	}
	inst := info.store

	// One group serves every registry the definition is registered in;
	// the instance pointer keeps their requests apart.
	flightKey := fmt.Sprintf("%p|%s", inst, req.Key)
	ch, shared := fs.join(context.WithoutCancel(ctx), flightKey, inst, req)
	if shared {
		inst.reg.record(ctx, ir.TraceEntry{
			Kind:   ir.KindFetchDedup,
			Store:  inst.name,
			Type:   fs.opts.BaseName,
			Key:    req.Key,
			Digest: ir.RequestDigest(fs.opts.BaseName, req.Key),
		})
	}

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// join enters the flight for key, starting it if none is running, and
// reports whether an earlier caller's flight was joined.
//
// A flight stays joinable until its lead call has settled and dispatched
// RECEIVE; the lead call then leaves the flight and the group under fs.mu,
// so a caller either shares that result or starts a new request.
func (fs *FetchStore) join(ctx context.Context, key string, inst *storeInstance, req FetchPayload) (<-chan singleflight.Result, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	shared := fs.inflight[key]
	fs.inflight[key] = true
	ch := fs.group.DoChan(key, func() (res any, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = &engine.PanicError{Value: p, Stack: debug.Stack()}
			}
			fs.mu.Lock()
			delete(fs.inflight, key)
			fs.group.Forget(key)
			fs.mu.Unlock()
		}()
		return fs.perform(ctx, inst, req), nil
	})
	return ch, shared
}

// perform runs the leading request: FETCH, the network call, then RECEIVE
// or RECEIVE_ERROR. It never fails; errors become FetchResult.Error.
func (fs *FetchStore) perform(ctx context.Context, inst *storeInstance, req FetchPayload) FetchResult {
	reg := inst.reg
	req.RequestID = reg.ids.Generate()
	digest := ir.RequestDigest(fs.opts.BaseName, req.Key)

	if _, err := inst.apply(ctx, ir.Action{Type: fs.types.fetch, Payload: req}); err != nil {
		return FetchResult{Error: toFetchError(err)}
	}
	reg.record(ctx, ir.TraceEntry{
		Kind:    ir.KindFetchStart,
		Store:   inst.name,
		Type:    fs.opts.BaseName,
		Key:     req.Key,
		Digest:  digest,
		Request: req.RequestID,
	})
	reg.logger.Info("request issued",
		"store", inst.name,
		"request", fs.opts.BaseName,
		"key", req.Key,
		"request_id", req.RequestID,
	)

	response, err := fs.callback(ctx, req.Params)
	if err == nil {
		_, err = inst.apply(ctx, ir.Action{Type: fs.types.receive, Payload: FetchPayload{
			Key:       req.Key,
			Params:    req.Params,
			RequestID: req.RequestID,
			Response:  response,
		}})
	}

	finish := ir.TraceEntry{
		Kind:    ir.KindFetchFinish,
		Store:   inst.name,
		Type:    fs.opts.BaseName,
		Key:     req.Key,
		Digest:  digest,
		Request: req.RequestID,
	}
	if err != nil {
		// RECEIVE_ERROR never calls ReducerCallback, so it clears
		// isFetching even when RECEIVE itself failed.
		fe := toFetchError(err)
		inst.apply(ctx, ir.Action{Type: fs.types.receiveError, Payload: FetchPayload{
			Key:       req.Key,
			Params:    req.Params,
			RequestID: req.RequestID,
			Error:     fe,
		}})
		finish.Error = fe.Message
		reg.record(ctx, finish)
		reg.logger.Warn("request failed",
			"store", inst.name,
			"request", fs.opts.BaseName,
			"request_id", req.RequestID,
			"error", fe.Message,
		)
		return FetchResult{Error: fe}
	}

	reg.record(ctx, finish)
	return FetchResult{Response: response}
}

// callback invokes ControlCallback, converting a panic into an error so a
// misbehaving collaborator cannot leave the key stuck in flight.
func (fs *FetchStore) callback(ctx context.Context, params Params) (resp any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &engine.PanicError{Value: p, Stack: debug.Stack()}
		}
	}()
	return fs.opts.ControlCallback(ctx, maps.Clone(params))
}

func (fs *FetchStore) reduce(state State, action ir.Action) State {
	payload, ok := action.Payload.(FetchPayload)
	if !ok {
		return state
	}

	switch action.Type {
	case fs.types.fetch:
		return fs.update(state, payload.Key, func(s FetchState) FetchState {
			s.IsFetching = true
			s.Error = nil
			s.RequestID = payload.RequestID
			return s
		})

	case fs.types.receive:
		next := fs.update(state, payload.Key, func(s FetchState) FetchState {
			s.IsFetching = false
			s.Data = payload.Response
			return s
		})
		if fs.opts.ReducerCallback != nil {
			if out := fs.opts.ReducerCallback(next, payload.Response, payload.Params); out != nil {
				next = out
			}
		}
		return next

	case fs.types.receiveError:
		return fs.update(state, payload.Key, func(s FetchState) FetchState {
			s.IsFetching = false
			s.Error = payload.Error
			return s
		})

	default:
		return state
	}
}

// update replaces the FetchState of key, copying the containing maps.
func (fs *FetchStore) update(state State, key string, fn func(FetchState) FetchState) State {
	prev, _ := state[fs.stateKey].(map[string]FetchState)
	states := make(map[string]FetchState, len(prev)+1)
	maps.Copy(states, prev)
	states[key] = fn(states[key])
	return state.With(fs.stateKey, states)
}

func (fs *FetchStore) stateFor(state State, args []any) (FetchState, bool) {
	_, key, err := fs.request(args...)
	if err != nil {
		return FetchState{}, false
	}
	states, _ := state[fs.stateKey].(map[string]FetchState)
	s, ok := states[key]
	return s, ok
}

func (fs *FetchStore) selectIsFetching(state State, args ...any) any {
	s, _ := fs.stateFor(state, args)
	return s.IsFetching
}

func (fs *FetchStore) selectError(state State, args ...any) any {
	s, _ := fs.stateFor(state, args)
	if s.Error == nil {
		return nil
	}
	return s.Error
}

func (fs *FetchStore) selectFetchState(state State, args ...any) any {
	s, ok := fs.stateFor(state, args)
	if !ok {
		return nil
	}
	return s
}

func errorGenerator(err error) engine.Generator {
	return engine.FromFunc(func(*engine.Yielder) (any, error) {
		return nil, err
	})
}
