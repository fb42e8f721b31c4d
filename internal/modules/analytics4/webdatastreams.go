package analytics4

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/roach88/storekit/internal/api"
	"github.com/roach88/storekit/internal/datastore"
	"github.com/roach88/storekit/internal/engine"
)

func newWebDataStreamsFetchStore(client api.Client) (*datastore.FetchStore, error) {
	return datastore.CreateFetchStore(datastore.FetchStoreOptions{
		BaseName: "getWebDataStreams",
		ArgsToParams: func(args ...any) (datastore.Params, error) {
			if len(args) == 0 {
				return datastore.Params{}, nil
			}
			return datastore.Params{"propertyID": propertyKey(args[0])}, nil
		},
		ValidateParams: func(p datastore.Params) error {
			if id, _ := p["propertyID"].(string); id == "" {
				return errors.New("a valid propertyID is required")
			}
			return nil
		},
		ControlCallback: func(ctx context.Context, p datastore.Params) (any, error) {
			return client.Get(ctx, api.Request{
				Type:       apiType,
				Identifier: apiIdentifier,
				Datapoint:  "webdatastreams",
				Query:      map[string]any{"propertyID": p["propertyID"]},
			})
		},
		ReducerCallback: func(s datastore.State, streams any, p datastore.Params) datastore.State {
			id, ok := p["propertyID"].(string)
			if !ok || id == "" {
				return s
			}
			prev, _ := s["webdatastreams"].(map[string]any)
			next := make(map[string]any, len(prev)+1)
			maps.Copy(next, prev)
			next[id] = streams
			return s.With("webdatastreams", next)
		},
		SharedKeys: []string{"webdatastreams"},
	})
}

func selectWebDataStreams(s datastore.State, args ...any) any {
	if len(args) == 0 {
		return nil
	}
	streams, _ := s["webdatastreams"].(map[string]any)
	return streams[propertyKey(args[0])]
}

// resolveWebDataStreams fetches a property's streams unless they are loaded.
func (s *Store) resolveWebDataStreams(args ...any) engine.Generator {
	return engine.FromFunc(func(y *engine.Yielder) (any, error) {
		streams, err := y.Yield(datastore.Select(StoreName, "getWebDataStreams", args...))
		if err != nil {
			return nil, err
		}
		if streams == nil {
			return y.Yield(s.webDataStreams.Fetch(args...))
		}
		return nil, nil
	})
}

// matchPropertyByURL(propertyIDs, url) returns {_id, _accountID} of the
// first property with a web data stream whose default URI is url, or nil.
// The streams of all properties are resolved in parallel.
func (s *Store) matchPropertyByURL(args ...any) engine.Generator {
	return engine.FromFunc(func(y *engine.Yielder) (any, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("matchPropertyByURL: propertyIDs and url are required")
		}
		ids, err := stringList(args[0])
		if err != nil {
			return nil, fmt.Errorf("matchPropertyByURL: %w", err)
		}
		url, _ := args[1].(string)
		if len(ids) == 0 || url == "" {
			return nil, nil
		}

		v, err := y.Yield(datastore.GetRegistry())
		if err != nil {
			return nil, err
		}
		registry := v.(*datastore.Handle)

		pending := make([]*engine.Future, len(ids))
		for i, id := range ids {
			pending[i] = registry.ResolveSelect(StoreName).Get("getWebDataStreams", id)
		}

		want := normalizeURL(url)
		for i, id := range ids {
			streams, err := y.Yield(engine.Await(pending[i]))
			if err != nil {
				return nil, err
			}
			if !anyStreamMatches(streams, want) {
				continue
			}

			accounts, err := y.Yield(engine.Await(registry.ResolveSelect(StoreName).Get("getAccountSummaries")))
			if err != nil {
				return nil, err
			}
			list, _ := accounts.([]any)
			var accountID any
			for _, p := range properties(list) {
				if p.id == id {
					accountID = p.accountID
					break
				}
			}
			return map[string]any{"_id": id, "_accountID": accountID}, nil
		}
		return nil, nil
	})
}

func anyStreamMatches(streams any, want string) bool {
	list, _ := streams.([]any)
	for _, st := range list {
		stream, ok := st.(map[string]any)
		if !ok {
			continue
		}
		data, _ := stream["webStreamData"].(map[string]any)
		if uri, _ := data["defaultUri"].(string); uri != "" && normalizeURL(uri) == want {
			return true
		}
	}
	return false
}

// normalizeURL drops the scheme, a leading "www." and trailing slashes so
// that "https://www.example.com/" and "http://example.com" compare equal.
func normalizeURL(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, prefix := range []string{"https://", "http://", "//"} {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimRight(s, "/")
}

func propertyKey(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func stringList(v any) ([]string, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return list, nil
	case []any:
		out := make([]string, len(list))
		for i, id := range list {
			out[i] = propertyKey(id)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("propertyIDs must be a list, got %T", v)
	}
}
