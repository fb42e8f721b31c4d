package analytics4

import (
	"context"
	"fmt"

	"github.com/roach88/storekit/internal/api"
	"github.com/roach88/storekit/internal/datastore"
	"github.com/roach88/storekit/internal/engine"
	"github.com/roach88/storekit/internal/modules/site"
)

func newAccountSummariesFetchStore(client api.Client) (*datastore.FetchStore, error) {
	return datastore.CreateFetchStore(datastore.FetchStoreOptions{
		BaseName: "getAccountSummaries",
		ControlCallback: func(ctx context.Context, _ datastore.Params) (any, error) {
			return client.Get(ctx, api.Request{
				Type:       apiType,
				Identifier: apiIdentifier,
				Datapoint:  "account-summaries",
				UseCache:   true,
			})
		},
		ReducerCallback: func(s datastore.State, summaries any, _ datastore.Params) datastore.State {
			return s.With("accountSummaries", summaries)
		},
		SharedKeys: []string{"accountSummaries"},
	})
}

// base is the fragment holding the store's own state, selectors, resolvers
// and actions.
func (s *Store) base() *datastore.Definition {
	return &datastore.Definition{
		Name: "base",
		InitialState: datastore.State{
			"accountSummaries": nil,
			"webdatastreams":   map[string]any{},
		},
		Actions: map[string]engine.GeneratorFunc{
			"matchAccountID":     s.matchAccountID,
			"matchPropertyByURL": s.matchPropertyByURL,
		},
		Resolvers: map[string]engine.GeneratorFunc{
			"getAccountSummaries": s.resolveAccountSummaries,
			"getWebDataStreams":   s.resolveWebDataStreams,
		},
		Selectors: map[string]datastore.SelectorFunc{
			"getAccountSummaries": func(st datastore.State, _ ...any) any {
				return st["accountSummaries"]
			},
			"getWebDataStreams": selectWebDataStreams,
		},
	}
}

// resolveAccountSummaries fetches the summaries unless they are loaded.
func (s *Store) resolveAccountSummaries(...any) engine.Generator {
	return engine.FromFunc(func(y *engine.Yielder) (any, error) {
		summaries, err := y.Yield(datastore.Select(StoreName, "getAccountSummaries"))
		if err != nil {
			return nil, err
		}
		if summaries == nil {
			return y.Yield(s.accountSummaries.Fetch())
		}
		return nil, nil
	})
}

// matchAccountID returns the ID of the account owning a property whose web
// data stream serves the reference site URL, or nil.
func (s *Store) matchAccountID(...any) engine.Generator {
	return engine.FromFunc(func(y *engine.Yielder) (any, error) {
		v, err := y.Yield(datastore.GetRegistry())
		if err != nil {
			return nil, err
		}
		registry := v.(*datastore.Handle)

		accounts, err := y.Yield(engine.Await(registry.ResolveSelect(StoreName).Get("getAccountSummaries")))
		if err != nil {
			return nil, err
		}
		list, ok := accounts.([]any)
		if !ok || len(list) == 0 {
			return nil, nil
		}

		url, err := registry.Select(site.StoreName).Get("getReferenceSiteURL")
		if err != nil {
			return nil, err
		}
		propertyIDs := make([]any, 0, len(list))
		for _, p := range properties(list) {
			propertyIDs = append(propertyIDs, p.id)
		}

		property, err := y.Yield(engine.Await(
			registry.Dispatch(StoreName).Do("matchPropertyByURL", propertyIDs, url),
		))
		if err != nil {
			return nil, err
		}
		match, ok := property.(map[string]any)
		if !ok {
			registry.Logger().Debug("no property matches site", "url", url, "properties", len(propertyIDs))
			return nil, nil
		}
		return match["_accountID"], nil
	})
}

type propertyRef struct {
	id        string
	accountID string
}

// properties flattens account summaries into their property summaries, in
// account order.
func properties(accounts []any) []propertyRef {
	var out []propertyRef
	for _, a := range accounts {
		account, ok := a.(map[string]any)
		if !ok {
			continue
		}
		accountID := idOf(account)
		summaries, _ := account["propertySummaries"].([]any)
		for _, ps := range summaries {
			if p, ok := ps.(map[string]any); ok {
				out = append(out, propertyRef{id: idOf(p), accountID: accountID})
			}
		}
	}
	return out
}

func idOf(m map[string]any) string {
	switch id := m["_id"].(type) {
	case nil:
		return ""
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}
