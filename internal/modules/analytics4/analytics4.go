// Package analytics4 provides the modules/analytics-4 store: GA4 account
// summaries, web data streams, and matching the site to one of the user's
// properties.
//
// The store is combined from two fetch stores and a base fragment:
//
//	getAccountSummaries  GET modules/analytics-4/account-summaries (cached)
//	getWebDataStreams    GET modules/analytics-4/webdatastreams?propertyID=
//	base                 selectors, resolvers and the match actions
//
// It reads the reference site URL from the core/site store, which must be
// registered in the same registry.
package analytics4

import (
	"fmt"

	"github.com/roach88/storekit/internal/api"
	"github.com/roach88/storekit/internal/datastore"
)

// StoreName is the registry name of the analytics-4 store.
const StoreName = "modules/analytics-4"

const (
	apiType       = "modules"
	apiIdentifier = "analytics-4"
)

// Store is the assembled definition together with its fetch stores.
type Store struct {
	*datastore.Definition

	accountSummaries *datastore.FetchStore
	webDataStreams   *datastore.FetchStore
}

// New builds the store, fetching through client.
func New(client api.Client) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("analytics-4: nil api client")
	}

	accounts, err := newAccountSummariesFetchStore(client)
	if err != nil {
		return nil, fmt.Errorf("analytics-4: %w", err)
	}
	streams, err := newWebDataStreamsFetchStore(client)
	if err != nil {
		return nil, fmt.Errorf("analytics-4: %w", err)
	}

	s := &Store{accountSummaries: accounts, webDataStreams: streams}

	def, err := datastore.CombineStores(accounts.Definition, streams.Definition, s.base())
	if err != nil {
		return nil, fmt.Errorf("analytics-4: %w", err)
	}
	s.Definition = def
	return s, nil
}
