// Package site provides the core/site store: site-wide settings other
// stores read, such as the reference site URL.
package site

import (
	"fmt"

	"github.com/roach88/storekit/internal/datastore"
	"github.com/roach88/storekit/internal/engine"
	"github.com/roach88/storekit/internal/ir"
)

// StoreName is the registry name of the site store.
const StoreName = "core/site"

const actionSetReferenceSiteURL = "SET_REFERENCE_SITE_URL"

// Config seeds the store's state.
type Config struct {
	ReferenceSiteURL string `json:"referenceSiteURL"`
}

// New returns the site store definition initialized from cfg.
func New(cfg Config) *datastore.Definition {
	return &datastore.Definition{
		Name: StoreName,
		InitialState: datastore.State{
			"referenceSiteURL": cfg.ReferenceSiteURL,
		},
		Actions: map[string]engine.GeneratorFunc{
			"setReferenceSiteURL": setReferenceSiteURL,
		},
		Reducer: reducer,
		Selectors: map[string]datastore.SelectorFunc{
			"getReferenceSiteURL": func(s datastore.State, _ ...any) any {
				return s["referenceSiteURL"]
			},
		},
	}
}

func setReferenceSiteURL(args ...any) engine.Generator {
	if len(args) == 0 {
		return engine.FromFunc(func(*engine.Yielder) (any, error) {
			return nil, fmt.Errorf("setReferenceSiteURL: url is required")
		})
	}
	url, ok := args[0].(string)
	if !ok {
		return engine.FromFunc(func(*engine.Yielder) (any, error) {
			return nil, fmt.Errorf("setReferenceSiteURL: url must be a string, got %T", args[0])
		})
	}
	return engine.Emit(ir.Action{Type: actionSetReferenceSiteURL, Payload: url})
}

func reducer(s datastore.State, a ir.Action) datastore.State {
	switch a.Type {
	case actionSetReferenceSiteURL:
		return s.With("referenceSiteURL", a.Payload)
	default:
		return s
	}
}
