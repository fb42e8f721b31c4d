// Package modules registers the site's stores in a registry.
package modules

import (
	"fmt"

	"github.com/roach88/storekit/internal/api"
	"github.com/roach88/storekit/internal/config"
	"github.com/roach88/storekit/internal/datastore"
	"github.com/roach88/storekit/internal/modules/analytics4"
	"github.com/roach88/storekit/internal/modules/site"
)

// Module names accepted in configuration.
const (
	Analytics4 = "analytics-4"
)

// Register adds core/site and every enabled module's store to reg.
// Stores fetch through client.
func Register(reg *datastore.Registry, cfg *config.Site, client api.Client) error {
	if err := reg.RegisterStore(site.StoreName, site.New(site.Config{ReferenceSiteURL: cfg.ReferenceSiteURL})); err != nil {
		return err
	}

	for _, m := range cfg.Modules {
		switch m {
		case Analytics4:
			store, err := analytics4.New(client)
			if err != nil {
				return err
			}
			if err := reg.RegisterStore(analytics4.StoreName, store.Definition); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown module %q", m)
		}
		reg.Logger().Debug("module registered", "module", m)
	}
	return nil
}
