package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/roach88/storekit/internal/api"
	"github.com/roach88/storekit/internal/config"
	"github.com/roach88/storekit/internal/datastore"
	"github.com/roach88/storekit/internal/journal"
	"github.com/roach88/storekit/internal/modules"
)

// session is a registry built from a site configuration, with the client
// its stores fetch through and an optional journal.
type session struct {
	site     *config.Site
	registry *datastore.Registry
	journal  *journal.Journal
	close    func()
}

// sessionOptions configures openSession.
type sessionOptions struct {
	configDir   string
	journalPath string
	logger      *slog.Logger
}

// openSession loads the site in configDir and registers its stores.
//
// Stores fetch from the site's fixtures file if it names one, otherwise
// from apiBase. A site with neither cannot fetch and is rejected.
func openSession(opts sessionOptions) (*session, error) {
	logger := opts.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	site, errs := config.Load(opts.configDir)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	client, closeClient, err := clientFor(opts.configDir, site, logger)
	if err != nil {
		return nil, err
	}

	s := &session{site: site, close: closeClient}
	regOpts := []datastore.RegistryOption{datastore.WithLogger(logger)}
	if opts.journalPath != "" {
		j, err := journal.Open(opts.journalPath)
		if err != nil {
			closeClient()
			return nil, err
		}
		s.journal = j
		s.close = func() {
			closeClient()
			if err := j.Close(); err != nil {
				logger.Error("error closing journal", "error", err)
			}
		}
		regOpts = append(regOpts, datastore.WithJournal(j))
	}

	s.registry = datastore.NewRegistry(regOpts...)
	if err := modules.Register(s.registry, site, client); err != nil {
		s.close()
		return nil, err
	}

	logger.Debug("session ready",
		"site", site.ReferenceSiteURL,
		"stores", s.registry.Stores(),
		"journal", opts.journalPath,
	)
	return s, nil
}

// runID returns the journal run, or "" if the session is not journaled.
func (s *session) runID() string {
	if s.journal == nil {
		return ""
	}
	return s.journal.RunID()
}

// clientFor builds the client the site's stores fetch through.
func clientFor(configDir string, site *config.Site, logger *slog.Logger) (api.Client, func(), error) {
	if site.Fixtures != "" {
		path := site.Fixtures
		if !filepath.IsAbs(path) {
			path = filepath.Join(configDir, path)
		}
		fixtures, err := api.LoadFixtures(path)
		if err != nil {
			return nil, nil, err
		}
		return fixtures, func() {}, nil
	}

	if site.APIBase == "" {
		return nil, nil, fmt.Errorf("site declares neither apiBase nor fixtures")
	}
	client, err := api.NewHTTPClient(site.APIBase, api.WithHTTPLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}
