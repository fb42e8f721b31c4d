// Package testutil provides helpers shared by the tests of packages built on
// the datastore registry.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/roach88/storekit/internal/datastore"
	"github.com/roach88/storekit/internal/engine"
)

// WaitTimeout bounds every wait in tests so a deadlock fails the test
// instead of hanging it.
const WaitTimeout = 5 * time.Second

// QuietLogger returns a logger that discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewRegistry creates a registry with a quiet logger and request ids
// "req-1", "req-2", ... so traces are deterministic. opts are applied last.
func NewRegistry(t testing.TB, opts ...datastore.RegistryOption) *datastore.Registry {
	t.Helper()
	opts = append([]datastore.RegistryOption{
		datastore.WithLogger(QuietLogger()),
		datastore.WithIDGenerator(engine.NewSequenceGenerator("req")),
	}, opts...)
	return datastore.NewRegistry(opts...)
}

// Wait waits up to WaitTimeout for f and returns its outcome.
// The test fails if f does not settle in time.
func Wait(t testing.TB, f *engine.Future) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), WaitTimeout)
	defer cancel()

	v, err := f.Wait(ctx)
	if ctx.Err() != nil && !f.Settled() {
		t.Fatalf("future did not settle within %s", WaitTimeout)
	}
	return v, err
}

// MustWait is Wait that also fails the test if f rejected.
func MustWait(t testing.TB, f *engine.Future) any {
	t.Helper()
	v, err := Wait(t, f)
	if err != nil {
		t.Fatalf("future rejected: %v", err)
	}
	return v
}
