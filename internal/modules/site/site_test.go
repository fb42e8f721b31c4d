package site

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekit/internal/datastore"
)

func TestSite_ReferenceSiteURL(t *testing.T) {
	reg := datastore.NewRegistry()
	require.NoError(t, reg.RegisterStore(StoreName, New(Config{ReferenceSiteURL: "https://example.com"})))
	h := reg.Handle(context.Background())

	got, err := h.Select(StoreName).Get("getReferenceSiteURL")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got)

	_, err = h.Dispatch(StoreName).Do("setReferenceSiteURL", "https://www.example.org").Wait(context.Background())
	require.NoError(t, err)

	got, _ = h.Select(StoreName).Get("getReferenceSiteURL")
	assert.Equal(t, "https://www.example.org", got)
}

func TestSite_SetReferenceSiteURLValidates(t *testing.T) {
	reg := datastore.NewRegistry()
	require.NoError(t, reg.RegisterStore(StoreName, New(Config{})))
	h := reg.Handle(context.Background())

	_, err := h.Dispatch(StoreName).Do("setReferenceSiteURL").Wait(context.Background())
	assert.ErrorContains(t, err, "url is required")

	_, err = h.Dispatch(StoreName).Do("setReferenceSiteURL", 42).Wait(context.Background())
	assert.ErrorContains(t, err, "must be a string")
}
