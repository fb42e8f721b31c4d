package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekit/internal/api"
	"github.com/roach88/storekit/internal/config"
	"github.com/roach88/storekit/internal/datastore"
)

func TestRegister(t *testing.T) {
	client, err := api.NewFixtures()
	require.NoError(t, err)
	reg := datastore.NewRegistry()

	err = Register(reg, &config.Site{ReferenceSiteURL: "https://example.com", Modules: []string{"analytics-4"}}, client)
	require.NoError(t, err)
	assert.Equal(t, []string{"core/site", "modules/analytics-4"}, reg.Stores())
}

func TestRegister_CoreOnly(t *testing.T) {
	client, err := api.NewFixtures()
	require.NoError(t, err)
	reg := datastore.NewRegistry()

	require.NoError(t, Register(reg, &config.Site{ReferenceSiteURL: "https://example.com"}, client))
	assert.Equal(t, []string{"core/site"}, reg.Stores())
}

func TestRegister_UnknownModule(t *testing.T) {
	client, err := api.NewFixtures()
	require.NoError(t, err)

	err = Register(datastore.NewRegistry(), &config.Site{Modules: []string{"tagmanager"}}, client)
	assert.ErrorContains(t, err, `unknown module "tagmanager"`)
}
