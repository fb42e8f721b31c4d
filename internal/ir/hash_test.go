package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgsKeyEmpty(t *testing.T) {
	key, err := ArgsKey()
	require.NoError(t, err)
	assert.Equal(t, "[]", key)
}

func TestArgsKeyOrderSensitive(t *testing.T) {
	a, err := ArgsKey("p1", "p2")
	require.NoError(t, err)
	b, err := ArgsKey("p2", "p1")
	require.NoError(t, err)

	assert.Equal(t, `["p1","p2"]`, a)
	assert.NotEqual(t, a, b)
}

func TestArgsKeyStructurallyEqualArgs(t *testing.T) {
	a, err := ArgsKey(map[string]any{"b": 1, "a": 2.0})
	require.NoError(t, err)
	b, err := ArgsKey(map[string]any{"a": 2, "b": 1})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestArgsKeyUnserializable(t *testing.T) {
	_, err := ArgsKey(func() {})
	assert.Error(t, err)
}

func TestRequestKey(t *testing.T) {
	key, err := RequestKey(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", key)

	key, err = RequestKey(map[string]any{"propertyID": "123"})
	require.NoError(t, err)
	assert.Equal(t, `{"propertyID":"123"}`, key)
}

func TestResolverKeyString(t *testing.T) {
	k, err := NewResolverKey("modules/analytics-4", "getWebDataStreams", "123")
	require.NoError(t, err)
	assert.Equal(t, `modules/analytics-4/getWebDataStreams("123")`, k.String())

	k, err = NewResolverKey("core/site", "getReferenceSiteURL")
	require.NoError(t, err)
	assert.Equal(t, "core/site/getReferenceSiteURL()", k.String())
}

func TestResolverKeyDigest(t *testing.T) {
	k1, err := NewResolverKey("s", "sel", 1)
	require.NoError(t, err)
	k2, err := NewResolverKey("s", "sel", 1)
	require.NoError(t, err)
	k3, err := NewResolverKey("s", "sel", 2)
	require.NoError(t, err)

	assert.Equal(t, k1.Digest(), k2.Digest())
	assert.NotEqual(t, k1.Digest(), k3.Digest())
	assert.Len(t, k1.Digest(), 64, "SHA-256 hex is 64 characters")
}

func TestDigestDomainSeparation(t *testing.T) {
	// Same bytes under different domains must not collide.
	assert.NotEqual(t,
		hashWithDomain(DomainResolver, []byte("x")),
		hashWithDomain(DomainRequest, []byte("x")))
}

func TestRequestDigest(t *testing.T) {
	assert.Equal(t, RequestDigest("accountSummaries", "{}"), RequestDigest("accountSummaries", "{}"))
	assert.NotEqual(t, RequestDigest("accountSummaries", "{}"), RequestDigest("webDataStreams", "{}"))
}
