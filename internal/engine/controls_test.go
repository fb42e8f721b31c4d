package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekit/internal/ir"
)

func noopHandler(context.Context, ir.Control) (any, error) { return nil, nil }

func TestControls_RegisterAndResolve(t *testing.T) {
	c := NewControls()
	require.NoError(t, c.Register("PING", func(context.Context, ir.Control) (any, error) {
		return "pong", nil
	}))

	h, err := c.Resolve(ir.Control{Type: "PING"})
	require.NoError(t, err)
	v, err := h(context.Background(), ir.Control{Type: "PING"})
	require.NoError(t, err)
	assert.Equal(t, "pong", v)

	assert.Equal(t, []string{"AWAIT", "PING"}, c.Tags())
}

func TestControls_DuplicateTag(t *testing.T) {
	c := NewControls()
	require.NoError(t, c.Register("PING", noopHandler))

	err := c.Register("PING", noopHandler)
	require.Error(t, err)
	assert.True(t, IsDuplicateControlError(err))

	var dup *DuplicateControlError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "PING", dup.Type)
}

func TestControls_BuiltinAwaitIsReserved(t *testing.T) {
	err := NewControls().Register(ControlAwait, noopHandler)
	assert.True(t, IsDuplicateControlError(err))
}

func TestControls_UnknownTag(t *testing.T) {
	_, err := NewControls().Resolve(ir.Control{Type: "MISSING"})
	require.Error(t, err)
	assert.True(t, IsUnknownControlError(err))
	assert.Contains(t, err.Error(), `"MISSING"`)
}

func TestControls_RejectsEmptyRegistration(t *testing.T) {
	c := NewControls()
	assert.Error(t, c.Register("", noopHandler))
	assert.Error(t, c.Register("X", nil))
}
