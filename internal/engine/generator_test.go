package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekit/internal/ir"
)

func TestFromFunc_StepsThroughYields(t *testing.T) {
	g := FromFunc(func(y *Yielder) (any, error) {
		a, err := y.Yield("first")
		if err != nil {
			return nil, err
		}
		b, err := y.Yield("second")
		if err != nil {
			return nil, err
		}
		return a.(int) + b.(int), nil
	})
	defer g.Stop()

	step := g.Next(nil)
	require.False(t, step.Done)
	assert.Equal(t, "first", step.Yield)

	step = g.Next(1)
	require.False(t, step.Done)
	assert.Equal(t, "second", step.Yield)

	step = g.Next(2)
	require.True(t, step.Done)
	assert.Equal(t, 3, step.Value)
	assert.NoError(t, step.Err)

	// Done generators keep reporting their result.
	assert.Equal(t, step, g.Next(nil))
}

func TestFromFunc_ThrowCanBeHandled(t *testing.T) {
	g := FromFunc(func(y *Yielder) (any, error) {
		if _, err := y.Yield("risky"); err != nil {
			return "handled: " + err.Error(), nil
		}
		return "ok", nil
	})
	defer g.Stop()

	g.Next(nil)
	step := g.Throw(errors.New("bad"))
	require.True(t, step.Done)
	assert.Equal(t, "handled: bad", step.Value)
}

func TestFromFunc_ThrowBeforeStart(t *testing.T) {
	ran := false
	g := FromFunc(func(y *Yielder) (any, error) {
		ran = true
		return nil, nil
	})

	step := g.Throw(errors.New("early"))
	assert.True(t, step.Done)
	assert.EqualError(t, step.Err, "early")
	assert.False(t, ran)
}

func TestFromFunc_StopUnblocksBody(t *testing.T) {
	var got error
	g := FromFunc(func(y *Yielder) (any, error) {
		_, got = y.Yield("wait")
		return nil, got
	})

	g.Next(nil)
	g.Stop()

	assert.ErrorIs(t, got, ErrStopped)
	step := g.Next(nil)
	assert.True(t, step.Done)
	assert.ErrorIs(t, step.Err, ErrStopped)
}

func TestEmit(t *testing.T) {
	action := ir.Action{Type: "SET", Payload: 1}
	g := Emit(action)

	step := g.Next(nil)
	require.False(t, step.Done)
	assert.Equal(t, action, step.Yield)

	step = g.Next(action)
	assert.True(t, step.Done)
	assert.Equal(t, action, step.Value)
}

func TestEmit_Throw(t *testing.T) {
	g := Emit(ir.Action{Type: "SET"})
	g.Next(nil)

	step := g.Throw(errors.New("rejected"))
	assert.True(t, step.Done)
	assert.EqualError(t, step.Err, "rejected")
}

func TestReturn(t *testing.T) {
	step := Return("v").Next(nil)
	assert.True(t, step.Done)
	assert.Equal(t, "v", step.Value)
}
