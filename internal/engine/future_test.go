package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_SettlesOnce(t *testing.T) {
	f := NewFuture()
	assert.False(t, f.Settled())

	assert.True(t, f.Resolve("first"))
	assert.False(t, f.Resolve("second"))
	assert.False(t, f.Reject(errors.New("late")))

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", v)
	assert.True(t, f.Settled())
}

func TestFuture_AllWaitersSeeSameOutcome(t *testing.T) {
	f := NewFuture()
	boom := errors.New("boom")

	const waiters = 20
	errs := make([]error, waiters)
	var wg sync.WaitGroup
	for i := range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.Wait(context.Background())
		}()
	}

	f.Reject(boom)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	f := NewFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Giving up does not settle the future.
	assert.False(t, f.Settled())
	f.Resolve(1)
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestThen_SettledRunsSynchronously(t *testing.T) {
	out := Then(Resolved(2), func(v any, err error) (any, error) {
		return v.(int) * 10, err
	})
	require.True(t, out.Settled())

	v, err := out.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, v)
}

func TestThen_Pending(t *testing.T) {
	in := NewFuture()
	out := Then(in, func(v any, err error) (any, error) {
		if err != nil {
			return "recovered", nil
		}
		return v, nil
	})
	assert.False(t, out.Settled())

	in.Reject(errors.New("nope"))
	v, err := out.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
}
