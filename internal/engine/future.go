package engine

import (
	"context"
	"sync"
)

// Future is the settle-once outcome of an asynchronous operation.
//
// A Future is resolved with a value or rejected with an error exactly once;
// later settle calls are ignored. Any number of goroutines may wait on it and
// all of them observe the same outcome.
type Future struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

// NewFuture creates an unsettled future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future already resolved with v.
func Resolved(v any) *Future {
	f := NewFuture()
	f.Resolve(v)
	return f
}

// Rejected returns a future already rejected with err.
func Rejected(err error) *Future {
	f := NewFuture()
	f.Reject(err)
	return f
}

// Resolve settles the future with a value.
// Returns false if the future was already settled.
func (f *Future) Resolve(v any) bool {
	return f.settle(v, nil)
}

// Reject settles the future with an error.
// Returns false if the future was already settled.
func (f *Future) Reject(err error) bool {
	return f.settle(nil, err)
}

// Settle resolves or rejects the future depending on err.
func (f *Future) Settle(v any, err error) bool {
	return f.settle(v, err)
}

func (f *Future) settle(v any, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.done)
		settled = true
	})
	return settled
}

// Done returns a channel closed once the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future has settled.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future settles or ctx is done.
//
// Giving up on ctx does not affect the underlying operation; other waiters
// still observe its outcome.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Then returns a future settled with fn applied to f's outcome.
// fn runs synchronously when f has already settled.
func Then(f *Future, fn func(v any, err error) (any, error)) *Future {
	if f.Settled() {
		return settledWith(fn(f.value, f.err))
	}
	out := NewFuture()
	go func() {
		<-f.done
		out.Settle(fn(f.value, f.err))
	}()
	return out
}

func settledWith(v any, err error) *Future {
	f := NewFuture()
	f.Settle(v, err)
	return f
}
