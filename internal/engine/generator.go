package engine

import (
	"errors"
	"iter"

	"github.com/roach88/storekit/internal/ir"
)

// Step is the outcome of resuming a generator.
//
// While Done is false, Yield holds the effect the generator is suspended on.
// Once Done is true, Value and Err hold the generator's return.
type Step struct {
	Yield any
	Done  bool
	Value any
	Err   error
}

// Generator is a suspended computation that yields effects.
//
// Next resumes it with the result of the previous effect; Throw resumes it
// with a failure instead. Stop releases its resources; a stopped generator
// reports Done on every later call.
type Generator interface {
	Next(v any) Step
	Throw(err error) Step
	Stop()
}

// GeneratorFunc creates a generator for an action or resolver call.
type GeneratorFunc func(args ...any) Generator

// ErrStopped is returned from Yielder.Yield when the generator was stopped
// before it could be resumed. Bodies should return promptly on it.
var ErrStopped = errors.New("generator stopped")

// Yielder suspends a direct-style generator body.
type Yielder struct {
	yield  func(any) bool
	resume any
	thrown error
}

// Yield suspends the body on effect and returns the value or error the
// generator is resumed with.
func (y *Yielder) Yield(effect any) (any, error) {
	if !y.yield(effect) {
		return nil, ErrStopped
	}
	return y.resume, y.thrown
}

// funcGenerator runs a direct-style body as a coroutine.
type funcGenerator struct {
	y       *Yielder
	next    func() (any, bool)
	stop    func()
	started bool
	done    bool
	value   any
	err     error
}

// FromFunc turns a direct-style body into a Generator. Each y.Yield call in
// the body becomes one step; the body's return becomes the final step.
//
//	gen := engine.FromFunc(func(y *engine.Yielder) (any, error) {
//		reg, err := y.Yield(datastore.GetRegistry())
//		if err != nil {
//			return nil, err
//		}
//		...
//	})
func FromFunc(body func(y *Yielder) (any, error)) Generator {
	g := &funcGenerator{y: &Yielder{}}
	seq := func(yield func(any) bool) {
		g.y.yield = yield
		g.value, g.err = body(g.y)
	}
	g.next, g.stop = iter.Pull(iter.Seq[any](seq))
	return g
}

func (g *funcGenerator) Next(v any) Step {
	return g.resume(v, nil)
}

func (g *funcGenerator) Throw(err error) Step {
	return g.resume(nil, err)
}

func (g *funcGenerator) resume(v any, err error) Step {
	if g.done {
		return g.final()
	}
	if !g.started {
		g.started = true
		// Throwing into a body that never ran finishes it with that error.
		if err != nil {
			g.finish()
			g.value, g.err = nil, err
			return g.final()
		}
	}

	g.y.resume, g.y.thrown = v, err
	effect, ok := g.next()
	if !ok {
		g.done = true
		return g.final()
	}
	return Step{Yield: effect}
}

func (g *funcGenerator) Stop() {
	if !g.done {
		g.finish()
		if g.err == nil {
			g.err = ErrStopped
		}
	}
}

func (g *funcGenerator) finish() {
	g.done = true
	g.stop()
}

func (g *funcGenerator) final() Step {
	return Step{Done: true, Value: g.value, Err: g.err}
}

// emitGenerator yields a single action and returns what it resolves to.
type emitGenerator struct {
	action  ir.Action
	yielded bool
	done    bool
	value   any
	err     error
}

// Emit returns a generator that yields action once and finishes with the
// result of applying it. Plain action creators are written with Emit.
func Emit(action ir.Action) Generator {
	return &emitGenerator{action: action}
}

func (g *emitGenerator) Next(v any) Step {
	switch {
	case g.done:
	case !g.yielded:
		g.yielded = true
		return Step{Yield: g.action}
	default:
		g.done, g.value = true, v
	}
	return Step{Done: true, Value: g.value, Err: g.err}
}

func (g *emitGenerator) Throw(err error) Step {
	if !g.done {
		g.done, g.err = true, err
	}
	return Step{Done: true, Value: g.value, Err: g.err}
}

func (g *emitGenerator) Stop() {
	g.done = true
}

// Return is a generator that finishes immediately with v. It is the body
// of actions and resolvers that perform no effects.
func Return(v any) Generator {
	return &valueGenerator{value: v}
}

type valueGenerator struct {
	value any
}

func (g *valueGenerator) Next(any) Step { return Step{Done: true, Value: g.value} }
func (g *valueGenerator) Throw(err error) Step { return Step{Done: true, Err: err} }
func (g *valueGenerator) Stop() {}
