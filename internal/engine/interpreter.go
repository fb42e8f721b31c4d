package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/roach88/storekit/internal/ir"
)

// DefaultMaxSteps is the default maximum number of effects per run.
const DefaultMaxSteps = 10000

// ActionHandler applies an action yielded by a generator.
// Its return value resumes the generator.
type ActionHandler func(ctx context.Context, a ir.Action) (any, error)

// Interpreter drives generators to completion, performing the effects they
// yield.
//
// Each yielded value is performed according to its type:
//   - ir.Control: the registered handler runs; a returned *Future is
//     waited on; an unregistered tag throws UnknownControlError
//   - ir.Action: the action handler applies it
//   - Generator: it runs as a subroutine and its return resumes the parent
//
// Anything else throws UnknownControlError. Failures are thrown into the
// generator so its own error handling can run; an error the generator does
// not handle becomes the run's error. Actions applied before a failure stay
// applied.
//
// The interpreter holds no per-run state and is safe for concurrent use.
type Interpreter struct {
	controls *Controls
	onAction ActionHandler
	maxSteps int
	logger   *slog.Logger
	label    string
}

// InterpreterOption configures an Interpreter.
type InterpreterOption func(*Interpreter)

// WithActionHandler sets the handler for yielded actions.
// Without one, yielded actions throw UnknownControlError.
func WithActionHandler(h ActionHandler) InterpreterOption {
	return func(in *Interpreter) {
		in.onAction = h
	}
}

// WithMaxSteps sets the maximum number of effects one run may yield.
//
// Default: 10000 (DefaultMaxSteps). Zero disables the limit.
// Use WithMaxSteps(10) for testing quota enforcement.
func WithMaxSteps(maxSteps int) InterpreterOption {
	return func(in *Interpreter) {
		in.maxSteps = maxSteps
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) InterpreterOption {
	return func(in *Interpreter) {
		in.logger = l
	}
}

// WithLabel names the interpreter in logs and errors, usually after its store.
func WithLabel(label string) InterpreterOption {
	return func(in *Interpreter) {
		in.label = label
	}
}

// New creates an Interpreter resolving controls through controls.
// A nil controls gets a fresh registry holding only the built-ins.
func New(controls *Controls, opts ...InterpreterOption) *Interpreter {
	if controls == nil {
		controls = NewControls()
	}
	in := &Interpreter{
		controls: controls,
		maxSteps: DefaultMaxSteps,
		logger:   slog.Default(),
		label:    "run",
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Controls returns the interpreter's control registry.
func (in *Interpreter) Controls() *Controls {
	return in.controls
}

// Run drives g to completion and returns its final value or uncaught error.
// g is stopped when Run returns.
func (in *Interpreter) Run(ctx context.Context, g Generator) (any, error) {
	return in.run(ctx, g, NewQuotaEnforcer(in.maxSteps))
}

// Call creates a generator from fn and args and runs it.
func (in *Interpreter) Call(ctx context.Context, fn GeneratorFunc, args ...any) (any, error) {
	return in.Run(ctx, fn(args...))
}

// Go runs fn on a new goroutine and returns a future of its outcome.
// A panic in the body rejects the future with PanicError.
func (in *Interpreter) Go(ctx context.Context, fn GeneratorFunc, args ...any) *Future {
	f := NewFuture()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				in.logger.Error("generator panicked",
					"run", in.label,
					"panic", r,
				)
				f.Reject(&PanicError{Value: r, Stack: debug.Stack()})
			}
		}()
		f.Settle(in.Call(ctx, fn, args...))
	}()
	return f
}

func (in *Interpreter) run(ctx context.Context, g Generator, quota *QuotaEnforcer) (any, error) {
	defer g.Stop()

	step := g.Next(nil)
	for !step.Done {
		if err := quota.Check(in.label); err != nil {
			in.logger.Error("max steps quota exceeded",
				"run", in.label,
				"steps", quota.Current(),
				"limit", quota.MaxSteps(),
			)
			return nil, err
		}

		v, err := in.perform(ctx, step.Yield, quota)
		if IsStepsExceededError(err) {
			return nil, err
		}
		if err != nil {
			in.logger.Debug("effect failed",
				"run", in.label,
				"effect", describe(step.Yield),
				"error", err,
			)
			step = g.Throw(err)
			continue
		}
		step = g.Next(v)
	}
	return step.Value, step.Err
}

// perform executes one yielded effect.
func (in *Interpreter) perform(ctx context.Context, effect any, quota *QuotaEnforcer) (any, error) {
	switch e := effect.(type) {
	case ir.Control:
		h, err := in.controls.Resolve(e)
		if err != nil {
			return nil, err
		}
		v, err := h(ctx, e)
		if err != nil {
			return nil, err
		}
		if f, ok := v.(*Future); ok {
			return f.Wait(ctx)
		}
		return v, nil

	case ir.Action:
		if in.onAction == nil {
			return nil, &UnknownControlError{Type: e.Type, Kind: "action"}
		}
		return in.onAction(ctx, e)

	case Generator:
		return in.run(ctx, e, quota)

	default:
		return nil, &UnknownControlError{Type: fmt.Sprintf("%T", effect), Kind: "effect"}
	}
}

func describe(effect any) string {
	switch e := effect.(type) {
	case ir.Control:
		return "control " + e.Type
	case ir.Action:
		return "action " + e.Type
	case Generator:
		return "generator"
	}
	return fmt.Sprintf("%T", effect)
}
