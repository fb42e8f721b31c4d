package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/storekit/internal/ir"
)

// ControlAwait is the tag of the built-in await control.
const ControlAwait = "AWAIT"

// Handler performs the side effect a control describes.
//
// A handler may return a plain value, which resumes the generator at once,
// or a *Future, which suspends the generator until it settles. A returned
// error is thrown into the generator.
type Handler func(ctx context.Context, c ir.Control) (any, error)

// Controls maps control tags to handlers.
//
// Registration happens while a store is assembled; resolution happens on
// every yielded control. Both are safe for concurrent use.
type Controls struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewControls creates a registry holding the built-in AWAIT handler.
func NewControls() *Controls {
	c := &Controls{handlers: make(map[string]Handler)}
	c.handlers[ControlAwait] = awaitHandler
	return c
}

// Register adds a handler for tag.
// Returns DuplicateControlError if tag is already registered.
func (c *Controls) Register(tag string, h Handler) error {
	if tag == "" {
		return fmt.Errorf("register control: empty tag")
	}
	if h == nil {
		return fmt.Errorf("register control %q: nil handler", tag)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.handlers[tag]; exists {
		return &DuplicateControlError{Type: tag}
	}
	c.handlers[tag] = h
	return nil
}

// Resolve returns the handler for a control.
// Returns UnknownControlError if no handler is registered for its tag.
func (c *Controls) Resolve(ctl ir.Control) (Handler, error) {
	c.mu.RLock()
	h, ok := c.handlers[ctl.Type]
	c.mu.RUnlock()

	if !ok {
		return nil, &UnknownControlError{Type: ctl.Type, Kind: "control"}
	}
	return h, nil
}

// Tags returns the registered tags in sorted order.
func (c *Controls) Tags() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tags := make([]string, 0, len(c.handlers))
	for tag := range c.handlers {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// Await returns a control whose outcome is the outcome of f.
func Await(f *Future) ir.Control {
	return ir.Control{Type: ControlAwait, Payload: f}
}

func awaitHandler(_ context.Context, c ir.Control) (any, error) {
	f, ok := c.Payload.(*Future)
	if !ok {
		return nil, fmt.Errorf("AWAIT: payload is %T, want *engine.Future", c.Payload)
	}
	return f, nil
}
