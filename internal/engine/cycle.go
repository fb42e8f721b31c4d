package engine

import "slices"

// Chain is the path of resolutions a run is nested in.
//
// A resolver that (directly or through other resolvers) waits on its own
// resolution would wait forever. Each resolution runs with the chain of its
// callers plus itself; before waiting on a key the caller checks whether
// the key is already on its chain.
//
// Example cycle:
//
//	getA() resolver → resolveSelect getB() → getB() resolver
//	→ resolveSelect getA() ← CYCLE DETECTED
//
// Chains are immutable; Push returns a new chain sharing the parent.
// The nil *Chain is the empty chain.
type Chain struct {
	parent *Chain
	key    string
	depth  int
}

// Push returns the chain extended by key.
func (c *Chain) Push(key string) *Chain {
	return &Chain{parent: c, key: key, depth: c.Depth() + 1}
}

// Contains reports whether key is on the chain.
func (c *Chain) Contains(key string) bool {
	for n := c; n != nil; n = n.parent {
		if n.key == key {
			return true
		}
	}
	return false
}

// Depth returns the number of keys on the chain.
func (c *Chain) Depth() int {
	if c == nil {
		return 0
	}
	return c.depth
}

// Path returns the keys from outermost to innermost.
func (c *Chain) Path() []string {
	path := make([]string, 0, c.Depth())
	for n := c; n != nil; n = n.parent {
		path = append(path, n.key)
	}
	slices.Reverse(path)
	return path
}
