// Package engine implements the storekit effect interpreter.
//
// Actions and resolvers are written as generators: suspended computations
// that describe their side effects as values (controls, actions, nested
// generators) instead of performing them. The interpreter steps a generator,
// performs each yielded effect through a registered handler, and resumes the
// generator with the result or throws the failure back into it.
//
// EXECUTION MODEL:
//
// Cooperative stepping:
// A generator body runs without preemption between two yields. Suspension
// happens only at a yield; a control whose handler returns a Future suspends
// the body until the future settles. Bodies are coroutines (iter.Pull), so
// no body runs in parallel with the code driving it.
//
// Futures:
// Future is the settle-once outcome shared by every waiter. Waiting honours
// the waiter's context; the operation itself is never cancelled.
//
// Termination:
// QuotaEnforcer bounds the effects per run (StepsExceededError); Chain lets
// the resolver layer reject a resolution that waits on itself.
//
// Logical clock:
// Trace entries are stamped from Clock.Next(). Wall-clock time is never
// used for ordering.
package engine
