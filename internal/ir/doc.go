// Package ir provides the shared vocabulary types for storekit.
//
// This package contains the types every other internal package agrees on:
// actions, control descriptors, canonical values and trace entries. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Actions and controls are plain {type, payload} values, immutable once yielded
//   - Resolver and request keys are canonical JSON (RFC 8785 key order, NFC strings)
//   - Logical clocks (seq) only for trace ordering, never wall-clock timestamps
package ir
