package datastore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/storekit/internal/ir"
)

// DuplicateNameError is returned when two fragments export the same name in
// one namespace ("actions", "selectors", "resolvers", "controls") or when a
// store name is registered twice ("stores").
type DuplicateNameError struct {
	Namespace string
	Name      string
	Fragment  string // fragment declaring the name second
	Previous  string // fragment that declared it first
}

// Error implements the error interface.
func (e *DuplicateNameError) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("duplicate %s name %q", strings.TrimSuffix(e.Namespace, "s"), e.Name)
	}
	return fmt.Sprintf("duplicate %s name %q in fragment %s (first declared by %s)",
		strings.TrimSuffix(e.Namespace, "s"), e.Name, e.Fragment, e.Previous)
}

// DuplicateStateKeyError is returned when two fragments declare the same
// top-level state key with different initial values.
type DuplicateStateKeyError struct {
	Key      string
	Fragment string
	Previous string
}

// Error implements the error interface.
func (e *DuplicateStateKeyError) Error() string {
	return fmt.Sprintf("state key %q of fragment %s conflicts with fragment %s",
		e.Key, e.Fragment, e.Previous)
}

// UnknownStoreError is returned for a store name not in the registry.
type UnknownStoreError struct {
	Store string
}

// Error implements the error interface.
func (e *UnknownStoreError) Error() string {
	return fmt.Sprintf("unknown store %q", e.Store)
}

// UnknownSelectorError is returned for a selector the store does not export.
type UnknownSelectorError struct {
	Store    string
	Selector string
}

// Error implements the error interface.
func (e *UnknownSelectorError) Error() string {
	return fmt.Sprintf("store %q has no selector %q", e.Store, e.Selector)
}

// UnknownActionError is returned for an action the store does not export.
type UnknownActionError struct {
	Store  string
	Action string
}

// Error implements the error interface.
func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("store %q has no action %q", e.Store, e.Action)
}

// ResolverError is the terminal failure of a resolution. It is retained and
// delivered to every caller of the key until the resolution is invalidated.
type ResolverError struct {
	Key ir.ResolverKey
	Err error
}

// Error implements the error interface.
func (e *ResolverError) Error() string {
	return fmt.Sprintf("resolver %s failed: %v", e.Key, e.Err)
}

// Unwrap returns the error the resolver body failed with.
func (e *ResolverError) Unwrap() error {
	return e.Err
}

// ResolverCycleError is returned when a resolution would wait on itself.
type ResolverCycleError struct {
	Key  ir.ResolverKey
	Path []string // outermost first, ending with Key
}

// Error implements the error interface.
func (e *ResolverCycleError) Error() string {
	return fmt.Sprintf("resolver cycle: %s", strings.Join(e.Path, " → "))
}

// FetchError is a network collaborator failure recorded in fetch state.
// It is data, not a thrown error: fetch actions report it in FetchResult.
type FetchError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Status  int    `json:"status,omitempty"`
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// IsDuplicateNameError returns true if the error is a DuplicateNameError.
// Uses errors.As to handle wrapped errors.
func IsDuplicateNameError(err error) bool {
	var de *DuplicateNameError
	return errors.As(err, &de)
}

// IsDuplicateStateKeyError returns true if the error is a DuplicateStateKeyError.
func IsDuplicateStateKeyError(err error) bool {
	var de *DuplicateStateKeyError
	return errors.As(err, &de)
}

// IsResolverError returns true if the error is a ResolverError.
func IsResolverError(err error) bool {
	var re *ResolverError
	return errors.As(err, &re)
}

// IsResolverCycleError returns true if the error is a ResolverCycleError.
func IsResolverCycleError(err error) bool {
	var ce *ResolverCycleError
	return errors.As(err, &ce)
}

// IsNotFound returns true for unknown store, selector or action errors.
func IsNotFound(err error) bool {
	var (
		se *UnknownStoreError
		le *UnknownSelectorError
		ae *UnknownActionError
	)
	return errors.As(err, &se) || errors.As(err, &le) || errors.As(err, &ae)
}

// errorCoder and statusCoder let network errors carry their machine-readable
// details into FetchError without this package knowing their types.
type errorCoder interface {
	ErrorCode() string
}

type statusCoder interface {
	StatusCode() int
}

// toFetchError normalizes a failure into a FetchError.
// Accepts errors, *FetchError, strings and {message, code, status} maps.
func toFetchError(v any) *FetchError {
	switch e := v.(type) {
	case nil:
		return nil
	case *FetchError:
		return e
	case FetchError:
		return &e
	case string:
		return &FetchError{Message: e}
	case map[string]any:
		fe := &FetchError{}
		fe.Message, _ = e["message"].(string)
		fe.Code, _ = e["code"].(string)
		switch s := e["status"].(type) {
		case int:
			fe.Status = s
		case float64:
			fe.Status = int(s)
		}
		return fe
	case error:
		var fe *FetchError
		if errors.As(e, &fe) {
			return fe
		}
		out := &FetchError{Message: e.Error()}
		var ec errorCoder
		if errors.As(e, &ec) {
			out.Code = ec.ErrorCode()
		}
		var sc statusCoder
		if errors.As(e, &sc) {
			out.Status = sc.StatusCode()
		}
		return out
	}
	return &FetchError{Message: fmt.Sprint(v)}
}
