package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Request addresses one REST datapoint:
//
//	<Type>/<Identifier>/data/<Datapoint>?<Query>
//
// e.g. Type "modules", Identifier "analytics-4", Datapoint "account-summaries".
type Request struct {
	Type       string         `json:"type" yaml:"type"`
	Identifier string         `json:"identifier" yaml:"identifier"`
	Datapoint  string         `json:"datapoint" yaml:"datapoint"`
	Query      map[string]any `json:"query,omitempty" yaml:"query,omitempty"`

	// UseCache allows a client to answer from a previous response.
	// It is a hint; clients may ignore it.
	UseCache bool `json:"useCache,omitempty" yaml:"useCache,omitempty"`
}

// Path returns the request path without the query string.
func (r Request) Path() string {
	return strings.Join([]string{r.Type, r.Identifier, "data", r.Datapoint}, "/")
}

// String returns the path, for logs.
func (r Request) String() string {
	return r.Path()
}

// Client performs REST requests.
//
// Thread-safety: implementations must be safe for concurrent use.
type Client interface {
	Get(ctx context.Context, req Request) (any, error)
}

// Error is a failed request as reported by the REST API.
type Error struct {
	Message string `json:"message" yaml:"message"`
	Code    string `json:"code,omitempty" yaml:"code,omitempty"`
	Status  int    `json:"status,omitempty" yaml:"status,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// ErrorCode returns the REST error code, e.g. "rest_forbidden".
func (e *Error) ErrorCode() string {
	return e.Code
}

// StatusCode returns the HTTP status, or zero if no response was received.
func (e *Error) StatusCode() int {
	return e.Status
}

// IsError returns true if the error is an *Error.
// Uses errors.As to handle wrapped errors.
func IsError(err error) bool {
	var ae *Error
	return errors.As(err, &ae)
}

// errorf builds a transport-level Error with no REST code.
func errorf(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}
