package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/roach88/storekit/internal/ir"
)

// Fixture is one canned answer. Exactly one of Response and Error is used;
// a fixture with an Error fails the request.
type Fixture struct {
	Request  Request `yaml:"request"`
	Response any     `yaml:"response,omitempty"`
	Error    *Error  `yaml:"error,omitempty"`
}

// Fixtures is a [Client] answering from canned responses. It counts the
// requests it receives so tests can assert deduplication.
//
// Thread-safety: safe for concurrent use.
type Fixtures struct {
	mu       sync.Mutex
	fixtures map[string]Fixture
	calls    map[string]int
	total    int
}

// NewFixtures creates a client answering from fixtures.
func NewFixtures(fixtures ...Fixture) (*Fixtures, error) {
	f := &Fixtures{
		fixtures: make(map[string]Fixture),
		calls:    make(map[string]int),
	}
	for _, fx := range fixtures {
		if err := f.Add(fx); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// LoadFixtures reads a YAML list of fixtures from path.
func LoadFixtures(path string) (*Fixtures, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixtures: %w", err)
	}
	defer file.Close()
	return ParseFixtures(file)
}

// ParseFixtures reads a YAML list of fixtures.
// Unknown fields are rejected.
func ParseFixtures(r io.Reader) (*Fixtures, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var list []Fixture
	if err := dec.Decode(&list); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	return NewFixtures(list...)
}

// Add registers a fixture, replacing any previous one for the same request.
// Responses are normalized to the shapes encoding/json produces, so fixture
// data reads exactly like data from an HTTPClient.
func (f *Fixtures) Add(fx Fixture) error {
	key, err := fixtureKey(fx.Request)
	if err != nil {
		return err
	}
	if fx.Error == nil {
		norm, err := normalize(fx.Response)
		if err != nil {
			return fmt.Errorf("fixture %s: %w", fx.Request, err)
		}
		fx.Response = norm
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fixtures[key] = fx
	return nil
}

// Get answers req from the fixtures. Requests without a fixture fail with
// code "no_fixture" and status 404.
func (f *Fixtures) Get(ctx context.Context, req Request) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, errorf("request canceled: %v", err)
	}
	key, err := fixtureKey(req)
	if err != nil {
		return nil, errorf("%v", err)
	}

	f.mu.Lock()
	f.calls[key]++
	f.total++
	fx, ok := f.fixtures[key]
	f.mu.Unlock()

	if !ok {
		return nil, &Error{
			Message: fmt.Sprintf("no fixture for %s", key),
			Code:    "no_fixture",
			Status:  404,
		}
	}
	if fx.Error != nil {
		e := *fx.Error
		return nil, &e
	}
	return fx.Response, nil
}

// Calls returns how many times req was requested.
func (f *Fixtures) Calls(req Request) int {
	key, err := fixtureKey(req)
	if err != nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// TotalCalls returns the number of requests received.
func (f *Fixtures) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// fixtureKey identifies a request by path and canonical query.
// UseCache does not take part.
func fixtureKey(req Request) (string, error) {
	var query any
	if len(req.Query) > 0 {
		query = req.Query
	}
	q, err := ir.RequestKey(query)
	if err != nil {
		return "", fmt.Errorf("fixture key %s: %w", req, err)
	}
	return req.Path() + "?" + q, nil
}

func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
