package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

const maxResponseBodySize = 8 << 20 // 8MB

// connection pooling limits; a site API is a single host
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 60 * time.Second
	defaultTimeout             = 30 * time.Second
)

// HTTPClient is a [Client] issuing GET requests against a REST base URL.
//
// Requests are sent to <base>/<type>/<identifier>/data/<datapoint>. Responses
// of requests made with UseCache are kept for the client's lifetime and
// reused by later UseCache requests for the same URL.
//
// Thread-safety: safe for concurrent use.
type HTTPClient struct {
	base       *url.URL
	httpClient *http.Client
	headers    map[string]string
	timeout    time.Duration
	logger     *slog.Logger

	mu    sync.Mutex
	cache map[string][]byte // response bodies; each hit decodes its own copy
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

// WithHeader adds a header sent with every request, e.g. a nonce.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTPClient) {
		h.headers[key] = value
	}
}

// WithTimeout sets the per-request timeout. Default: 30s.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPClient) {
		h.timeout = d
	}
}

// WithHTTPLogger sets the logger. Default: slog.Default().
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(h *HTTPClient) {
		h.logger = l
	}
}

// NewHTTPClient creates a client for the REST API rooted at baseURL,
// e.g. "https://example.com/wp-json/google-site-kit/v1".
func NewHTTPClient(baseURL string, opts ...HTTPOption) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	h := &HTTPClient{
		base: base,
		httpClient: &http.Client{
			// per-request timeouts via context
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		headers: map[string]string{"Accept": "application/json"},
		timeout: defaultTimeout,
		logger:  slog.Default(),
		cache:   make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// URL returns the absolute URL of req.
func (h *HTTPClient) URL(req Request) string {
	u := *h.base
	u.Path = u.Path + "/" + req.Path()
	if len(req.Query) > 0 {
		q := url.Values{}
		for k, v := range req.Query {
			q.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = q.Encode() // sorted by key
	}
	return u.String()
}

// Get performs req. Non-2xx responses and transport failures return *Error.
func (h *HTTPClient) Get(ctx context.Context, req Request) (any, error) {
	target := h.URL(req)

	if req.UseCache {
		h.mu.Lock()
		cached, ok := h.cache[target]
		h.mu.Unlock()
		if ok {
			h.logger.Debug("api cache hit", "url", target)
			var out any
			if err := json.Unmarshal(cached, &out); err != nil {
				return nil, &Error{Message: fmt.Sprintf("invalid cached response: %v", err), Code: "invalid_json"}
			}
			return out, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errorf("failed to create request: %v", err)
	}
	for k, v := range h.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return nil, errorf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &Error{
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Status:  resp.StatusCode,
		}
	}

	h.logger.Debug("api request",
		"url", target,
		"status", resp.StatusCode,
		"latency", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, restError(resp.StatusCode, body)
	}

	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &Error{
			Message: fmt.Sprintf("invalid JSON response: %v", err),
			Code:    "invalid_json",
			Status:  resp.StatusCode,
		}
	}

	if req.UseCache {
		h.mu.Lock()
		h.cache[target] = body
		h.mu.Unlock()
	}
	return out, nil
}

// Close closes idle connections. The client remains usable.
func (h *HTTPClient) Close() {
	if h == nil || h.httpClient == nil {
		return
	}
	h.httpClient.CloseIdleConnections()
}

// restError reads a REST error body of the form
//
//	{"code": "...", "message": "...", "data": {"status": 403}}
//
// falling back to the HTTP status text for bodies of any other shape.
func restError(status int, body []byte) *Error {
	e := &Error{Status: status}
	if gjson.ValidBytes(body) {
		res := gjson.ParseBytes(body)
		e.Message = res.Get("message").String()
		e.Code = res.Get("code").String()
		if s := res.Get("data.status"); s.Exists() {
			e.Status = int(s.Int())
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
