// Package client is a Go client for the storefront HTTP API. Calls that act
// on behalf of a shopper take an explicit Session; the client keeps no
// per-user state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout    = 10 * time.Second
	apiPrefix         = "/api/v1"
	idempotencyHeader = "Idempotency-Key"
)

// Session identifies the shopper a call is made for
type Session struct {
	UserID int64
	Token  string
}

// APIError is a non-2xx response from the API
type APIError struct {
	Status  int
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("storefront api: %d %s: %s", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("storefront api: %d %s", e.Status, e.Message)
}

// Temporary reports whether retrying the request may succeed
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

type Client struct {
	baseURL string
	http    *http.Client
	retry   RetryPolicy
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithRetry sets the retry policy
func WithRetry(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// New creates a client for the API at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		retry:   DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	method  string
	path    string
	query   url.Values
	body    interface{}
	headers map[string]string
}

// replayable reports whether sending req twice has the same effect as once.
// A POST is only replayable when it carries an idempotency key.
func (r request) replayable() bool {
	return r.method != http.MethodPost || r.headers[idempotencyHeader] != ""
}

func (c *Client) do(ctx context.Context, s *Session, req request, out interface{}) error {
	policy := c.retry
	if !req.replayable() {
		policy = NoRetry
	}
	return policy.Do(ctx, func() error {
		return c.once(ctx, s, req, out)
	})
}

func (c *Client) once(ctx context.Context, s *Session, req request, out interface{}) error {
	u := c.baseURL + apiPrefix + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if s != nil && s.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.Token)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	apiErr := &APIError{Status: status}

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Details string `json:"details"`
	}
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Error
		if apiErr.Message == "" {
			apiErr.Message = body.Message
		}
		apiErr.Details = body.Details
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
