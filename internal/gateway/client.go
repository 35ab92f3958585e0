// Package gateway issues authenticated calls against the bookstore REST API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const maxResponseBytes = 4 << 20

// TokenSource exposes the current bearer token and lets the gateway discard
// it once the backend rejects it.
type TokenSource interface {
	Token() string
	Clear()
}

// Doer performs a single API call.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Observer receives one observation per upstream call.
type Observer interface {
	ObserveUpstream(method string, status int, elapsed time.Duration)
}

// Request describes one call against the API.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// Anonymous skips the bearer token, used for the login call.
	Anonymous bool
}

// Response carries the raw body of a successful call.
type Response struct {
	Status int
	Body   []byte
}

// Decode unwraps an optional {"data": ...} envelope into target.
func (r *Response) Decode(target any) error {
	if r == nil {
		return fmt.Errorf("%w: empty response", ErrMalformed)
	}
	return DecodeData(r.Body, target)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	// Limiter throttles outbound calls when set.
	Limiter  *rate.Limiter
	Logger   *slog.Logger
	Observer Observer
}

// Client holds the process-wide transport for the bookstore API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	observer   Observer
}

// NewClient constructs a Client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		limiter:    opts.Limiter,
		logger:     logger,
		observer:   opts.Observer,
	}
}

// Bind returns a Doer that authenticates with tokens. onUnauthorized runs
// after the token has been cleared because the backend answered 401.
func (c *Client) Bind(tokens TokenSource, onUnauthorized func()) *Caller {
	return &Caller{client: c, tokens: tokens, onUnauthorized: onUnauthorized}
}

// Caller is a Client bound to one token source.
type Caller struct {
	client         *Client
	tokens         TokenSource
	onUnauthorized func()
}

// Do implements Doer.
func (c *Caller) Do(ctx context.Context, req Request) (*Response, error) {
	cl := c.client
	if cl.limiter != nil {
		if err := cl.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit: %v", ErrTransport, err)
		}
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode %s %s: %w", req.Method, req.Path, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, cl.endpoint(req.Path, req.Query), body)
	if err != nil {
		return nil, fmt.Errorf("gateway: build %s %s: %w", req.Method, req.Path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	token := ""
	if !req.Anonymous && c.tokens != nil {
		token = c.tokens.Token()
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := cl.httpClient.Do(httpReq)
	if err != nil {
		cl.observe(req.Method, 0, start)
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, req.Method, req.Path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	cl.observe(req.Method, resp.StatusCode, start)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %v", ErrTransport, req.Method, req.Path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		cl.logger.Warn("bearer token rejected", slog.String("method", req.Method), slog.String("path", req.Path))
		c.Unauthorized()
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newAPIError(resp.StatusCode, payload)
	}
	return &Response{Status: resp.StatusCode, Body: payload}, nil
}

// Unauthorized clears the bound token and fires the redirect hook. Do calls
// it on a 401; callers that received a 401 from a call made through another
// Caller use it to end their own session.
func (c *Caller) Unauthorized() {
	if c.tokens != nil {
		c.tokens.Clear()
	}
	if c.onUnauthorized != nil {
		c.onUnauthorized()
	}
}

func (c *Client) endpoint(path string, query url.Values) string {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func (c *Client) observe(method string, status int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveUpstream(method, status, time.Since(start))
	}
}

// StaticToken is a TokenSource over a fixed token. Clear only forgets it locally.
type StaticToken struct {
	value string
}

// NewStaticToken wraps token.
func NewStaticToken(token string) *StaticToken {
	return &StaticToken{value: token}
}

// Token implements TokenSource.
func (s *StaticToken) Token() string { return s.value }

// Clear implements TokenSource.
func (s *StaticToken) Clear() { s.value = "" }

// DecodeData decodes body into target, unwrapping a non-null "data" member
// when the payload is an envelope.
func DecodeData(body []byte, target any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] == '{' {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err == nil {
			if data := bytes.TrimSpace(envelope.Data); len(data) > 0 && !bytes.Equal(data, []byte("null")) {
				trimmed = data
			}
		}
	}
	if err := json.Unmarshal(trimmed, target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
