// Package remote is the HTTP transport to the /v0 REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/chii/internal/dto"
)

// ErrRemoteRejected is wrapped by every failed remote call: a non-2xx
// response or a transport failure.
var ErrRemoteRejected = errors.New("remote rejected request")

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// Unwrap makes StatusError match ErrRemoteRejected.
func (e *StatusError) Unwrap() error { return ErrRemoteRejected }

// Pager fetches one page of a paginated list endpoint.
type Pager interface {
	FetchPage(ctx context.Context, endpoint string, params url.Values, offset, limit int64) (dto.Page[json.RawMessage], error)
}

// Requester performs one JSON request. out may be nil.
type Requester interface {
	Request(ctx context.Context, method, path string, body, out any) error
}

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.bgm.tv"

// DefaultUserAgent identifies the client to the API.
const DefaultUserAgent = "chii/0.1 (https://github.com/roach88/chii)"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4096

// Client implements Pager and Requester over HTTP.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	http      *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient creates a client for baseURL (DefaultBaseURL when empty).
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: DefaultUserAgent,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage requests endpoint with offset and limit added to params.
//
// Endpoints that return a bare JSON array are reported as one complete page.
func (c *Client) FetchPage(ctx context.Context, endpoint string, params url.Values, offset, limit int64) (dto.Page[json.RawMessage], error) {
	q := url.Values{}
	for k, vs := range params {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("limit", strconv.FormatInt(limit, 10))

	raw, err := c.do(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return dto.Page[json.RawMessage]{}, err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return dto.Page[json.RawMessage]{}, fmt.Errorf("decode %s: %w", endpoint, err)
		}
		n := int64(len(items))
		return dto.Page[json.RawMessage]{Total: n, Limit: n, Offset: 0, Data: items}, nil
	}

	var page dto.Page[json.RawMessage]
	if err := json.Unmarshal(raw, &page); err != nil {
		return dto.Page[json.RawMessage]{}, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return page, nil
}

// Request sends body as JSON (if non-nil) and decodes the response into out
// (if non-nil and the response has a body).
func (c *Client) Request(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	raw, err := c.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrRemoteRejected, method, path, err)
	}
	defer resp.Body.Close()

	slog.Debug("remote request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(msg)),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %w", ErrRemoteRejected, method, path, err)
	}
	return raw, nil
}
