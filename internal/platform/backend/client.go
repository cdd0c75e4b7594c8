// Package backend is the JSON client for the external system of record that
// owns stock, parties, bills and orders.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sentinel errors for backend calls.
var (
	ErrUnavailable = errors.New("backend: unavailable")
	ErrNotFound    = errors.New("backend: not found")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.Status)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

// Is maps 404 responses onto ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Client issues JSON requests against the backend base URL.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	token   string
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends a bearer token with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New builds a client. The default http.Client uses the given timeout.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("platform/backend: parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("platform/backend: base url %q must be absolute", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{baseURL: u, http: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get fetches path and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, nil, out)
}

// Post sends body as JSON and decodes the response into out when non-nil.
func (c *Client) Post(ctx context.Context, path string, body any, header http.Header, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, header, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, header http.Header, out any) error {
	target := *c.baseURL
	target.Path = c.baseURL.Path + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("platform/backend: encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("platform/backend: new request: %w", err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: readMessage(resp.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("platform/backend: decode %s %s: %w", method, path, err)
	}
	return nil
}

// readMessage extracts a human message from the common error body shapes.
func readMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case body.Message != "":
			return body.Message
		case body.Detail != "":
			return body.Detail
		case body.Error != "":
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
