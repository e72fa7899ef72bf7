// Package transport issues single-attempt JSON requests and classifies their
// failures.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Client performs one HTTP exchange per call. It never retries and applies no
// timeout of its own.
type Client struct {
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is still
// wrapped for API key injection and trace logging.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a Client that authenticates with apiKey. An empty key is
// allowed; the remote decides whether to reject the call.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	hc := *c.httpClient
	hc.Transport = WrapRoundTripper(hc.Transport, apiKey)
	c.httpClient = &hc
	return c
}

// HTTPClient returns the wrapped client so SDKs can share the same transport.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

// Do sends payload (JSON-encoded when non-nil) with the given method and
// decodes a 2xx response body into out.
//
// Failures are one of *HTTPStatusError, *ConnectivityError or *DecodeError.
func (c *Client) Do(ctx context.Context, method, url string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectivityError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectivityError{Err: fmt.Errorf("reading response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Debug("Remote returned error status", "status", resp.StatusCode, "method", method)
		return &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(data),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

// Post is Do with http.MethodPost.
func (c *Client) Post(ctx context.Context, url string, payload, out any) error {
	return c.Do(ctx, http.MethodPost, url, payload, out)
}

// Get is Do with http.MethodGet and no payload.
func (c *Client) Get(ctx context.Context, url string, out any) error {
	return c.Do(ctx, http.MethodGet, url, nil, out)
}
