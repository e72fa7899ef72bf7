package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/mariozechner/coding-agent/chat/pkg/models"
	"github.com/mariozechner/coding-agent/chat/pkg/store"
	"github.com/mariozechner/coding-agent/chat/pkg/transport"
)

// DefaultBaseURL is the Gemini REST API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// ErrNoAPIKey is returned by List when no credential was configured.
var ErrNoAPIKey = errors.New("API key is not set, cannot list models")

// Client implements models.Provider against the Gemini REST API.
// Generation goes through the plain transport so the wire envelope and the
// failure classes stay under our control; model listing uses the SDK.
type Client struct {
	baseURL   string
	transport *transport.Client
	sdk       *genai.Client
}

// Verify interface compliance.
var _ models.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTransport replaces the transport used for generation calls.
func WithTransport(t *transport.Client) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// New creates a Gemini client. An empty apiKey is accepted: generation calls
// are still attempted and fail remotely, and List reports ErrNoAPIKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	c := &Client{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = transport.New(apiKey)
	}

	if apiKey != "" {
		sdk, err := genai.NewClient(ctx,
			option.WithAPIKey(apiKey),
			option.WithHTTPClient(c.transport.HTTPClient()),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create genai client: %w", err)
		}
		c.sdk = sdk
	}
	return c, nil
}

// Close releases resources.
func (c *Client) Close() {
	if c.sdk != nil {
		c.sdk.Close()
	}
}

// List returns the names of available gemini and gemma models.
func (c *Client) List(ctx context.Context) ([]string, error) {
	if c.sdk == nil {
		return nil, ErrNoAPIKey
	}
	iter := c.sdk.ListModels(ctx)
	var names []string
	for {
		model, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list models (%s): %w", describe(err), err)
		}
		if strings.Contains(model.Name, "gemini") || strings.Contains(model.Name, "gemma") {
			slog.Debug("Found Gemini model", "name", model.Name)
			names = append(names, model.Name)
		}
	}
	return names, nil
}

// Generate sends the history to modelName in a single attempt.
func (c *Client) Generate(ctx context.Context, modelName string, history []store.Turn) models.TurnResult {
	slog.Debug("Gemini.Generate", "model", modelName, "turnCount", len(history))

	req := BuildRequest(history)
	var resp GenerateContentResponse
	if err := c.transport.Post(ctx, c.endpoint(modelName), req, &resp); err != nil {
		slog.Warn("Gemini call failed", "model", modelName, "error", err)
		return models.Unavailable(describe(err), err)
	}

	result := Normalize(resp)
	slog.Debug("Gemini reply normalized", "kind", result.Kind, "reason", result.Reason)
	return result
}

func (c *Client) endpoint(modelName string) string {
	name := strings.TrimPrefix(modelName, "models/")
	return fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(name))
}

// describe turns a transport or SDK failure into a one-line operator message.
func describe(err error) string {
	var statusErr *transport.HTTPStatusError
	var apiErr *googleapi.Error
	var connErr *transport.ConnectivityError
	var decodeErr *transport.DecodeError
	switch {
	case errors.As(err, &statusErr):
		return fmt.Sprintf("HTTP error %d", statusErr.StatusCode)
	case errors.As(err, &apiErr):
		return fmt.Sprintf("HTTP error %d", apiErr.Code)
	case errors.As(err, &connErr):
		return "no reply from endpoint"
	case errors.As(err, &decodeErr):
		return "could not decode response"
	default:
		return "request failed"
	}
}
