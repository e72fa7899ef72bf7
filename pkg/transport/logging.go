package transport

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"
)

const (
	// LevelTrace is a custom log level for detailed HTTP traffic.
	LevelTrace = slog.Level(-8)

	apiKeyHeader = "x-goog-api-key"
)

// loggingTransport attaches the API key and, at LevelTrace, dumps every
// request and response.
type loggingTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.apiKey != "" && req.Header.Get(apiKeyHeader) == "" {
		req = req.Clone(req.Context())
		req.Header.Set(apiKeyHeader, t.apiKey)
	}

	if !slog.Default().Enabled(req.Context(), LevelTrace) {
		return t.base.RoundTrip(req)
	}

	reqDump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		slog.Debug("Failed to dump request", "error", err)
	} else {
		slog.Log(req.Context(), LevelTrace, "REST Request", "url", req.URL.String(), "dump", t.scrub(reqDump))
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	respDump, err := httputil.DumpResponse(resp, true)
	if err != nil {
		slog.Debug("Failed to dump response", "error", err)
	} else {
		slog.Log(req.Context(), LevelTrace, "REST Response", "status", resp.StatusCode, "dump", string(respDump))
	}

	return resp, nil
}

func (t *loggingTransport) scrub(dump []byte) string {
	if t.apiKey == "" {
		return string(dump)
	}
	return strings.ReplaceAll(string(dump), t.apiKey, "REDACTED")
}

// WrapRoundTripper returns base wrapped with API key injection and trace
// logging. A nil base means http.DefaultTransport.
func WrapRoundTripper(base http.RoundTripper, apiKey string) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loggingTransport{base: base, apiKey: apiKey}
}
