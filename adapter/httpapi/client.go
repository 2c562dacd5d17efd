// Package httpapi is the thin JSON-over-HTTP client shared by the concrete
// surface adapters. No chat-platform SDK appears anywhere in the retrieved
// corpus, so each adapter talks to its backing transport over a plain
// net/http.Client against a configurable base URL, exactly the shape a
// Telegram/Slack-compatible webhook bridge would present in a demo
// deployment.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client posts JSON request bodies to a fixed base URL and decodes JSON
// responses, with a bounded per-call timeout.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a Client with a sane default timeout. Pass httpClient to reuse
// a caller-configured *http.Client (connection pooling, custom transport);
// nil installs a private one.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{BaseURL: baseURL, HTTP: httpClient}
}

// PostJSON POSTs body as JSON to c.BaseURL+path and decodes the response
// into out (skipped if out is nil).
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("httpapi: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("httpapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("httpapi: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("httpapi: %s: status %d: %s", path, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("httpapi: decode response: %w", err)
	}
	return nil
}

// Button is the platform-neutral button shape every chat-style adapter
// sends across the wire; the receiving bridge maps it onto its own native
// keyboard markup.
type Button struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Style string `json:"style,omitempty"`
}
