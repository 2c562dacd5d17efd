package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPExecutor invokes a tool by POSTing {name, params} to baseURL+"/"+name
// and decoding the {success, result, error} response, the same JSON-over-
// webhook shape the surface adapters use for outbound delivery — no
// tool-specific SDK appears anywhere in the retrieved corpus either, so a
// demo deployment fronts its real side effects with a plain HTTP bridge.
type HTTPExecutor struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPExecutor returns an HTTPExecutor with a sane default timeout. Pass
// httpClient to reuse a caller-configured *http.Client; nil installs a
// private one.
func NewHTTPExecutor(baseURL string, httpClient *http.Client) *HTTPExecutor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPExecutor{BaseURL: baseURL, HTTP: httpClient}
}

type httpExecuteRequest struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// Execute honors ctx's deadline via http.NewRequestWithContext; a transport
// error or non-2xx status is returned as a Go error, not a Result{Success:
// false}, since those represent the tool being unreachable rather than the
// tool itself reporting failure.
func (e *HTTPExecutor) Execute(ctx context.Context, name string, params map[string]any) (Result, error) {
	buf, err := json.Marshal(httpExecuteRequest{Name: name, Params: params})
	if err != nil {
		return Result{}, fmt.Errorf("tool: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/"+name, bytes.NewReader(buf))
	if err != nil {
		return Result{}, fmt.Errorf("tool: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("tool: %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Result{}, fmt.Errorf("tool: %s: status %d: %s", name, resp.StatusCode, msg)
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("tool: decode response: %w", err)
	}
	return out, nil
}
