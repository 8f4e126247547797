// Package browserrpc adapts the Browser tool category (spec section 6:
// Browser worker) onto a JSON-RPC-over-HTTP transport, grounded on the
// teacher's runtime/a2a/httpclient request/response envelope: a stateless
// HTTP client posting {"jsonrpc":"2.0", method, params, id} and decoding a
// matching response, now reworked around the worker's page-session lifecycle
// (new_context/new_page/goto/click/type/wait_for/extract/screenshot/
// trace_start/trace_stop/close) instead of the teacher's agent-skill
// dispatch, with a domain allowlist gating goto.
package browserrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/polaris-ecosystems/rfp-agent/internal/toolerrors"
)

// Config constructs a Client against a browser-worker endpoint.
type Config struct {
	Endpoint      string
	AllowedHosts  []string
	RequestHeader http.Header
}

// Client is a JSON-RPC 2.0 client for the browser worker.
type Client struct {
	endpoint     string
	http         *http.Client
	headers      http.Header
	nextID       uint64
	allowedHosts map[string]struct{}
}

// New constructs a Client against endpoint.
func New(cfg Config) *Client {
	set := make(map[string]struct{}, len(cfg.AllowedHosts))
	for _, h := range cfg.AllowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			set[h] = struct{}{}
		}
	}
	headers := cfg.RequestHeader
	if headers == nil {
		headers = http.Header{}
	}
	return &Client{
		endpoint:     cfg.Endpoint,
		http:         &http.Client{Timeout: 30 * time.Second},
		headers:      headers,
		allowedHosts: set,
	}
}

// WithHTTPClient overrides the underlying http.Client, for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      uint64 `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      uint64          `json:"id"`
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	id := atomic.AddUint64(&c.nextID, 1)
	reqBody, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		return toolerrors.NewWithCause(toolerrors.KindUpstream, "encode browser rpc request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return toolerrors.NewWithCause(toolerrors.KindUpstream, "build browser rpc request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, vs := range c.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return toolerrors.NewWithCause(toolerrors.KindUpstream, fmt.Sprintf("browser rpc %s failed", method), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return toolerrors.Errorf(toolerrors.KindUpstream, "browser rpc %s: worker responded %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return toolerrors.NewWithCause(toolerrors.KindUpstream, fmt.Sprintf("browser rpc %s: decode response", method), err)
	}
	if rpcResp.Error != nil {
		return toolerrors.Errorf(toolerrors.KindUpstream, "browser rpc %s: %s", method, rpcResp.Error.Message)
	}
	if out == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return toolerrors.NewWithCause(toolerrors.KindUpstream, fmt.Sprintf("browser rpc %s: decode result", method), err)
	}
	return nil
}

// requireAllowedHost mirrors the URL-allowlist check spec section 6
// requires of every navigation: an unconfigured allowlist defers to the
// worker's own sandboxing, a configured one must name the host explicitly.
func (c *Client) requireAllowedHost(rawURL string) error {
	if len(c.allowedHosts) == 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return toolerrors.Errorf(toolerrors.KindDomainNotAllowed, "invalid url %q", rawURL)
	}
	host := strings.ToLower(parsed.Hostname())
	if _, ok := c.allowedHosts[host]; !ok {
		return toolerrors.Errorf(toolerrors.KindDomainNotAllowed, "host %q is not in the allowed list", host)
	}
	return nil
}

// ContextRef identifies a worker-managed browser context.
type ContextRef struct {
	ContextID string `json:"contextId"`
}

// NewContext opens a fresh, isolated browser context.
func (c *Client) NewContext(ctx context.Context) (ContextRef, error) {
	var out ContextRef
	if err := c.call(ctx, "new_context", nil, &out); err != nil {
		return ContextRef{}, err
	}
	return out, nil
}

// PageRef identifies a page within a context.
type PageRef struct {
	ContextID string `json:"contextId"`
	PageID    string `json:"pageId"`
}

// NewPage opens a new page within contextID.
func (c *Client) NewPage(ctx context.Context, contextID string) (PageRef, error) {
	var out PageRef
	if err := c.call(ctx, "new_page", map[string]string{"contextId": contextID}, &out); err != nil {
		return PageRef{}, err
	}
	return out, nil
}

// NavigateResult is the result of a Goto call.
type NavigateResult struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
	Title  string `json:"title,omitempty"`
}

// Goto navigates pageID to rawURL, subject to the domain allowlist.
func (c *Client) Goto(ctx context.Context, pageID, rawURL string) (NavigateResult, error) {
	if err := c.requireAllowedHost(rawURL); err != nil {
		return NavigateResult{}, err
	}
	var out NavigateResult
	if err := c.call(ctx, "goto", map[string]string{"pageId": pageID, "url": rawURL}, &out); err != nil {
		return NavigateResult{}, err
	}
	return out, nil
}

// Click clicks the first element matching selector on pageID.
func (c *Client) Click(ctx context.Context, pageID, selector string) error {
	return c.call(ctx, "click", map[string]string{"pageId": pageID, "selector": selector}, nil)
}

// Type types text into the first element matching selector on pageID.
func (c *Client) Type(ctx context.Context, pageID, selector, text string) error {
	return c.call(ctx, "type", map[string]string{"pageId": pageID, "selector": selector, "text": text}, nil)
}

// WaitFor blocks until selector appears on pageID or timeout elapses.
func (c *Client) WaitFor(ctx context.Context, pageID, selector string, timeout time.Duration) error {
	return c.call(ctx, "wait_for", map[string]any{
		"pageId": pageID, "selector": selector, "timeoutMs": timeout.Milliseconds(),
	}, nil)
}

// ExtractResult is the result of an Extract call.
type ExtractResult struct {
	Text string            `json:"text,omitempty"`
	HTML string            `json:"html,omitempty"`
	Data map[string]string `json:"data,omitempty"`
}

// Extract reads text/HTML/attribute data from elements on pageID matching
// selector.
func (c *Client) Extract(ctx context.Context, pageID, selector string) (ExtractResult, error) {
	var out ExtractResult
	if err := c.call(ctx, "extract", map[string]string{"pageId": pageID, "selector": selector}, &out); err != nil {
		return ExtractResult{}, err
	}
	return out, nil
}

// ScreenshotResult carries a base64-encoded image.
type ScreenshotResult struct {
	ImageBase64 string `json:"imageBase64"`
	Format      string `json:"format"`
}

// Screenshot captures pageID as a PNG.
func (c *Client) Screenshot(ctx context.Context, pageID string) (ScreenshotResult, error) {
	var out ScreenshotResult
	if err := c.call(ctx, "screenshot", map[string]string{"pageId": pageID}, &out); err != nil {
		return ScreenshotResult{}, err
	}
	return out, nil
}

// TraceStart begins a Playwright-style trace recording on contextID.
func (c *Client) TraceStart(ctx context.Context, contextID string) error {
	return c.call(ctx, "trace_start", map[string]string{"contextId": contextID}, nil)
}

// TraceStopResult is the result of stopping a trace recording.
type TraceStopResult struct {
	TraceURL string `json:"traceUrl"`
}

// TraceStop stops the trace recording on contextID and returns a fetchable
// trace archive location.
func (c *Client) TraceStop(ctx context.Context, contextID string) (TraceStopResult, error) {
	var out TraceStopResult
	if err := c.call(ctx, "trace_stop", map[string]string{"contextId": contextID}, &out); err != nil {
		return TraceStopResult{}, err
	}
	return out, nil
}

// Close tears down contextID and every page within it.
func (c *Client) Close(ctx context.Context, contextID string) error {
	return c.call(ctx, "close", map[string]string{"contextId": contextID}, nil)
}
