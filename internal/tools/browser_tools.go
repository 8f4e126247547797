package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/polaris-ecosystems/rfp-agent/internal/browserrpc"
)

const (
	IdentBrowserNewContext Ident = "browser_new_context"
	IdentBrowserNewPage    Ident = "browser_new_page"
	IdentBrowserGoto       Ident = "browser_goto"
	IdentBrowserClick      Ident = "browser_click"
	IdentBrowserType       Ident = "browser_type"
	IdentBrowserWaitFor    Ident = "browser_wait_for"
	IdentBrowserExtract    Ident = "browser_extract"
	IdentBrowserScreenshot Ident = "browser_screenshot"
	IdentBrowserTraceStart Ident = "browser_trace_start"
	IdentBrowserTraceStop  Ident = "browser_trace_stop"
	IdentBrowserClose      Ident = "browser_close"
)

const browserNewContextSchema = `{"type": "object", "properties": {}, "additionalProperties": false}`

const browserNewPageSchema = `{
	"type": "object",
	"properties": {"contextId": {"type": "string", "minLength": 1}},
	"required": ["contextId"],
	"additionalProperties": false
}`

const browserPageSelectorSchemaFragment = `"pageId": {"type": "string", "minLength": 1}, "selector": {"type": "string", "minLength": 1, "maxLength": 500}`

const browserGotoSchema = `{
	"type": "object",
	"properties": {
		"pageId": {"type": "string", "minLength": 1},
		"url": {"type": "string", "minLength": 1, "maxLength": 2048}
	},
	"required": ["pageId", "url"],
	"additionalProperties": false
}`

const browserClickSchema = `{
	"type": "object",
	"properties": {` + browserPageSelectorSchemaFragment + `},
	"required": ["pageId", "selector"],
	"additionalProperties": false
}`

const browserTypeSchema = `{
	"type": "object",
	"properties": {
		` + browserPageSelectorSchemaFragment + `,
		"text": {"type": "string", "maxLength": 4000}
	},
	"required": ["pageId", "selector", "text"],
	"additionalProperties": false
}`

const browserWaitForSchema = `{
	"type": "object",
	"properties": {
		` + browserPageSelectorSchemaFragment + `,
		"timeoutSeconds": {"type": "integer", "minimum": 1, "maximum": 120}
	},
	"required": ["pageId", "selector"],
	"additionalProperties": false
}`

const browserExtractSchema = `{
	"type": "object",
	"properties": {` + browserPageSelectorSchemaFragment + `},
	"required": ["pageId", "selector"],
	"additionalProperties": false
}`

const browserScreenshotSchema = `{
	"type": "object",
	"properties": {"pageId": {"type": "string", "minLength": 1}},
	"required": ["pageId"],
	"additionalProperties": false
}`

const browserContextIDSchema = `{
	"type": "object",
	"properties": {"contextId": {"type": "string", "minLength": 1}},
	"required": ["contextId"],
	"additionalProperties": false
}`

// RegisterBrowserTools wires the Browser worker category (spec section 6:
// Browser worker) onto client. Navigation, interaction, and lifecycle tools
// all drive real (if sandboxed) side effects in the worker and are
// operator-only; none are exposed as safe reads.
func RegisterBrowserTools(registry *Registry, client *browserrpc.Client) error {
	newContext, err := NewTool(IdentBrowserNewContext, "Open a fresh, isolated browser context.", CategoryBrowser, AccessOperator, []byte(browserNewContextSchema), func(ctx context.Context, _ json.RawMessage) (any, error) {
		return client.NewContext(ctx)
	})
	if err != nil {
		return err
	}

	newPage, err := NewTool(IdentBrowserNewPage, "Open a new page within a browser context.", CategoryBrowser, AccessOperator, []byte(browserNewPageSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			ContextID string `json:"contextId"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return client.NewPage(ctx, in.ContextID)
	})
	if err != nil {
		return err
	}

	gotoTool, err := NewTool(IdentBrowserGoto, "Navigate a page to a URL, subject to the domain allowlist.", CategoryBrowser, AccessOperator, []byte(browserGotoSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			PageID string `json:"pageId"`
			URL    string `json:"url"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return client.Goto(ctx, in.PageID, in.URL)
	})
	if err != nil {
		return err
	}

	click, err := NewTool(IdentBrowserClick, "Click the first element matching a selector.", CategoryBrowser, AccessOperator, []byte(browserClickSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			PageID   string `json:"pageId"`
			Selector string `json:"selector"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		if err := client.Click(ctx, in.PageID, in.Selector); err != nil {
			return nil, err
		}
		return map[string]any{"pageId": in.PageID, "selector": in.Selector}, nil
	})
	if err != nil {
		return err
	}

	typeInto, err := NewTool(IdentBrowserType, "Type text into the first element matching a selector.", CategoryBrowser, AccessOperator, []byte(browserTypeSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			PageID   string `json:"pageId"`
			Selector string `json:"selector"`
			Text     string `json:"text"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		if err := client.Type(ctx, in.PageID, in.Selector, in.Text); err != nil {
			return nil, err
		}
		return map[string]any{"pageId": in.PageID, "selector": in.Selector}, nil
	})
	if err != nil {
		return err
	}

	waitFor, err := NewTool(IdentBrowserWaitFor, "Block until a selector appears on a page or the timeout elapses.", CategoryBrowser, AccessOperator, []byte(browserWaitForSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			PageID         string `json:"pageId"`
			Selector       string `json:"selector"`
			TimeoutSeconds int    `json:"timeoutSeconds"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		timeout := time.Duration(in.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		if err := client.WaitFor(ctx, in.PageID, in.Selector, timeout); err != nil {
			return nil, err
		}
		return map[string]any{"pageId": in.PageID, "selector": in.Selector}, nil
	})
	if err != nil {
		return err
	}

	extract, err := NewTool(IdentBrowserExtract, "Read text, HTML, or attribute data from elements matching a selector.", CategoryBrowser, AccessOperator, []byte(browserExtractSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			PageID   string `json:"pageId"`
			Selector string `json:"selector"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return client.Extract(ctx, in.PageID, in.Selector)
	})
	if err != nil {
		return err
	}

	screenshot, err := NewTool(IdentBrowserScreenshot, "Capture a page as a base64-encoded image.", CategoryBrowser, AccessOperator, []byte(browserScreenshotSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			PageID string `json:"pageId"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return client.Screenshot(ctx, in.PageID)
	})
	if err != nil {
		return err
	}

	traceStart, err := NewTool(IdentBrowserTraceStart, "Begin a trace recording on a browser context.", CategoryBrowser, AccessOperator, []byte(browserContextIDSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			ContextID string `json:"contextId"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		if err := client.TraceStart(ctx, in.ContextID); err != nil {
			return nil, err
		}
		return map[string]any{"contextId": in.ContextID}, nil
	})
	if err != nil {
		return err
	}

	traceStop, err := NewTool(IdentBrowserTraceStop, "Stop a trace recording and return a fetchable archive location.", CategoryBrowser, AccessOperator, []byte(browserContextIDSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			ContextID string `json:"contextId"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return client.TraceStop(ctx, in.ContextID)
	})
	if err != nil {
		return err
	}

	closeCtx, err := NewTool(IdentBrowserClose, "Tear down a browser context and every page within it.", CategoryBrowser, AccessOperator, []byte(browserContextIDSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			ContextID string `json:"contextId"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		if err := client.Close(ctx, in.ContextID); err != nil {
			return nil, err
		}
		return map[string]any{"contextId": in.ContextID}, nil
	})
	if err != nil {
		return err
	}

	for _, tool := range []*Tool{newContext, newPage, gotoTool, click, typeInto, waitFor, extract, screenshot, traceStart, traceStop, closeCtx} {
		registry.Register(tool)
	}
	return nil
}
