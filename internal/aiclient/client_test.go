package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/budget"
	"github.com/polaris-ecosystems/rfp-agent/internal/model"
)

// fakeProvider is a scripted model.Client: each call pops the next response
// from responses (or the next error from errs at that index).
type fakeProvider struct {
	responses []*model.Response
	errs      []error
	calls     []*model.Request
}

func (f *fakeProvider) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	i := len(f.calls)
	f.calls = append(f.calls, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return nil, errors.New("fakeProvider: no scripted response")
}

func (f *fakeProvider) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func textResponse(text string) *model.Response {
	return &model.Response{
		Content: []model.Message{{
			Role:  model.ConversationRoleAssistant,
			Parts: []model.Part{model.TextPart{Text: text}},
		}},
		Usage: model.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

func userMessage(text string) []*model.Message {
	return []*model.Message{{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: text}}}}
}

func noSleep(time.Duration) {}

func TestCallTextSucceedsOnFirstAttempt(t *testing.T) {
	provider := &fakeProvider{responses: []*model.Response{textResponse("hello there")}}
	c := NewClient(map[string]model.Client{"anthropic": provider}, nil)
	c.sleep = noSleep

	out, meta, err := c.CallText(context.Background(), CallTextOptions{
		Purpose:  "rfp_summary",
		Config:   PurposeConfig{Primary: ModelRef{Provider: "anthropic", Model: "claude-x"}},
		Messages: userMessage("summarize this"),
	})

	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
	assert.Equal(t, 1, meta.Attempts)
	assert.Equal(t, "anthropic", meta.Provider)
}

func TestCallTextFallsBackToNextModelInChain(t *testing.T) {
	primary := &fakeProvider{errs: []error{errors.New("boom"), errors.New("boom"), errors.New("boom")}}
	fallback := &fakeProvider{responses: []*model.Response{textResponse("from fallback")}}
	c := NewClient(map[string]model.Client{
		"anthropic": primary,
		"openai":    fallback,
	}, nil)
	c.sleep = noSleep

	out, meta, err := c.CallText(context.Background(), CallTextOptions{
		Purpose: "rfp_summary",
		Config: PurposeConfig{
			Primary: ModelRef{Provider: "anthropic", Model: "claude-x"},
			Default: ModelRef{Provider: "openai", Model: "gpt-y"},
		},
		Messages: userMessage("summarize this"),
	})

	require.NoError(t, err)
	assert.Equal(t, "from fallback", out)
	assert.Equal(t, "openai", meta.Provider)
	assert.Len(t, primary.calls, 3)
}

func TestCallTextModelAccessErrorSkipsToNextModelWithoutRetrying(t *testing.T) {
	primary := &fakeProvider{errs: []error{errors.New("model_not_found: no such model")}}
	fallback := &fakeProvider{responses: []*model.Response{textResponse("ok")}}
	c := NewClient(map[string]model.Client{
		"anthropic": primary,
		"openai":    fallback,
	}, nil)
	c.sleep = noSleep

	_, _, err := c.CallText(context.Background(), CallTextOptions{
		Purpose: "rfp_summary",
		Config: PurposeConfig{
			Primary: ModelRef{Provider: "anthropic", Model: "claude-x"},
			Default: ModelRef{Provider: "openai", Model: "gpt-y"},
		},
		Messages: userMessage("summarize this"),
	})

	require.NoError(t, err)
	assert.Len(t, primary.calls, 1, "a model-access error should break to the next model without retrying")
}

func TestCallTextExhaustsChainReturnsUpstreamError(t *testing.T) {
	primary := &fakeProvider{errs: []error{errors.New("boom"), errors.New("boom"), errors.New("boom")}}
	c := NewClient(map[string]model.Client{"anthropic": primary}, nil)
	c.sleep = noSleep

	_, _, err := c.CallText(context.Background(), CallTextOptions{
		Purpose:  "rfp_summary",
		Config:   PurposeConfig{Primary: ModelRef{Provider: "anthropic", Model: "claude-x"}},
		Messages: userMessage("summarize this"),
	})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
}

func TestCallTextRejectsWhenCircuitIsOpen(t *testing.T) {
	provider := &fakeProvider{responses: []*model.Response{textResponse("unreachable")}}
	c := NewClient(map[string]model.Client{"anthropic": provider}, nil)
	for i := 0; i < 5; i++ {
		c.breaker.RecordFailure()
	}
	require.True(t, c.breaker.Open())

	_, _, err := c.CallText(context.Background(), CallTextOptions{
		Purpose:  "rfp_summary",
		Config:   PurposeConfig{Primary: ModelRef{Provider: "anthropic", Model: "claude-x"}},
		Messages: userMessage("summarize this"),
	})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Empty(t, provider.calls, "no call should reach the provider while the circuit is open")
}

type summaryResult struct {
	Headline string `json:"headline"`
	Score    int    `json:"score"`
}

func TestCallJSONParsesSchemaModeResponse(t *testing.T) {
	provider := &fakeProvider{responses: []*model.Response{textResponse(`{"headline":"big win","score":9}`)}}
	c := NewClient(map[string]model.Client{"anthropic": provider}, nil)
	c.sleep = noSleep

	out, meta, err := CallJSON(context.Background(), c, CallJSONOptions[summaryResult]{
		Purpose:  "rfp_triage",
		Config:   PurposeConfig{Primary: ModelRef{Provider: "anthropic", Model: "claude-x"}},
		Messages: userMessage("triage this"),
		Schema:   json.RawMessage(`{"type":"object","properties":{"headline":{"type":"string"},"score":{"type":"integer"}}}`),
	})

	require.NoError(t, err)
	assert.Equal(t, "big win", out.Headline)
	assert.Equal(t, 9, out.Score)
	assert.Equal(t, "chat_json_schema", meta.UsedResponseFormat)
}

func TestCallJSONDegradesToFreeformExtraction(t *testing.T) {
	responses := []*model.Response{
		textResponse("not json at all"),
		textResponse("still not json"),
		textResponse(`here is your answer: {"headline":"ok","score":3} -- thanks`),
	}
	provider := &fakeProvider{responses: responses}
	c := NewClient(map[string]model.Client{"anthropic": provider}, nil)
	c.sleep = noSleep

	out, meta, err := CallJSON(context.Background(), c, CallJSONOptions[summaryResult]{
		Purpose:      "rfp_triage",
		Config:       PurposeConfig{Primary: ModelRef{Provider: "anthropic", Model: "claude-x"}},
		Messages:     userMessage("triage this"),
		Schema:       json.RawMessage(`{"type":"object","properties":{"headline":{"type":"string"},"score":{"type":"integer"}}}`),
		AllowExtract: true,
		Retries:      3,
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", out.Headline)
	assert.Equal(t, "freeform_extract", meta.UsedResponseFormat)
}

func TestCallJSONUsesFallbackWhenChainExhausted(t *testing.T) {
	provider := &fakeProvider{responses: []*model.Response{
		textResponse("nope"), textResponse("nope"), textResponse("nope"),
	}}
	c := NewClient(map[string]model.Client{"anthropic": provider}, nil)
	c.sleep = noSleep

	out, meta, err := CallJSON(context.Background(), c, CallJSONOptions[summaryResult]{
		Purpose:  "rfp_triage",
		Config:   PurposeConfig{Primary: ModelRef{Provider: "anthropic", Model: "claude-x"}},
		Messages: userMessage("triage this"),
		Schema:   json.RawMessage(`{"type":"object","properties":{"headline":{"type":"string"}}}`),
		Fallback: func() (summaryResult, error) {
			return summaryResult{Headline: "fallback headline", Score: 0}, nil
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "fallback headline", out.Headline)
	assert.Equal(t, "fallback", meta.UsedResponseFormat)
}

func TestCallJSONValidateParsedRejectsAndRetries(t *testing.T) {
	provider := &fakeProvider{responses: []*model.Response{
		textResponse(`{"headline":"","score":1}`),
		textResponse(`{"headline":"good","score":1}`),
	}}
	c := NewClient(map[string]model.Client{"anthropic": provider}, nil)
	c.sleep = noSleep

	out, _, err := CallJSON(context.Background(), c, CallJSONOptions[summaryResult]{
		Purpose:  "rfp_triage",
		Config:   PurposeConfig{Primary: ModelRef{Provider: "anthropic", Model: "claude-x"}},
		Messages: userMessage("triage this"),
		Schema:   json.RawMessage(`{"type":"object","properties":{"headline":{"type":"string"}}}`),
		Retries:  3,
		ValidateParsed: func(r summaryResult) error {
			if r.Headline == "" {
				return errors.New("headline must not be empty")
			}
			return nil
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "good", out.Headline)
}

func TestRecordUsageRecordsTokensOnSuccess(t *testing.T) {
	provider := &fakeProvider{responses: []*model.Response{textResponse("hello there")}}
	c := NewClient(map[string]model.Client{"anthropic": provider}, nil)
	c.sleep = noSleep
	tracker := budget.NewTracker(1000, "claude-x")

	_, _, err := c.CallText(context.Background(), CallTextOptions{
		Purpose:  "rfp_summary",
		Config:   PurposeConfig{Primary: ModelRef{Provider: "anthropic", Model: "claude-x"}},
		Messages: userMessage("summarize this"),
		Budget:   tracker,
	})

	require.NoError(t, err)
	assert.Less(t, tracker.RemainingTokens(), 1000)
}
