package agentruntime_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/agentruntime"
	"github.com/polaris-ecosystems/rfp-agent/internal/aiclient"
	kvinmem "github.com/polaris-ecosystems/rfp-agent/internal/kvstore/inmem"
	"github.com/polaris-ecosystems/rfp-agent/internal/model"
	"github.com/polaris-ecosystems/rfp-agent/internal/opportunity"
	"github.com/polaris-ecosystems/rfp-agent/internal/tools"
)

// scriptedProvider returns one canned *model.Response per call, in order,
// regardless of the request it's given. The agent loop is deterministic
// given deterministic model output, so a fixed script is enough to exercise
// the tool loop end to end without a real model.
type scriptedProvider struct {
	responses []*model.Response
	calls     int
}

func (p *scriptedProvider) Complete(_ context.Context, _ *model.Request) (*model.Response, error) {
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}

func (p *scriptedProvider) Stream(_ context.Context, _ *model.Request) (model.Streamer, error) {
	panic("not used in this test")
}

func toolCallResponse(calls ...model.ToolCall) *model.Response {
	return &model.Response{ToolCalls: calls}
}

func textResponse(text string) *model.Response {
	return &model.Response{Content: []model.Message{{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}}}}
}

func rawArgs(t *testing.T, v any) json.RawMessage {
	t.Helper()
	encoded, err := json.Marshal(v)
	require.NoError(t, err)
	return encoded
}

type fakeReplyPoster struct {
	posts []string
}

func (f *fakeReplyPoster) PostMessage(_ context.Context, _, _, text string) error {
	f.posts = append(f.posts, text)
	return nil
}

func newTestRuntime(t *testing.T, responses []*model.Response) (*agentruntime.Runtime, *opportunity.Repository, *fakeReplyPoster) {
	t.Helper()
	repo := opportunity.NewRepository(kvinmem.New())
	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterOpportunityTools(registry, repo))

	provider := &scriptedProvider{responses: responses}
	client := aiclient.NewClient(map[string]model.Client{"fake": provider}, nil)
	cfg := aiclient.PurposeConfig{Primary: aiclient.ModelRef{Provider: "fake", Model: "fake-model"}}
	reply := &fakeReplyPoster{}

	rt := &agentruntime.Runtime{
		AI:          client,
		AIConfig:    cfg,
		Tools:       registry,
		Opportunity: repo,
		Reply:       reply,
	}
	return rt, repo, reply
}

func TestRunSucceedsWithLoadBeforeWrite(t *testing.T) {
	responses := []*model.Response{
		toolCallResponse(model.ToolCall{ID: "1", Name: tools.IdentOpportunityLoad, Payload: rawArgs(t, map[string]any{"rfpId": "rfp_100001"})}),
		toolCallResponse(model.ToolCall{ID: "2", Name: tools.IdentOpportunityPatch, Payload: rawArgs(t, map[string]any{"rfpId": "rfp_100001", "patch": map[string]any{"summary": "updated"}})}),
		toolCallResponse(model.ToolCall{ID: "3", Name: agentruntime.IdentSlackPostSummary, Payload: rawArgs(t, map[string]any{"text": "Updated the summary."})}),
		textResponse(""),
	}
	rt, repo, reply := newTestRuntime(t, responses)

	result, err := rt.Run(context.Background(), agentruntime.RunInput{
		Question:     "update status for rfp_100001",
		ChannelID:    "C1",
		ThreadTS:     "T1",
		ExternalUser: "U1",
	})
	require.NoError(t, err)
	assert.True(t, result.DidPost)
	assert.Equal(t, "rfp_100001", result.RFPID)
	require.Len(t, reply.posts, 1)
	assert.Equal(t, "Updated the summary.", reply.posts[0])

	state, err := repo.GetState(context.Background(), "rfp_100001")
	require.NoError(t, err)
	assert.Equal(t, "updated", state.Summary)
}

func TestRunBlocksReplyWithoutDurableWriteFirst(t *testing.T) {
	responses := []*model.Response{
		toolCallResponse(model.ToolCall{ID: "1", Name: tools.IdentOpportunityLoad, Payload: rawArgs(t, map[string]any{"rfpId": "rfp_100001"})}),
		toolCallResponse(model.ToolCall{ID: "2", Name: agentruntime.IdentSlackPostSummary, Payload: rawArgs(t, map[string]any{"text": "Nothing happened."})}),
		toolCallResponse(model.ToolCall{ID: "3", Name: tools.IdentJournalAppend, Payload: rawArgs(t, map[string]any{"rfpId": "rfp_100001", "whatChanged": "noted"})}),
		toolCallResponse(model.ToolCall{ID: "4", Name: agentruntime.IdentSlackPostSummary, Payload: rawArgs(t, map[string]any{"text": "Noted it."})}),
		textResponse(""),
	}
	rt, _, reply := newTestRuntime(t, responses)

	result, err := rt.Run(context.Background(), agentruntime.RunInput{
		Question:     "update status for rfp_100001",
		ChannelID:    "C1",
		ThreadTS:     "T1",
		ExternalUser: "U1",
	})
	require.NoError(t, err)
	assert.True(t, result.DidPost)
	require.Len(t, reply.posts, 1)
	assert.Equal(t, "Noted it.", reply.posts[0])
}

func TestRunAsksToBindWhenScopeRequiresRFP(t *testing.T) {
	rt, _, reply := newTestRuntime(t, nil)

	result, err := rt.Run(context.Background(), agentruntime.RunInput{
		Question:     "please update the opportunity state",
		ChannelID:    "C1",
		ThreadTS:     "T1",
		ExternalUser: "U1",
	})
	require.NoError(t, err)
	assert.False(t, result.Scoped)
	require.Len(t, reply.posts, 1)
	assert.Contains(t, reply.posts[0], "Which RFP")
}

func TestRunHandlesThreadLinkShortcut(t *testing.T) {
	rt, repo, reply := newTestRuntime(t, nil)

	result, err := rt.Run(context.Background(), agentruntime.RunInput{
		Question:     "link rfp_999999",
		ChannelID:    "C1",
		ThreadTS:     "T1",
		ExternalUser: "U1",
	})
	require.NoError(t, err)
	assert.Equal(t, "rfp_999999", result.BoundRFPID)
	require.Len(t, reply.posts, 1)

	bound, err := repo.GetBinding(context.Background(), "C1", "T1")
	require.NoError(t, err)
	assert.Equal(t, "rfp_999999", bound.RFPID)
}
