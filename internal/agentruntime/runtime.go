package agentruntime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/polaris-ecosystems/rfp-agent/internal/aiclient"
	"github.com/polaris-ecosystems/rfp-agent/internal/budget"
	"github.com/polaris-ecosystems/rfp-agent/internal/identity"
	"github.com/polaris-ecosystems/rfp-agent/internal/model"
	"github.com/polaris-ecosystems/rfp-agent/internal/opportunity"
	"github.com/polaris-ecosystems/rfp-agent/internal/resilience"
	"github.com/polaris-ecosystems/rfp-agent/internal/telemetry"
	"github.com/polaris-ecosystems/rfp-agent/internal/toolerrors"
	"github.com/polaris-ecosystems/rfp-agent/internal/tools"
)

// GeneralQuestionAnswerer delegates a non-RFP-scoped question to a
// conversational path (no durable writes, no protocol enforcement). It's
// optional: when nil, or when it returns an error, the run falls through to
// the operator loop itself with no RFP scope, same as the original's
// best-effort delegation.
type GeneralQuestionAnswerer interface {
	Answer(ctx context.Context, question string, actor identity.Identity, channelID, threadTS string) (text string, err error)
}

// RunInput is one invocation of the agent runtime: a single chat mention or
// DM to handle end to end.
type RunInput struct {
	Question      string
	ChannelID     string
	ThreadTS      string
	ExternalUser  string // e.g. Slack user id
	TeamID        string
	EnterpriseID  string
	CorrelationID string
	MaxSteps      int
}

// RunResult summarizes what the run did, for logging and tests.
type RunResult struct {
	DidPost    bool
	Text       string
	RFPID      string
	Steps      int
	Delegated  string
	BoundRFPID string
	Scoped     bool
}

// Runtime wires the agent loop's dependencies: the AI client, the tool
// registry, durable opportunity state, layered context assembly, and the
// narrow memory/reply interfaces a run writes to. Runtime is safe for
// concurrent Run calls; all per-run state lives on the stack of Run itself.
type Runtime struct {
	AI          *aiclient.Client
	AIConfig    aiclient.PurposeConfig
	Tools       *tools.Registry
	Opportunity *opportunity.Repository
	Context     *identity.ContextBuilder
	Identity    *identity.Resolver
	Memory      Memory
	Threads     ThreadParticipantReader
	Reply       ReplyPoster
	General     GeneralQuestionAnswerer
	Budget      *budget.Tracker
	Logger      telemetry.Logger

	// MaxToolArgsEcho bounds how many argument keys are echoed into a
	// durable event's inputsRedacted field.
	MaxToolArgsEcho int
}

func (rt *Runtime) logger() telemetry.Logger {
	if rt.Logger != nil {
		return rt.Logger
	}
	return telemetry.NewNoopLogger()
}

const defaultMaxToolArgsEcho = 60

// Run handles one chat mention or DM end to end: thread shortcuts, RFP
// scope resolution, context assembly, the step-budgeted tool loop with
// protocol enforcement, and the post-run learning hooks (spec section 4.7).
func (rt *Runtime) Run(ctx context.Context, in RunInput) (RunResult, error) {
	question := normalizeWhitespace(in.Question, 5000)
	channelID := strings.TrimSpace(in.ChannelID)
	threadTS := strings.TrimSpace(in.ThreadTS)
	if question == "" || channelID == "" || threadTS == "" {
		return RunResult{}, fmt.Errorf("agentruntime: missing required input (question/channelId/threadTs)")
	}

	correlationID := strings.TrimSpace(in.CorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	var actor identity.Identity
	if rt.Identity != nil && in.ExternalUser != "" {
		var err error
		actor, err = rt.Identity.ResolveFromExternalChat(ctx, in.ExternalUser, in.TeamID, in.EnterpriseID, false)
		if err != nil {
			rt.logger().Warn(ctx, "agentruntime_identity_resolve_failed", "error", err.Error())
		}
	}

	if rt.Opportunity != nil {
		if shortcut, handled, err := HandleThreadShortcut(ctx, rt.Opportunity, channelID, threadTS, in.ExternalUser, question); handled {
			if err != nil {
				return RunResult{}, err
			}
			if rt.Reply != nil && shortcut.Reply != "" {
				_ = rt.Reply.PostMessage(ctx, channelID, threadTS, shortcut.Reply)
			}
			return RunResult{DidPost: shortcut.Reply != "", Text: shortcut.Reply, BoundRFPID: shortcut.BoundRFPID}, nil
		}
	}

	rfpID := ExtractRFPID(question)
	hasThreadBinding := false
	if rfpID == "" && rt.Opportunity != nil {
		if binding, err := rt.Opportunity.GetBinding(ctx, channelID, threadTS); err == nil && binding.RFPID != "" {
			rfpID = binding.RFPID
			hasThreadBinding = true
		}
	}

	if rfpID == "" {
		scope := ClassifyRFPScope(question, hasThreadBinding)
		if scope.RequiresRFP != nil && *scope.RequiresRFP {
			msg := "Which RFP is this about?\n" +
				"- include an id like `rfp_...` in your message, or\n" +
				"- bind this thread once with: `link rfp_...`"
			if rt.Reply != nil {
				_ = rt.Reply.PostMessage(ctx, channelID, threadTS, msg)
			}
			return RunResult{DidPost: rt.Reply != nil, Text: msg, Scoped: false}, nil
		}
		if rt.General != nil {
			if text, err := rt.General.Answer(ctx, question, actor, channelID, threadTS); err == nil {
				text = strings.TrimSpace(text)
				if text == "" {
					text = "No answer."
				}
				if rt.Reply != nil {
					_ = rt.Reply.PostMessage(ctx, channelID, threadTS, text)
				}
				return RunResult{DidPost: rt.Reply != nil, Text: text, Delegated: "general_question_answerer"}, nil
			}
			rt.logger().Warn(ctx, "agentruntime_general_delegation_failed")
		}
		// Fall through to the operator loop with no RFP scope: global tools
		// (job scheduling, reads, new-RFP creation) remain available.
	}

	if rfpID != "" && rt.Opportunity != nil {
		if err := rt.Opportunity.EnsureStateExists(ctx, rfpID); err != nil {
			return RunResult{}, fmt.Errorf("agentruntime: ensure state exists: %w", err)
		}
	}

	analysis := AnalyzeMetaprompt(ctx, rt.AI, rt.AIConfig, question, rfpID, in.ExternalUser)
	maxSteps := StepBudget(analysis, in.MaxSteps)

	contextBlock := ""
	if rt.Context != nil {
		contextBlock = rt.Context.Build(ctx, identity.BuildOptions{
			Identity:  actor,
			ChannelID: channelID,
			ThreadTS:  threadTS,
			RFPID:     rfpID,
		})
	}

	system := buildSystemPrompt(systemPromptInputs{
		Analysis:      analysis,
		RFPID:         rfpID,
		ChannelID:     channelID,
		ThreadTS:      threadTS,
		CorrelationID: correlationID,
		ContextBlock:  contextBlock,
	})

	messages := []*model.Message{
		{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: system}}},
		{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: question}}},
	}

	toolDefs := toolDefinitions(rt.Tools)
	protocol := NewProtocolState(rfpID, correlationID)

	var (
		steps       int
		didPost     bool
		finalText   string
		toolsCalled []string
	)

loop:
	for steps = 1; steps <= maxSteps; steps++ {
		resp, _, err := rt.AI.CallAgentTurn(ctx, aiclient.CallAgentTurnOptions{
			Purpose:    "agent_runtime_turn",
			Config:     rt.AIConfig,
			Messages:   messages,
			Tools:      toolDefs,
			ToolChoice: &model.ToolChoice{Mode: model.ToolChoiceModeAuto},
			StepNumber: steps,
			Budget:     rt.Budget,
		})
		if err != nil {
			return RunResult{Steps: steps, RFPID: rfpID}, fmt.Errorf("agentruntime: agent turn: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			finalText = extractText(resp.Content)
			break loop
		}

		messages = append(messages, assistantToolCallMessage(resp.ToolCalls))

		for _, call := range resp.ToolCalls {
			name := call.Name
			toolsCalled = append(toolsCalled, string(name))

			if name == IdentSlackPostSummary || name == IdentSlackAskClarifyingQuestion {
				args, rejection := protocol.InjectAndEnforce(rt.Tools, name, call.Payload)
				if rejection != nil {
					messages = append(messages, toolResultMessage(call.ID, rejection))
					continue
				}
				text := replyText(args)
				if rt.Reply != nil {
					_ = rt.Reply.PostMessage(ctx, channelID, threadTS, text)
				}
				didPost = true
				finalText = text
				messages = append(messages, toolResultMessage(call.ID, map[string]any{"ok": true}))
				continue
			}

			args, rejection := protocol.InjectAndEnforce(rt.Tools, name, call.Payload)
			if rejection != nil {
				messages = append(messages, toolResultMessage(call.ID, rejection))
				continue
			}

			started := time.Now()
			result := rt.callToolWithRetry(ctx, name, args)
			durationMS := time.Since(started).Milliseconds()

			protocol.RecordResult(name, result.OK)
			if !result.OK {
				rt.storeFailure(ctx, actor, rfpID, channelID, threadTS, question, name, result, toolsCalled)
			}
			rt.appendEvent(ctx, rfpID, correlationID, name, args, result, durationMS)

			messages = append(messages, toolResultMessage(call.ID, result))
		}
	}

	if !didPost && finalText != "" && rt.Reply != nil {
		if err := rt.Reply.PostMessage(ctx, channelID, threadTS, finalText); err == nil {
			didPost = true
		}
	}

	rt.learn(ctx, actor, learnParams{
		RFPID:         rfpID,
		ChannelID:     channelID,
		ThreadTS:      threadTS,
		Question:      question,
		AgentResponse: finalText,
		Steps:         steps,
		ToolsCalled:   toolsCalled,
	})

	return RunResult{DidPost: didPost, Text: finalText, RFPID: rfpID, Steps: steps, Scoped: rfpID != ""}, nil
}

// callToolWithRetry dispatches through the tool registry with
// retry-with-classification (2 retries, 0.5-5s backoff), matching spec
// section 4.7's tool-execution retry policy. The registry never returns a Go
// error (failures are encoded in the ToolResult itself), so the retry loop
// classifies based on a reconstructed error and keeps the latest result.
func (rt *Runtime) callToolWithRetry(ctx context.Context, name tools.Ident, args json.RawMessage) toolerrors.ToolResult {
	var result toolerrors.ToolResult
	opts := resilience.RetryOptions{MaxRetries: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
	_ = resilience.RetryWithClassification(ctx, opts, func() error {
		result = rt.Tools.Call(ctx, name, args)
		if result.OK {
			return nil
		}
		if !result.Retryable {
			return nil
		}
		return fmt.Errorf("%s: %s", result.ErrorType, result.Error)
	})
	return result
}

func (rt *Runtime) storeFailure(ctx context.Context, actor identity.Identity, rfpID, channelID, threadTS, question string, name tools.Ident, result toolerrors.ToolResult, toolsCalled []string) {
	if rt.Memory == nil {
		return
	}
	if err := rt.Memory.AddErrorLog(ctx, ErrorLogEntry{
		RFPID:  rfpID,
		Task:   question,
		Error:  result.Error,
		Source: "agent_runtime",
	}); err != nil {
		rt.logger().Warn(ctx, "agentruntime_error_log_failed", "error", err.Error())
	}

	if len(toolsCalled) < 3 {
		return
	}
	if err := rt.Memory.AddProceduralMemory(ctx, ProceduralMemory{
		RFPID:     rfpID,
		Task:      fmt.Sprintf("tool %s failed: %s", name, result.Error),
		StepCount: len(toolsCalled),
		Summary:   strings.Join(lastN(toolsCalled, 3), " -> ") + " (failed)",
		Source:    "agent_runtime",
	}); err != nil {
		rt.logger().Warn(ctx, "agentruntime_procedural_failure_log_failed", "error", err.Error())
	}
}

func (rt *Runtime) appendEvent(ctx context.Context, rfpID, correlationID string, name tools.Ident, args json.RawMessage, result toolerrors.ToolResult, durationMS int64) {
	if rfpID == "" || rt.Opportunity == nil {
		return
	}
	maxEcho := rt.MaxToolArgsEcho
	if maxEcho <= 0 {
		maxEcho = defaultMaxToolArgsEcho
	}
	_, _ = rt.Opportunity.AppendEvent(ctx, rfpID, opportunity.Event{
		Type: "tool_call",
		Tool: string(name),
		Payload: map[string]any{
			"ok":         result.OK,
			"durationMs": durationMS,
		},
		InputsRedacted:  map[string]any{"argsKeys": argKeys(args, maxEcho)},
		OutputsRedacted: map[string]any{"ok": result.OK, "errorCategory": string(result.ErrorCategory)},
	})
}

type learnParams struct {
	RFPID         string
	ChannelID     string
	ThreadTS      string
	Question      string
	AgentResponse string
	Steps         int
	ToolsCalled   []string
}

// learn runs the run's post-completion memory writes: collaboration
// detection, temporal event extraction, and a procedural-success memory
// when the run took three or more loop steps and called at least one tool.
func (rt *Runtime) learn(ctx context.Context, actor identity.Identity, p learnParams) {
	if rt.Memory == nil {
		return
	}
	userSub := actor.Sub
	if userSub == "" {
		return
	}

	if err := DetectAndStoreCollaboration(ctx, rt.Memory, rt.Threads, CollaborationParams{
		ChannelID:     p.ChannelID,
		ThreadTS:      p.ThreadTS,
		CurrentUserID: userSub,
		RFPID:         p.RFPID,
		UserMessage:   p.Question,
		AgentResponse: p.AgentResponse,
	}); err != nil {
		rt.logger().Warn(ctx, "agentruntime_collaboration_detection_failed", "error", err.Error())
	}

	if err := DetectAndStoreTemporalEvent(ctx, rt.Memory, time.Now(), TemporalParams{
		UserMessage: p.Question,
		UserSub:     userSub,
		RFPID:       p.RFPID,
		ChannelID:   p.ChannelID,
		ThreadTS:    p.ThreadTS,
	}); err != nil {
		rt.logger().Warn(ctx, "agentruntime_temporal_event_detection_failed", "error", err.Error())
	}

	if p.Steps >= 3 && len(p.ToolsCalled) > 0 {
		if err := rt.Memory.AddProceduralMemory(ctx, ProceduralMemory{
			RFPID:     p.RFPID,
			Task:      p.Question,
			StepCount: p.Steps,
			Summary:   strings.Join(lastN(p.ToolsCalled, 5), " -> ") + " (succeeded)",
			Source:    "agent_runtime",
		}); err != nil {
			rt.logger().Warn(ctx, "agentruntime_procedural_success_log_failed", "error", err.Error())
		}
	}
}

func lastN(xs []string, n int) []string {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func argKeys(rawArgs json.RawMessage, limit int) []string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(rawArgs, &m); err != nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
		if len(keys) >= limit {
			break
		}
	}
	return keys
}

func normalizeWhitespace(s string, maxChars int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxChars {
		s = s[:maxChars]
	}
	return strings.TrimSpace(s)
}

func toolDefinitions(registry *tools.Registry) []*model.ToolDefinition {
	if registry == nil {
		return nil
	}
	var defs []*model.ToolDefinition
	for _, t := range registry.OperatorTools() {
		defs = append(defs, &model.ToolDefinition{
			Name:        string(t.Name),
			Description: t.Description,
			InputSchema: t.SchemaDoc,
		})
	}
	return defs
}

func assistantToolCallMessage(calls []model.ToolCall) *model.Message {
	parts := make([]model.Part, 0, len(calls))
	for _, c := range calls {
		var input any
		_ = json.Unmarshal(c.Payload, &input)
		parts = append(parts, model.ToolUsePart{ID: c.ID, Name: string(c.Name), Input: input})
	}
	return &model.Message{Role: model.ConversationRoleAssistant, Parts: parts}
}

func toolResultMessage(toolUseID string, content any) *model.Message {
	return &model.Message{
		Role:  model.ConversationRoleUser,
		Parts: []model.Part{model.ToolResultPart{ToolUseID: toolUseID, Content: content}},
	}
}

func extractText(content []model.Message) string {
	var b strings.Builder
	for _, msg := range content {
		for _, part := range msg.Parts {
			if tp, ok := part.(model.TextPart); ok {
				b.WriteString(tp.Text)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// replyText pulls the "text" field out of a reply tool's arguments, falling
// back to "Done." when the model omitted it.
func replyText(args json.RawMessage) string {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &payload); err != nil || strings.TrimSpace(payload.Text) == "" {
		return "Done."
	}
	return payload.Text
}
