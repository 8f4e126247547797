package agentruntime

import (
	"fmt"
	"strings"
)

// systemPromptInputs is everything buildSystemPrompt needs to assemble a
// run's system message: the metaprompt read on the request, the resolved
// scope, runtime identifiers for correlation, and the assembled context
// block from identity.ContextBuilder.
type systemPromptInputs struct {
	Analysis      MetapromptAnalysis
	RFPID         string
	ChannelID     string
	ThreadTS      string
	CorrelationID string
	ContextBlock  string
}

// buildSystemPrompt assembles the run's system message: identity, the
// metaprompt read on the request, the protocol rules the tool loop enforces,
// and runtime identifiers for correlation. Mirrors the original's per-run
// system prompt composition, trimmed to the operations this runtime actually
// implements.
func buildSystemPrompt(in systemPromptInputs) string {
	scopeLine := "none (global operations only; do not call opportunity_load/patch, journal_append, or event_append)"
	if in.RFPID != "" {
		scopeLine = in.RFPID
	}

	lines := []string{
		"You are the Polaris RFP operator, a tool-using agent for an RFP to proposal to contracting platform.",
		"You are stateless: reconstruct context by calling tools every invocation. Do not assume anything persisted from a previous turn survives beyond what's in this conversation.",
		"",
		"Metaprompt analysis of this request:",
		fmt.Sprintf("- intent: %s", orUnknown(in.Analysis.Intent)),
		fmt.Sprintf("- complexity: %s (likely %d steps)", in.Analysis.Complexity, in.Analysis.LikelySteps),
		fmt.Sprintf("- reasoning: %s", in.Analysis.Reasoning),
	}
	if len(in.Analysis.MissingInfo) > 0 {
		lines = append(lines, "- missing info: "+strings.Join(in.Analysis.MissingInfo, ", "))
	}

	lines = append(lines,
		"",
		"Critical rules:",
		"- RFP scope for this run: "+scopeLine,
		"- Default to silence. To communicate, call slack_post_summary, or slack_ask_clarifying_question only when genuinely blocked.",
		"- Before posting in an RFP-scoped run, update durable state first: call opportunity_patch and/or journal_append. Posting without one of those first is rejected.",
		"- In an RFP-scoped run, call opportunity_load before any other RFP-scoped tool. Read tools and global tools (job scheduling, new-RFP creation) don't need it.",
		"- Never invent ids, dates, or commitments. Cite tool output, or ask one clarifying question.",
		"- When a tool fails, surface the error message, errorType, and errorCategory to the user rather than papering over it.",
		"",
		fmt.Sprintf("Runtime context: channel=%s thread=%s correlationId=%s", in.ChannelID, in.ThreadTS, in.CorrelationID),
	)

	if in.ContextBlock != "" {
		lines = append(lines, "", "Assembled context:", in.ContextBlock)
	}

	return strings.Join(lines, "\n")
}
