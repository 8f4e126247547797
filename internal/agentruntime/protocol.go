package agentruntime

import (
	"encoding/json"
	"time"

	"github.com/polaris-ecosystems/rfp-agent/internal/tools"
)

// Reply tool identifiers the protocol enforcer treats specially: posting is
// the "talk" half of "write-before-talk", so it doesn't go through the usual
// handler dispatch without first checking durable writes happened. These
// are registered by the chat-platform package, not this one; agentruntime
// only needs to recognize them by name.
const (
	IdentSlackPostSummary           tools.Ident = "slack_post_summary"
	IdentSlackAskClarifyingQuestion tools.Ident = "slack_ask_clarifying_question"
)

// globalToolNames are callable with no RFP scope at all: they either scope
// themselves (opportunity_load) or operate platform-wide (job scheduling,
// reads).
var globalToolNames = map[tools.Ident]bool{
	tools.IdentOpportunityLoad: true,
	"schedule_job":             true,
	"agent_job_list":           true,
	"agent_job_get":            true,
	"agent_job_query_due":      true,
	"job_plan":                 true,
	"create_change_proposal":   true,
	"propose_action":           true,
}

// ProtocolState tracks the load-before-write and write-before-talk flags for
// one run. lastLoadTime records when opportunity_load last succeeded; no
// check reads it: once opportunity_load has succeeded once in a run, both
// reads and writes are allowed for the rest of that run.
type ProtocolState struct {
	RFPID         string
	CorrelationID string

	didLoad      bool
	didPatch     bool
	didJournal   bool
	lastLoadTime time.Time
}

// NewProtocolState starts a run's protocol bookkeeping. rfpID may be empty
// for global (non-RFP-scoped) runs, in which case every enforcement check is
// a no-op.
func NewProtocolState(rfpID, correlationID string) *ProtocolState {
	return &ProtocolState{RFPID: rfpID, CorrelationID: correlationID}
}

// ProtocolRejection is returned instead of calling the tool when the
// protocol check fails; it's shaped like a tool result so it can be fed
// straight back to the model as the tool's own response.
type ProtocolRejection struct {
	Error string `json:"error"`
	Hint  string `json:"hint"`
}

func rejectMissingLoad() *ProtocolRejection {
	return &ProtocolRejection{
		Error: "protocol_missing_opportunity_load",
		Hint:  "Call opportunity_load first to reconstruct context before using other RFP-scoped write tools.",
	}
}

func rejectMissingStateWrite() *ProtocolRejection {
	return &ProtocolRejection{
		Error: "protocol_missing_state_write",
		Hint:  "Before posting, call opportunity_patch and/or journal_append so the system remembers next invocation.",
	}
}

func isReadTool(registry *tools.Registry, name tools.Ident) bool {
	if registry == nil {
		return false
	}
	tool, ok := registry.Get(name)
	return ok && tool.Access == tools.AccessRead
}

func isWriteTool(name tools.Ident) bool {
	switch name {
	case tools.IdentOpportunityPatch, tools.IdentJournalAppend, tools.IdentEventAppend:
		return true
	default:
		return false
	}
}

// InjectAndEnforce stamps the correlation id into args where the protocol
// expects it, and enforces load-before-write (RFP-scoped writes require a
// prior successful opportunity_load; RFP-scoped reads and global tools are
// exempt) and write-before-talk (a reply tool is blocked until a patch or
// journal entry has been recorded). A non-nil *ProtocolRejection means the
// tool call must not be dispatched; its content should be returned to the
// model as if it were the tool's own result.
func (p *ProtocolState) InjectAndEnforce(registry *tools.Registry, name tools.Ident, rawArgs json.RawMessage) (json.RawMessage, *ProtocolRejection) {
	args := stampCorrelationID(name, rawArgs, p.CorrelationID)

	if p.RFPID == "" {
		return args, nil
	}

	if name == IdentSlackPostSummary || name == IdentSlackAskClarifyingQuestion {
		if !p.didPatch && !p.didJournal {
			return args, rejectMissingStateWrite()
		}
		return args, nil
	}

	if name == tools.IdentOpportunityLoad || globalToolNames[name] || isReadTool(registry, name) {
		return args, nil
	}

	if p.didLoad {
		return args, nil
	}
	if isWriteTool(name) {
		return args, rejectMissingLoad()
	}
	// An RFP-scoped tool that's neither a known write nor a registered read
	// tool (the registry didn't have it at lookup time): be conservative and
	// require a load, same as a write.
	return args, rejectMissingLoad()
}

// RecordResult updates the load/patch/journal flags after a tool call
// succeeds. Call this after dispatch, not before — the flags must only flip
// on a confirmed success.
func (p *ProtocolState) RecordResult(name tools.Ident, ok bool) {
	if !ok {
		return
	}
	switch name {
	case tools.IdentOpportunityLoad:
		p.didLoad = true
		p.lastLoadTime = time.Now()
	case tools.IdentOpportunityPatch:
		p.didPatch = true
	case tools.IdentJournalAppend:
		p.didJournal = true
	}
}

// stampCorrelationID injects the run's correlation id into the argument
// shapes the original protocol stamps it into: a top-level field for
// event/patch/reply tools, a nested "meta" object for journal_append.
func stampCorrelationID(name tools.Ident, rawArgs json.RawMessage, correlationID string) json.RawMessage {
	if correlationID == "" || len(rawArgs) == 0 {
		return rawArgs
	}

	var args map[string]any
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return rawArgs
	}

	switch name {
	case tools.IdentEventAppend, tools.IdentOpportunityPatch, IdentSlackPostSummary, IdentSlackAskClarifyingQuestion:
		if _, exists := args["correlationId"]; !exists {
			args["correlationId"] = correlationID
		}
	case tools.IdentJournalAppend:
		meta, ok := args["meta"].(map[string]any)
		if !ok || meta == nil {
			meta = map[string]any{}
		}
		if _, exists := meta["correlationId"]; !exists {
			meta["correlationId"] = correlationID
		}
		args["meta"] = meta
	default:
		return rawArgs
	}

	encoded, err := json.Marshal(args)
	if err != nil {
		return rawArgs
	}
	return encoded
}
