package agentruntime

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/polaris-ecosystems/rfp-agent/internal/aiclient"
	"github.com/polaris-ecosystems/rfp-agent/internal/model"
)

// Complexity is a coarse estimate of how many tool-call steps a request is
// likely to need, which drives the step budget (spec section 4.7).
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// MetapromptAnalysis is the structured read on a user request that drives
// step-budgeting and system-prompt guidance: intent, complexity, the tools
// it's likely to need, and what's still missing to act on it.
type MetapromptAnalysis struct {
	Intent        string     `json:"intent"`
	Complexity    Complexity `json:"complexity"`
	RequiredTools []string   `json:"requiredTools"`
	LikelySteps   int        `json:"likelySteps"`
	MissingInfo   []string   `json:"missingInfo"`
	Confidence    float64    `json:"confidence"`
	Reasoning     string     `json:"reasoning"`
}

var metapromptSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "intent": {"type": "string"},
    "complexity": {"type": "string", "enum": ["simple", "moderate", "complex"]},
    "requiredTools": {"type": "array", "items": {"type": "string"}},
    "likelySteps": {"type": "integer", "minimum": 1},
    "missingInfo": {"type": "array", "items": {"type": "string"}},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string"}
  },
  "required": ["intent", "complexity", "reasoning"]
}`)

// MatchMetapromptTemplate recognizes a handful of common request shapes
// without an LLM call: status updates, RFP lookups, new-RFP uploads, and job
// scheduling. Returns (analysis, true) on a match.
func MatchMetapromptTemplate(question, rfpID string) (MetapromptAnalysis, bool) {
	lower := strings.ToLower(strings.TrimSpace(question))

	if rfpID != "" && containsAny(lower, "update status", "change status", "set status") {
		return MetapromptAnalysis{
			Intent:        "update_rfp_state",
			Complexity:    ComplexitySimple,
			RequiredTools: []string{"opportunity_load", "opportunity_patch", "journal_append"},
			LikelySteps:   3,
			Confidence:    0.95,
			Reasoning:     "User wants to update RFP status. Requires: opportunity_load -> opportunity_patch -> journal_append",
		}, true
	}

	if containsAny(lower, "what is", "tell me about", "show me", "what's the") && containsAny(lower, "rfp", "proposal") {
		return MetapromptAnalysis{
			Intent:        "query",
			Complexity:    ComplexitySimple,
			RequiredTools: []string{"get_rfp"},
			LikelySteps:   1,
			Confidence:    0.90,
			Reasoning:     "User wants information about an RFP. Read-only operation, no RFP scope needed if general query",
		}, true
	}

	if containsAny(lower, "upload", "create new", "new rfp", "brand new") && containsAny(lower, "rfp", "opportunity") {
		return MetapromptAnalysis{
			Intent:        "create_rfp",
			Complexity:    ComplexityModerate,
			RequiredTools: []string{"slack_get_thread", "rfp_create_from_slack_file"},
			LikelySteps:   2,
			Confidence:    0.90,
			Reasoning:     "User wants to create a new RFP from a file. No RFP scope needed - this creates a new RFP",
		}, true
	}

	if rfpID == "" && containsAny(lower, "schedule job", "queue job", "run job") {
		return MetapromptAnalysis{
			Intent:        "schedule_job",
			Complexity:    ComplexitySimple,
			RequiredTools: []string{"schedule_job"},
			LikelySteps:   1,
			Confidence:    0.90,
			Reasoning:     "User wants to schedule a job. Global operation, no RFP scope needed unless an RFP id is provided",
		}, true
	}

	return MetapromptAnalysis{}, false
}

func containsAny(s string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// FallbackMetaprompt builds a keyword-based MetapromptAnalysis when neither
// the template matcher nor the AI classification call is usable.
func FallbackMetaprompt(question, rfpID string) MetapromptAnalysis {
	if strings.TrimSpace(question) == "" {
		return MetapromptAnalysis{Intent: "unknown", Complexity: ComplexitySimple, LikelySteps: 1, Confidence: 0.3, Reasoning: "empty question"}
	}
	lower := strings.ToLower(question)

	intent := "query"
	switch {
	case containsAny(lower, "update", "change", "modify", "patch", "set"):
		if containsAny(lower, "rfp", "opportunity", "state", "journal") {
			intent = "update_rfp_state"
		} else {
			intent = "update"
		}
	case containsAny(lower, "create", "add", "new", "upload"):
		if containsAny(lower, "rfp", "opportunity") {
			intent = "create_rfp"
		} else {
			intent = "create"
		}
	case containsAny(lower, "schedule", "queue", "run", "job"):
		intent = "schedule_job"
	case containsAny(lower, "what", "who", "when", "where", "how", "tell me", "show me", "list"):
		intent = "query"
	}

	complexity := ComplexitySimple
	if containsAny(lower, "and", "also", "then", "after", "multiple", "several", "all") {
		complexity = ComplexityModerate
	}
	if containsAny(lower, "analyze", "compare", "evaluate", "review", "comprehensive") {
		complexity = ComplexityComplex
	}

	var requiredTools []string
	if containsAny(lower, "opportunity", "journal", "state", "patch") {
		requiredTools = append(requiredTools, "opportunity_load")
		if containsAny(lower, "update", "change", "modify", "patch") {
			requiredTools = append(requiredTools, "opportunity_patch", "journal_append")
		}
	}
	if containsAny(lower, "rfp", "proposal") && intent != "create_rfp" {
		requiredTools = append(requiredTools, "get_rfp")
	}
	if containsAny(lower, "job", "schedule") {
		requiredTools = append(requiredTools, "schedule_job")
	}

	likelySteps := 2
	switch complexity {
	case ComplexityModerate:
		likelySteps = 4
	case ComplexityComplex:
		likelySteps = 6
	}

	var missingInfo []string
	if containsAny(lower, "rfp", "opportunity") && rfpID == "" {
		missingInfo = append(missingInfo, "rfp_id")
	}

	return MetapromptAnalysis{
		Intent:        intent,
		Complexity:    complexity,
		RequiredTools: requiredTools,
		LikelySteps:   likelySteps,
		MissingInfo:   missingInfo,
		Confidence:    0.5,
		Reasoning:     "keyword-based fallback analysis: intent=" + intent + ", complexity=" + string(complexity),
	}
}

// AnalyzeMetaprompt produces a MetapromptAnalysis for question: the template
// matcher first (free), then an AI structured call, falling back to keyword
// analysis if the AI call fails or isn't configured.
func AnalyzeMetaprompt(ctx context.Context, client *aiclient.Client, cfg aiclient.PurposeConfig, question, rfpID, userID string) MetapromptAnalysis {
	if match, ok := MatchMetapromptTemplate(question, rfpID); ok {
		return match
	}
	if strings.TrimSpace(question) == "" {
		return MetapromptAnalysis{Intent: "unknown", Complexity: ComplexitySimple, LikelySteps: 1, Confidence: 0.0, Reasoning: "empty question provided"}
	}
	if client == nil {
		return FallbackMetaprompt(question, rfpID)
	}

	scopeDesc := "none (global operations allowed)"
	if rfpID != "" {
		scopeDesc = rfpID
	}
	system := strings.Join([]string{
		"You are analyzing a user's request to generate structured analysis that will guide an AI agent.",
		"Determine: intent, complexity ('simple' 1-3 steps, 'moderate' 4-6 steps, 'complex' 7+ steps), required tools, estimated steps, and missing information.",
		"",
		"RFP scope: " + scopeDesc,
		"User ID: " + orUnknown(userID),
	}, "\n")

	analysis, _, err := aiclient.CallJSON(ctx, client, aiclient.CallJSONOptions[MetapromptAnalysis]{
		Purpose: "metaprompt_analysis",
		Config:  cfg,
		Messages: []*model.Message{
			{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: system}}},
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: question}}},
		},
		Schema:      metapromptSchema,
		Temperature: 0.3,
		MaxTokens:   400,
		Retries:     1,
	})
	if err != nil {
		return FallbackMetaprompt(question, rfpID)
	}
	return analysis
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

// StepBudget computes the effective max-steps for a run from its complexity
// and likely-steps estimate, per spec section 4.7's table: simple 3-5,
// moderate 6-10, complex 12-20, capped at 2x the caller's requested ceiling
// and floored at likely_steps+2 when the analysis thinks it'll need more.
func StepBudget(analysis MetapromptAnalysis, requestedMaxSteps int) int {
	if requestedMaxSteps <= 0 {
		requestedMaxSteps = 8
	}

	var effective int
	switch analysis.Complexity {
	case ComplexityModerate:
		effective = clampInt(requestedMaxSteps, 6, 10)
	case ComplexityComplex:
		effective = clampInt(requestedMaxSteps, 12, 20)
	default:
		effective = clampInt(requestedMaxSteps, 3, 5)
	}

	if analysis.LikelySteps > effective {
		effective = minInt(analysis.LikelySteps+2, requestedMaxSteps*2)
	}
	return effective
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
