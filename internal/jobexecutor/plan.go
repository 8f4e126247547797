package jobexecutor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/polaris-ecosystems/rfp-agent/internal/aiclient"
	"github.com/polaris-ecosystems/rfp-agent/internal/model"
	"github.com/polaris-ecosystems/rfp-agent/internal/tools"
)

// identSlackPostSummary mirrors agentruntime.IdentSlackPostSummary: the job
// executor's fallback plan posts through the same Slack reply tool the
// interactive agent runtime uses, but does not import agentruntime to avoid
// a dependency from background job execution onto the interactive-turn
// package.
const identSlackPostSummary tools.Ident = "slack_post_summary"

// Step is one node in a job's execution DAG.
type Step struct {
	StepID               string         `json:"stepId"`
	Name                 string         `json:"name"`
	Tool                 string         `json:"tool"`
	ToolArgs             map[string]any `json:"toolArgs"`
	DependsOn            []string       `json:"dependsOn"`
	EstimatedTimeSeconds int            `json:"estimatedTimeSeconds"`
	Retryable            bool           `json:"retryable"`
	Alternatives         []Step         `json:"alternativeApproaches"`
	SuccessCriteria      string         `json:"successCriteria"`
	FailureHandling      string         `json:"failureHandling"`
}

// Plan is a job execution plan: a goal, a step DAG, and the planner's
// estimate of total cost.
type Plan struct {
	Goal                      string `json:"goal"`
	Steps                     []Step `json:"steps"`
	EstimatedTotalTimeSeconds int    `json:"estimatedTotalTimeSeconds"`
	RequiresCheckpointing     bool   `json:"requiresCheckpointing"`
	CanPartialSucceed         bool   `json:"canPartialSucceed"`
	Notes                     string `json:"notes"`
}

const planSchema = `{
	"type": "object",
	"properties": {
		"goal": {"type": "string"},
		"steps": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"stepId": {"type": "string"},
					"name": {"type": "string"},
					"tool": {"type": "string"},
					"toolArgs": {"type": "object"},
					"dependsOn": {"type": "array", "items": {"type": "string"}},
					"estimatedTimeSeconds": {"type": "integer"},
					"retryable": {"type": "boolean"},
					"successCriteria": {"type": "string"},
					"failureHandling": {"type": "string"}
				},
				"required": ["stepId", "name", "tool"]
			}
		},
		"estimatedTotalTimeSeconds": {"type": "integer"},
		"requiresCheckpointing": {"type": "boolean"},
		"canPartialSucceed": {"type": "boolean"},
		"notes": {"type": "string"}
	},
	"required": ["goal", "steps"]
}`

// SuccessRecord is a prior job's outcome, retrievable by the planner as
// few-shot guidance for a similar request.
type SuccessRecord struct {
	Request   string
	ToolNames []string
	Summary   string
}

// ProceduralMemory is the narrow slice of the memory subsystem the planner
// and learner need: similar-job lookup for planning guidance, and
// success/failure write-back once a job finishes.
type ProceduralMemory interface {
	SimilarSuccessfulJobs(ctx context.Context, request string, limit int) ([]SuccessRecord, error)
	RecordSuccess(ctx context.Context, jobID, request string, toolNames []string, summary string) error
	RecordFailure(ctx context.Context, jobID, request string, stepErrors map[string]string) error
}

// Planner turns a free-form job request into a Plan using the tool
// registry's inventory and, when available, similar prior successful jobs
// as guidance. Missing AI configuration or a malformed model response both
// fall back to a degenerate single-step plan that surfaces the request
// itself rather than failing the job outright.
type Planner struct {
	AI      *aiclient.Client
	Config  aiclient.PurposeConfig
	Tools   *tools.Registry
	Memory  ProceduralMemory
	Purpose string
}

// Plan produces an execution plan for request, optionally scoped to rfpID.
func (p *Planner) Plan(ctx context.Context, request, rfpID string) (Plan, error) {
	if p.AI == nil {
		return fallbackPlan(request), nil
	}

	inventory := toolInventoryText(p.Tools)
	guidance := p.similarJobGuidance(ctx, request)

	var sb strings.Builder
	sb.WriteString("You are a job execution planner for an RFP/proposal workflow platform.\n")
	sb.WriteString("Break the request into steps using only tools from the inventory below.\n")
	sb.WriteString("Each step declares its dependsOn (step ids that must complete first).\n\n")
	sb.WriteString("Available tools:\n")
	sb.WriteString(inventory)
	if rfpID != "" {
		sb.WriteString(fmt.Sprintf("\n\nThis job is scoped to RFP %s.", rfpID))
	}
	if guidance != "" {
		sb.WriteString("\n\nGuidance from similar prior jobs:\n")
		sb.WriteString(guidance)
	}

	messages := []*model.Message{
		{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: sb.String()}}},
		{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: request}}},
	}

	plan, _, err := aiclient.CallJSON(ctx, p.AI, aiclient.CallJSONOptions[Plan]{
		Purpose:  p.Purpose,
		Config:   p.Config,
		Messages: messages,
		Schema:   json.RawMessage(planSchema),
		Fallback: func() (Plan, error) { return fallbackPlan(request), nil },
	})
	if err != nil {
		return fallbackPlan(request), nil
	}
	if len(plan.Steps) == 0 {
		return fallbackPlan(request), nil
	}
	return plan, nil
}

func (p *Planner) similarJobGuidance(ctx context.Context, request string) string {
	if p.Memory == nil {
		return ""
	}
	records, err := p.Memory.SimilarSuccessfulJobs(ctx, request, 2)
	if err != nil || len(records) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, r := range records {
		sb.WriteString(fmt.Sprintf("- %q succeeded using: %s\n", r.Request, strings.Join(r.ToolNames, ", ")))
	}
	return sb.String()
}

// fallbackPlan is the degenerate single-step plan used when the model is
// unavailable or returns an unusable plan: it surfaces the original request
// as a single manual-review step rather than silently dropping the job.
func fallbackPlan(request string) Plan {
	return Plan{
		Goal: request,
		Steps: []Step{{
			StepID:          "step_1",
			Name:            "surface_request",
			Tool:            string(identSlackPostSummary),
			ToolArgs:        map[string]any{"text": fmt.Sprintf("Could not generate an execution plan for: %s", request)},
			Retryable:       false,
			SuccessCriteria: "message posted",
			FailureHandling: "report",
		}},
		CanPartialSucceed: true,
		Notes:             "fallback plan: planning failed or AI unavailable",
	}
}

// toolInventoryText renders registry.Inventory() as a category-grouped
// bullet list for the planner's system prompt.
func toolInventoryText(registry *tools.Registry) string {
	if registry == nil {
		return ""
	}
	inventory := registry.Inventory()
	categories := make([]string, 0, len(inventory))
	for category := range inventory {
		categories = append(categories, string(category))
	}
	sort.Strings(categories)

	var sb strings.Builder
	for _, category := range categories {
		toolList := inventory[tools.Category(category)]
		if len(toolList) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("\n**%s:**\n", category))
		for _, t := range toolList {
			sb.WriteString(fmt.Sprintf("- `%s`: %s\n", t.Name, t.Description))
		}
	}
	return sb.String()
}
