package tools

import (
	"context"
	"encoding/json"

	"github.com/polaris-ecosystems/rfp-agent/internal/gitforge"
)

const (
	IdentGitHubGetPullRequest   Ident = "github_get_pull_request"
	IdentGitHubListPullRequests Ident = "github_list_pull_requests"
	IdentGitHubListCheckRuns    Ident = "github_list_check_runs"
	IdentGitHubCreateIssue      Ident = "github_create_issue"
	IdentGitHubCommentOnIssue   Ident = "github_comment_on_issue_or_pr"
	IdentGitHubAddLabels        Ident = "github_add_labels"
	IdentGitHubDispatchWorkflow Ident = "github_dispatch_workflow"
	IdentGitHubRerunWorkflowRun Ident = "github_rerun_workflow_run"
)

const githubRepoSchemaFragment = `"repo": {"type": "string", "minLength": 1, "maxLength": 256}`

const githubGetPullRequestSchema = `{
	"type": "object",
	"properties": {
		` + githubRepoSchemaFragment + `,
		"number": {"type": "integer", "minimum": 1}
	},
	"required": ["repo", "number"],
	"additionalProperties": false
}`

const githubListPullRequestsSchema = `{
	"type": "object",
	"properties": {
		` + githubRepoSchemaFragment + `,
		"state": {"type": "string", "enum": ["open", "closed", "all"]},
		"limit": {"type": "integer", "minimum": 1, "maximum": 25}
	},
	"required": ["repo"],
	"additionalProperties": false
}`

const githubListCheckRunsSchema = `{
	"type": "object",
	"properties": {
		` + githubRepoSchemaFragment + `,
		"ref": {"type": "string", "minLength": 1, "maxLength": 256}
	},
	"required": ["repo", "ref"],
	"additionalProperties": false
}`

const githubCreateIssueSchema = `{
	"type": "object",
	"properties": {
		` + githubRepoSchemaFragment + `,
		"title": {"type": "string", "minLength": 1, "maxLength": 240},
		"body": {"type": "string", "maxLength": 4000}
	},
	"required": ["repo", "title"],
	"additionalProperties": false
}`

const githubCommentOnIssueSchema = `{
	"type": "object",
	"properties": {
		` + githubRepoSchemaFragment + `,
		"number": {"type": "integer", "minimum": 1},
		"body": {"type": "string", "minLength": 1, "maxLength": 4000}
	},
	"required": ["repo", "number", "body"],
	"additionalProperties": false
}`

const githubAddLabelsSchema = `{
	"type": "object",
	"properties": {
		` + githubRepoSchemaFragment + `,
		"number": {"type": "integer", "minimum": 1},
		"labels": {"type": "array", "items": {"type": "string", "maxLength": 100}, "minItems": 1, "maxItems": 25}
	},
	"required": ["repo", "number", "labels"],
	"additionalProperties": false
}`

const githubDispatchWorkflowSchema = `{
	"type": "object",
	"properties": {
		` + githubRepoSchemaFragment + `,
		"workflow": {"type": "string", "minLength": 1, "maxLength": 256},
		"ref": {"type": "string", "minLength": 1, "maxLength": 256},
		"inputs": {"type": "object"}
	},
	"required": ["repo", "workflow", "ref"],
	"additionalProperties": false
}`

const githubRerunWorkflowRunSchema = `{
	"type": "object",
	"properties": {
		` + githubRepoSchemaFragment + `,
		"runId": {"type": "integer", "minimum": 1}
	},
	"required": ["repo", "runId"],
	"additionalProperties": false
}`

// RegisterGitHubTools wires the Git host category (spec section 6: Git host)
// onto client. Lookups are safe reads; issue/comment/label/workflow
// operations mutate the forge's state and are operator-only.
func RegisterGitHubTools(registry *Registry, client *gitforge.Client) error {
	getPR, err := NewTool(IdentGitHubGetPullRequest, "Fetch a single pull request's state, labels, and merge status.", CategoryGitHub, AccessRead, []byte(githubGetPullRequestSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Repo   string `json:"repo"`
			Number int64  `json:"number"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return client.GetPullRequest(ctx, in.Repo, in.Number)
	})
	if err != nil {
		return err
	}

	listPRs, err := NewTool(IdentGitHubListPullRequests, "List a repo's pull requests, most recently updated first.", CategoryGitHub, AccessRead, []byte(githubListPullRequestsSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Repo  string `json:"repo"`
			State string `json:"state"`
			Limit int    `json:"limit"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return client.ListPullRequests(ctx, in.Repo, in.State, in.Limit)
	})
	if err != nil {
		return err
	}

	listCheckRuns, err := NewTool(IdentGitHubListCheckRuns, "List CI status entries for a commit or branch ref.", CategoryGitHub, AccessRead, []byte(githubListCheckRunsSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Repo string `json:"repo"`
			Ref  string `json:"ref"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return client.ListCheckRuns(ctx, in.Repo, in.Ref)
	})
	if err != nil {
		return err
	}

	createIssue, err := NewTool(IdentGitHubCreateIssue, "Open a new issue on a repo.", CategoryGitHub, AccessOperator, []byte(githubCreateIssueSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Repo  string `json:"repo"`
			Title string `json:"title"`
			Body  string `json:"body"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return client.CreateIssue(ctx, in.Repo, in.Title, in.Body)
	})
	if err != nil {
		return err
	}

	comment, err := NewTool(IdentGitHubCommentOnIssue, "Post a comment on an issue or pull request.", CategoryGitHub, AccessOperator, []byte(githubCommentOnIssueSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Repo   string `json:"repo"`
			Number int64  `json:"number"`
			Body   string `json:"body"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return client.CommentOnIssueOrPR(ctx, in.Repo, in.Number, in.Body)
	})
	if err != nil {
		return err
	}

	addLabels, err := NewTool(IdentGitHubAddLabels, "Attach labels to an issue or pull request.", CategoryGitHub, AccessOperator, []byte(githubAddLabelsSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Repo   string   `json:"repo"`
			Number int64    `json:"number"`
			Labels []string `json:"labels"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		if err := client.AddLabels(ctx, in.Repo, in.Number, in.Labels); err != nil {
			return nil, err
		}
		return map[string]any{"repo": in.Repo, "number": in.Number, "labels": in.Labels}, nil
	})
	if err != nil {
		return err
	}

	dispatch, err := NewTool(IdentGitHubDispatchWorkflow, "Trigger a workflow_dispatch run on a branch or tag ref.", CategoryGitHub, AccessOperator, []byte(githubDispatchWorkflowSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Repo     string            `json:"repo"`
			Workflow string            `json:"workflow"`
			Ref      string            `json:"ref"`
			Inputs   map[string]string `json:"inputs"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		if err := client.DispatchWorkflow(ctx, in.Repo, in.Workflow, in.Ref, in.Inputs); err != nil {
			return nil, err
		}
		return map[string]any{"repo": in.Repo, "workflow": in.Workflow, "ref": in.Ref}, nil
	})
	if err != nil {
		return err
	}

	rerun, err := NewTool(IdentGitHubRerunWorkflowRun, "Re-run a completed Actions workflow run.", CategoryGitHub, AccessOperator, []byte(githubRerunWorkflowRunSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Repo  string `json:"repo"`
			RunID int64  `json:"runId"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		if err := client.RerunWorkflowRun(ctx, in.Repo, in.RunID); err != nil {
			return nil, err
		}
		return map[string]any{"repo": in.Repo, "runId": in.RunID}, nil
	})
	if err != nil {
		return err
	}

	for _, tool := range []*Tool{getPR, listPRs, listCheckRuns, createIssue, comment, addLabels, dispatch, rerun} {
		registry.Register(tool)
	}
	return nil
}
