// Package gitforge adapts the Git host tool category (spec section 6: Git
// host) onto a Gitea-compatible API client, grounded on the pack's
// evalgo-org-eve/forge client-construction idiom and on the distilled
// agent's github_api.py tool surface: pull requests, check runs, issues,
// comments, labels, and workflow dispatch/rerun, every operation gated by a
// repo allowlist.
package gitforge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"code.gitea.io/sdk/gitea"

	"github.com/polaris-ecosystems/rfp-agent/internal/toolerrors"
)

// Config constructs a Client against a Gitea-compatible forge.
type Config struct {
	BaseURL      string
	Token        string
	AllowedRepos []string
}

// Client wraps a gitea.Client with the repo allowlist and the handful of raw
// HTTP calls the SDK doesn't cover (workflow rerun).
type Client struct {
	gitea        *gitea.Client
	http         *http.Client
	baseURL      string
	token        string
	allowedRepos map[string]struct{}
}

// New constructs a production Client against a real Gitea-compatible forge.
func New(cfg Config) (*Client, error) {
	gc, err := gitea.NewClient(cfg.BaseURL, gitea.SetToken(cfg.Token))
	if err != nil {
		return nil, fmt.Errorf("gitforge: new client: %w", err)
	}
	return newClient(gc, cfg.BaseURL, cfg.Token, cfg.AllowedRepos), nil
}

// NewWithGiteaClient wraps an already-constructed gitea.Client, for tests and
// callers that manage client construction (version probing, TLS config)
// themselves.
func NewWithGiteaClient(gc *gitea.Client, baseURL, token string, allowedRepos []string) *Client {
	return newClient(gc, baseURL, token, allowedRepos)
}

func newClient(gc *gitea.Client, baseURL, token string, allowedRepos []string) *Client {
	set := make(map[string]struct{}, len(allowedRepos))
	for _, r := range allowedRepos {
		r = strings.TrimSpace(r)
		if r != "" {
			set[r] = struct{}{}
		}
	}
	return &Client{
		gitea:        gc,
		http:         &http.Client{Timeout: 20 * time.Second},
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		allowedRepos: set,
	}
}

// requireAllowedRepo mirrors _require_allowed_repo/_split_repo: a repo is
// accepted only when the allowlist is empty (unbound) or names it explicitly,
// and must be in "owner/name" form.
func (c *Client) requireAllowedRepo(repo string) (owner, name string, err error) {
	repo = strings.TrimSpace(repo)
	if repo == "" {
		return "", "", toolerrors.New(toolerrors.KindRepoNotAllowed, "missing repo")
	}
	if len(c.allowedRepos) > 0 {
		if _, ok := c.allowedRepos[repo]; !ok {
			return "", "", toolerrors.Errorf(toolerrors.KindRepoNotAllowed, "repo %q is not in the allowed list", repo)
		}
	}
	owner, name, ok := strings.Cut(repo, "/")
	owner, name = strings.TrimSpace(owner), strings.TrimSpace(name)
	if !ok || owner == "" || name == "" {
		return "", "", toolerrors.Errorf(toolerrors.KindRepoNotAllowed, "invalid repo %q, expected owner/name", repo)
	}
	return owner, name, nil
}

// PullRequest is the subset of a Gitea/GitHub pull request surfaced to the
// agent (mirrors github_api.py's get_pull).
type PullRequest struct {
	Repo      string   `json:"repo"`
	Number    int64    `json:"number"`
	Title     string   `json:"title"`
	State     string   `json:"state"`
	Draft     bool     `json:"draft"`
	Merged    bool     `json:"merged"`
	Mergeable bool     `json:"mergeable"`
	User      string   `json:"user,omitempty"`
	URL       string   `json:"url"`
	Base      string   `json:"base,omitempty"`
	Head      string   `json:"head,omitempty"`
	HeadSHA   string   `json:"headSha,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
}

// GetPullRequest fetches a single pull request (github_api.py's get_pull).
func (c *Client) GetPullRequest(ctx context.Context, repo string, number int64) (PullRequest, error) {
	owner, name, err := c.requireAllowedRepo(repo)
	if err != nil {
		return PullRequest{}, err
	}
	c.gitea.SetContext(ctx)
	pr, _, err := c.gitea.GetPullRequest(owner, name, number)
	if err != nil {
		return PullRequest{}, toolerrors.NewWithCause(toolerrors.KindUpstream, "get pull request failed", err)
	}
	return toPullRequest(repo, pr), nil
}

func toPullRequest(repo string, pr *gitea.PullRequest) PullRequest {
	out := PullRequest{
		Repo:   repo,
		Number: pr.Index,
		Title:  pr.Title,
		State:  string(pr.State),
		URL:    pr.HTMLURL,
	}
	if pr.Poster != nil {
		out.User = pr.Poster.UserName
	}
	if pr.Base != nil {
		out.Base = pr.Base.Ref
	}
	if pr.Head != nil {
		out.Head = pr.Head.Ref
		out.HeadSHA = pr.Head.Sha
	}
	if pr.Updated != nil {
		out.UpdatedAt = pr.Updated.UTC().Format(time.RFC3339)
	}
	for _, l := range pr.Labels {
		if l != nil && l.Name != "" {
			out.Labels = append(out.Labels, l.Name)
		}
		if len(out.Labels) >= 25 {
			break
		}
	}
	out.Draft = pr.IsDraft
	out.Merged = pr.HasMerged
	if pr.Mergeable != nil {
		out.Mergeable = *pr.Mergeable
	}
	return out
}

// PullRequestSummary is a single row of ListPullRequests (github_api.py's
// list_pulls).
type PullRequestSummary struct {
	Number    int64  `json:"number"`
	Title     string `json:"title"`
	State     string `json:"state"`
	Draft     bool   `json:"draft"`
	URL       string `json:"url"`
	User      string `json:"user,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// ListPullRequests lists pull requests for repo, most recently updated
// first, capped between 1 and 25 (github_api.py's list_pulls).
func (c *Client) ListPullRequests(ctx context.Context, repo, state string, limit int) ([]PullRequestSummary, error) {
	owner, name, err := c.requireAllowedRepo(repo)
	if err != nil {
		return nil, err
	}
	st := gitea.StateType(strings.ToLower(strings.TrimSpace(state)))
	switch st {
	case gitea.StateOpen, gitea.StateClosed, "all":
	default:
		st = gitea.StateOpen
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 25 {
		limit = 25
	}

	c.gitea.SetContext(ctx)
	prs, _, err := c.gitea.ListRepoPullRequests(owner, name, gitea.ListPullRequestsOptions{
		ListOptions: gitea.ListOptions{Page: 1, PageSize: limit},
		State:       st,
		Sort:        "recentupdate",
	})
	if err != nil {
		return nil, toolerrors.NewWithCause(toolerrors.KindUpstream, "list pull requests failed", err)
	}

	out := make([]PullRequestSummary, 0, len(prs))
	for i, pr := range prs {
		if i >= limit {
			break
		}
		row := PullRequestSummary{Number: pr.Index, Title: pr.Title, State: string(pr.State), URL: pr.HTMLURL}
		if pr.Poster != nil {
			row.User = pr.Poster.UserName
		}
		if pr.Updated != nil {
			row.UpdatedAt = pr.Updated.UTC().Format(time.RFC3339)
		}
		out = append(out, row)
	}
	return out, nil
}

// CheckRun is a single CI status entry (github_api.py's list_check_runs maps
// GitHub's Check Runs API; the Gitea-compatible equivalent is the commit
// status list, which carries the same fields the agent needs).
type CheckRun struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Conclusion  string `json:"conclusion,omitempty"`
	StartedAt   string `json:"startedAt,omitempty"`
	CompletedAt string `json:"completedAt,omitempty"`
	URL         string `json:"url,omitempty"`
}

// ListCheckRuns lists CI status entries for ref (github_api.py's
// list_check_runs).
func (c *Client) ListCheckRuns(ctx context.Context, repo, ref string) ([]CheckRun, error) {
	owner, name, err := c.requireAllowedRepo(repo)
	if err != nil {
		return nil, err
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, toolerrors.New(toolerrors.KindUpstream, "missing ref")
	}

	c.gitea.SetContext(ctx)
	statuses, _, err := c.gitea.ListStatuses(owner, name, ref, gitea.ListStatusesOption{
		ListOptions: gitea.ListOptions{Page: 1, PageSize: 50},
	})
	if err != nil {
		return nil, toolerrors.NewWithCause(toolerrors.KindUpstream, "list check runs failed", err)
	}

	out := make([]CheckRun, 0, len(statuses))
	for i, s := range statuses {
		if i >= 25 {
			break
		}
		run := CheckRun{Name: s.Context, Status: string(s.State), URL: s.TargetURL}
		if !s.Created.IsZero() {
			run.StartedAt = s.Created.UTC().Format(time.RFC3339)
		}
		if !s.Updated.IsZero() {
			run.CompletedAt = s.Updated.UTC().Format(time.RFC3339)
		}
		out = append(out, run)
	}
	return out, nil
}

// IssueRef is the result of creating an issue (github_api.py's create_issue).
type IssueRef struct {
	Repo   string `json:"repo"`
	Number int64  `json:"number"`
	URL    string `json:"url"`
	Title  string `json:"title"`
}

// CreateIssue opens a new issue, clipping title/body the way the original
// does (240/4000 chars).
func (c *Client) CreateIssue(ctx context.Context, repo, title, body string) (IssueRef, error) {
	owner, name, err := c.requireAllowedRepo(repo)
	if err != nil {
		return IssueRef{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return IssueRef{}, toolerrors.New(toolerrors.KindUpstream, "missing title")
	}

	c.gitea.SetContext(ctx)
	issue, _, err := c.gitea.CreateIssue(owner, name, gitea.CreateIssueOption{
		Title: clip(title, 240),
		Body:  clip(strings.TrimSpace(body), 4000),
	})
	if err != nil {
		return IssueRef{}, toolerrors.NewWithCause(toolerrors.KindUpstream, "create issue failed", err)
	}
	return IssueRef{Repo: repo, Number: issue.Index, URL: issue.HTMLURL, Title: issue.Title}, nil
}

// CommentRef is the result of commenting on an issue or pull request
// (github_api.py's comment_on_issue_or_pr; Gitea treats both as issues).
type CommentRef struct {
	Repo       string `json:"repo"`
	Number     int64  `json:"number"`
	CommentURL string `json:"commentUrl"`
}

// CommentOnIssueOrPR posts a comment on the issue or PR numbered number.
func (c *Client) CommentOnIssueOrPR(ctx context.Context, repo string, number int64, body string) (CommentRef, error) {
	owner, name, err := c.requireAllowedRepo(repo)
	if err != nil {
		return CommentRef{}, err
	}
	if number <= 0 {
		return CommentRef{}, toolerrors.New(toolerrors.KindUpstream, "missing number")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return CommentRef{}, toolerrors.New(toolerrors.KindUpstream, "missing body")
	}

	c.gitea.SetContext(ctx)
	comment, _, err := c.gitea.CreateIssueComment(owner, name, number, gitea.CreateIssueCommentOption{Body: clip(body, 4000)})
	if err != nil {
		return CommentRef{}, toolerrors.NewWithCause(toolerrors.KindUpstream, "comment failed", err)
	}
	return CommentRef{Repo: repo, Number: number, CommentURL: comment.HTMLURL}, nil
}

// AddLabels attaches labels (by name) to the issue or PR numbered number.
func (c *Client) AddLabels(ctx context.Context, repo string, number int64, labels []string) error {
	owner, name, err := c.requireAllowedRepo(repo)
	if err != nil {
		return err
	}
	if number <= 0 {
		return toolerrors.New(toolerrors.KindUpstream, "missing number")
	}
	labels = capStrings(dedupeNonEmpty(labels), 25)
	if len(labels) == 0 {
		return toolerrors.New(toolerrors.KindUpstream, "missing labels")
	}

	c.gitea.SetContext(ctx)
	if _, _, err := c.gitea.AddLabelsBySlug(owner, name, number, labels); err != nil {
		return toolerrors.NewWithCause(toolerrors.KindUpstream, "add labels failed", err)
	}
	return nil
}

// DispatchWorkflow triggers a workflow_dispatch event on workflow at ref
// (github_api.py's dispatch_workflow), truncating input keys/values to
// 50/200 chars and capping at 20 entries the way the original does.
func (c *Client) DispatchWorkflow(ctx context.Context, repo, workflow, ref string, inputs map[string]string) error {
	owner, name, err := c.requireAllowedRepo(repo)
	if err != nil {
		return err
	}
	workflow, ref = strings.TrimSpace(workflow), strings.TrimSpace(ref)
	if workflow == "" {
		return toolerrors.New(toolerrors.KindUpstream, "missing workflow")
	}
	if ref == "" {
		return toolerrors.New(toolerrors.KindUpstream, "missing ref")
	}

	clipped := make(map[string]string, len(inputs))
	n := 0
	for k, v := range inputs {
		if n >= 20 {
			break
		}
		clipped[clip(k, 50)] = clip(v, 200)
		n++
	}

	c.gitea.SetContext(ctx)
	_, err = c.gitea.CreateWorkflowDispatch(owner, name, workflow, gitea.CreateWorkflowDispatch{Ref: ref, Inputs: clipped})
	if err != nil {
		return toolerrors.NewWithCause(toolerrors.KindUpstream, "dispatch workflow failed", err)
	}
	return nil
}

// RerunWorkflowRun re-runs a completed Actions run (github_api.py's
// rerun_workflow_run). The SDK has no typed wrapper for this endpoint, so it
// is issued as a raw authenticated POST, mirroring the original's
// _post_allow_empty helper.
func (c *Client) RerunWorkflowRun(ctx context.Context, repo string, runID int64) error {
	if _, _, err := c.requireAllowedRepo(repo); err != nil {
		return err
	}
	if runID <= 0 {
		return toolerrors.New(toolerrors.KindUpstream, "missing runId")
	}

	url := fmt.Sprintf("%s/api/v1/repos/%s/actions/runs/%d/rerun", c.baseURL, repo, runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return toolerrors.NewWithCause(toolerrors.KindUpstream, "build rerun request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return toolerrors.NewWithCause(toolerrors.KindUpstream, "rerun workflow run failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		var body map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return toolerrors.Errorf(toolerrors.KindUpstream, "rerun workflow run: forge responded %d", resp.StatusCode).WithDetails(body)
	}
	return nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func capStrings(ss []string, n int) []string {
	if len(ss) > n {
		return ss[:n]
	}
	return ss
}

func dedupeNonEmpty(ss []string) []string {
	seen := make(map[string]struct{}, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
