package gitforge_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"code.gitea.io/sdk/gitea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/gitforge"
	"github.com/polaris-ecosystems/rfp-agent/internal/toolerrors"
)

// newTestClient spins up a fake Gitea-compatible forge and wires a
// gitforge.Client against it, skipping gitea.NewClient's live version probe
// by constructing the gitea.Client with an explicit server version.
func newTestClient(t *testing.T, mux *http.ServeMux, allowedRepos []string) (*gitforge.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gc, err := gitea.NewClient(srv.URL, gitea.SetToken("test-token"), gitea.SetGiteaVersion("1.21.0"))
	require.NoError(t, err)
	return gitforge.NewWithGiteaClient(gc, srv.URL, "test-token", allowedRepos), srv
}

func TestRequireAllowedRepoRejectsUnlistedRepo(t *testing.T) {
	mux := http.NewServeMux()
	client, _ := newTestClient(t, mux, []string{"acme/widgets"})

	_, err := client.GetPullRequest(context.Background(), "acme/other", 1)
	require.Error(t, err)
	var toolErr *toolerrors.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, toolerrors.KindRepoNotAllowed, toolErr.Kind)
}

func TestGetPullRequestReturnsMappedFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/repos/acme/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"number":   7,
			"title":    "Add retry budget",
			"state":    "open",
			"html_url": "https://forge.example/acme/widgets/pulls/7",
			"base":     map[string]any{"ref": "main"},
			"head":     map[string]any{"ref": "feature", "sha": "abc123"},
			"user":     map[string]any{"login": "octocat"},
		})
	})
	client, _ := newTestClient(t, mux, nil)

	pr, err := client.GetPullRequest(context.Background(), "acme/widgets", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), pr.Number)
	assert.Equal(t, "Add retry budget", pr.Title)
	assert.Equal(t, "main", pr.Base)
	assert.Equal(t, "feature", pr.Head)
	assert.Equal(t, "octocat", pr.User)
}

func TestListPullRequestsDefaultsStateToOpen(t *testing.T) {
	mux := http.NewServeMux()
	var gotState string
	mux.HandleFunc("/api/v1/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		gotState = r.URL.Query().Get("state")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"number": 1, "title": "one", "state": "open", "html_url": "https://x/1"},
		})
	})
	client, _ := newTestClient(t, mux, nil)

	pulls, err := client.ListPullRequests(context.Background(), "acme/widgets", "", 100)
	require.NoError(t, err)
	assert.Equal(t, "open", gotState)
	require.Len(t, pulls, 1)
	assert.Equal(t, int64(1), pulls[0].Number)
}

func TestCreateIssueSendsTitleAndReturnsNumber(t *testing.T) {
	mux := http.NewServeMux()
	var gotBody map[string]any
	mux.HandleFunc("/api/v1/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"number": 42, "html_url": "https://x/42", "title": gotBody["title"]})
	})
	client, _ := newTestClient(t, mux, nil)

	ref, err := client.CreateIssue(context.Background(), "acme/widgets", "Flaky test in worker pool", "details here")
	require.NoError(t, err)
	assert.Equal(t, int64(42), ref.Number)
	assert.Equal(t, "Flaky test in worker pool", gotBody["title"])
}

func TestAddLabelsRejectsEmptyLabelList(t *testing.T) {
	mux := http.NewServeMux()
	client, _ := newTestClient(t, mux, nil)

	err := client.AddLabels(context.Background(), "acme/widgets", 1, nil)
	require.Error(t, err)
}

func TestDispatchWorkflowRequiresWorkflowAndRef(t *testing.T) {
	mux := http.NewServeMux()
	client, _ := newTestClient(t, mux, nil)

	err := client.DispatchWorkflow(context.Background(), "acme/widgets", "", "main", nil)
	assert.Error(t, err)
}

func TestRerunWorkflowRunSucceedsOnEmptyResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/repos/acme/widgets/actions/runs/99/rerun", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	client, _ := newTestClient(t, mux, nil)

	err := client.RerunWorkflowRun(context.Background(), "acme/widgets", 99)
	require.NoError(t, err)
}

func TestRerunWorkflowRunSurfacesUpstreamErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/repos/acme/widgets/actions/runs/99/rerun", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "not found"})
	})
	client, _ := newTestClient(t, mux, nil)

	err := client.RerunWorkflowRun(context.Background(), "acme/widgets", 99)
	require.Error(t, err)
	var toolErr *toolerrors.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, toolerrors.KindUpstream, toolErr.Kind)
}
