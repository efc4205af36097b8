package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/greboid/actrun/pkg/history"
	"github.com/greboid/actrun/pkg/plan"
	"github.com/greboid/actrun/pkg/runner"
	"github.com/greboid/actrun/pkg/trigger"
	"github.com/greboid/actrun/pkg/util"
	"github.com/greboid/actrun/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	events []trigger.Event
	err    error
}

func (d *fakeDispatcher) Dispatch(_ *workflow.Workflow, event trigger.Event) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return uuid.NewString(), nil
}

func canonicalWorkflows() ([]*workflow.Workflow, error) {
	wf, err := workflow.Generate(workflow.DefaultGeneratorOptions())
	if err != nil {
		return nil, err
	}
	return []*workflow.Workflow{wf}, nil
}

func newTestServer(t *testing.T, secret string) (*Server, *fakeDispatcher, *history.Store) {
	t.Helper()
	dispatcher := &fakeDispatcher{}
	store := history.NewStore("history", util.NewTestFS())
	return New(Options{
		Secret:     secret,
		Workflows:  canonicalWorkflows,
		Dispatcher: dispatcher,
		Runs:       store,
	}), dispatcher, store
}

func deliver(t *testing.T, srv *Server, event, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	if event != "" {
		req.Header.Set("X-GitHub-Event", event)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func pushBody(ref string) string {
	return `{"ref":"` + ref + `","after":"abc123","repository":{"full_name":"example/project"},"sender":{"login":"dev"}}`
}

func pullRequestBody(base string) string {
	return `{"action":"opened","number":7,"pull_request":{"base":{"ref":"` + base + `"},"head":{"ref":"feature","sha":"def456"}},"repository":{"full_name":"example/project"}}`
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookTriggers(t *testing.T) {
	tests := []struct {
		name       string
		event      string
		body       string
		wantStatus int
	}{
		{"push to main", workflow.EventPush, pushBody("refs/heads/main"), http.StatusAccepted},
		{"push to develop", workflow.EventPush, pushBody("refs/heads/develop"), http.StatusNoContent},
		{"pull request to main", workflow.EventPullRequest, pullRequestBody("main"), http.StatusAccepted},
		{"pull request to develop", workflow.EventPullRequest, pullRequestBody("develop"), http.StatusNoContent},
		{"tag push", workflow.EventPush, pushBody("refs/tags/v1.0.0"), http.StatusNoContent},
		{"unhandled event", "issues", `{}`, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, dispatcher, _ := newTestServer(t, "")
			rec := deliver(t, srv, tt.event, tt.body, nil)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusAccepted {
				assert.Empty(t, dispatcher.events)
				return
			}

			var response struct {
				Runs []dispatched `json:"runs"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			require.Len(t, response.Runs, 1)
			assert.Equal(t, "ci", response.Runs[0].Workflow)
			assert.NotEmpty(t, response.Runs[0].RunID)
			require.Len(t, dispatcher.events, 1)
			assert.Equal(t, "main", dispatcher.events[0].Branch)
		})
	}
}

func TestWebhookPing(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	rec := deliver(t, srv, "ping", `{"zen":"Keep it logically awesome."}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pong")
}

func TestWebhookBadRequests(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	rec := deliver(t, srv, "", pushBody("refs/heads/main"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = deliver(t, srv, workflow.EventPush, `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = deliver(t, srv, workflow.EventPush, `{"after":"abc"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no ref")
}

func TestWebhookSignature(t *testing.T) {
	const secret = "It's a Secret to Everybody"
	body := pushBody("refs/heads/main")

	tests := []struct {
		name       string
		signature  string
		wantStatus int
	}{
		{"valid", sign(secret, body), http.StatusAccepted},
		{"missing", "", http.StatusUnauthorized},
		{"wrong secret", sign("other", body), http.StatusUnauthorized},
		{"not hex", "sha256=zz", http.StatusUnauthorized},
		{"sha1 only", "sha1=0123", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := newTestServer(t, secret)
			headers := map[string]string{}
			if tt.signature != "" {
				headers["X-Hub-Signature-256"] = tt.signature
			}
			rec := deliver(t, srv, workflow.EventPush, body, headers)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestValidSignatureKnownVector(t *testing.T) {
	// Example delivery from the GitHub webhook documentation.
	assert.True(t, validSignature(
		"It's a Secret to Everybody",
		[]byte("Hello, World!"),
		"sha256=757107ea0eb2509fc211221cce984b8a37570b6d7586c22c46f4379c8b043e17",
	))
}

func TestWebhookDispatchFailure(t *testing.T) {
	srv, dispatcher, _ := newTestServer(t, "")
	dispatcher.err = errors.New("planner exploded")

	rec := deliver(t, srv, workflow.EventPush, pushBody("refs/heads/main"), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "planner exploded")
}

func TestWebhookWorkflowLoadFailure(t *testing.T) {
	srv := New(Options{
		Workflows:  func() ([]*workflow.Workflow, error) { return nil, errors.New("bad yaml") },
		Dispatcher: &fakeDispatcher{},
	})
	rec := deliver(t, srv, workflow.EventPush, pushBody("refs/heads/main"), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRunsEndpoints(t *testing.T) {
	srv, _, store := newTestServer(t, "")

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	run := &runner.RunResult{
		ID:         uuid.NewString(),
		Workflow:   "ci",
		Event:      trigger.Event{Name: workflow.EventPush, Branch: "main"},
		Conclusion: runner.Success,
		Started:    started,
		Finished:   started.Add(time.Minute),
		Jobs:       []*runner.JobResult{{Key: "doc/1", Conclusion: runner.Success}},
	}
	require.NoError(t, store.Save(run))

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []runSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, run.ID, summaries[0].ID)
	assert.Equal(t, "push (main)", summaries[0].Event)
	assert.Equal(t, 1, summaries[0].Jobs)

	rec = get("/runs/" + run.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var full runner.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &full))
	assert.Equal(t, runner.Success, full.Conclusion)

	assert.Equal(t, http.StatusNotFound, get("/runs/"+uuid.NewString()).Code)
	assert.Equal(t, http.StatusNotFound, get("/runs/nope").Code)
	assert.Equal(t, http.StatusOK, get("/healthz").Code)
}

type fakeExecutor struct {
	mu    sync.Mutex
	plans []*plan.Plan
}

func (e *fakeExecutor) RunWithID(_ context.Context, id string, p *plan.Plan, event trigger.Event) (*runner.RunResult, error) {
	e.mu.Lock()
	e.plans = append(e.plans, p)
	e.mu.Unlock()
	return &runner.RunResult{ID: id, Event: event, Conclusion: runner.Success, Started: time.Now()}, nil
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []*runner.RunResult
}

func (r *fakeRecorder) Save(run *runner.RunResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func TestAsyncDispatcher(t *testing.T) {
	executor := &fakeExecutor{}
	recorder := &fakeRecorder{}
	dispatcher := NewAsyncDispatcher(context.Background(), executor, recorder)

	workflows, err := canonicalWorkflows()
	require.NoError(t, err)

	id, err := dispatcher.Dispatch(workflows[0], trigger.Event{Name: workflow.EventPush, Branch: "main"})
	require.NoError(t, err)
	dispatcher.Wait()

	require.Len(t, executor.plans, 1)
	assert.Len(t, executor.plans[0].Instances(), 5)
	require.Len(t, recorder.runs, 1)
	assert.Equal(t, id, recorder.runs[0].ID)
}
