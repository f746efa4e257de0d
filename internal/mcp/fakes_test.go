package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kensa/internal/config"
	"github.com/ashita-ai/kensa/internal/registry"
	"github.com/ashita-ai/kensa/internal/services"
	"github.com/ashita-ai/kensa/internal/zephyr"
)

// fakeZephyr records every call. errs maps a method name to the error it returns.
type fakeZephyr struct {
	mu     sync.Mutex
	calls  map[string]int
	errs   map[string]error
	search []zephyr.SearchOptions

	testCase   *zephyr.TestCase
	latest     *zephyr.TestResult
	steps      []zephyr.StepRequest
	acceptStep func(i int, s zephyr.StepRequest) bool
}

func newFakeZephyr() *fakeZephyr {
	return &fakeZephyr{
		calls:    make(map[string]int),
		errs:     make(map[string]error),
		testCase: &zephyr.TestCase{Key: "JQA-T1", Name: "Login works", Status: "Approved"},
	}
}

func (f *fakeZephyr) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.errs[method]
}

func (f *fakeZephyr) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeZephyr) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeZephyr) GetTestCase(_ context.Context, key, _ string) (*zephyr.TestCase, error) {
	if err := f.record("GetTestCase"); err != nil {
		return nil, err
	}
	tc := *f.testCase
	tc.Key = key
	return &tc, nil
}

func (f *fakeZephyr) CreateTestCase(context.Context, map[string]any) (string, error) {
	if err := f.record("CreateTestCase"); err != nil {
		return "", err
	}
	return "JQA-T99", nil
}

func (f *fakeZephyr) UpdateTestCase(context.Context, string, map[string]any) error {
	return f.record("UpdateTestCase")
}

func (f *fakeZephyr) DeleteTestCase(context.Context, string) error {
	return f.record("DeleteTestCase")
}

func (f *fakeZephyr) SearchTestCases(_ context.Context, opts zephyr.SearchOptions) ([]zephyr.TestCase, error) {
	if err := f.record("SearchTestCases"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.search = append(f.search, opts)
	f.mu.Unlock()
	return []zephyr.TestCase{{Key: "JQA-T1", Name: "a"}, {Key: "JQA-T2", Name: "b"}}, nil
}

func (f *fakeZephyr) GetTestPlan(_ context.Context, key, _ string) (*zephyr.TestPlan, error) {
	if err := f.record("GetTestPlan"); err != nil {
		return nil, err
	}
	return &zephyr.TestPlan{Key: key, Name: "Release"}, nil
}

func (f *fakeZephyr) CreateTestPlan(context.Context, map[string]any) (string, error) {
	if err := f.record("CreateTestPlan"); err != nil {
		return "", err
	}
	return "JQA-P1", nil
}

func (f *fakeZephyr) SearchTestPlans(context.Context, zephyr.SearchOptions) ([]zephyr.TestPlan, error) {
	if err := f.record("SearchTestPlans"); err != nil {
		return nil, err
	}
	return []zephyr.TestPlan{{Key: "JQA-P1", Name: "Release"}}, nil
}

func (f *fakeZephyr) GetTestRun(_ context.Context, key, _ string) (*zephyr.TestRun, error) {
	if err := f.record("GetTestRun"); err != nil {
		return nil, err
	}
	return &zephyr.TestRun{Key: key, Name: "Nightly"}, nil
}

func (f *fakeZephyr) CreateTestRun(context.Context, map[string]any) (string, error) {
	if err := f.record("CreateTestRun"); err != nil {
		return "", err
	}
	return "JQA-R1", nil
}

func (f *fakeZephyr) SearchTestRuns(context.Context, zephyr.SearchOptions) ([]zephyr.TestRun, error) {
	if err := f.record("SearchTestRuns"); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeZephyr) CreateTestResult(context.Context, map[string]any) (int64, error) {
	if err := f.record("CreateTestResult"); err != nil {
		return 0, err
	}
	return 4242, nil
}

func (f *fakeZephyr) LatestTestResult(context.Context, string) (*zephyr.TestResult, error) {
	if err := f.record("LatestTestResult"); err != nil {
		return nil, err
	}
	return f.latest, nil
}

func (f *fakeZephyr) TestRunResults(context.Context, string) ([]zephyr.TestResult, error) {
	if err := f.record("TestRunResults"); err != nil {
		return nil, err
	}
	return []zephyr.TestResult{{ID: 1, TestCaseKey: "JQA-T1", Status: "Pass"}}, nil
}

func (f *fakeZephyr) TestSteps(_ context.Context, issueID, projectID string) (*zephyr.TestSteps, error) {
	if err := f.record("TestSteps"); err != nil {
		return nil, err
	}
	return &zephyr.TestSteps{IssueID: issueID, ProjectID: projectID, Steps: []zephyr.TestStep{{ID: 1, OrderID: 1, Step: "Open"}}}, nil
}

func (f *fakeZephyr) AddTestStep(_ context.Context, _, _ string, step zephyr.StepRequest) (*zephyr.TestStep, error) {
	if err := f.record("AddTestStep"); err != nil {
		return nil, err
	}
	return &zephyr.TestStep{ID: 7, OrderID: 1, Step: step.Step, Data: step.Data, Result: step.Result}, nil
}

func (f *fakeZephyr) AddTestSteps(_ context.Context, _, _ string, steps []zephyr.StepRequest) ([]zephyr.TestStep, error) {
	if err := f.record("AddTestSteps"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.steps = append(f.steps, steps...)
	f.mu.Unlock()
	var created []zephyr.TestStep
	for i, s := range steps {
		if f.acceptStep != nil && !f.acceptStep(i, s) {
			continue
		}
		created = append(created, zephyr.TestStep{ID: int64(i + 1), OrderID: i + 1, Step: s.Step})
	}
	return created, nil
}

type fakeJira struct {
	fields [][]string
	err    error
}

func (f *fakeJira) GetIssue(_ context.Context, key string, fields []string) (*registry.Issue, error) {
	f.fields = append(f.fields, fields)
	if f.err != nil {
		return nil, f.err
	}
	return &registry.Issue{ID: "10001", Key: key, Summary: "Broken login", Project: "PROJ"}, nil
}

type fakeConfluence struct {
	err error
}

func (f *fakeConfluence) GetPage(_ context.Context, id string) (*registry.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &registry.Page{ID: id, Title: "Runbook", SpaceKey: "OPS", Version: 3}, nil
}

// fakeBackends hands out fixed clients. A non-nil err fails every lookup.
type fakeBackends struct {
	zephyr     ZephyrAPI
	jira       JiraAPI
	confluence ConfluenceAPI
	err        error
}

func (b *fakeBackends) Zephyr(context.Context) (ZephyrAPI, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.zephyr, nil
}

func (b *fakeBackends) Jira(context.Context) (JiraAPI, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.jira, nil
}

func (b *fakeBackends) Confluence(context.Context) (ConfluenceAPI, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.confluence, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// allServices resolves a configuration with every backend usable.
func allServices() services.Result {
	return services.Resolve(config.StoreFrom(map[string]string{
		"JIRA_URL":                  "https://jira.acme.internal",
		"JIRA_PERSONAL_TOKEN":       "jira-pat",
		"CONFLUENCE_URL":            "https://wiki.acme.internal",
		"CONFLUENCE_PERSONAL_TOKEN": "wiki-pat",
		services.KeyZephyrAPIToken:  "zephyr-token",
		services.KeyZephyrBaseURL:   "https://jira.acme.internal",
	}), discardLogger())
}

type testEnv struct {
	server *Server
	zephyr *fakeZephyr
	jira   *fakeJira
	wiki   *fakeConfluence
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()
	env := &testEnv{zephyr: newFakeZephyr(), jira: &fakeJira{}, wiki: &fakeConfluence{}}
	opts := Options{
		Backends: &fakeBackends{zephyr: env.zephyr, jira: env.jira, confluence: env.wiki},
		Services: allServices(),
		Logger:   discardLogger(),
		Version:  "test",
	}
	if mutate != nil {
		mutate(&opts)
	}
	env.server = New(opts)
	return env
}

// toolResult is a decoded tools/call response.
type toolResult struct {
	IsError bool
	Body    map[string]any
	Text    string
}

var rpcID int

// callTool sends a tools/call request through the full server pipeline,
// middleware included.
func callTool(t *testing.T, s *Server, ctx context.Context, name string, args map[string]any) toolResult {
	t.Helper()
	rpcID++
	req, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      rpcID,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	resp := s.MCPServer().HandleMessage(ctx, req)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded struct {
		Result *struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Nil(t, decoded.Error, "rpc error: %s", raw)
	require.NotNil(t, decoded.Result)
	require.Len(t, decoded.Result.Content, 1)

	out := toolResult{IsError: decoded.Result.IsError, Text: decoded.Result.Content[0].Text}
	require.NoError(t, json.Unmarshal([]byte(out.Text), &out.Body), "tool text is not JSON: %s", out.Text)
	return out
}

func (r toolResult) success() bool {
	ok, _ := r.Body["success"].(bool)
	return ok
}

func (r toolResult) errorText() string {
	s, _ := r.Body["error"].(string)
	return s
}

func (r toolResult) String() string {
	return fmt.Sprintf("isError=%v body=%s", r.IsError, r.Text)
}
