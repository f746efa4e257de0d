package mcp

import (
	"context"
	"errors"

	"github.com/ashita-ai/kensa/internal/registry"
	"github.com/ashita-ai/kensa/internal/zephyr"
)

// ZephyrAPI is the test-management client surface the tools call.
type ZephyrAPI interface {
	GetTestCase(ctx context.Context, key, fields string) (*zephyr.TestCase, error)
	CreateTestCase(ctx context.Context, payload map[string]any) (string, error)
	UpdateTestCase(ctx context.Context, key string, payload map[string]any) error
	DeleteTestCase(ctx context.Context, key string) error
	SearchTestCases(ctx context.Context, opts zephyr.SearchOptions) ([]zephyr.TestCase, error)

	GetTestPlan(ctx context.Context, key, fields string) (*zephyr.TestPlan, error)
	CreateTestPlan(ctx context.Context, payload map[string]any) (string, error)
	SearchTestPlans(ctx context.Context, opts zephyr.SearchOptions) ([]zephyr.TestPlan, error)

	GetTestRun(ctx context.Context, key, fields string) (*zephyr.TestRun, error)
	CreateTestRun(ctx context.Context, payload map[string]any) (string, error)
	SearchTestRuns(ctx context.Context, opts zephyr.SearchOptions) ([]zephyr.TestRun, error)

	CreateTestResult(ctx context.Context, payload map[string]any) (int64, error)
	LatestTestResult(ctx context.Context, testCaseKey string) (*zephyr.TestResult, error)
	TestRunResults(ctx context.Context, runKey string) ([]zephyr.TestResult, error)

	TestSteps(ctx context.Context, issueID, projectID string) (*zephyr.TestSteps, error)
	AddTestStep(ctx context.Context, issueID, projectID string, step zephyr.StepRequest) (*zephyr.TestStep, error)
	AddTestSteps(ctx context.Context, issueID, projectID string, steps []zephyr.StepRequest) ([]zephyr.TestStep, error)
}

// JiraAPI is the issue-tracker client surface the tools call.
type JiraAPI interface {
	GetIssue(ctx context.Context, key string, fields []string) (*registry.Issue, error)
}

// ConfluenceAPI is the wiki client surface the tools call.
type ConfluenceAPI interface {
	GetPage(ctx context.Context, id string) (*registry.Page, error)
}

// Backends yields authenticated clients on behalf of one tool call.
type Backends interface {
	Zephyr(ctx context.Context) (ZephyrAPI, error)
	Jira(ctx context.Context) (JiraAPI, error)
	Confluence(ctx context.Context) (ConfluenceAPI, error)
}

var errNoRegistry = errors.New("mcp: no service registry available")

// RegistryBackends resolves clients from the registry carried in the request
// context, falling back to r when the context has none.
func RegistryBackends(r *registry.Registry) Backends {
	return registryBackends{fallback: r}
}

type registryBackends struct {
	fallback *registry.Registry
}

func (b registryBackends) registry(ctx context.Context) (*registry.Registry, error) {
	if r, ok := registry.FromContext(ctx); ok {
		return r, nil
	}
	if b.fallback == nil {
		return nil, errNoRegistry
	}
	return b.fallback, nil
}

func (b registryBackends) Zephyr(ctx context.Context) (ZephyrAPI, error) {
	r, err := b.registry(ctx)
	if err != nil {
		return nil, err
	}
	c, err := r.Zephyr(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (b registryBackends) Jira(ctx context.Context) (JiraAPI, error) {
	r, err := b.registry(ctx)
	if err != nil {
		return nil, err
	}
	c, err := r.Jira(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (b registryBackends) Confluence(ctx context.Context) (ConfluenceAPI, error) {
	r, err := b.registry(ctx)
	if err != nil {
		return nil, err
	}
	c, err := r.Confluence(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}
