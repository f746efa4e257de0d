package mcp

import (
	"context"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kensa/internal/services"
	"github.com/ashita-ai/kensa/internal/zephyr"
)

func (s *Server) testRunTools() []toolDef {
	return []toolDef{
		{
			service: services.Zephyr,
			tool: mcplib.NewTool("zephyr_get_testrun",
				mcplib.WithDescription(`Get a Zephyr test run (cycle) by key, including its items and progress.`),
				mcplib.WithReadOnlyHintAnnotation(true),
				mcplib.WithIdempotentHintAnnotation(true),
				mcplib.WithOpenWorldHintAnnotation(true),
				mcplib.WithString("test_run_key",
					mcplib.Description("The test run key, e.g. 'JQA-R1234'"),
					mcplib.Required(),
				),
				fieldsParam(),
			),
			handler: s.handleGetTestRun,
		},
		{
			service:  services.Zephyr,
			mutating: true,
			tool: mcplib.NewTool("zephyr_create_testrun",
				mcplib.WithDescription(`Create a Zephyr test run.

testrun_data is a JSON object; projectKey and name are required. Use
"items" to schedule test cases and "testPlanKey" to link a plan.
EXAMPLE: {"projectKey": "JQA", "name": "Nightly", "items": [{"testCaseKey": "JQA-T1"}]}

Returns the new key under "test_run_key".`),
				mcplib.WithDestructiveHintAnnotation(false),
				mcplib.WithIdempotentHintAnnotation(false),
				mcplib.WithOpenWorldHintAnnotation(true),
				mcplib.WithString("testrun_data",
					mcplib.Description("JSON object with the test run fields (name, projectKey, items, ...)"),
					mcplib.Required(),
				),
			),
			handler: s.handleCreateTestRun,
		},
		{
			service: services.Zephyr,
			tool: mcplib.NewTool("zephyr_search_testruns",
				append([]mcplib.ToolOption{
					mcplib.WithDescription(`Search Zephyr test runs with a TQL query. Returns matches under "test_runs" with a "count".`),
					mcplib.WithReadOnlyHintAnnotation(true),
					mcplib.WithIdempotentHintAnnotation(true),
					mcplib.WithOpenWorldHintAnnotation(true),
				}, searchParams()...)...,
			),
			handler: s.handleSearchTestRuns,
		},
	}
}

func (s *Server) handleGetTestRun(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	key, err := requireString(request, "test_run_key")
	if err != nil {
		return invalidInput(err.Error(), nil), nil
	}
	c := call{tool: request.Params.Name, kind: "Test run", verb: "get", key: key, echo: fields{"test_run_key": key}}
	z, fail := s.zephyr(ctx, c)
	if fail != nil {
		return fail, nil
	}

	tr, err := z.GetTestRun(ctx, key, request.GetString("fields", ""))
	if err != nil {
		return s.failure(ctx, c, err), nil
	}
	return success(fields{"test_run": tr.Simplified()}), nil
}

func (s *Server) handleCreateTestRun(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	payload, err := jsonObject(request, "testrun_data")
	if err != nil {
		return invalidInput(err.Error(), nil), nil
	}
	c := call{tool: request.Params.Name, kind: "Test run", verb: "create"}
	z, fail := s.zephyr(ctx, c)
	if fail != nil {
		return fail, nil
	}

	key, err := z.CreateTestRun(ctx, payload)
	if err != nil {
		return s.failure(ctx, c, err), nil
	}
	s.logger.Info("mcp: test run created", "test_run_key", key)
	return success(fields{"test_run_key": key}), nil
}

func (s *Server) handleSearchTestRuns(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	c := call{tool: request.Params.Name, kind: "Test runs", verb: "search"}
	z, fail := s.zephyr(ctx, c)
	if fail != nil {
		return fail, nil
	}

	runs, err := z.SearchTestRuns(ctx, searchOptions(request))
	if err != nil {
		return s.failure(ctx, c, err), nil
	}
	return listSuccess[zephyr.TestRun]("test_runs", runs), nil
}
