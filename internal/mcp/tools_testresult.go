package mcp

import (
	"context"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kensa/internal/services"
	"github.com/ashita-ai/kensa/internal/zephyr"
)

func (s *Server) testResultTools() []toolDef {
	return []toolDef{
		{
			service:  services.Zephyr,
			mutating: true,
			tool: mcplib.NewTool("zephyr_create_testresult",
				mcplib.WithDescription(`Record a test execution result for a test case.

testresult_data is a JSON object; testCaseKey and status are required.
EXAMPLE: {"testCaseKey": "JQA-T1", "status": "Pass", "comment": "Green on staging",
"executionTime": 120000}

Returns the new result id under "test_result_id".`),
				mcplib.WithDestructiveHintAnnotation(false),
				mcplib.WithIdempotentHintAnnotation(false),
				mcplib.WithOpenWorldHintAnnotation(true),
				mcplib.WithString("testresult_data",
					mcplib.Description("JSON object with the result fields (testCaseKey, status, ...)"),
					mcplib.Required(),
				),
			),
			handler: s.handleCreateTestResult,
		},
		{
			service: services.Zephyr,
			tool: mcplib.NewTool("zephyr_get_testcase_latest_result",
				mcplib.WithDescription(`Get the most recent execution result of a test case.

When the case has never been executed the call still succeeds, with
"test_result": null and a "message" saying no results were found.`),
				mcplib.WithReadOnlyHintAnnotation(true),
				mcplib.WithIdempotentHintAnnotation(true),
				mcplib.WithOpenWorldHintAnnotation(true),
				mcplib.WithString("test_case_key",
					mcplib.Description("The test case key, e.g. 'JQA-T1234'"),
					mcplib.Required(),
				),
			),
			handler: s.handleLatestTestResult,
		},
		{
			service: services.Zephyr,
			tool: mcplib.NewTool("zephyr_get_testrun_results",
				mcplib.WithDescription(`Get every test result recorded in a test run. Returns "test_results" with a "count".`),
				mcplib.WithReadOnlyHintAnnotation(true),
				mcplib.WithIdempotentHintAnnotation(true),
				mcplib.WithOpenWorldHintAnnotation(true),
				mcplib.WithString("test_run_key",
					mcplib.Description("The test run key, e.g. 'JQA-R1234'"),
					mcplib.Required(),
				),
			),
			handler: s.handleTestRunResults,
		},
	}
}

func (s *Server) handleCreateTestResult(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	payload, err := jsonObject(request, "testresult_data")
	if err != nil {
		return invalidInput(err.Error(), nil), nil
	}
	c := call{tool: request.Params.Name, kind: "Test result", verb: "create"}
	z, fail := s.zephyr(ctx, c)
	if fail != nil {
		return fail, nil
	}

	id, err := z.CreateTestResult(ctx, payload)
	if err != nil {
		return s.failure(ctx, c, err), nil
	}
	return success(fields{"test_result_id": id}), nil
}

func (s *Server) handleLatestTestResult(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	key, err := requireString(request, "test_case_key")
	if err != nil {
		return invalidInput(err.Error(), nil), nil
	}
	c := call{tool: request.Params.Name, kind: "Test case", verb: "get latest result of", key: key, echo: fields{"test_case_key": key}}
	z, fail := s.zephyr(ctx, c)
	if fail != nil {
		return fail, nil
	}

	tr, err := z.LatestTestResult(ctx, key)
	if err != nil {
		return s.failure(ctx, c, err), nil
	}
	if tr == nil {
		return success(fields{"test_result": nil, "message": "No results found"}), nil
	}
	return success(fields{"test_result": tr.Simplified()}), nil
}

func (s *Server) handleTestRunResults(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	key, err := requireString(request, "test_run_key")
	if err != nil {
		return invalidInput(err.Error(), nil), nil
	}
	c := call{tool: request.Params.Name, kind: "Test run", verb: "get results of", key: key, echo: fields{"test_run_key": key}}
	z, fail := s.zephyr(ctx, c)
	if fail != nil {
		return fail, nil
	}

	results, err := z.TestRunResults(ctx, key)
	if err != nil {
		return s.failure(ctx, c, err), nil
	}
	return listSuccess[zephyr.TestResult]("test_results", results), nil
}
