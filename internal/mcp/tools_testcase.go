package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kensa/internal/services"
	"github.com/ashita-ai/kensa/internal/zephyr"
)

func (s *Server) testCaseTools() []toolDef {
	return []toolDef{
		{
			service: services.Zephyr,
			tool: mcplib.NewTool("zephyr_get_testcase",
				mcplib.WithDescription(`Get a Zephyr test case by key.

WHEN TO USE: To read the objective, precondition, status, owner and script
of a known test case before running, updating or linking it.

Returns the test case under "test_case". If the key does not exist the
result has success=false and the error names the key.`),
				mcplib.WithReadOnlyHintAnnotation(true),
				mcplib.WithIdempotentHintAnnotation(true),
				mcplib.WithOpenWorldHintAnnotation(true),
				mcplib.WithString("test_case_key",
					mcplib.Description("The test case key, e.g. 'JQA-T1234'"),
					mcplib.Required(),
				),
				fieldsParam(),
			),
			handler: s.handleGetTestCase,
		},
		{
			service:  services.Zephyr,
			mutating: true,
			tool: mcplib.NewTool("zephyr_create_testcase",
				mcplib.WithDescription(`Create a Zephyr test case.

testcase_data is a JSON object in the Zephyr test case format. projectKey
and name are required by Zephyr; objective, precondition, status, priority,
folder, labels, issueLinks and testScript are optional.

EXAMPLE: {"projectKey": "JQA", "name": "Login with valid credentials",
"objective": "User can log in", "testScript": {"type": "STEP_BY_STEP",
"steps": [{"description": "Open login page", "expectedResult": "Form shown"}]}}

Returns the new key under "test_case_key".`),
				mcplib.WithDestructiveHintAnnotation(false),
				mcplib.WithIdempotentHintAnnotation(false),
				mcplib.WithOpenWorldHintAnnotation(true),
				mcplib.WithString("testcase_data",
					mcplib.Description("JSON object with the test case fields (name, projectKey, ...)"),
					mcplib.Required(),
				),
			),
			handler: s.handleCreateTestCase,
		},
		{
			service:  services.Zephyr,
			mutating: true,
			tool: mcplib.NewTool("zephyr_update_testcase",
				mcplib.WithDescription(`Update fields of an existing Zephyr test case.

Only the fields present in testcase_data are changed.`),
				mcplib.WithDestructiveHintAnnotation(false),
				mcplib.WithIdempotentHintAnnotation(true),
				mcplib.WithOpenWorldHintAnnotation(true),
				mcplib.WithString("test_case_key",
					mcplib.Description("The test case key to update, e.g. 'JQA-T1234'"),
					mcplib.Required(),
				),
				mcplib.WithString("testcase_data",
					mcplib.Description("JSON object with the fields to change"),
					mcplib.Required(),
				),
			),
			handler: s.handleUpdateTestCase,
		},
		{
			service:  services.Zephyr,
			mutating: true,
			tool: mcplib.NewTool("zephyr_delete_testcase",
				mcplib.WithDescription(`Delete a Zephyr test case. This cannot be undone.`),
				mcplib.WithDestructiveHintAnnotation(true),
				mcplib.WithIdempotentHintAnnotation(true),
				mcplib.WithOpenWorldHintAnnotation(true),
				mcplib.WithString("test_case_key",
					mcplib.Description("The test case key to delete, e.g. 'JQA-T1234'"),
					mcplib.Required(),
				),
			),
			handler: s.handleDeleteTestCase,
		},
		{
			service: services.Zephyr,
			tool: mcplib.NewTool("zephyr_search_testcases",
				append([]mcplib.ToolOption{
					mcplib.WithDescription(`Search Zephyr test cases with a TQL query.

EXAMPLE QUERIES:
- All cases in a project: projectKey = "JQA"
- Approved cases in a folder: projectKey = "JQA" AND folder = "/Regression" AND status = "Approved"

Returns matches under "test_cases" with a "count".`),
					mcplib.WithReadOnlyHintAnnotation(true),
					mcplib.WithIdempotentHintAnnotation(true),
					mcplib.WithOpenWorldHintAnnotation(true),
				}, searchParams()...)...,
			),
			handler: s.handleSearchTestCases,
		},
	}
}

func (s *Server) handleGetTestCase(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	key, err := requireString(request, "test_case_key")
	if err != nil {
		return invalidInput(err.Error(), nil), nil
	}
	c := call{tool: request.Params.Name, kind: "Test case", verb: "get", key: key, echo: fields{"test_case_key": key}}
	z, fail := s.zephyr(ctx, c)
	if fail != nil {
		return fail, nil
	}

	tc, err := z.GetTestCase(ctx, key, request.GetString("fields", ""))
	if err != nil {
		return s.failure(ctx, c, err), nil
	}
	return success(fields{"test_case": tc.Simplified()}), nil
}

func (s *Server) handleCreateTestCase(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	payload, err := jsonObject(request, "testcase_data")
	if err != nil {
		return invalidInput(err.Error(), nil), nil
	}
	c := call{tool: request.Params.Name, kind: "Test case", verb: "create"}
	z, fail := s.zephyr(ctx, c)
	if fail != nil {
		return fail, nil
	}

	key, err := z.CreateTestCase(ctx, payload)
	if err != nil {
		return s.failure(ctx, c, err), nil
	}
	s.logger.Info("mcp: test case created", "test_case_key", key)
	return success(fields{"test_case_key": key}), nil
}

func (s *Server) handleUpdateTestCase(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	key, err := requireString(request, "test_case_key")
	if err != nil {
		return invalidInput(err.Error(), nil), nil
	}
	echo := fields{"test_case_key": key}
	payload, err := jsonObject(request, "testcase_data")
	if err != nil {
		return invalidInput(err.Error(), echo), nil
	}
	c := call{tool: request.Params.Name, kind: "Test case", verb: "update", key: key, echo: echo}
	z, fail := s.zephyr(ctx, c)
	if fail != nil {
		return fail, nil
	}

	if err := z.UpdateTestCase(ctx, key, payload); err != nil {
		return s.failure(ctx, c, err), nil
	}
	return success(fields{"message": fmt.Sprintf("Test case %s updated", key)}, echo), nil
}

func (s *Server) handleDeleteTestCase(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	key, err := requireString(request, "test_case_key")
	if err != nil {
		return invalidInput(err.Error(), nil), nil
	}
	echo := fields{"test_case_key": key}
	c := call{tool: request.Params.Name, kind: "Test case", verb: "delete", key: key, echo: echo}
	z, fail := s.zephyr(ctx, c)
	if fail != nil {
		return fail, nil
	}

	if err := z.DeleteTestCase(ctx, key); err != nil {
		return s.failure(ctx, c, err), nil
	}
	s.logger.Info("mcp: test case deleted", "test_case_key", key)
	return success(fields{"message": fmt.Sprintf("Test case %s deleted", key)}, echo), nil
}

func (s *Server) handleSearchTestCases(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	c := call{tool: request.Params.Name, kind: "Test cases", verb: "search"}
	z, fail := s.zephyr(ctx, c)
	if fail != nil {
		return fail, nil
	}

	cases, err := z.SearchTestCases(ctx, searchOptions(request))
	if err != nil {
		return s.failure(ctx, c, err), nil
	}
	return listSuccess[zephyr.TestCase]("test_cases", cases), nil
}
