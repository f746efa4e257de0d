package mcp

import (
	"context"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kensa/internal/services"
	"github.com/ashita-ai/kensa/internal/zephyr"
)

func (s *Server) testPlanTools() []toolDef {
	return []toolDef{
		{
			service: services.Zephyr,
			tool: mcplib.NewTool("zephyr_get_testplan",
				mcplib.WithDescription(`Get a Zephyr test plan by key, including its linked test runs.`),
				mcplib.WithReadOnlyHintAnnotation(true),
				mcplib.WithIdempotentHintAnnotation(true),
				mcplib.WithOpenWorldHintAnnotation(true),
				mcplib.WithString("test_plan_key",
					mcplib.Description("The test plan key, e.g. 'JQA-P1234'"),
					mcplib.Required(),
				),
				fieldsParam(),
			),
			handler: s.handleGetTestPlan,
		},
		{
			service:  services.Zephyr,
			mutating: true,
			tool: mcplib.NewTool("zephyr_create_testplan",
				mcplib.WithDescription(`Create a Zephyr test plan.

testplan_data is a JSON object; projectKey and name are required.
EXAMPLE: {"projectKey": "JQA", "name": "Release 2.4 regression", "status": "Draft"}

Returns the new key under "test_plan_key".`),
				mcplib.WithDestructiveHintAnnotation(false),
				mcplib.WithIdempotentHintAnnotation(false),
				mcplib.WithOpenWorldHintAnnotation(true),
				mcplib.WithString("testplan_data",
					mcplib.Description("JSON object with the test plan fields (name, projectKey, ...)"),
					mcplib.Required(),
				),
			),
			handler: s.handleCreateTestPlan,
		},
		{
			service: services.Zephyr,
			tool: mcplib.NewTool("zephyr_search_testplans",
				append([]mcplib.ToolOption{
					mcplib.WithDescription(`Search Zephyr test plans with a TQL query. Returns matches under "test_plans" with a "count".`),
					mcplib.WithReadOnlyHintAnnotation(true),
					mcplib.WithIdempotentHintAnnotation(true),
					mcplib.WithOpenWorldHintAnnotation(true),
				}, searchParams()...)...,
			),
			handler: s.handleSearchTestPlans,
		},
	}
}

func (s *Server) handleGetTestPlan(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	key, err := requireString(request, "test_plan_key")
	if err != nil {
		return invalidInput(err.Error(), nil), nil
	}
	c := call{tool: request.Params.Name, kind: "Test plan", verb: "get", key: key, echo: fields{"test_plan_key": key}}
	z, fail := s.zephyr(ctx, c)
	if fail != nil {
		return fail, nil
	}

	tp, err := z.GetTestPlan(ctx, key, request.GetString("fields", ""))
	if err != nil {
		return s.failure(ctx, c, err), nil
	}
	return success(fields{"test_plan": tp.Simplified()}), nil
}

func (s *Server) handleCreateTestPlan(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	payload, err := jsonObject(request, "testplan_data")
	if err != nil {
		return invalidInput(err.Error(), nil), nil
	}
	c := call{tool: request.Params.Name, kind: "Test plan", verb: "create"}
	z, fail := s.zephyr(ctx, c)
	if fail != nil {
		return fail, nil
	}

	key, err := z.CreateTestPlan(ctx, payload)
	if err != nil {
		return s.failure(ctx, c, err), nil
	}
	s.logger.Info("mcp: test plan created", "test_plan_key", key)
	return success(fields{"test_plan_key": key}), nil
}

func (s *Server) handleSearchTestPlans(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	c := call{tool: request.Params.Name, kind: "Test plans", verb: "search"}
	z, fail := s.zephyr(ctx, c)
	if fail != nil {
		return fail, nil
	}

	plans, err := z.SearchTestPlans(ctx, searchOptions(request))
	if err != nil {
		return s.failure(ctx, c, err), nil
	}
	return listSuccess[zephyr.TestPlan]("test_plans", plans), nil
}
