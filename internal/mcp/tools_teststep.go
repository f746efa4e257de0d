package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ashita-ai/kensa/internal/services"
	"github.com/ashita-ai/kensa/internal/zephyr"
)

const stepSchemaJSON = `{
  "type": "object",
  "required": ["step"],
  "properties": {
    "step":   {"type": "string", "minLength": 1},
    "data":   {"type": ["string", "null"]},
    "result": {"type": ["string", "null"]}
  }
}`

var stepSchema = jsonschema.MustCompileString("test_step.json", stepSchemaJSON)

func (s *Server) testStepTools() []toolDef {
	issueParam := mcplib.WithString("issue_id",
		mcplib.Description("Jira issue id of the test (numeric, e.g. '12345')"),
		mcplib.Required(),
	)
	projectParam := mcplib.WithString("project_id",
		mcplib.Description("Jira project id (numeric, e.g. '10000')"),
		mcplib.Required(),
	)
	return []toolDef{
		{
			service: services.Zephyr,
			tool: mcplib.NewTool("zephyr_get_test_steps",
				mcplib.WithDescription(`Get the test steps attached to a Jira test issue.

Uses issue and project ids, not keys. Returns "test_steps" with the steps
and their total.`),
				mcplib.WithReadOnlyHintAnnotation(true),
				mcplib.WithIdempotentHintAnnotation(true),
				mcplib.WithOpenWorldHintAnnotation(true),
				issueParam,
				projectParam,
			),
			handler: s.handleGetTestSteps,
		},
		{
			service:  services.Zephyr,
			mutating: true,
			tool: mcplib.NewTool("zephyr_add_test_step",
				mcplib.WithDescription(`Append one test step to a Jira test issue.`),
				mcplib.WithDestructiveHintAnnotation(false),
				mcplib.WithIdempotentHintAnnotation(false),
				mcplib.WithOpenWorldHintAnnotation(true),
				issueParam,
				projectParam,
				mcplib.WithString("step",
					mcplib.Description("What to do in this step"),
					mcplib.Required(),
				),
				mcplib.WithString("data",
					mcplib.Description("Optional test data or input for this step"),
				),
				mcplib.WithString("result",
					mcplib.Description("Optional expected result of this step"),
				),
			),
			handler: s.handleAddTestStep,
		},
		{
			service:  services.Zephyr,
			mutating: true,
			tool: mcplib.NewTool("zephyr_add_multiple_test_steps",
				mcplib.WithDescription(`Append several test steps to a Jira test issue, in order.

steps is a JSON array of objects with:
- step (required): what to do
- data (optional): test data or input
- result (optional): expected result

EXAMPLE: [{"step": "Log in", "data": "alice / secret", "result": "Dashboard shown"}]

The whole call is rejected, and nothing is submitted, if any element is
malformed. Steps that Zephyr itself rejects are skipped: compare
total_requested with total_created.`),
				mcplib.WithDestructiveHintAnnotation(false),
				mcplib.WithIdempotentHintAnnotation(false),
				mcplib.WithOpenWorldHintAnnotation(true),
				issueParam,
				projectParam,
				mcplib.WithString("steps",
					mcplib.Description("JSON array of step objects"),
					mcplib.Required(),
				),
			),
			handler: s.handleAddMultipleTestSteps,
		},
	}
}

// stepTarget reads issue_id and project_id, which every step tool echoes.
func stepTarget(request mcplib.CallToolRequest) (issueID, projectID string, echo fields, err error) {
	issueID = strings.TrimSpace(request.GetString("issue_id", ""))
	projectID = strings.TrimSpace(request.GetString("project_id", ""))
	echo = fields{"issue_id": issueID, "project_id": projectID}
	switch {
	case issueID == "":
		err = errors.New("issue_id is required")
	case projectID == "":
		err = errors.New("project_id is required")
	}
	return issueID, projectID, echo, err
}

func (s *Server) handleGetTestSteps(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	issueID, projectID, echo, err := stepTarget(request)
	if err != nil {
		return invalidInput(err.Error(), echo), nil
	}
	c := call{tool: request.Params.Name, kind: "Test steps for issue", verb: "get", key: issueID, echo: echo}
	z, fail := s.zephyr(ctx, c)
	if fail != nil {
		return fail, nil
	}

	steps, err := z.TestSteps(ctx, issueID, projectID)
	if err != nil {
		return s.failure(ctx, c, err), nil
	}
	return success(fields{"test_steps": steps.Simplified()}, echo), nil
}

func (s *Server) handleAddTestStep(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	issueID, projectID, echo, err := stepTarget(request)
	if err != nil {
		return invalidInput(err.Error(), echo), nil
	}
	step, err := requireString(request, "step")
	if err != nil {
		return invalidInput(err.Error(), echo), nil
	}
	c := call{tool: request.Params.Name, kind: "Test step", verb: "add", echo: echo}
	z, fail := s.zephyr(ctx, c)
	if fail != nil {
		return fail, nil
	}

	created, err := z.AddTestStep(ctx, issueID, projectID, zephyr.StepRequest{
		Step:   step,
		Data:   request.GetString("data", ""),
		Result: request.GetString("result", ""),
	})
	if err != nil {
		return s.failure(ctx, c, err), nil
	}
	return success(fields{"test_step": created.Simplified()}, echo), nil
}

func (s *Server) handleAddMultipleTestSteps(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	issueID, projectID, echo, err := stepTarget(request)
	if err != nil {
		return invalidInput(err.Error(), echo), nil
	}
	steps, err := parseSteps(request.GetArguments()["steps"])
	if err != nil {
		return invalidInput(err.Error(), echo), nil
	}
	c := call{tool: request.Params.Name, kind: "Test steps", verb: "add", echo: echo}
	z, fail := s.zephyr(ctx, c)
	if fail != nil {
		return fail, nil
	}

	created, err := z.AddTestSteps(ctx, issueID, projectID, steps)
	if err != nil {
		c.echo = fields{"total_requested": len(steps), "total_created": len(created)}
		merge(c.echo, echo)
		return s.failure(ctx, c, err), nil
	}
	out := make([]map[string]any, 0, len(created))
	for i := range created {
		out = append(out, created[i].Simplified())
	}
	s.logger.Info("mcp: test steps added", "issue_id", issueID, "requested", len(steps), "created", len(created))
	return success(fields{
		"test_steps":      out,
		"total_requested": len(steps),
		"total_created":   len(created),
	}, echo), nil
}

// parseSteps validates a batch of steps in input order and stops at the
// first malformed element. raw may be a JSON string or an inline array.
func parseSteps(raw any) ([]zephyr.StepRequest, error) {
	var items []any
	switch v := raw.(type) {
	case nil:
		return nil, errors.New("steps is required")
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return nil, fmt.Errorf("Invalid JSON format for steps: %v", err)
		}
		arr, ok := parsed.([]any)
		if !ok {
			return nil, errors.New("Steps must be a JSON array")
		}
		items = arr
	case []any:
		items = v
	default:
		return nil, errors.New("Steps must be a JSON array")
	}

	steps := make([]zephyr.StepRequest, 0, len(items))
	for i, item := range items {
		if err := stepSchema.Validate(item); err != nil {
			return nil, fmt.Errorf("Invalid step data at index %d: %s", i, describeValidation(err))
		}
		obj := item.(map[string]any)
		step := zephyr.StepRequest{Step: obj["step"].(string)}
		step.Data, _ = obj["data"].(string)
		step.Result, _ = obj["result"].(string)
		steps = append(steps, step)
	}
	return steps, nil
}

// describeValidation renders the most specific cause of a schema failure.
func describeValidation(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + ve.Message
}
