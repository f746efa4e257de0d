package mcp

import (
	"context"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// author-test-case: turns a Jira issue into a Zephyr test case with steps.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("author-test-case",
			mcplib.WithPromptDescription("Write a Zephyr test case, with steps, that covers a Jira issue"),
			mcplib.WithArgument("issue_key",
				mcplib.ArgumentDescription("The Jira issue the test should cover, e.g. PROJ-123"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("project_key",
				mcplib.ArgumentDescription("Zephyr project key for the new test case; defaults to the issue's project"),
			),
		),
		s.handleAuthorTestCasePrompt,
	)

	// record-execution: reminds the agent how to report a result.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("record-execution",
			mcplib.WithPromptDescription("Record the outcome of executing a Zephyr test case"),
			mcplib.WithArgument("test_case_key",
				mcplib.ArgumentDescription("The test case that was executed, e.g. JQA-T1"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("status",
				mcplib.ArgumentDescription("Outcome of the execution: Pass, Fail, Blocked or Not Executed"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleRecordExecutionPrompt,
	)

	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("agent-setup",
			mcplib.WithPromptDescription("System prompt snippet explaining the tools this server exposes and when to use them"),
		),
		s.handleAgentSetupPrompt,
	)
}

func (s *Server) handleAuthorTestCasePrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	issueKey := strings.TrimSpace(request.Params.Arguments["issue_key"])
	if issueKey == "" {
		return nil, fmt.Errorf("issue_key argument is required")
	}
	project := strings.TrimSpace(request.Params.Arguments["project_key"])
	if project == "" {
		project = "the issue's project key"
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Author a test case covering %s", issueKey),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Write a test case that covers Jira issue %s.

1. CALL jira_get_issue with issue_key="%s". Read the summary and description
   and note the numeric issue id and project.

2. CALL zephyr_search_testcases with a query such as
   issueKeys IN ("%s") to see whether the issue is already covered.
   If a suitable test case exists, update it with zephyr_update_testcase
   instead of creating a duplicate.

3. CALL zephyr_create_testcase with testcase_data containing at least
   projectKey (%s), name, objective and issueLinks=["%s"].

4. CALL zephyr_add_multiple_test_steps with the issue and project ids and a
   JSON array of steps. Each step needs "step"; "data" and "result" are optional.
   Compare total_requested with total_created and retry any step that was skipped.`,
						issueKey, issueKey, issueKey, project, issueKey),
				},
			},
		},
	}, nil
}

func (s *Server) handleRecordExecutionPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	key := strings.TrimSpace(request.Params.Arguments["test_case_key"])
	status := strings.TrimSpace(request.Params.Arguments["status"])
	if key == "" || status == "" {
		return nil, fmt.Errorf("test_case_key and status arguments are required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Record a %s result for %s", status, key),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Record the execution you just performed.

CALL zephyr_create_testresult with testresult_data containing:
- testCaseKey: "%s"
- status: "%s"
- comment: what you observed, including the exact failure message if any
- environment: where the test ran, if known

If the execution belongs to a test run, include testRunKey as well. Then
CALL zephyr_get_testcase_latest_result with test_case_key="%s" to confirm
the result was stored.`, key, status, key),
				},
			},
		},
	}, nil
}

func (s *Server) handleAgentSetupPrompt(_ context.Context, _ mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	var b strings.Builder
	b.WriteString(`You have access to Kensa, a bridge to Zephyr test management, Jira and
Confluence. Use it to read requirements, author test cases and record results.

## Conventions

- Every tool returns a JSON object with "success". On failure, "error"
  explains why. Errors starting with "Authentication/Permission Error:" mean
  your credentials cannot perform the operation; do not retry them.
- Test case, plan and run keys look like JQA-T1, JQA-P1 and JQA-R1.
- Test step tools take numeric Jira issue and project ids, not keys.
`)
	if s.readOnly {
		b.WriteString("- This server is read-only. Create, update and delete tools will be refused.\n")
	}
	b.WriteString("\n## Available Tools\n\n")
	for _, name := range s.Tools() {
		b.WriteString("- ")
		b.WriteString(name)
		b.WriteString("\n")
	}

	return &mcplib.GetPromptResult{
		Description: "Kensa test management workflow for AI agents",
		Messages: []mcplib.PromptMessage{
			{
				Role:    mcplib.RoleUser,
				Content: mcplib.TextContent{Type: "text", Text: b.String()},
			},
		},
	}, nil
}
