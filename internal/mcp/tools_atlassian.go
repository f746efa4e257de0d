package mcp

import (
	"context"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kensa/internal/services"
)

func (s *Server) atlassianTools() []toolDef {
	return []toolDef{
		{
			service: services.Jira,
			tool: mcplib.NewTool("jira_get_issue",
				mcplib.WithDescription(`Get a Jira issue by key.

WHEN TO USE: To read the requirement or bug a test case covers, or to find
the numeric issue and project ids needed by the test step tools.`),
				mcplib.WithReadOnlyHintAnnotation(true),
				mcplib.WithIdempotentHintAnnotation(true),
				mcplib.WithOpenWorldHintAnnotation(true),
				mcplib.WithString("issue_key",
					mcplib.Description("The issue key or id, e.g. 'PROJ-123'"),
					mcplib.Required(),
				),
				fieldsParam(),
			),
			handler: s.handleGetIssue,
		},
		{
			service: services.Confluence,
			tool: mcplib.NewTool("confluence_get_page",
				mcplib.WithDescription(`Get a Confluence page's title, space and version by id.`),
				mcplib.WithReadOnlyHintAnnotation(true),
				mcplib.WithIdempotentHintAnnotation(true),
				mcplib.WithOpenWorldHintAnnotation(true),
				mcplib.WithString("page_id",
					mcplib.Description("The numeric page id, e.g. '123456'"),
					mcplib.Required(),
				),
			),
			handler: s.handleGetPage,
		},
	}
}

func (s *Server) handleGetIssue(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	key, err := requireString(request, "issue_key")
	if err != nil {
		return invalidInput(err.Error(), nil), nil
	}
	c := call{tool: request.Params.Name, kind: "Issue", verb: "get", key: key, echo: fields{"issue_key": key}}
	jira, err := s.backends.Jira(ctx)
	if err != nil {
		return s.failure(ctx, c, err), nil
	}

	var fieldList []string
	for _, f := range strings.Split(request.GetString("fields", ""), ",") {
		if f = strings.TrimSpace(f); f != "" {
			fieldList = append(fieldList, f)
		}
	}
	issue, err := jira.GetIssue(ctx, key, fieldList)
	if err != nil {
		return s.failure(ctx, c, err), nil
	}
	return success(fields{"issue": issue.Simplified()}), nil
}

func (s *Server) handleGetPage(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := requireString(request, "page_id")
	if err != nil {
		return invalidInput(err.Error(), nil), nil
	}
	c := call{tool: request.Params.Name, kind: "Page", verb: "get", key: id, echo: fields{"page_id": id}}
	wiki, err := s.backends.Confluence(ctx)
	if err != nil {
		return s.failure(ctx, c, err), nil
	}

	page, err := wiki.GetPage(ctx, id)
	if err != nil {
		return s.failure(ctx, c, err), nil
	}
	return success(fields{"page": page.Simplified()}), nil
}
