package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kensa/internal/zephyr"
)

func (s *Server) registerTools() {
	s.addTools(s.testCaseTools()...)
	s.addTools(s.testPlanTools()...)
	s.addTools(s.testRunTools()...)
	s.addTools(s.testResultTools()...)
	s.addTools(s.testStepTools()...)
	s.addTools(s.atlassianTools()...)
}

// Shared parameter options.

func fieldsParam() mcplib.ToolOption {
	return mcplib.WithString("fields",
		mcplib.Description("Optional comma-separated list of fields to include in the response"),
	)
}

func searchParams() []mcplib.ToolOption {
	return []mcplib.ToolOption{
		mcplib.WithString("query",
			mcplib.Description(`TQL query used to filter results, passed through unchanged. Example: projectKey = "JQA" AND status = "Approved"`),
		),
		fieldsParam(),
		mcplib.WithNumber("start_at",
			mcplib.Description("Offset of the first result, for pagination"),
			mcplib.Min(0),
			mcplib.DefaultNumber(zephyr.DefaultStartAt),
		),
		mcplib.WithNumber("max_results",
			mcplib.Description("Maximum number of results to return"),
			mcplib.Min(1),
			mcplib.DefaultNumber(zephyr.DefaultMaxResults),
		),
	}
}

func searchOptions(request mcplib.CallToolRequest) zephyr.SearchOptions {
	return zephyr.SearchOptions{
		Query:      strings.TrimSpace(request.GetString("query", "")),
		Fields:     strings.TrimSpace(request.GetString("fields", "")),
		StartAt:    request.GetInt("start_at", zephyr.DefaultStartAt),
		MaxResults: request.GetInt("max_results", zephyr.DefaultMaxResults),
	}
}

// requireString returns the named argument, rejecting absent or blank values.
func requireString(request mcplib.CallToolRequest, key string) (string, error) {
	v, err := request.RequireString(key)
	if err != nil {
		return "", fmt.Errorf("%s is required", key)
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// jsonObject reads a JSON object argument. Callers may send it as a JSON
// string or as an inline object.
func jsonObject(request mcplib.CallToolRequest, key string) (map[string]any, error) {
	raw, ok := request.GetArguments()[key]
	if !ok || raw == nil {
		return nil, fmt.Errorf("%s is required", key)
	}
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("%s is required", key)
		}
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return nil, fmt.Errorf("Invalid JSON format for %s: %v", key, err)
		}
		obj, ok := parsed.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s must be a JSON object", key)
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("%s must be a JSON object", key)
	}
}

// zephyr returns the Zephyr client or a failure envelope.
func (s *Server) zephyr(ctx context.Context, c call) (ZephyrAPI, *mcplib.CallToolResult) {
	z, err := s.backends.Zephyr(ctx)
	if err != nil {
		return nil, s.failure(ctx, c, err)
	}
	return z, nil
}
