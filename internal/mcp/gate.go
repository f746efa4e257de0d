package mcp

import (
	"context"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

const readOnlyError = "Write operations are disabled: server is running in read-only mode"

// writeGate denies mutating tools when the server is read-only. Tools are
// marked mutating when they are registered, before the server starts
// serving, so the set is never written concurrently with reads. Any tool not
// annotated read-only is marked.
type writeGate struct {
	readOnly bool
	mutating map[string]bool
	logger   *slog.Logger
}

func newWriteGate(readOnly bool, logger *slog.Logger) *writeGate {
	return &writeGate{readOnly: readOnly, mutating: make(map[string]bool), logger: logger}
}

// mark records name as mutating and forces its annotations to say so.
func (g *writeGate) mark(tool *mcplib.Tool) {
	g.mutating[tool.Name] = true
	tool.Annotations.ReadOnlyHint = mcplib.ToBoolPtr(false)
	if tool.Annotations.DestructiveHint == nil {
		tool.Annotations.DestructiveHint = mcplib.ToBoolPtr(true)
	}
}

// middleware runs in front of every tool handler on the server.
func (g *writeGate) middleware(next mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		name := request.Params.Name
		if g.readOnly && g.mutating[name] {
			g.logger.Info("mcp: write denied in read-only mode", "tool", name)
			return envelope(fields{"success": false, "error": readOnlyError, "tool": name}), nil
		}
		return next(ctx, request)
	}
}
