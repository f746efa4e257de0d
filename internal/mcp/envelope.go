package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kensa/internal/ctxutil"
	"github.com/ashita-ai/kensa/internal/registry"
)

// authErrorPrefix marks access denials so callers can tell them apart from
// generic failures.
const authErrorPrefix = "Authentication/Permission Error: "

const redacted = "[REDACTED]"

// fields is the body of a tool result envelope.
type fields map[string]any

// envelope serializes f as indented JSON text. IsError mirrors success.
func envelope(f fields) *mcplib.CallToolResult {
	ok, _ := f["success"].(bool)
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		ok = false
		data, _ = json.MarshalIndent(fields{"success": false, "error": "failed to encode result"}, "", "  ")
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
		IsError: !ok,
	}
}

// success wraps a domain result. extra carries correlation fields.
func success(payload fields, extra ...fields) *mcplib.CallToolResult {
	f := fields{"success": true}
	merge(f, payload)
	for _, e := range extra {
		merge(f, e)
	}
	return envelope(f)
}

func merge(dst, src fields) {
	for k, v := range src {
		dst[k] = v
	}
}

// simplifier is implemented by every backend entity.
type simplifier interface {
	Simplified() map[string]any
}

// listSuccess places the simplified items under key and adds count.
func listSuccess[T any, P interface {
	*T
	simplifier
}](key string, items []T, extra ...fields) *mcplib.CallToolResult {
	out := make([]map[string]any, 0, len(items))
	for i := range items {
		out = append(out, P(&items[i]).Simplified())
	}
	return success(fields{key: out, "count": len(out)}, extra...)
}

// invalidInput rejects malformed caller input before any backend call.
func invalidInput(msg string, echo fields) *mcplib.CallToolResult {
	f := fields{"success": false, "error": msg}
	merge(f, echo)
	return envelope(f)
}

// call describes what a tool attempted, for error rendering and logs.
type call struct {
	tool string
	// kind is the entity name as it starts a sentence, e.g. "Test case".
	kind string
	// verb renders as "Failed to <verb> <kind>".
	verb string
	// key is the identifier the caller asked for, if any.
	key string
	// echo is copied into every failure envelope.
	echo fields
}

// statusCoder is implemented by backend errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

func statusOf(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

func isNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

func isAuth(err error) bool {
	if errors.Is(err, registry.ErrMissingUserToken) {
		return true
	}
	s := statusOf(err)
	return s == http.StatusUnauthorized || s == http.StatusForbidden
}

// failure normalizes a backend error into an envelope. Not-found and access
// denials are expected and log at Warn; anything else logs at Error. Only the
// rendered message crosses the tool boundary, with secrets redacted.
func (s *Server) failure(ctx context.Context, c call, err error) *mcplib.CallToolResult {
	msg := s.redact(ctx, err.Error())
	attrs := []any{"tool", c.tool, "error", msg}
	if c.key != "" {
		attrs = append(attrs, "key", c.key)
	}
	for k, v := range c.echo {
		attrs = append(attrs, k, v)
	}
	if id := ctxutil.RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}

	f := fields{"success": false}
	switch {
	case isAuth(err):
		s.logger.Warn("mcp: access denied", attrs...)
		f["error"] = authErrorPrefix + msg
	case isNotFound(err) && c.key != "":
		s.logger.Warn("mcp: not found", attrs...)
		f["error"] = fmt.Sprintf("%s not found: %s", c.kind, c.key)
	default:
		s.logger.Error("mcp: tool failed", attrs...)
		f["error"] = fmt.Sprintf("Failed to %s %s: %s", c.verb, strings.ToLower(c.kind), msg)
	}
	merge(f, c.echo)
	return envelope(f)
}

// redact scrubs configured secrets and the caller's own token from msg.
func (s *Server) redact(ctx context.Context, msg string) string {
	if s.redactor != nil {
		msg = s.redactor.Replace(msg)
	}
	if tok, ok := ctxutil.UserTokenFromContext(ctx); ok {
		msg = strings.ReplaceAll(msg, tok, redacted)
	}
	return msg
}

func newRedactor(secrets []string) *strings.Replacer {
	if len(secrets) == 0 {
		return nil
	}
	pairs := make([]string, 0, 2*len(secrets))
	for _, v := range secrets {
		if v != "" {
			pairs = append(pairs, v, redacted)
		}
	}
	return strings.NewReplacer(pairs...)
}
