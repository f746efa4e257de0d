package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ctreminiom/go-atlassian/v2/confluence"
	jira "github.com/ctreminiom/go-atlassian/v2/jira/v2"
	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"

	"github.com/ashita-ai/kensa/internal/services"
)

// APIError is a failed Jira or Confluence call with its HTTP status.
type APIError struct {
	Service    services.Service
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s: %d %s: %v", e.Service, e.StatusCode, http.StatusText(e.StatusCode), e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// HTTPStatus returns the response status, or 0 when no response arrived.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

func wrapAPIError(svc services.Service, resp *models.ResponseScheme, err error) error {
	status := 0
	if resp != nil {
		status = resp.Code
		if status == 0 && resp.Response != nil {
			status = resp.StatusCode
		}
	}
	return &APIError{Service: svc, StatusCode: status, Err: err}
}

// Issue is the caller-facing subset of a Jira issue.
type Issue struct {
	ID          string
	Key         string
	Summary     string
	Description string
	Status      string
	Type        string
	Priority    string
	Assignee    string
	Project     string
	Labels      []string
}

// Simplified returns the caller-facing representation.
func (i *Issue) Simplified() map[string]any {
	m := map[string]any{"id": i.ID, "key": i.Key, "summary": i.Summary}
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	put("description", i.Description)
	put("status", i.Status)
	put("issue_type", i.Type)
	put("priority", i.Priority)
	put("assignee", i.Assignee)
	put("project_key", i.Project)
	if len(i.Labels) > 0 {
		m["labels"] = i.Labels
	}
	return m
}

// JiraClient wraps the go-atlassian Jira client.
type JiraClient struct {
	api *jira.Client
}

// GetIssue fetches one issue by key or id.
func (c *JiraClient) GetIssue(ctx context.Context, key string, fields []string) (*Issue, error) {
	raw, resp, err := c.api.Issue.Get(ctx, key, fields, nil)
	if err != nil {
		return nil, wrapAPIError(services.Jira, resp, err)
	}
	if raw == nil {
		return nil, &APIError{Service: services.Jira, StatusCode: http.StatusNotFound, Err: errors.New("empty issue")}
	}

	issue := &Issue{ID: raw.ID, Key: raw.Key}
	if f := raw.Fields; f != nil {
		issue.Summary = f.Summary
		issue.Description = f.Description
		issue.Labels = f.Labels
		if f.Status != nil {
			issue.Status = f.Status.Name
		}
		if f.IssueType != nil {
			issue.Type = f.IssueType.Name
		}
		if f.Priority != nil {
			issue.Priority = f.Priority.Name
		}
		if f.Assignee != nil {
			issue.Assignee = f.Assignee.DisplayName
		}
		if f.Project != nil {
			issue.Project = f.Project.Key
		}
	}
	return issue, nil
}

// Page is the caller-facing subset of a Confluence page.
type Page struct {
	ID       string
	Title    string
	Type     string
	Status   string
	SpaceKey string
	Version  int
}

// Simplified returns the caller-facing representation.
func (p *Page) Simplified() map[string]any {
	m := map[string]any{"id": p.ID, "title": p.Title}
	if p.Type != "" {
		m["type"] = p.Type
	}
	if p.Status != "" {
		m["status"] = p.Status
	}
	if p.SpaceKey != "" {
		m["space_key"] = p.SpaceKey
	}
	if p.Version > 0 {
		m["version"] = p.Version
	}
	return m
}

// ConfluenceClient wraps the go-atlassian Confluence client.
type ConfluenceClient struct {
	api *confluence.Client
}

// GetPage fetches one page by id.
func (c *ConfluenceClient) GetPage(ctx context.Context, id string) (*Page, error) {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return nil, &APIError{Service: services.Confluence, StatusCode: http.StatusBadRequest,
			Err: fmt.Errorf("page id %q is not numeric", id)}
	}
	raw, resp, err := c.api.Content.Get(ctx, id, []string{"space", "version"}, 0)
	if err != nil {
		return nil, wrapAPIError(services.Confluence, resp, err)
	}
	if raw == nil {
		return nil, &APIError{Service: services.Confluence, StatusCode: http.StatusNotFound, Err: errors.New("empty page")}
	}

	page := &Page{ID: raw.ID, Title: raw.Title, Type: raw.Type, Status: raw.Status}
	if raw.Space != nil {
		page.SpaceKey = raw.Space.Key
	}
	if raw.Version != nil {
		page.Version = raw.Version.Number
	}
	return page, nil
}
