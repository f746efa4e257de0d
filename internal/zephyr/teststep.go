package zephyr

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

func stepPath(issueID, projectID string) string {
	return zapiPath + "/teststep/" + url.PathEscape(issueID) + "?" + url.Values{"projectId": {projectID}}.Encode()
}

// TestSteps lists the legacy test steps attached to a Jira issue.
func (c *Client) TestSteps(ctx context.Context, issueID, projectID string) (*TestSteps, error) {
	var resp struct {
		StepBeanCollection []TestStep `json:"stepBeanCollection"`
	}
	if err := c.get(ctx, stepPath(issueID, projectID), &resp); err != nil {
		return nil, err
	}
	return &TestSteps{IssueID: issueID, ProjectID: projectID, Steps: resp.StepBeanCollection}, nil
}

// AddTestStep appends one step to a Jira issue.
func (c *Client) AddTestStep(ctx context.Context, issueID, projectID string, step StepRequest) (*TestStep, error) {
	if step.Step == "" {
		return nil, fmt.Errorf("zephyr: step description is required")
	}
	var out TestStep
	if err := c.post(ctx, stepPath(issueID, projectID), step, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddTestSteps submits steps in order. Steps the backend rejects are skipped
// and logged; the returned slice holds only created steps. Authentication
// failures, transport failures and cancellation abort the batch and return
// what was created so far alongside the error.
func (c *Client) AddTestSteps(ctx context.Context, issueID, projectID string, steps []StepRequest) ([]TestStep, error) {
	created := make([]TestStep, 0, len(steps))
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		ts, err := c.AddTestStep(ctx, issueID, projectID, step)
		if err != nil {
			var apiErr *Error
			if !errors.As(err, &apiErr) || IsAuth(err) {
				return created, err
			}
			c.logger.Warn("zephyr: test step rejected",
				"issue_id", issueID, "index", i, "status", apiErr.StatusCode, "error", apiErr.Message)
			continue
		}
		created = append(created, *ts)
	}
	return created, nil
}
