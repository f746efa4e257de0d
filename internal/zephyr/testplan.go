package zephyr

import (
	"context"
	"fmt"
	"net/url"
)

// GetTestPlan fetches a test plan by key.
func (c *Client) GetTestPlan(ctx context.Context, key, fields string) (*TestPlan, error) {
	var tp TestPlan
	if err := c.get(ctx, withFields(atmPath+"/testplan/"+url.PathEscape(key), fields), &tp); err != nil {
		return nil, err
	}
	return &tp, nil
}

// CreateTestPlan creates a test plan and returns its key.
func (c *Client) CreateTestPlan(ctx context.Context, payload map[string]any) (string, error) {
	var resp struct {
		Key string `json:"key"`
	}
	if err := c.post(ctx, atmPath+"/testplan", payload, &resp); err != nil {
		return "", err
	}
	if resp.Key == "" {
		return "", fmt.Errorf("zephyr: create test plan: response carried no key")
	}
	return resp.Key, nil
}

// SearchTestPlans runs a TQL search over test plans.
func (c *Client) SearchTestPlans(ctx context.Context, opts SearchOptions) ([]TestPlan, error) {
	var out []TestPlan
	if err := c.get(ctx, atmPath+"/testplan/search?"+opts.values().Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}
