package zephyr

import (
	"context"
	"fmt"
	"net/url"
)

// GetTestRun fetches a test run by key.
func (c *Client) GetTestRun(ctx context.Context, key, fields string) (*TestRun, error) {
	var tr TestRun
	if err := c.get(ctx, withFields(atmPath+"/testrun/"+url.PathEscape(key), fields), &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// CreateTestRun creates a test run and returns its key.
func (c *Client) CreateTestRun(ctx context.Context, payload map[string]any) (string, error) {
	var resp struct {
		Key string `json:"key"`
	}
	if err := c.post(ctx, atmPath+"/testrun", payload, &resp); err != nil {
		return "", err
	}
	if resp.Key == "" {
		return "", fmt.Errorf("zephyr: create test run: response carried no key")
	}
	return resp.Key, nil
}

// SearchTestRuns runs a TQL search over test runs.
func (c *Client) SearchTestRuns(ctx context.Context, opts SearchOptions) ([]TestRun, error) {
	var out []TestRun
	if err := c.get(ctx, atmPath+"/testrun/search?"+opts.values().Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}
