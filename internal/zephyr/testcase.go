package zephyr

import (
	"context"
	"fmt"
	"net/url"
)

// GetTestCase fetches a test case by key. fields is an optional
// comma-separated projection.
func (c *Client) GetTestCase(ctx context.Context, key, fields string) (*TestCase, error) {
	var tc TestCase
	if err := c.get(ctx, withFields(atmPath+"/testcase/"+url.PathEscape(key), fields), &tc); err != nil {
		return nil, err
	}
	return &tc, nil
}

// CreateTestCase creates a test case and returns its key.
func (c *Client) CreateTestCase(ctx context.Context, payload map[string]any) (string, error) {
	var resp struct {
		Key string `json:"key"`
	}
	if err := c.post(ctx, atmPath+"/testcase", payload, &resp); err != nil {
		return "", err
	}
	if resp.Key == "" {
		return "", fmt.Errorf("zephyr: create test case: response carried no key")
	}
	return resp.Key, nil
}

// UpdateTestCase applies payload to an existing test case.
func (c *Client) UpdateTestCase(ctx context.Context, key string, payload map[string]any) error {
	return c.put(ctx, atmPath+"/testcase/"+url.PathEscape(key), payload, nil)
}

// DeleteTestCase removes a test case.
func (c *Client) DeleteTestCase(ctx context.Context, key string) error {
	return c.doDelete(ctx, atmPath+"/testcase/"+url.PathEscape(key))
}

// SearchTestCases runs a TQL search over test cases.
func (c *Client) SearchTestCases(ctx context.Context, opts SearchOptions) ([]TestCase, error) {
	var out []TestCase
	if err := c.get(ctx, atmPath+"/testcase/search?"+opts.values().Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}
