package zephyr

import (
	"context"
	"net/url"
)

// CreateTestResult records an execution result and returns its id.
func (c *Client) CreateTestResult(ctx context.Context, payload map[string]any) (int64, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := c.post(ctx, atmPath+"/testresult", payload, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// LatestTestResult returns the most recent result for a test case, or nil
// when the case has never been executed. The latest-result endpoint answers
// 404 both for an unexecuted case and an unknown key, so a 404 is followed by
// a lookup of the case itself; an unknown key is returned as not found.
func (c *Client) LatestTestResult(ctx context.Context, testCaseKey string) (*TestResult, error) {
	var r TestResult
	err := c.get(ctx, atmPath+"/testcase/"+url.PathEscape(testCaseKey)+"/testresult/latest", &r)
	if IsNotFound(err) {
		if _, lookupErr := c.GetTestCase(ctx, testCaseKey, "key"); lookupErr != nil {
			return nil, lookupErr
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.ID == 0 && r.Status == "" {
		return nil, nil
	}
	return &r, nil
}

// TestRunResults returns every result recorded in a test run.
func (c *Client) TestRunResults(ctx context.Context, runKey string) ([]TestResult, error) {
	var out []TestResult
	if err := c.get(ctx, atmPath+"/testrun/"+url.PathEscape(runKey)+"/testresults", &out); err != nil {
		return nil, err
	}
	return out, nil
}
