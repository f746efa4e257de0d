package zephyr

// TestCase is a Zephyr test case.
type TestCase struct {
	Key          string         `json:"key"`
	ID           int64          `json:"id,omitempty"`
	Name         string         `json:"name"`
	ProjectKey   string         `json:"projectKey,omitempty"`
	Status       string         `json:"status,omitempty"`
	Priority     string         `json:"priority,omitempty"`
	Objective    string         `json:"objective,omitempty"`
	Precondition string         `json:"precondition,omitempty"`
	Folder       string         `json:"folder,omitempty"`
	Owner        string         `json:"owner,omitempty"`
	Component    string         `json:"component,omitempty"`
	Labels       []string       `json:"labels,omitempty"`
	IssueLinks   []string       `json:"issueLinks,omitempty"`
	CreatedOn    string         `json:"createdOn,omitempty"`
	UpdatedOn    string         `json:"updatedOn,omitempty"`
	CustomFields map[string]any `json:"customFields,omitempty"`
	TestScript   *TestScript    `json:"testScript,omitempty"`
}

// TestScript is the script attached to a test case.
type TestScript struct {
	Type  string       `json:"type"`
	Text  string       `json:"text,omitempty"`
	Steps []ScriptStep `json:"steps,omitempty"`
}

// ScriptStep is one step of a step-by-step test script.
type ScriptStep struct {
	Index          int    `json:"index"`
	Description    string `json:"description,omitempty"`
	TestData       string `json:"testData,omitempty"`
	ExpectedResult string `json:"expectedResult,omitempty"`
}

// Simplified returns the caller-facing representation.
func (tc *TestCase) Simplified() map[string]any {
	m := map[string]any{
		"key":  tc.Key,
		"name": tc.Name,
	}
	putStr(m, "project_key", tc.ProjectKey)
	putStr(m, "status", tc.Status)
	putStr(m, "priority", tc.Priority)
	putStr(m, "objective", tc.Objective)
	putStr(m, "precondition", tc.Precondition)
	putStr(m, "folder", tc.Folder)
	putStr(m, "owner", tc.Owner)
	putStr(m, "component", tc.Component)
	putStr(m, "created_on", tc.CreatedOn)
	putStr(m, "updated_on", tc.UpdatedOn)
	if len(tc.Labels) > 0 {
		m["labels"] = tc.Labels
	}
	if len(tc.IssueLinks) > 0 {
		m["issue_links"] = tc.IssueLinks
	}
	if len(tc.CustomFields) > 0 {
		m["custom_fields"] = tc.CustomFields
	}
	if tc.TestScript != nil {
		script := map[string]any{"type": tc.TestScript.Type}
		putStr(script, "text", tc.TestScript.Text)
		if len(tc.TestScript.Steps) > 0 {
			steps := make([]map[string]any, 0, len(tc.TestScript.Steps))
			for _, s := range tc.TestScript.Steps {
				step := map[string]any{"index": s.Index}
				putStr(step, "description", s.Description)
				putStr(step, "test_data", s.TestData)
				putStr(step, "expected_result", s.ExpectedResult)
				steps = append(steps, step)
			}
			script["steps"] = steps
		}
		m["test_script"] = script
	}
	return m
}

// TestPlan is a Zephyr test plan.
type TestPlan struct {
	Key        string        `json:"key"`
	Name       string        `json:"name"`
	ProjectKey string        `json:"projectKey,omitempty"`
	Status     string        `json:"status,omitempty"`
	Objective  string        `json:"objective,omitempty"`
	Folder     string        `json:"folder,omitempty"`
	Owner      string        `json:"owner,omitempty"`
	Labels     []string      `json:"labels,omitempty"`
	IssueLinks []string      `json:"issueLinks,omitempty"`
	CreatedOn  string        `json:"createdOn,omitempty"`
	TestRuns   []TestRunLink `json:"testRuns,omitempty"`
}

// TestRunLink references a test run from a plan.
type TestRunLink struct {
	Key string `json:"key"`
}

// Simplified returns the caller-facing representation.
func (tp *TestPlan) Simplified() map[string]any {
	m := map[string]any{
		"key":  tp.Key,
		"name": tp.Name,
	}
	putStr(m, "project_key", tp.ProjectKey)
	putStr(m, "status", tp.Status)
	putStr(m, "objective", tp.Objective)
	putStr(m, "folder", tp.Folder)
	putStr(m, "owner", tp.Owner)
	putStr(m, "created_on", tp.CreatedOn)
	if len(tp.Labels) > 0 {
		m["labels"] = tp.Labels
	}
	if len(tp.IssueLinks) > 0 {
		m["issue_links"] = tp.IssueLinks
	}
	if len(tp.TestRuns) > 0 {
		keys := make([]string, 0, len(tp.TestRuns))
		for _, r := range tp.TestRuns {
			keys = append(keys, r.Key)
		}
		m["test_runs"] = keys
	}
	return m
}

// TestRun is a Zephyr test run (cycle).
type TestRun struct {
	Key              string `json:"key"`
	Name             string `json:"name"`
	ProjectKey       string `json:"projectKey,omitempty"`
	Status           string `json:"status,omitempty"`
	Folder           string `json:"folder,omitempty"`
	Owner            string `json:"owner,omitempty"`
	Version          string `json:"version,omitempty"`
	Iteration        string `json:"iteration,omitempty"`
	IssueKey         string `json:"issueKey,omitempty"`
	TestPlanKey      string `json:"testPlanKey,omitempty"`
	PlannedStartDate string `json:"plannedStartDate,omitempty"`
	PlannedEndDate   string `json:"plannedEndDate,omitempty"`
	CreatedOn        string `json:"createdOn,omitempty"`
	TestCaseCount    int    `json:"testCaseCount,omitempty"`
	ExecutionTime    int64  `json:"executionTime,omitempty"`
}

// Simplified returns the caller-facing representation.
func (tr *TestRun) Simplified() map[string]any {
	m := map[string]any{
		"key":  tr.Key,
		"name": tr.Name,
	}
	putStr(m, "project_key", tr.ProjectKey)
	putStr(m, "status", tr.Status)
	putStr(m, "folder", tr.Folder)
	putStr(m, "owner", tr.Owner)
	putStr(m, "version", tr.Version)
	putStr(m, "iteration", tr.Iteration)
	putStr(m, "issue_key", tr.IssueKey)
	putStr(m, "test_plan_key", tr.TestPlanKey)
	putStr(m, "planned_start_date", tr.PlannedStartDate)
	putStr(m, "planned_end_date", tr.PlannedEndDate)
	putStr(m, "created_on", tr.CreatedOn)
	if tr.TestCaseCount > 0 {
		m["test_case_count"] = tr.TestCaseCount
	}
	if tr.ExecutionTime > 0 {
		m["execution_time_ms"] = tr.ExecutionTime
	}
	return m
}

// TestResult is one execution of a test case.
type TestResult struct {
	ID            int64          `json:"id"`
	TestCaseKey   string         `json:"testCaseKey,omitempty"`
	TestRunKey    string         `json:"testRunKey,omitempty"`
	Status        string         `json:"status,omitempty"`
	Environment   string         `json:"environment,omitempty"`
	Comment       string         `json:"comment,omitempty"`
	ExecutedBy    string         `json:"executedBy,omitempty"`
	AssignedTo    string         `json:"assignedTo,omitempty"`
	ExecutionTime int64          `json:"executionTime,omitempty"`
	ExecutionDate string         `json:"executionDate,omitempty"`
	ScriptResults []ScriptResult `json:"scriptResults,omitempty"`
}

// ScriptResult is the outcome of one script step within a result.
type ScriptResult struct {
	Index   int    `json:"index"`
	Status  string `json:"status,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Simplified returns the caller-facing representation.
func (r *TestResult) Simplified() map[string]any {
	m := map[string]any{"id": r.ID}
	putStr(m, "test_case_key", r.TestCaseKey)
	putStr(m, "test_run_key", r.TestRunKey)
	putStr(m, "status", r.Status)
	putStr(m, "environment", r.Environment)
	putStr(m, "comment", r.Comment)
	putStr(m, "executed_by", r.ExecutedBy)
	putStr(m, "assigned_to", r.AssignedTo)
	putStr(m, "execution_date", r.ExecutionDate)
	if r.ExecutionTime > 0 {
		m["execution_time_ms"] = r.ExecutionTime
	}
	if len(r.ScriptResults) > 0 {
		steps := make([]map[string]any, 0, len(r.ScriptResults))
		for _, s := range r.ScriptResults {
			step := map[string]any{"index": s.Index}
			putStr(step, "status", s.Status)
			putStr(step, "comment", s.Comment)
			steps = append(steps, step)
		}
		m["script_results"] = steps
	}
	return m
}

// StepRequest is the payload for adding a legacy test step.
type StepRequest struct {
	Step   string `json:"step"`
	Data   string `json:"data,omitempty"`
	Result string `json:"result,omitempty"`
}

// TestStep is a legacy (ZAPI) test step attached to a Jira issue.
type TestStep struct {
	ID        int64  `json:"id"`
	OrderID   int    `json:"orderId"`
	Step      string `json:"step"`
	Data      string `json:"data,omitempty"`
	Result    string `json:"result,omitempty"`
	CreatedBy string `json:"createdBy,omitempty"`
}

// Simplified returns the caller-facing representation.
func (s *TestStep) Simplified() map[string]any {
	m := map[string]any{
		"id":       s.ID,
		"order_id": s.OrderID,
		"step":     s.Step,
	}
	putStr(m, "data", s.Data)
	putStr(m, "result", s.Result)
	putStr(m, "created_by", s.CreatedBy)
	return m
}

// TestSteps is the collection of legacy steps on one issue.
type TestSteps struct {
	IssueID   string
	ProjectID string
	Steps     []TestStep
}

// Simplified returns the caller-facing representation.
func (ts *TestSteps) Simplified() map[string]any {
	steps := make([]map[string]any, 0, len(ts.Steps))
	for i := range ts.Steps {
		steps = append(steps, ts.Steps[i].Simplified())
	}
	return map[string]any{
		"issue_id":   ts.IssueID,
		"project_id": ts.ProjectID,
		"steps":      steps,
		"total":      len(steps),
	}
}

func putStr(m map[string]any, key, v string) {
	if v != "" {
		m[key] = v
	}
}
