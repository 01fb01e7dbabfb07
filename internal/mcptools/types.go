package mcptools

import "github.com/dusk-indust/blueprint/internal/orchestrator"

// --- MCP Tool Types for the blueprint server mode (-serve-mcp) ---
// A client starts a run, polls for review requests and answers them; the
// run itself executes in the server process.

// StartRunInput is the input for the start_run MCP tool.
type StartRunInput struct {
	Request   string `json:"request" jsonschema:"the project request, in plain language"`
	OutputDir string `json:"outputDir,omitempty" jsonschema:"output root; documents go to <outputDir>/project (default: server working directory)"`
}

// StartRunOutput is the result of the start_run MCP tool.
type StartRunOutput struct {
	RunID     string   `json:"runId"`
	OutputDir string   `json:"outputDir"`
	Workers   []string `json:"workers"`
}

// ListPendingReviewsInput is the input for the list_pending_reviews MCP tool.
type ListPendingReviewsInput struct {
	RunID string `json:"runId,omitempty" jsonschema:"restrict to one run (default: all runs)"`
}

// ListPendingReviewsOutput is the result of the list_pending_reviews MCP tool.
type ListPendingReviewsOutput struct {
	Reviews []orchestrator.ReviewRequest `json:"reviews"`
}

// SubmitReviewInput is the input for the submit_review MCP tool.
type SubmitReviewInput struct {
	RunID     string `json:"runId" jsonschema:"run that owns the review request"`
	RequestID string `json:"requestId" jsonschema:"id from list_pending_reviews"`
	Decision  string `json:"decision" jsonschema:"approve or changes"`
	Feedback  string `json:"feedback,omitempty" jsonschema:"required when decision is changes"`
}

// SubmitReviewOutput is the result of the submit_review MCP tool.
type SubmitReviewOutput struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

// RunStatusInput is the input for the run_status MCP tool.
type RunStatusInput struct {
	RunID string `json:"runId" jsonschema:"run id returned by start_run"`
}

// RunStatusOutput is the result of the run_status MCP tool.
type RunStatusOutput struct {
	RunID      string                       `json:"runId"`
	Status     string                       `json:"status"` // "running", "completed" or "failed"
	Error      string                       `json:"error,omitempty"`
	Stages     map[string]string            `json:"stages"`
	Pending    []orchestrator.ReviewRequest `json:"pending,omitempty"`
	Degraded   []orchestrator.DegradedEvent `json:"degraded,omitempty"`
	ActiveUnit string                       `json:"activeUnit,omitempty"`
	Outcome    string                       `json:"outcome,omitempty"`
	Report     string                       `json:"report,omitempty"`
}
