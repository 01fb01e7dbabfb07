package mcptools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/blueprint/internal/artifact"
	"github.com/dusk-indust/blueprint/internal/orchestrator"
	"github.com/dusk-indust/blueprint/internal/pipeline"
	"github.com/dusk-indust/blueprint/internal/worker"
)

// Every stage gets the same table; the diagram stage rejects it and
// degrades, which the run survives.
const cannedTable = "| Milestone | Description | LLM |\n|---|---|---|\n| [ ] | Build the API | A |"

func testBuilder(t *testing.T) Builder {
	t.Helper()
	return func(root string, reviews orchestrator.DecisionSource) (*pipeline.Pipeline, error) {
		reg, err := worker.NewRegistry([]worker.Spec{{Name: "A", Model: "a"}, {Name: "B", Model: "b"}})
		if err != nil {
			return nil, err
		}
		pool, err := worker.NewPool(reg, func(worker.Spec) (worker.Invoker, error) {
			return worker.InvokerFunc(func(context.Context, worker.Prompt) (string, error) {
				return cannedTable, nil
			}), nil
		}, time.Second)
		if err != nil {
			return nil, err
		}
		return pipeline.New(pool, artifact.NewFSSink(root), reviews)
	}
}

func newService(t *testing.T) *RunService {
	t.Helper()
	svc := NewRunService(testBuilder(t), WithDefaultRoot(t.TempDir()))
	t.Cleanup(svc.Close)
	return svc
}

// awaitReview waits until the run has a pending request for gate.
func awaitReview(t *testing.T, svc *RunService, runID, gate string) orchestrator.ReviewRequest {
	t.Helper()
	var found orchestrator.ReviewRequest
	require.Eventually(t, func() bool {
		_, out, err := svc.ListPendingReviews(context.Background(), nil, ListPendingReviewsInput{RunID: runID})
		if err != nil || len(out.Reviews) == 0 || out.Reviews[0].Gate != gate {
			return false
		}
		found = out.Reviews[0]
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return found
}

func submit(t *testing.T, svc *RunService, runID, requestID, decision, feedback string) {
	t.Helper()
	_, out, err := svc.SubmitReview(context.Background(), nil, SubmitReviewInput{
		RunID: runID, RequestID: requestID, Decision: decision, Feedback: feedback,
	})
	require.NoError(t, err)
	assert.True(t, out.Accepted)
}

func TestRunService_FullRun(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	root := t.TempDir()

	_, started, err := svc.StartRun(ctx, nil, StartRunInput{Request: "build a todo app", OutputDir: root})
	require.NoError(t, err)
	require.NotEmpty(t, started.RunID)
	assert.Equal(t, []string{"A", "B"}, started.Workers)

	plan := awaitReview(t, svc, started.RunID, pipeline.StagePlanReview)
	assert.Equal(t, 1, plan.Iteration)
	assert.Equal(t, cannedTable, plan.Content)

	var st RunStatusOutput
	require.Eventually(t, func() bool {
		_, st, err = svc.RunStatus(ctx, nil, RunStatusInput{RunID: started.RunID})
		return err == nil && st.Stages[pipeline.StagePlanReview] == string(orchestrator.ProgressWaiting)
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, StatusRunning, st.Status)
	require.Len(t, st.Pending, 1)

	submit(t, svc, started.RunID, plan.ID, "approve", "")

	ms := awaitReview(t, svc, started.RunID, pipeline.StageMilestoneReview)
	submit(t, svc, started.RunID, ms.ID, "changes", "split the API milestone")

	again := awaitReview(t, svc, started.RunID, pipeline.StageMilestoneReview)
	assert.NotEqual(t, ms.ID, again.ID)
	assert.Equal(t, 2, again.Iteration)
	submit(t, svc, started.RunID, again.ID, "a", "")

	require.Eventually(t, func() bool {
		_, st, err = svc.RunStatus(ctx, nil, RunStatusInput{RunID: started.RunID})
		return err == nil && st.Status != StatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, StatusCompleted, st.Status, st.Error)
	assert.Equal(t, "Build the API", st.ActiveUnit)
	assert.Equal(t, cannedTable, st.Outcome)
	assert.Equal(t, string(orchestrator.ProgressComplete), st.Stages[pipeline.StageDecision])
	assert.Equal(t, string(orchestrator.ProgressComplete), st.Stages[pipeline.StageProposals+"/B"])
	assert.Contains(t, st.Report, "decision decided")

	unit := pipeline.UnitFolder("Build the API")
	_, err = os.Stat(filepath.Join(root, artifact.ProjectDir, unit, pipeline.DecisionFile))
	assert.NoError(t, err)
}

func TestRunService_Errors(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, _, err := svc.StartRun(ctx, nil, StartRunInput{Request: "  "})
	assert.Error(t, err)

	_, _, err = svc.RunStatus(ctx, nil, RunStatusInput{RunID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownRun)

	_, _, err = svc.ListPendingReviews(ctx, nil, ListPendingReviewsInput{RunID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownRun)

	_, started, err := svc.StartRun(ctx, nil, StartRunInput{Request: "build a todo app"})
	require.NoError(t, err)
	req := awaitReview(t, svc, started.RunID, pipeline.StagePlanReview)

	_, out, err := svc.SubmitReview(ctx, nil, SubmitReviewInput{RunID: started.RunID, RequestID: req.ID, Decision: "maybe"})
	assert.Error(t, err)
	assert.False(t, out.Accepted)

	_, out, err = svc.SubmitReview(ctx, nil, SubmitReviewInput{RunID: started.RunID, RequestID: req.ID, Decision: "changes"})
	assert.ErrorContains(t, err, "feedback is required")
	assert.False(t, out.Accepted)

	_, _, err = svc.SubmitReview(ctx, nil, SubmitReviewInput{RunID: started.RunID, RequestID: "unknown", Decision: "approve"})
	assert.Error(t, err)

	// The request is still pending after the rejected submissions.
	_, pending, err := svc.ListPendingReviews(ctx, nil, ListPendingReviewsInput{})
	require.NoError(t, err)
	require.Len(t, pending.Reviews, 1)
	assert.Equal(t, req.ID, pending.Reviews[0].ID)
}

func TestRunService_CloseCancelsRuns(t *testing.T) {
	svc := NewRunService(testBuilder(t), WithDefaultRoot(t.TempDir()))
	ctx := context.Background()

	_, started, err := svc.StartRun(ctx, nil, StartRunInput{Request: "r"})
	require.NoError(t, err)
	awaitReview(t, svc, started.RunID, pipeline.StagePlanReview)

	svc.Close()

	_, st, err := svc.RunStatus(ctx, nil, RunStatusInput{RunID: started.RunID})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Contains(t, st.Error, "context canceled")
}

func setupServerClient(t *testing.T) *mcp.ClientSession {
	t.Helper()
	server := NewServer(newService(t))
	st, ct := mcp.NewInMemoryTransports()
	ctx := context.Background()

	_, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func TestMCPListTools(t *testing.T) {
	session := setupServerClient(t)

	result, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
	}
	assert.ElementsMatch(t, []string{"start_run", "list_pending_reviews", "submit_review", "run_status"}, names)
}

func TestMCPStartRunOverTransport(t *testing.T) {
	out := t.TempDir()
	session := setupServerClient(t)
	ctx := context.Background()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "start_run",
		Arguments: StartRunInput{Request: "build a todo app", OutputDir: out},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "run_status",
		Arguments: RunStatusInput{RunID: "missing"},
	})
	// Tool errors come back either at the protocol level or as IsError.
	if err == nil {
		assert.True(t, result.IsError)
	}
}
