package export

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/blueprint/internal/diagram"
	"github.com/dusk-indust/blueprint/internal/orchestrator"
)

func noop(context.Context, orchestrator.RunState) (orchestrator.Update, error) {
	return orchestrator.Update{}, nil
}

func sampleGraph(t *testing.T) *orchestrator.Graph {
	t.Helper()
	approve := orchestrator.DecisionFunc(func(context.Context, orchestrator.ReviewRequest) (orchestrator.Decision, error) {
		return orchestrator.Approve(), nil
	})
	branch := func(context.Context, orchestrator.RunState) (string, error) { return "", nil }

	g := orchestrator.NewGraph()
	require.NoError(t, g.AddStage("project_lead", noop))
	require.NoError(t, g.AddReviewGate("plan_review", orchestrator.NewGate("plan_review", orchestrator.DocPlan, approve), "project_lead", "flow_diagram"))
	require.NoError(t, g.AddStage("flow_diagram", noop, orchestrator.Optional()))
	require.NoError(t, g.AddFanOut("proposals", []orchestrator.Branch{{Name: "A", Run: branch}, {Name: "B", Run: branch}}))
	require.NoError(t, g.AddEdge("project_lead", "plan_review"))
	require.NoError(t, g.AddEdge("flow_diagram", "proposals"))
	require.NoError(t, g.AddEdge("proposals", orchestrator.End))
	require.NoError(t, g.Validate())
	return g
}

func TestGraphMermaid(t *testing.T) {
	out := GraphMermaid(sampleGraph(t))

	require.NoError(t, diagram.Validate(out))
	assert.True(t, strings.HasPrefix(out, "graph LR\n"))
	assert.Contains(t, out, `N0["project_lead"]`)
	assert.Contains(t, out, `N1{"plan_review"}`)
	assert.Contains(t, out, `N3[["proposals"]]`)
	assert.Contains(t, out, `N4(("end"))`)
	assert.Contains(t, out, "N1 -- approve --> N2")
	assert.Contains(t, out, "N1 -- changes --> N0")
	assert.Contains(t, out, "N3 --> N4")
	assert.Contains(t, out, `subgraph N5["proposals siblings"]`)
	assert.Contains(t, out, `N6["A"]`)
	assert.Contains(t, out, "N3 -.-> N7")
	assert.Contains(t, out, "class N2 optional")
}

func TestGraphMermaid_Deterministic(t *testing.T) {
	g := sampleGraph(t)
	assert.Equal(t, GraphMermaid(g), GraphMermaid(g))
}

func TestCheckpointRoundTrip(t *testing.T) {
	state := orchestrator.NewRunState("build a todo app", "/tmp/out")
	require.NoError(t, state.Apply(orchestrator.Update{
		Documents:  map[orchestrator.DocumentKind]string{orchestrator.DocPlan: "# Plan"},
		ActiveUnit: orchestrator.Ptr("Set up scaffolding"),
		Proposals:  map[string]string{"A": "a", "B": "b"},
		Degraded:   []orchestrator.DegradedEvent{{Stage: "flow_diagram", Reason: "renderer down"}},
	}))

	data, err := Checkpoint(state)
	require.NoError(t, err)

	cp, err := LoadCheckpoint(data)
	require.NoError(t, err)
	assert.Equal(t, CheckpointVersion, cp.Version)
	assert.Equal(t, state.RunID, cp.State.RunID)
	assert.Equal(t, "# Plan", cp.State.Documents[orchestrator.DocPlan])
	assert.Equal(t, map[string]string{"A": "a", "B": "b"}, cp.State.Proposals)
	assert.Equal(t, "Set up scaffolding", cp.State.ActiveUnit)
	require.Len(t, cp.State.Degraded, 1)

	require.Len(t, cp.Stages, len(orchestrator.DocumentKinds))
	assert.Equal(t, StageExport{Document: "plan", Status: "complete", Bytes: 6}, cp.Stages[0])
	assert.Equal(t, "pending", cp.Stages[1].Status)
}

func TestCheckpoint_Errors(t *testing.T) {
	_, err := Checkpoint(nil)
	assert.Error(t, err)

	_, err = LoadCheckpoint([]byte("{not json"))
	assert.Error(t, err)

	_, err = LoadCheckpoint([]byte(`{"version": 99, "state": {}}`))
	assert.ErrorContains(t, err, "unsupported checkpoint version")

	_, err = LoadCheckpoint([]byte(`{"version": 1}`))
	assert.ErrorContains(t, err, "no run state")
}
