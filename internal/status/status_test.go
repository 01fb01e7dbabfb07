package status

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/blueprint/internal/artifact"
	"github.com/dusk-indust/blueprint/internal/export"
	"github.com/dusk-indust/blueprint/internal/orchestrator"
	"github.com/dusk-indust/blueprint/internal/pipeline"
)

func TestScan_Missing(t *testing.T) {
	r, err := Scan(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.False(t, r.Exists)
	assert.Len(t, r.Documents, 4)
	assert.Equal(t, orchestrator.DocPlan, r.NextDocument())
	assert.Equal(t, pipeline.StageProjectLead, r.NextStage())
	assert.Contains(t, r.Format(), "No blueprint output")
}

func TestScan_PartialRun(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sink := artifact.NewFSSink(root)

	_, err := sink.WriteText(ctx, pipeline.PlanFile, "# Plan")
	require.NoError(t, err)
	_, err = sink.RenderSecondary(ctx, pipeline.PlanFile)
	require.NoError(t, err)
	_, err = sink.WriteText(ctx, pipeline.MilestoneFile, "| M |")
	require.NoError(t, err)

	r, err := Scan(ctx, root)
	require.NoError(t, err)
	assert.True(t, r.Exists)
	assert.True(t, r.Documents[0].Complete)
	assert.True(t, r.Documents[0].Secondary)
	assert.True(t, r.Documents[1].Complete)
	assert.False(t, r.Documents[1].Secondary)
	assert.Equal(t, orchestrator.DocTechStack, r.NextDocument())
	assert.Equal(t, pipeline.StageTechStack, r.NextStage())
	assert.Empty(t, r.Units)
	assert.False(t, r.Done())

	out := r.Format()
	assert.Contains(t, out, "[x] Project Plan")
	assert.Contains(t, out, "milestone.md (no rendered copy)")
	assert.Contains(t, out, "Next: tech_stack")
	assert.NotContains(t, out, "tech-stack")
}

func TestScan_CompleteRun(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sink := artifact.NewFSSink(root)
	unit := pipeline.UnitFolder("Set up scaffolding")

	for _, rel := range []string{
		pipeline.PlanFile, pipeline.MilestoneFile, pipeline.TechStackFile, pipeline.DiagramFile,
		filepath.Join(unit, pipeline.ProposalFile("B")),
		filepath.Join(unit, pipeline.ProposalFile("A")),
		filepath.Join(unit, pipeline.DecisionFile),
	} {
		_, err := sink.WriteText(ctx, filepath.ToSlash(rel), "x")
		require.NoError(t, err)
	}

	state := orchestrator.NewRunState("todo", root)
	state.Degraded = append(state.Degraded, orchestrator.DegradedEvent{Stage: "flow_diagram", Reason: "renderer down"})
	data, err := export.Checkpoint(state)
	require.NoError(t, err)
	_, err = sink.WriteText(ctx, pipeline.CheckpointFile, string(data))
	require.NoError(t, err)

	r, err := Scan(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.DocumentKind(""), r.NextDocument())
	assert.Empty(t, r.NextStage())
	require.Len(t, r.Units, 1)
	assert.Equal(t, UnitInfo{Folder: unit, Proposals: []string{"A", "B"}, Decision: true}, r.Units[0])
	assert.True(t, r.Done())
	require.NotNil(t, r.Checkpoint)
	assert.Equal(t, state.RunID, r.Checkpoint.State.RunID)

	out := r.Format()
	assert.Contains(t, out, "2 proposal(s) [A, B], decision decided")
	assert.Contains(t, out, "degraded at flow_diagram: renderer down")
	assert.NotContains(t, out, "Next:")
}

func TestScan_BadCheckpoint(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, artifact.ProjectDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, pipeline.CheckpointFile), []byte("{"), 0o644))

	r, err := Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Nil(t, r.Checkpoint)
	assert.NotEmpty(t, r.CheckpointErr)
	assert.Contains(t, r.Format(), "Checkpoint unreadable")
}
