package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopStage(ctx context.Context, state RunState) (Update, error) { return Update{}, nil }

func TestRevisionRouter(t *testing.T) {
	r := RevisionRouter("back", "forward")
	assert.Equal(t, "forward", r(RunState{}))
	assert.Equal(t, "back", r(RunState{NeedsRevision: true, PendingFeedback: "x"}))
}

func TestDocumentRouter(t *testing.T) {
	r := DocumentRouter(DocDiagram, "render", End)
	assert.Equal(t, End, r(RunState{Documents: map[DocumentKind]string{}}))
	assert.Equal(t, "render", r(RunState{Documents: map[DocumentKind]string{DocDiagram: "graph LR"}}))
}

func TestGraph_AddStage_Duplicate(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddStage("plan", noopStage))

	err := g.AddStage("plan", noopStage)
	var dup *DuplicateStageError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "plan", dup.Stage)
}

func TestGraph_AddStage_ReservedNames(t *testing.T) {
	g := NewGraph()
	assert.Error(t, g.AddStage(End, noopStage))
	assert.Error(t, g.AddStage("", noopStage))
	assert.Error(t, g.AddStage("nil", nil))
}

func TestGraph_AddFanOut_DuplicateBranch(t *testing.T) {
	g := NewGraph()
	branch := func(ctx context.Context, s RunState) (string, error) { return "", nil }
	err := g.AddFanOut("proposals", []Branch{{Name: "A", Run: branch}, {Name: "A", Run: branch}})
	var dup *DuplicateStageError
	require.True(t, errors.As(err, &dup))
	assert.Error(t, g.AddFanOut("empty", nil))
}

func TestGraph_SecondOutgoingEdgeRejected(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddStage("a", noopStage))
	require.NoError(t, g.AddEdge("a", End))
	assert.Error(t, g.AddEdge("a", End))
	assert.Error(t, g.AddConditionalEdge("a", func(RunState) string { return End }))
}

func TestGraph_Validate(t *testing.T) {
	t.Run("missing edge", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.AddStage("a", noopStage))
		var ue *UnreachableStageError
		require.True(t, errors.As(g.Validate(), &ue))
		assert.Equal(t, "a", ue.Stage)
		assert.Empty(t, ue.Target)
	})

	t.Run("unknown target", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.AddStage("a", noopStage))
		require.NoError(t, g.AddEdge("a", "ghost"))
		var ue *UnreachableStageError
		require.True(t, errors.As(g.Validate(), &ue))
		assert.Equal(t, "ghost", ue.Target)
	})

	t.Run("unknown revision target", func(t *testing.T) {
		g := NewGraph()
		gate := NewGate("review", DocPlan, DecisionFunc(func(context.Context, ReviewRequest) (Decision, error) {
			return Approve(), nil
		}))
		require.NoError(t, g.AddReviewGate("review", gate, "ghost", End))
		var ue *UnreachableStageError
		require.True(t, errors.As(g.Validate(), &ue))
	})

	t.Run("empty graph", func(t *testing.T) {
		assert.Error(t, NewGraph().Validate())
	})

	t.Run("valid", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.AddStage("a", noopStage))
		require.NoError(t, g.AddStage("b", noopStage))
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", End))
		assert.NoError(t, g.Validate())
		assert.Equal(t, "a", g.Start())
	})
}

func TestGraph_SetStart(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddStage("a", noopStage))
	require.NoError(t, g.AddStage("b", noopStage))
	require.NoError(t, g.SetStart("b"))
	assert.Equal(t, "b", g.Start())
	assert.Error(t, g.SetStart("ghost"))
}

func TestGraph_Edges(t *testing.T) {
	g := NewGraph()
	gate := NewGate("review", DocPlan, DecisionFunc(func(context.Context, ReviewRequest) (Decision, error) {
		return Approve(), nil
	}))
	require.NoError(t, g.AddStage("plan", noopStage))
	require.NoError(t, g.AddReviewGate("review", gate, "plan", End))
	require.NoError(t, g.AddEdge("plan", "review"))

	edges := g.Edges()
	require.Len(t, edges, 3)
	assert.Equal(t, EdgeInfo{From: "plan", To: "review"}, edges[0])
	assert.Equal(t, EdgeInfo{From: "review", To: End, Conditional: true, Label: "approve"}, edges[1])
	assert.Equal(t, EdgeInfo{From: "review", To: "plan", Conditional: true, Label: "changes"}, edges[2])
}

func TestResolve_RouterReturnsUnknown(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddStage("a", noopStage))
	require.NoError(t, g.AddConditionalEdge("a", func(RunState) string { return "nowhere" }))

	_, err := g.resolve("a", RunState{})
	var ue *UnreachableStageError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "nowhere", ue.Target)
}
