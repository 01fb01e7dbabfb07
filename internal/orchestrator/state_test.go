package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunState(t *testing.T) {
	s := NewRunState("build a todo app", "/tmp/out")
	assert.NotEmpty(t, s.RunID)
	assert.Equal(t, "build a todo app", s.OriginalRequest)
	assert.Equal(t, "/tmp/out", s.OutputLocation)
	assert.NotNil(t, s.Documents)
	assert.Empty(t, s.Proposals)
}

func TestApply_DocumentsLastWriteWins(t *testing.T) {
	s := NewRunState("r", "o")
	require.NoError(t, s.Apply(Update{Documents: map[DocumentKind]string{DocPlan: "v1"}}))
	require.NoError(t, s.Apply(Update{Documents: map[DocumentKind]string{DocPlan: "v2", DocMilestones: "m"}}))

	plan, ok := s.Document(DocPlan)
	require.True(t, ok)
	assert.Equal(t, "v2", plan)
	assert.Equal(t, "m", s.Documents[DocMilestones])
}

func TestApply_RevisionInvariant(t *testing.T) {
	s := NewRunState("r", "o")

	err := s.Apply(Update{NeedsRevision: Ptr(true)})
	require.Error(t, err)
	assert.False(t, s.NeedsRevision, "state must be unchanged after a rejected update")

	err = s.Apply(Update{NeedsRevision: Ptr(true), PendingFeedback: Ptr("   ")})
	require.Error(t, err)

	require.NoError(t, s.Apply(Update{NeedsRevision: Ptr(true), PendingFeedback: Ptr("fix X")}))
	assert.True(t, s.NeedsRevision)
	assert.Equal(t, "fix X", s.PendingFeedback)

	// Clearing feedback while the flag stays set is also refused.
	require.Error(t, s.Apply(Update{PendingFeedback: Ptr("")}))
	assert.Equal(t, "fix X", s.PendingFeedback)
}

func TestApply_ResetProposals(t *testing.T) {
	s := NewRunState("r", "o")
	require.NoError(t, s.Apply(Update{Proposals: map[string]string{"OLD": "x"}}))
	require.NoError(t, s.Apply(Update{ResetProposals: true, Proposals: map[string]string{"A": "a"}}))
	assert.Equal(t, map[string]string{"A": "a"}, s.Proposals)
}

func TestApply_ScalarsAndHistory(t *testing.T) {
	s := NewRunState("r", "o")
	require.NoError(t, s.Apply(Update{
		ActiveUnit:      Ptr("Set up scaffolding"),
		SelectedOutcome: Ptr("A wins"),
		Feedback:        []Feedback{{Gate: "plan_review", Text: "more detail"}},
		Degraded:        []DegradedEvent{{Stage: "select_unit", Reason: "fallback"}},
	}))
	assert.Equal(t, "Set up scaffolding", s.ActiveUnit)
	assert.Equal(t, "A wins", s.SelectedOutcome)
	assert.Equal(t, []string{"more detail"}, s.FeedbackFor("plan_review"))
	assert.Empty(t, s.FeedbackFor("milestone_review"))
	require.Len(t, s.Degraded, 1)
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	s := NewRunState("r", "o")
	require.NoError(t, s.Apply(Update{
		Documents: map[DocumentKind]string{DocPlan: "plan"},
		Proposals: map[string]string{"A": "a"},
	}))

	snap := s.Snapshot()
	snap.Documents[DocPlan] = "mutated"
	snap.Proposals["B"] = "b"

	assert.Equal(t, "plan", s.Documents[DocPlan])
	assert.NotContains(t, s.Proposals, "B")
}
