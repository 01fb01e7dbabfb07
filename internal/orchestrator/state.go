package orchestrator

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunState is the single mutable aggregate for one pipeline execution.
// Stages never mutate it directly; they return an Update which the executor
// merges with Apply.
type RunState struct {
	RunID string `json:"runId"`

	// OriginalRequest and OutputLocation are fixed by NewRunState. Update has
	// no fields for them, so no stage can overwrite either.
	OriginalRequest string `json:"originalRequest"`
	OutputLocation  string `json:"outputLocation"`

	Documents map[DocumentKind]string `json:"documents"`

	NeedsRevision   bool   `json:"needsRevision"`
	PendingFeedback string `json:"pendingFeedback,omitempty"`

	// FeedbackHistory accumulates every accepted RequestChanges decision so a
	// re-executed stage can see all earlier feedback, not only the latest.
	FeedbackHistory []Feedback `json:"feedbackHistory,omitempty"`

	ActiveUnit      string            `json:"activeUnit,omitempty"`
	Proposals       map[string]string `json:"proposals"`
	SelectedOutcome string            `json:"selectedOutcome,omitempty"`

	Degraded []DegradedEvent `json:"degraded,omitempty"`
}

// Feedback is one reviewer change request recorded against a gate.
type Feedback struct {
	Gate     string       `json:"gate"`
	Document DocumentKind `json:"document"`
	Text     string       `json:"text"`
}

// DegradedEvent records a best-effort fallback taken during the run.
type DegradedEvent struct {
	Stage  string    `json:"stage"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Update is a partial write produced by a stage. Nil pointers and nil maps
// leave the corresponding field untouched.
type Update struct {
	Documents map[DocumentKind]string

	NeedsRevision   *bool
	PendingFeedback *string
	Feedback        []Feedback

	ActiveUnit *string

	// ResetProposals clears the proposal mapping before Proposals is merged.
	// A fan-out phase sets it so results of an earlier phase never leak in.
	ResetProposals bool
	Proposals      map[string]string

	SelectedOutcome *string

	Degraded []DegradedEvent
}

// NewRunState creates the state for one run.
func NewRunState(request, outputLocation string) *RunState {
	return &RunState{
		RunID:           uuid.NewString(),
		OriginalRequest: request,
		OutputLocation:  outputLocation,
		Documents:       make(map[DocumentKind]string),
		Proposals:       make(map[string]string),
	}
}

// Document returns the content of a document kind and whether it was written.
func (s *RunState) Document(kind DocumentKind) (string, bool) {
	v, ok := s.Documents[kind]
	return v, ok
}

// FeedbackFor returns all recorded feedback texts for a gate, oldest first.
func (s *RunState) FeedbackFor(gate string) []string {
	var out []string
	for _, f := range s.FeedbackHistory {
		if f.Gate == gate {
			out = append(out, f.Text)
		}
	}
	return out
}

// Apply merges u into s. Documents and scalar fields are last-write-wins;
// proposals merge through MergeProposals. The revision invariant is checked
// against the resulting state, and s is left unchanged when it would break.
func (s *RunState) Apply(u Update) error {
	needs := s.NeedsRevision
	if u.NeedsRevision != nil {
		needs = *u.NeedsRevision
	}
	feedback := s.PendingFeedback
	if u.PendingFeedback != nil {
		feedback = *u.PendingFeedback
	}
	if needs && strings.TrimSpace(feedback) == "" {
		return fmt.Errorf("state: needs_revision set without feedback")
	}

	if s.Documents == nil {
		s.Documents = make(map[DocumentKind]string)
	}
	for kind, content := range u.Documents {
		s.Documents[kind] = content
	}

	s.NeedsRevision = needs
	s.PendingFeedback = feedback
	s.FeedbackHistory = append(s.FeedbackHistory, u.Feedback...)

	if u.ActiveUnit != nil {
		s.ActiveUnit = *u.ActiveUnit
	}

	base := s.Proposals
	if u.ResetProposals {
		base = nil
	}
	s.Proposals = MergeProposals(base, u.Proposals)

	if u.SelectedOutcome != nil {
		s.SelectedOutcome = *u.SelectedOutcome
	}
	s.Degraded = append(s.Degraded, u.Degraded...)
	return nil
}

// clearRevision drops the transient routing signal once it has been consumed.
func (s *RunState) clearRevision() {
	s.NeedsRevision = false
	s.PendingFeedback = ""
}

// Snapshot returns a deep copy that can be handed to concurrent readers.
func (s *RunState) Snapshot() RunState {
	c := *s
	c.Documents = maps.Clone(s.Documents)
	c.Proposals = maps.Clone(s.Proposals)
	c.FeedbackHistory = slices.Clone(s.FeedbackHistory)
	c.Degraded = slices.Clone(s.Degraded)
	if c.Documents == nil {
		c.Documents = make(map[DocumentKind]string)
	}
	if c.Proposals == nil {
		c.Proposals = make(map[string]string)
	}
	return c
}

// Ptr returns a pointer to v. Stages use it to build Update literals.
func Ptr[T any](v T) *T { return &v }
