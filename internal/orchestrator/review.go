package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DecisionKind is the verdict of a review.
type DecisionKind int

const (
	DecisionApprove DecisionKind = iota
	DecisionRequestChanges
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionApprove:
		return "approve"
	case DecisionRequestChanges:
		return "request-changes"
	default:
		return "unknown"
	}
}

// Decision is an external reviewer's answer to a ReviewRequest.
type Decision struct {
	Kind     DecisionKind
	Feedback string
}

// Approve accepts the reviewed document.
func Approve() Decision { return Decision{Kind: DecisionApprove} }

// RequestChanges sends the document back with feedback.
func RequestChanges(feedback string) Decision {
	return Decision{Kind: DecisionRequestChanges, Feedback: feedback}
}

// ReviewRequest is what a gate publishes while it waits for a decision.
type ReviewRequest struct {
	ID        string       `json:"id"`
	RunID     string       `json:"runId"`
	Gate      string       `json:"gate"`
	Document  DocumentKind `json:"document"`
	Content   string       `json:"content"`
	Iteration int          `json:"iteration"`
	// Rejection explains why the previous decision for this gate visit was
	// refused; empty on the first prompt.
	Rejection string    `json:"rejection,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// DecisionSource supplies review decisions. Decide blocks until a decision
// is available or ctx is done.
type DecisionSource interface {
	Decide(ctx context.Context, req ReviewRequest) (Decision, error)
}

// DecisionFunc adapts a function to DecisionSource.
type DecisionFunc func(ctx context.Context, req ReviewRequest) (Decision, error)

// Decide calls f.
func (f DecisionFunc) Decide(ctx context.Context, req ReviewRequest) (Decision, error) {
	return f(ctx, req)
}

// Gate is a stage that blocks on an external decision and turns it into the
// needs_revision / pending_feedback routing fields.
type Gate struct {
	name       string
	document   DocumentKind
	source     DecisionSource
	maxPrompts int
	logger     *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithMaxPrompts bounds how many unusable decisions a gate tolerates in a
// single visit before failing with ErrInvalidDecision.
func WithMaxPrompts(n int) GateOption {
	return func(g *Gate) {
		if n > 0 {
			g.maxPrompts = n
		}
	}
}

// WithGateLogger sets the gate logger.
func WithGateLogger(l *slog.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGate creates a review gate over one document kind.
func NewGate(name string, document DocumentKind, source DecisionSource, opts ...GateOption) *Gate {
	g := &Gate{
		name:       name,
		document:   document,
		source:     source,
		maxPrompts: 5,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the gate name.
func (g *Gate) Name() string { return g.name }

// Review asks the decision source for a verdict on the current document and
// returns the routing update. RequestChanges with blank feedback is refused
// and the source is asked again with the refusal reason attached.
func (g *Gate) Review(ctx context.Context, state RunState) (Update, error) {
	req := ReviewRequest{
		ID:        uuid.NewString(),
		RunID:     state.RunID,
		Gate:      g.name,
		Document:  g.document,
		Content:   state.Documents[g.document],
		Iteration: len(state.FeedbackFor(g.name)) + 1,
		CreatedAt: time.Now(),
	}

	for attempt := 0; attempt < g.maxPrompts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Update{}, err
		}
		d, err := g.source.Decide(ctx, req)
		if err != nil {
			return Update{}, fmt.Errorf("review %s: %w", g.name, err)
		}

		switch d.Kind {
		case DecisionApprove:
			return Update{NeedsRevision: Ptr(false), PendingFeedback: Ptr("")}, nil
		case DecisionRequestChanges:
			feedback := strings.TrimSpace(d.Feedback)
			if feedback == "" {
				g.logger.Warn("review: change request without feedback rejected", "gate", g.name)
				req.Rejection = "a change request must include feedback"
				req.ID = uuid.NewString()
				continue
			}
			return Update{
				NeedsRevision:   Ptr(true),
				PendingFeedback: Ptr(feedback),
				Feedback:        []Feedback{{Gate: g.name, Document: g.document, Text: feedback}},
			}, nil
		default:
			req.Rejection = fmt.Sprintf("unknown decision kind %d", d.Kind)
			req.ID = uuid.NewString()
		}
	}
	return Update{}, fmt.Errorf("review %s: %w after %d prompts", g.name, ErrInvalidDecision, g.maxPrompts)
}
