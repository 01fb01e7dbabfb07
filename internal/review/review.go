// Package review provides the decision sources that answer review gates:
// an in-process broker for API-driven callers, an interactive console, a
// file-based inbox, and fixed sources for unattended runs and tests.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dusk-indust/blueprint/internal/orchestrator"
)

// ErrUnknownRequest is returned when a decision names a request that is not
// (or no longer) waiting.
var ErrUnknownRequest = errors.New("review: unknown request")

// ErrScriptExhausted is returned by Scripted once every decision is used.
var ErrScriptExhausted = errors.New("review: scripted decisions exhausted")

// ParseDecision turns a verb such as "approve" or "changes" plus optional
// feedback into a Decision. Feedback is passed through untouched; blank
// feedback on a change request is the gate's to refuse.
func ParseDecision(verb, feedback string) (orchestrator.Decision, error) {
	switch strings.ToLower(strings.TrimSpace(verb)) {
	case "", "a", "y", "yes", "approve", "approved", "ok":
		return orchestrator.Approve(), nil
	case "c", "n", "changes", "change", "request-changes", "request_changes", "reject":
		return orchestrator.RequestChanges(feedback), nil
	default:
		return orchestrator.Decision{}, fmt.Errorf("review: unrecognized decision %q", verb)
	}
}

// AutoApprove approves every request. It backs -auto-approve and tests.
type AutoApprove struct{}

// Decide implements orchestrator.DecisionSource.
func (AutoApprove) Decide(ctx context.Context, _ orchestrator.ReviewRequest) (orchestrator.Decision, error) {
	if err := ctx.Err(); err != nil {
		return orchestrator.Decision{}, err
	}
	return orchestrator.Approve(), nil
}

// Scripted replays a fixed list of decisions in order and records every
// request it was asked about.
type Scripted struct {
	mu        sync.Mutex
	decisions []orchestrator.Decision
	requests  []orchestrator.ReviewRequest
}

// NewScripted returns a source that answers with ds in order.
func NewScripted(ds ...orchestrator.Decision) *Scripted {
	return &Scripted{decisions: append([]orchestrator.Decision(nil), ds...)}
}

// Decide implements orchestrator.DecisionSource.
func (s *Scripted) Decide(ctx context.Context, req orchestrator.ReviewRequest) (orchestrator.Decision, error) {
	if err := ctx.Err(); err != nil {
		return orchestrator.Decision{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.decisions) == 0 {
		return orchestrator.Decision{}, ErrScriptExhausted
	}
	d := s.decisions[0]
	s.decisions = s.decisions[1:]
	return d, nil
}

// Requests returns a copy of the requests seen so far.
func (s *Scripted) Requests() []orchestrator.ReviewRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]orchestrator.ReviewRequest(nil), s.requests...)
}
