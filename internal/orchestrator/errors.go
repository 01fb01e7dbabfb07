package orchestrator

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrInvalidDecision is returned by a review gate when its decision source
// keeps producing unusable decisions.
var ErrInvalidDecision = errors.New("invalid review decision")

// DuplicateStageError reports a second registration under the same name.
type DuplicateStageError struct {
	Stage string
}

func (e *DuplicateStageError) Error() string {
	return fmt.Sprintf("orchestrator: stage %q registered twice", e.Stage)
}

// UnreachableStageError reports a missing transition: either no edge leaves
// Stage, or a router or edge named a Target that is not registered.
type UnreachableStageError struct {
	Stage  string
	Target string
}

func (e *UnreachableStageError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("orchestrator: no edge defined from stage %q", e.Stage)
	}
	return fmt.Sprintf("orchestrator: stage %q routes to unknown stage %q", e.Stage, e.Target)
}

// CycleBudgetExceededError reports a stage re-entered more often than the
// configured revision budget allows.
type CycleBudgetExceededError struct {
	Stage  string
	Visits int
	Limit  int
}

func (e *CycleBudgetExceededError) Error() string {
	return fmt.Sprintf("orchestrator: stage %q entered %d times, revision budget is %d",
		e.Stage, e.Visits, e.Limit)
}

// StageExecutionError wraps a failure raised by a stage's own logic.
type StageExecutionError struct {
	Stage string
	Err   error
}

func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("orchestrator: stage %q failed: %v", e.Stage, e.Err)
}

func (e *StageExecutionError) Unwrap() error { return e.Err }

// FanOutError reports that one or more fan-out siblings failed. Partial
// holds the results of the siblings that succeeded.
type FanOutError struct {
	Stage   string
	Failed  map[string]error
	Partial map[string]string
}

// FailedNames returns the failed sibling names in sorted order.
func (e *FanOutError) FailedNames() []string {
	return slices.Sorted(maps.Keys(e.Failed))
}

func (e *FanOutError) Error() string {
	names := e.FailedNames()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failed[name]))
	}
	return fmt.Sprintf("orchestrator: fan-out %q failed for %d of %d workers (%s)",
		e.Stage, len(e.Failed), len(e.Failed)+len(e.Partial), strings.Join(parts, "; "))
}

// Unwrap exposes the individual sibling errors to errors.Is/As.
func (e *FanOutError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, name := range e.FailedNames() {
		errs = append(errs, e.Failed[name])
	}
	return errs
}
