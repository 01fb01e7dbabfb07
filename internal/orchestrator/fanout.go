package orchestrator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// BranchResult holds the outcome of one fan-out sibling.
type BranchResult struct {
	Name string
	Text string
	Err  error
}

// FanOut runs the siblings of a fan-out point concurrently and waits for all
// of them. Unlike a fail-fast group, a failing sibling does not cancel the
// others: every sibling runs to completion so the caller can report partial
// results alongside the failures.
type FanOut struct {
	onProgress func(ProgressEvent)
	tracer     trace.Tracer
}

// NewFanOut creates a FanOut. onProgress is called from each goroutine; it
// may be nil.
func NewFanOut(onProgress func(ProgressEvent), tracer trace.Tracer) *FanOut {
	return &FanOut{onProgress: onProgress, tracer: tracer}
}

// Run executes every branch on its own copy of snapshot and returns one
// result per branch, in branch order. Each goroutine is the only writer of
// its slot in the result slice.
func (f *FanOut) Run(ctx context.Context, stage string, snapshot RunState, branches []Branch) []BranchResult {
	results := make([]BranchResult, len(branches))
	var g errgroup.Group

	for i, b := range branches {
		f.emit(ProgressEvent{Stage: stage, Branch: b.Name, Status: ProgressPending})
		view := snapshot.Snapshot()

		g.Go(func() error {
			f.emit(ProgressEvent{Stage: stage, Branch: b.Name, Status: ProgressWorking})
			text, err := f.runBranch(ctx, stage, b, view)
			results[i] = BranchResult{Name: b.Name, Text: text, Err: err}
			if err != nil {
				f.emit(ProgressEvent{Stage: stage, Branch: b.Name, Status: ProgressFailed, Message: err.Error()})
			} else {
				f.emit(ProgressEvent{Stage: stage, Branch: b.Name, Status: ProgressComplete})
			}
			// Failures are carried in results; returning nil keeps Wait a
			// pure barrier.
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func (f *FanOut) runBranch(ctx context.Context, stage string, b Branch, view RunState) (text string, err error) {
	ctx, span := f.tracer.Start(ctx, stage+"/"+b.Name,
		trace.WithAttributes(attribute.String("fanout.stage", stage), attribute.String("fanout.branch", b.Name)))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("branch %q panicked: %v", b.Name, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	return b.Run(ctx, view)
}

// collect turns branch results into either a merged Update or a FanOutError.
// Nothing is merged when any branch failed.
func collect(stage string, results []BranchResult) (Update, error) {
	failed := make(map[string]error)
	partial := make(map[string]string)
	updates := make([]Update, 0, len(results))
	enrolled := make([]string, 0, len(results))

	for _, r := range results {
		enrolled = append(enrolled, r.Name)
		if r.Err != nil {
			failed[r.Name] = r.Err
			continue
		}
		partial[r.Name] = r.Text
		updates = append(updates, Update{Proposals: map[string]string{r.Name: r.Text}})
	}
	if len(failed) > 0 {
		return Update{}, &FanOutError{Stage: stage, Failed: failed, Partial: partial}
	}

	merged, err := ReduceUpdates(updates...)
	if err != nil {
		return Update{}, err
	}
	if err := checkEnrollment(merged.Proposals, enrolled); err != nil {
		return Update{}, err
	}
	merged.ResetProposals = true
	return merged, nil
}

func (f *FanOut) emit(ev ProgressEvent) {
	if f.onProgress != nil {
		f.onProgress(ev)
	}
}
