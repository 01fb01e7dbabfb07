package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxRevisions is the revision budget used when none is configured.
const DefaultMaxRevisions = 3

// Executor runs a Graph from its start node to End, one stage at a time
// except inside a fan-out point.
type Executor struct {
	graph        *Graph
	maxRevisions int
	logger       *slog.Logger
	progress     *ProgressReporter
	tracer       trace.Tracer
}

// Option customizes an Executor.
type Option func(*Executor)

// WithMaxRevisions sets how many times any stage may be re-entered. A stage
// may run at most n+1 times in one run.
func WithMaxRevisions(n int) Option {
	return func(e *Executor) {
		if n >= 0 {
			e.maxRevisions = n
		}
	}
}

// WithLogger sets the executor logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithProgress attaches a progress reporter.
func WithProgress(p *ProgressReporter) Option {
	return func(e *Executor) { e.progress = p }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewExecutor validates g and wraps it in an Executor.
func NewExecutor(g *Graph, opts ...Option) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("orchestrator: graph is required")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	e := &Executor{
		graph:        g,
		maxRevisions: DefaultMaxRevisions,
		logger:       slog.Default(),
		tracer:       otel.Tracer("github.com/dusk-indust/blueprint/orchestrator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run drives the graph until End is reached or a fatal error occurs. The
// returned state reflects every update merged before the failure.
func (e *Executor) Run(ctx context.Context, state *RunState) (*RunState, error) {
	if state == nil {
		return nil, fmt.Errorf("orchestrator: run state is required")
	}
	ctx, span := e.tracer.Start(ctx, "run", trace.WithAttributes(attribute.String("run.id", state.RunID)))
	defer span.End()

	visits := make(map[string]int)
	current := e.graph.start
	consumer := ""

	for current != End {
		if err := ctx.Err(); err != nil {
			return state, &StageExecutionError{Stage: current, Err: err}
		}
		visits[current]++
		if visits[current] > e.maxRevisions+1 {
			err := &CycleBudgetExceededError{Stage: current, Visits: visits[current], Limit: e.maxRevisions}
			span.RecordError(err)
			return state, err
		}

		s := e.graph.stages[current]
		if s.isFanOut() {
			// A new phase starts from an empty proposal set, even if it fails.
			if err := state.Apply(Update{ResetProposals: true}); err != nil {
				return state, &StageExecutionError{Stage: current, Err: err}
			}
		}
		update, err := e.execute(ctx, s, state)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return state, err
		}
		if err := state.Apply(update); err != nil {
			return state, &StageExecutionError{Stage: current, Err: err}
		}
		if consumer == current {
			state.clearRevision()
			consumer = ""
		}

		t, err := e.graph.resolve(current, state.Snapshot())
		if err != nil {
			return state, err
		}
		if t.consumer != "" {
			e.logger.Info("revision requested", "gate", current, "back", t.consumer)
			consumer = t.consumer
		}
		current = t.next
	}
	return state, nil
}

func (e *Executor) execute(ctx context.Context, s *stage, state *RunState) (Update, error) {
	ctx, span := e.tracer.Start(ctx, s.name, trace.WithAttributes(attribute.String("stage", s.name)))
	defer span.End()

	snapshot := state.Snapshot()
	var (
		update Update
		err    error
	)
	switch {
	case s.isFanOut():
		e.emit(ProgressEvent{Stage: s.name, Status: ProgressWorking})
		fan := NewFanOut(e.emit, e.tracer)
		update, err = collect(s.name, fan.Run(ctx, s.name, snapshot, s.branches))
	case s.gate != nil:
		e.emit(ProgressEvent{Stage: s.name, Status: ProgressWaiting})
		update, err = s.gate.Review(ctx, snapshot)
	default:
		e.emit(ProgressEvent{Stage: s.name, Status: ProgressWorking})
		update, err = runSolo(ctx, s, snapshot)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if s.optional && !s.isFanOut() {
			e.logger.Warn("optional stage failed, continuing", "stage", s.name, "err", err)
			e.emit(ProgressEvent{Stage: s.name, Status: ProgressDegraded, Message: err.Error()})
			return Update{Degraded: []DegradedEvent{{Stage: s.name, Reason: err.Error(), At: time.Now()}}}, nil
		}
		e.emit(ProgressEvent{Stage: s.name, Status: ProgressFailed, Message: err.Error()})

		var fe *FanOutError
		var se *StageExecutionError
		if errors.As(err, &fe) || errors.As(err, &se) {
			return Update{}, err
		}
		return Update{}, &StageExecutionError{Stage: s.name, Err: err}
	}

	for _, d := range update.Degraded {
		e.logger.Warn("degraded", "stage", d.Stage, "reason", d.Reason)
		e.emit(ProgressEvent{Stage: s.name, Status: ProgressDegraded, Message: d.Reason})
	}
	e.emit(ProgressEvent{Stage: s.name, Status: ProgressComplete})
	return update, nil
}

func runSolo(ctx context.Context, s *stage, snapshot RunState) (u Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panicked: %v", r)
		}
	}()
	return s.run(ctx, snapshot)
}

func (e *Executor) emit(ev ProgressEvent) {
	e.progress.Emit(ev)
}
