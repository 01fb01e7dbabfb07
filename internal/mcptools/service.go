package mcptools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/blueprint/internal/orchestrator"
	"github.com/dusk-indust/blueprint/internal/pipeline"
	"github.com/dusk-indust/blueprint/internal/review"
	"github.com/dusk-indust/blueprint/internal/status"
)

// Run statuses reported by run_status.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrUnknownRun is returned for a run id the service has not started.
var ErrUnknownRun = errors.New("unknown run")

// Builder assembles the pipeline for one run. Every run gets its own
// decision source so review requests never cross runs.
type Builder func(root string, reviews orchestrator.DecisionSource) (*pipeline.Pipeline, error)

type run struct {
	id     string
	root   string
	broker *review.Broker
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	stages map[string]string
	state  *orchestrator.RunState
	err    error
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// RunService handles MCP tool calls. Runs execute in background goroutines
// and block at review gates until submit_review resolves them.
type RunService struct {
	build   Builder
	root    string
	logger  *slog.Logger
	runOpts []orchestrator.Option

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	runs map[string]*run
}

// ServiceOption configures a RunService.
type ServiceOption func(*RunService)

// WithDefaultRoot sets the output root used when start_run omits one.
func WithDefaultRoot(root string) ServiceOption {
	return func(s *RunService) { s.root = root }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *RunService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRunOptions passes executor options to every run.
func WithRunOptions(opts ...orchestrator.Option) ServiceOption {
	return func(s *RunService) { s.runOpts = append(s.runOpts, opts...) }
}

// NewRunService creates a RunService that builds pipelines with build.
func NewRunService(build Builder, opts ...ServiceOption) *RunService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &RunService{
		build:  build,
		root:   ".",
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
		runs:   make(map[string]*run),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close cancels every active run and waits for them to stop.
func (s *RunService) Close() {
	s.cancel()
	s.wg.Wait()
}

// StartRun starts a pipeline run in the background and returns its id.
func (s *RunService) StartRun(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input StartRunInput,
) (*mcp.CallToolResult, StartRunOutput, error) {
	request := strings.TrimSpace(input.Request)
	if request == "" {
		return nil, StartRunOutput{}, fmt.Errorf("request must not be empty")
	}
	root := input.OutputDir
	if root == "" {
		root = s.root
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, StartRunOutput{}, fmt.Errorf("output dir: %w", err)
	}

	broker := review.NewBroker()
	p, err := s.build(root, broker)
	if err != nil {
		return nil, StartRunOutput{}, err
	}

	state := orchestrator.NewRunState(request, root)
	ctx, cancel := context.WithCancel(s.ctx)
	r := &run{
		id:     state.RunID,
		root:   root,
		broker: broker,
		cancel: cancel,
		done:   make(chan struct{}),
		stages: make(map[string]string),
	}
	s.mu.Lock()
	s.runs[r.id] = r
	s.mu.Unlock()

	progress := orchestrator.NewProgressReporter()
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range progress.Subscribe() {
			r.mu.Lock()
			r.stages[ev.Label()] = string(ev.Status)
			r.mu.Unlock()
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(r.done)
		defer cancel()

		opts := append(append([]orchestrator.Option(nil), s.runOpts...), orchestrator.WithProgress(progress))
		final, err := p.Run(ctx, state, opts...)
		progress.Close()
		<-drained

		r.mu.Lock()
		r.state, r.err = final, err
		r.mu.Unlock()
		if err != nil {
			s.logger.Error("run failed", "run", r.id, "err", err)
			return
		}
		s.logger.Info("run completed", "run", r.id, "root", root)
	}()

	return nil, StartRunOutput{RunID: r.id, OutputDir: root, Workers: p.Enrolled()}, nil
}

// ListPendingReviews returns review requests waiting for a decision.
func (s *RunService) ListPendingReviews(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ListPendingReviewsInput,
) (*mcp.CallToolResult, ListPendingReviewsOutput, error) {
	var runs []*run
	if input.RunID != "" {
		r, err := s.lookup(input.RunID)
		if err != nil {
			return nil, ListPendingReviewsOutput{}, err
		}
		runs = []*run{r}
	} else {
		runs = s.all()
	}

	out := ListPendingReviewsOutput{Reviews: []orchestrator.ReviewRequest{}}
	for _, r := range runs {
		out.Reviews = append(out.Reviews, r.broker.List()...)
	}
	return nil, out, nil
}

// SubmitReview resolves one pending review request.
func (s *RunService) SubmitReview(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input SubmitReviewInput,
) (*mcp.CallToolResult, SubmitReviewOutput, error) {
	r, err := s.lookup(input.RunID)
	if err != nil {
		return nil, SubmitReviewOutput{}, err
	}
	d, err := review.ParseDecision(input.Decision, input.Feedback)
	if err != nil {
		return nil, SubmitReviewOutput{Message: err.Error()}, err
	}
	if d.Kind == orchestrator.DecisionRequestChanges && strings.TrimSpace(d.Feedback) == "" {
		err := fmt.Errorf("feedback is required when requesting changes")
		return nil, SubmitReviewOutput{Message: err.Error()}, err
	}
	if err := r.broker.Resolve(input.RequestID, d); err != nil {
		return nil, SubmitReviewOutput{Message: err.Error()}, err
	}
	return nil, SubmitReviewOutput{Accepted: true}, nil
}

// RunStatus reports the progress of one run. Once the run has finished the
// on-disk report is included.
func (s *RunService) RunStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RunStatusInput,
) (*mcp.CallToolResult, RunStatusOutput, error) {
	r, err := s.lookup(input.RunID)
	if err != nil {
		return nil, RunStatusOutput{}, err
	}

	out := RunStatusOutput{RunID: r.id, Status: StatusRunning, Stages: make(map[string]string)}
	finished := r.finished()

	r.mu.Lock()
	for k, v := range r.stages {
		out.Stages[k] = v
	}
	if finished {
		out.Status = StatusCompleted
		if r.err != nil {
			out.Status = StatusFailed
			out.Error = r.err.Error()
		}
		if st := r.state; st != nil {
			out.Degraded = st.Degraded
			out.ActiveUnit = st.ActiveUnit
			out.Outcome = st.SelectedOutcome
		}
	}
	r.mu.Unlock()

	if !finished {
		out.Pending = r.broker.List()
		return nil, out, nil
	}
	report, err := status.Scan(ctx, r.root)
	if err != nil {
		s.logger.Warn("status scan failed", "run", r.id, "err", err)
		return nil, out, nil
	}
	out.Report = report.Format()
	return nil, out, nil
}

func (s *RunService) lookup(id string) (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, id)
	}
	return r, nil
}

func (s *RunService) all() []*run {
	s.mu.Lock()
	runs := make([]*run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.Unlock()
	sort.Slice(runs, func(i, j int) bool { return runs[i].id < runs[j].id })
	return runs
}
