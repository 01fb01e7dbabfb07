// Package pipeline assembles the planning workflow: the project lead writes
// a plan, milestones and a tech stack follow behind review gates, then every
// enrolled worker proposes an approach for the first milestone and an
// arbiter picks one.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/dusk-indust/blueprint/internal/artifact"
	"github.com/dusk-indust/blueprint/internal/diagram"
	"github.com/dusk-indust/blueprint/internal/export"
	"github.com/dusk-indust/blueprint/internal/orchestrator"
	"github.com/dusk-indust/blueprint/internal/worker"
)

// Stage names.
const (
	StageProjectLead     = "project_lead"
	StagePlanReview      = "plan_review"
	StageMilestones      = "milestones"
	StageMilestoneReview = "milestone_review"
	StageTechStack       = "tech_stack"
	StageFlowDiagram     = "flow_diagram"
	StageSelectUnit      = "select_unit"
	StageProposals       = "proposals"
	StageRecordProposals = "record_proposals"
	StageDecision        = "decision"
)

// Artifact paths relative to <root>/project.
const (
	PlanFile       = "project_plan.md"
	MilestoneFile  = "milestone.md"
	TechStackFile  = "tech_stack.md"
	DiagramFile    = "flow_diagram.mmd"
	DiagramImage   = "flow_diagram.png"
	DecisionFile   = "decision.md"
	CheckpointFile = "run_state.json"
)

// ProposalFile is the file name of one worker's proposal inside the unit
// folder.
func ProposalFile(workerName string) string {
	return "proposal_" + workerName + ".md"
}

// Roles maps the single-worker stages to logical worker names.
type Roles struct {
	Lead       string `yaml:"lead"`
	Milestones string `yaml:"milestones"`
	TechStack  string `yaml:"techStack"`
	Diagram    string `yaml:"diagram"`
	Arbiter    string `yaml:"arbiter"`
}

// SecondaryPolicy decides what a failed secondary-format render does.
type SecondaryPolicy string

const (
	// SecondaryWarn logs the failure and records a degraded event.
	SecondaryWarn SecondaryPolicy = "warn"
	// SecondaryFail fails the stage.
	SecondaryFail SecondaryPolicy = "fail"
)

// Pipeline holds everything needed to build and run the planning graph.
type Pipeline struct {
	pool      *worker.Pool
	sink      artifact.Sink
	reviews   orchestrator.DecisionSource
	roles     Roles
	enrolled  []string
	renderer  diagram.Renderer
	secondary SecondaryPolicy
	logger    *slog.Logger
	gateOpts  []orchestrator.GateOption
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRoles sets which worker handles each single-worker stage. Empty roles
// fall back to the first registered worker.
func WithRoles(r Roles) Option {
	return func(p *Pipeline) { p.roles = r }
}

// WithFanOut restricts the proposal phase to the named workers.
func WithFanOut(names []string) Option {
	return func(p *Pipeline) { p.enrolled = append([]string(nil), names...) }
}

// WithRenderer enables PNG rendering of the flow diagram.
func WithRenderer(r diagram.Renderer) Option {
	return func(p *Pipeline) { p.renderer = r }
}

// WithSecondaryPolicy sets the secondary-format failure policy.
func WithSecondaryPolicy(sp SecondaryPolicy) Option {
	return func(p *Pipeline) {
		if sp != "" {
			p.secondary = sp
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithGateOptions passes options to both review gates.
func WithGateOptions(opts ...orchestrator.GateOption) Option {
	return func(p *Pipeline) { p.gateOpts = append(p.gateOpts, opts...) }
}

// New validates the roles and fan-out set against the pool's registry.
func New(pool *worker.Pool, sink artifact.Sink, reviews orchestrator.DecisionSource, opts ...Option) (*Pipeline, error) {
	if pool == nil || pool.Registry().Len() == 0 {
		return nil, fmt.Errorf("pipeline: at least one worker is required (set a *_LLM variable or list workers in blueprint.yml)")
	}
	if sink == nil || reviews == nil {
		return nil, fmt.Errorf("pipeline: artifact sink and decision source are required")
	}
	p := &Pipeline{
		pool:      pool,
		sink:      sink,
		reviews:   reviews,
		secondary: SecondaryWarn,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	reg := pool.Registry()
	first := reg.Names()[0]
	for _, role := range []*string{&p.roles.Lead, &p.roles.Milestones, &p.roles.TechStack, &p.roles.Diagram, &p.roles.Arbiter} {
		if *role == "" {
			*role = first
		}
		if _, ok := reg.Lookup(*role); !ok {
			return nil, fmt.Errorf("pipeline: role worker: %w: %s", worker.ErrUnknownWorker, *role)
		}
	}

	if len(p.enrolled) == 0 {
		p.enrolled = reg.Names()
	}
	sub, err := reg.Subset(p.enrolled)
	if err != nil {
		return nil, fmt.Errorf("pipeline: fan-out: %w", err)
	}
	p.enrolled = sub.Names()

	switch p.secondary {
	case SecondaryWarn, SecondaryFail:
	default:
		return nil, fmt.Errorf("pipeline: unknown secondary failure policy %q", p.secondary)
	}
	return p, nil
}

// Enrolled returns the workers taking part in the proposal phase, sorted.
func (p *Pipeline) Enrolled() []string {
	return append([]string(nil), p.enrolled...)
}

// Graph builds the stage graph. The proposal fan-out gets one branch per
// enrolled worker, fixed at this point.
func (p *Pipeline) Graph() (*orchestrator.Graph, error) {
	g := orchestrator.NewGraph()

	branches := make([]orchestrator.Branch, 0, len(p.enrolled))
	for _, name := range p.enrolled {
		branches = append(branches, orchestrator.Branch{Name: name, Run: p.proposal(name)})
	}

	planGate := orchestrator.NewGate(StagePlanReview, orchestrator.DocPlan, p.reviews, p.gateOpts...)
	milestoneGate := orchestrator.NewGate(StageMilestoneReview, orchestrator.DocMilestones, p.reviews, p.gateOpts...)

	steps := []func() error{
		func() error { return g.AddStage(StageProjectLead, p.projectLead) },
		func() error { return g.AddReviewGate(StagePlanReview, planGate, StageProjectLead, StageMilestones) },
		func() error { return g.AddStage(StageMilestones, p.milestones) },
		func() error {
			return g.AddReviewGate(StageMilestoneReview, milestoneGate, StageMilestones, StageTechStack)
		},
		func() error { return g.AddStage(StageTechStack, p.techStack) },
		func() error { return g.AddStage(StageFlowDiagram, p.flowDiagram, orchestrator.Optional()) },
		func() error { return g.AddStage(StageSelectUnit, p.selectUnit) },
		func() error { return g.AddFanOut(StageProposals, branches) },
		func() error { return g.AddStage(StageRecordProposals, p.recordProposals) },
		func() error { return g.AddStage(StageDecision, p.decision) },

		func() error { return g.AddEdge(StageProjectLead, StagePlanReview) },
		func() error { return g.AddEdge(StageMilestones, StageMilestoneReview) },
		func() error { return g.AddEdge(StageTechStack, StageFlowDiagram) },
		func() error { return g.AddEdge(StageFlowDiagram, StageSelectUnit) },
		func() error { return g.AddEdge(StageSelectUnit, StageProposals) },
		func() error { return g.AddEdge(StageProposals, StageRecordProposals) },
		func() error { return g.AddEdge(StageRecordProposals, StageDecision) },
		func() error { return g.AddEdge(StageDecision, orchestrator.End) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, fmt.Errorf("pipeline: build graph: %w", err)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: build graph: %w", err)
	}
	return g, nil
}

// Run executes the graph on state and writes a checkpoint of the final
// state whether or not the run succeeded.
func (p *Pipeline) Run(ctx context.Context, state *orchestrator.RunState, opts ...orchestrator.Option) (*orchestrator.RunState, error) {
	g, err := p.Graph()
	if err != nil {
		return state, err
	}
	exec, err := orchestrator.NewExecutor(g, append([]orchestrator.Option{orchestrator.WithLogger(p.logger)}, opts...)...)
	if err != nil {
		return state, err
	}

	final, runErr := exec.Run(ctx, state)
	p.checkpoint(context.WithoutCancel(ctx), final)
	if runErr != nil {
		return final, fmt.Errorf("pipeline: %w", runErr)
	}
	return final, nil
}

func (p *Pipeline) checkpoint(ctx context.Context, state *orchestrator.RunState) {
	if state == nil {
		return
	}
	data, err := export.Checkpoint(state)
	if err != nil {
		p.logger.Warn("checkpoint encode failed", "err", err)
		return
	}
	if _, err := p.sink.WriteText(ctx, CheckpointFile, string(data)); err != nil {
		p.logger.Warn("checkpoint write failed", "err", err)
	}
}

func (p *Pipeline) projectLead(ctx context.Context, s orchestrator.RunState) (orchestrator.Update, error) {
	text, err := p.pool.Invoke(ctx, p.roles.Lead, leadPrompt(s, p.pool.Registry().Names()))
	if err != nil {
		return orchestrator.Update{}, err
	}
	return p.persist(ctx, StageProjectLead, orchestrator.DocPlan, PlanFile, text)
}

func (p *Pipeline) milestones(ctx context.Context, s orchestrator.RunState) (orchestrator.Update, error) {
	text, err := p.pool.Invoke(ctx, p.roles.Milestones, milestonesPrompt(s))
	if err != nil {
		return orchestrator.Update{}, err
	}
	return p.persist(ctx, StageMilestones, orchestrator.DocMilestones, MilestoneFile, worker.StripFences(text))
}

func (p *Pipeline) techStack(ctx context.Context, s orchestrator.RunState) (orchestrator.Update, error) {
	text, err := p.pool.Invoke(ctx, p.roles.TechStack, techStackPrompt(s))
	if err != nil {
		return orchestrator.Update{}, err
	}
	return p.persist(ctx, StageTechStack, orchestrator.DocTechStack, TechStackFile, worker.StripFences(text))
}

// persist writes a markdown document and its secondary format. The primary
// write is fatal; the secondary one follows the configured policy.
func (p *Pipeline) persist(ctx context.Context, stage string, kind orchestrator.DocumentKind, rel, text string) (orchestrator.Update, error) {
	if _, err := p.sink.WriteText(ctx, rel, text); err != nil {
		return orchestrator.Update{}, err
	}
	u := orchestrator.Update{Documents: map[orchestrator.DocumentKind]string{kind: text}}
	if _, err := p.sink.RenderSecondary(ctx, rel); err != nil {
		if p.secondary == SecondaryFail {
			return orchestrator.Update{}, err
		}
		p.logger.Warn("secondary format failed", "stage", stage, "kind", kind, "err", err)
		u.Degraded = append(u.Degraded, degraded(stage, err.Error()))
	}
	return u, nil
}

// flowDiagram is registered as optional: nothing downstream reads the
// diagram, so its failures degrade the run instead of stopping it.
func (p *Pipeline) flowDiagram(ctx context.Context, s orchestrator.RunState) (orchestrator.Update, error) {
	raw, err := p.pool.Invoke(ctx, p.roles.Diagram, diagramPrompt(s))
	if err != nil {
		return orchestrator.Update{}, err
	}
	src := diagram.Clean(raw)
	if err := diagram.Validate(src); err != nil {
		p.logger.Warn("diagram rejected", "stage", StageFlowDiagram, "err", err)
		return orchestrator.Update{Degraded: []orchestrator.DegradedEvent{degraded(StageFlowDiagram, err.Error())}}, nil
	}
	if _, err := p.sink.WriteText(ctx, DiagramFile, src); err != nil {
		return orchestrator.Update{}, err
	}

	u := orchestrator.Update{Documents: map[orchestrator.DocumentKind]string{orchestrator.DocDiagram: src}}
	if p.renderer == nil {
		return u, nil
	}
	img, err := p.renderer.Render(ctx, src)
	if err == nil {
		_, err = p.sink.WriteBinary(ctx, DiagramImage, img)
	}
	if err != nil {
		p.logger.Warn("diagram render failed", "stage", StageFlowDiagram, "err", err)
		u.Degraded = append(u.Degraded, degraded(StageFlowDiagram, err.Error()))
	}
	return u, nil
}

func (p *Pipeline) selectUnit(_ context.Context, s orchestrator.RunState) (orchestrator.Update, error) {
	unit, ok := SelectUnit(s.Documents[orchestrator.DocMilestones])
	u := orchestrator.Update{ActiveUnit: orchestrator.Ptr(unit)}
	if !ok {
		reason := "milestone table has no data rows; using fallback unit"
		p.logger.Warn("unit selection degraded", "stage", StageSelectUnit, "unit", unit)
		u.Degraded = []orchestrator.DegradedEvent{degraded(StageSelectUnit, reason)}
	}
	return u, nil
}

func (p *Pipeline) proposal(name string) orchestrator.BranchFunc {
	return func(ctx context.Context, s orchestrator.RunState) (string, error) {
		return p.pool.Invoke(ctx, name, proposalPrompt(s))
	}
}

func (p *Pipeline) recordProposals(ctx context.Context, s orchestrator.RunState) (orchestrator.Update, error) {
	folder := UnitFolder(s.ActiveUnit)
	for _, name := range sortedKeys(s.Proposals) {
		if _, err := p.sink.WriteText(ctx, path.Join(folder, ProposalFile(name)), s.Proposals[name]); err != nil {
			return orchestrator.Update{}, err
		}
	}
	return orchestrator.Update{}, nil
}

func (p *Pipeline) decision(ctx context.Context, s orchestrator.RunState) (orchestrator.Update, error) {
	sources := []Source{{Name: "tech_stack", Content: s.Documents[orchestrator.DocTechStack]}}
	for _, name := range sortedKeys(s.Proposals) {
		sources = append(sources, Source{Name: "proposal_" + name, Content: s.Proposals[name]})
	}
	conflicts := CheckCoherence(sources)
	for _, c := range conflicts {
		p.logger.Warn("version conflict", "stage", StageDecision, "dependency", c.Dependency, "detail", c.Detail)
	}

	text, err := p.pool.Invoke(ctx, p.roles.Arbiter, arbiterPrompt(s, conflictNotes(conflicts)))
	if err != nil {
		return orchestrator.Update{}, err
	}
	if _, err := p.sink.WriteText(ctx, path.Join(UnitFolder(s.ActiveUnit), DecisionFile), text); err != nil {
		return orchestrator.Update{}, err
	}
	return orchestrator.Update{
		Documents:       map[orchestrator.DocumentKind]string{orchestrator.DocDecision: text},
		SelectedOutcome: orchestrator.Ptr(text),
	}, nil
}

func degraded(stage, reason string) orchestrator.DegradedEvent {
	return orchestrator.DegradedEvent{Stage: stage, Reason: reason, At: time.Now()}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
