package orchestrator

import (
	"context"
	"fmt"
	"slices"
)

// StageFunc is a solo stage. It receives a read-only snapshot of Run State
// and returns the fields it wants written.
type StageFunc func(ctx context.Context, state RunState) (Update, error)

// BranchFunc is one fan-out sibling. Its text result is stored under the
// branch name in the proposals mapping.
type BranchFunc func(ctx context.Context, state RunState) (string, error)

// Branch is a named fan-out sibling.
type Branch struct {
	Name string
	Run  BranchFunc
}

// Router picks the next stage from the current state. It must return a
// registered stage name or End.
type Router func(state RunState) string

// StageOption adjusts how a stage is registered.
type StageOption func(*stage)

// Optional marks a stage whose failure is logged and recorded as a degraded
// event instead of terminating the run.
func Optional() StageOption {
	return func(s *stage) { s.optional = true }
}

type stage struct {
	name     string
	run      StageFunc
	branches []Branch // non-nil for fan-out points
	gate     *Gate    // non-nil for review gates
	optional bool
}

func (s *stage) isFanOut() bool { return s.branches != nil }

// revisionLoop is the explicit back-edge declared for one review gate.
type revisionLoop struct {
	back    string
	forward string
}

// Graph is a directed graph of named stages. Build it once, then hand it to
// NewExecutor; it is read-only afterwards.
type Graph struct {
	stages  map[string]*stage
	order   []string
	edges   map[string]string
	routers map[string]Router
	loops   map[string]revisionLoop
	start   string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		stages:  make(map[string]*stage),
		edges:   make(map[string]string),
		routers: make(map[string]Router),
		loops:   make(map[string]revisionLoop),
	}
}

func (g *Graph) register(s *stage) error {
	if s.name == "" || s.name == End {
		return fmt.Errorf("orchestrator: invalid stage name %q", s.name)
	}
	if _, exists := g.stages[s.name]; exists {
		return &DuplicateStageError{Stage: s.name}
	}
	g.stages[s.name] = s
	g.order = append(g.order, s.name)
	if g.start == "" {
		g.start = s.name
	}
	return nil
}

// AddStage registers a solo stage. The first registered stage becomes the
// start node unless SetStart says otherwise.
func (g *Graph) AddStage(name string, fn StageFunc, opts ...StageOption) error {
	if fn == nil {
		return fmt.Errorf("orchestrator: stage %q has no function", name)
	}
	s := &stage{name: name, run: fn}
	for _, opt := range opts {
		opt(s)
	}
	return g.register(s)
}

// AddFanOut registers a fan-out point whose siblings run concurrently on the
// same snapshot. The sibling set is fixed here, at build time.
func (g *Graph) AddFanOut(name string, branches []Branch) error {
	if len(branches) == 0 {
		return fmt.Errorf("orchestrator: fan-out %q has no branches", name)
	}
	seen := make(map[string]bool, len(branches))
	for _, b := range branches {
		if b.Name == "" || b.Run == nil {
			return fmt.Errorf("orchestrator: fan-out %q has an incomplete branch", name)
		}
		if seen[b.Name] {
			return &DuplicateStageError{Stage: name + "/" + b.Name}
		}
		seen[b.Name] = true
	}
	return g.register(&stage{name: name, branches: slices.Clone(branches)})
}

// AddReviewGate registers a review gate together with its revision loop:
// RequestChanges routes to back, Approve routes to forward.
func (g *Graph) AddReviewGate(name string, gate *Gate, back, forward string) error {
	if gate == nil {
		return fmt.Errorf("orchestrator: review gate %q is nil", name)
	}
	if err := g.register(&stage{name: name, gate: gate}); err != nil {
		return err
	}
	g.loops[name] = revisionLoop{back: back, forward: forward}
	return g.AddConditionalEdge(name, RevisionRouter(back, forward))
}

// AddEdge adds an unconditional transition.
func (g *Graph) AddEdge(from, to string) error {
	if err := g.checkFree(from); err != nil {
		return err
	}
	g.edges[from] = to
	return nil
}

// AddConditionalEdge adds a routed transition.
func (g *Graph) AddConditionalEdge(from string, router Router) error {
	if router == nil {
		return fmt.Errorf("orchestrator: conditional edge from %q has no router", from)
	}
	if err := g.checkFree(from); err != nil {
		return err
	}
	g.routers[from] = router
	return nil
}

func (g *Graph) checkFree(from string) error {
	if _, ok := g.edges[from]; ok {
		return fmt.Errorf("orchestrator: stage %q already has an outgoing edge", from)
	}
	if _, ok := g.routers[from]; ok {
		return fmt.Errorf("orchestrator: stage %q already has an outgoing edge", from)
	}
	return nil
}

// SetStart designates the start node.
func (g *Graph) SetStart(name string) error {
	if _, ok := g.stages[name]; !ok {
		return &UnreachableStageError{Stage: "start", Target: name}
	}
	g.start = name
	return nil
}

// Validate checks that the graph has a start node, that every stage has an
// outgoing edge, and that every static target is registered. Router results
// can only be checked at run time.
func (g *Graph) Validate() error {
	if g.start == "" {
		return fmt.Errorf("orchestrator: graph has no stages")
	}
	for _, name := range g.order {
		to, hasEdge := g.edges[name]
		_, hasRouter := g.routers[name]
		if !hasEdge && !hasRouter {
			return &UnreachableStageError{Stage: name}
		}
		if hasEdge && !g.known(to) {
			return &UnreachableStageError{Stage: name, Target: to}
		}
	}
	for from := range g.edges {
		if _, ok := g.stages[from]; !ok {
			return &UnreachableStageError{Stage: from, Target: g.edges[from]}
		}
	}
	for name, loop := range g.loops {
		if !g.known(loop.back) {
			return &UnreachableStageError{Stage: name, Target: loop.back}
		}
		if !g.known(loop.forward) {
			return &UnreachableStageError{Stage: name, Target: loop.forward}
		}
	}
	return nil
}

func (g *Graph) known(name string) bool {
	if name == End {
		return true
	}
	_, ok := g.stages[name]
	return ok
}

// Start returns the start node.
func (g *Graph) Start() string { return g.start }

// Stages returns stage names in registration order.
func (g *Graph) Stages() []string { return slices.Clone(g.order) }

// Branches returns the sibling names of a fan-out point, or nil.
func (g *Graph) Branches(name string) []string {
	s, ok := g.stages[name]
	if !ok || !s.isFanOut() {
		return nil
	}
	names := make([]string, len(s.branches))
	for i, b := range s.branches {
		names[i] = b.Name
	}
	return names
}

// IsGate reports whether name is a review gate.
func (g *Graph) IsGate(name string) bool {
	s, ok := g.stages[name]
	return ok && s.gate != nil
}

// IsOptional reports whether name was registered with Optional.
func (g *Graph) IsOptional(name string) bool {
	s, ok := g.stages[name]
	return ok && s.optional
}

// EdgeInfo describes one transition for export.
type EdgeInfo struct {
	From        string
	To          string
	Conditional bool
	Label       string
}

// Edges returns every statically known transition in registration order.
// Review gate loops are reported as two labelled conditional edges; other
// routers are reported with an empty target.
func (g *Graph) Edges() []EdgeInfo {
	var out []EdgeInfo
	for _, name := range g.order {
		if to, ok := g.edges[name]; ok {
			out = append(out, EdgeInfo{From: name, To: to})
			continue
		}
		if loop, ok := g.loops[name]; ok {
			out = append(out,
				EdgeInfo{From: name, To: loop.forward, Conditional: true, Label: "approve"},
				EdgeInfo{From: name, To: loop.back, Conditional: true, Label: "changes"},
			)
			continue
		}
		if _, ok := g.routers[name]; ok {
			out = append(out, EdgeInfo{From: name, Conditional: true})
		}
	}
	return out
}
