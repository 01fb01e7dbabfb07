package orchestrator

// RevisionRouter routes back when the preceding review gate requested
// changes and forward otherwise.
func RevisionRouter(back, forward string) Router {
	return func(state RunState) string {
		if state.NeedsRevision {
			return back
		}
		return forward
	}
}

// DocumentRouter routes to present when the document kind has been written
// and to missing otherwise.
func DocumentRouter(kind DocumentKind, present, missing string) Router {
	return func(state RunState) string {
		if _, ok := state.Documents[kind]; ok {
			return present
		}
		return missing
	}
}

// transition is the outcome of resolving the edge that leaves a stage.
type transition struct {
	next string
	// consumer is set when the transition follows a revision back-edge: the
	// routing signal is cleared after that stage has run.
	consumer string
}

// resolve looks up the next stage after from, given the state produced by
// running from.
func (g *Graph) resolve(from string, state RunState) (transition, error) {
	if to, ok := g.edges[from]; ok {
		if !g.known(to) {
			return transition{}, &UnreachableStageError{Stage: from, Target: to}
		}
		return transition{next: to}, nil
	}
	router, ok := g.routers[from]
	if !ok {
		return transition{}, &UnreachableStageError{Stage: from}
	}
	next := router(state)
	if !g.known(next) {
		return transition{}, &UnreachableStageError{Stage: from, Target: next}
	}
	t := transition{next: next}
	if loop, ok := g.loops[from]; ok && state.NeedsRevision && next == loop.back {
		t.consumer = next
	}
	return t, nil
}
