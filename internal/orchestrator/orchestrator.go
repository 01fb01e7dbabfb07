package orchestrator

// End is the terminal sentinel. Routing to End stops the executor.
const End = "__end__"

// DocumentKind identifies a generated document held in Run State.
type DocumentKind string

const (
	DocPlan       DocumentKind = "plan"
	DocMilestones DocumentKind = "milestones"
	DocTechStack  DocumentKind = "tech-stack"
	DocDiagram    DocumentKind = "diagram"
	DocDecision   DocumentKind = "decision"
)

// DocumentKinds lists every known document kind in pipeline order.
var DocumentKinds = []DocumentKind{DocPlan, DocMilestones, DocTechStack, DocDiagram, DocDecision}

func (k DocumentKind) String() string { return string(k) }

// ProgressEvent is emitted to observers during a run.
type ProgressEvent struct {
	Stage   string // stage name
	Branch  string // fan-out sibling name; empty for solo stages
	Status  ProgressStatus
	Message string
}

// ProgressStatus is the state of a stage or fan-out sibling.
type ProgressStatus string

const (
	ProgressPending  ProgressStatus = "pending"
	ProgressWorking  ProgressStatus = "working"
	ProgressWaiting  ProgressStatus = "waiting" // review gate suspended on an external decision
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
	ProgressDegraded ProgressStatus = "degraded"
)
