package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dusk-indust/blueprint/internal/orchestrator"
	"github.com/dusk-indust/blueprint/internal/worker"
)

const leadSystem = `You are the project lead and a senior software engineer.

Write a Software Requirements Specification for the request you receive,
following the IEEE 830 / ISO/IEC/IEEE 29148 section structure, as a Markdown
document.

Break the work into at least five subtasks and assign exactly one worker to
each subtask. Use only worker names from the list in the input, spelled
exactly as given.

Output only the document: no commentary, no preamble.`

const milestonesSystem = `You are the milestone manager.

Turn the project plan you receive into a milestone plan. Output exactly one
Markdown table and nothing else, in this format:

| Milestone | Description | LLM |
|-----------|-------------|-----|
| [ ] | Short action-oriented description | WORKER_A, WORKER_B |

Each row is one milestone. Group related subtasks into one milestone. Only use
worker names that appear in the plan. Do not wrap the table in a code block.`

const techStackSystem = `You are a senior technical lead.

Recommend the technology stack for the project described by the SRS you
receive. Favour options that are maintainable, cost-effective and scale well.
Output exactly one Markdown table and nothing else:

| Category | Technologies |
|----------|--------------|
| Frontend | ... |
| Backend | ... |
| Database | ... |
| Deployment | ... |

Add categories as needed. Do not wrap the table in a code block.`

const diagramSystem = `You draw system flow diagrams in Mermaid.

Read the SRS you receive and return Mermaid source showing the main flow, the
major components and any decision points. Follow this sample:

graph LR
    A[Square Rect] -- Link text --> B((Circle))
    A --> C(Round Rect)
    B --> D{{Rhombus}}
    C --> D

Return only the Mermaid source. No code fences, lists or explanations.`

const proposalSystem = `You are a senior software engineer.

You receive one milestone together with the project SRS and tech stack.
Propose a short implementation approach for the milestone:

- **Approach**: two or three sentences on the strategy.
- **Steps**: a numbered list of four to six steps, one line each.

Stay under 200 words, refer to the tech stack, and output only the approach.`

const arbiterSystem = `You are the engineering manager.

Several workers proposed approaches for the same milestone. Pick the single
best one:

- **Chosen LLM**: the worker you assign the milestone to.
- **Reason**: one or two sentences.
- **Final Approach**: the chosen approach, copied as is.

Stay under 300 words and be decisive.`

// withRevision appends the previous version and the reviewer's feedback to
// input when a gate has sent the document back.
func withRevision(input string, state orchestrator.RunState, kind orchestrator.DocumentKind, gate string) string {
	if !state.NeedsRevision || state.PendingFeedback == "" {
		return input
	}
	var sb strings.Builder
	sb.WriteString(input)
	if prev, ok := state.Document(kind); ok {
		sb.WriteString("\n\nYour previous version:\n\n")
		sb.WriteString(prev)
	}
	history := state.FeedbackFor(gate)
	if len(history) > 1 {
		sb.WriteString("\n\nEarlier reviewer feedback, already addressed:\n")
		for _, fb := range history[:len(history)-1] {
			fmt.Fprintf(&sb, "- %s\n", fb)
		}
	}
	sb.WriteString("\n\nThe reviewer requested changes. Revise the document accordingly:\n")
	sb.WriteString(state.PendingFeedback)
	return sb.String()
}

func leadPrompt(state orchestrator.RunState, workers []string) worker.Prompt {
	input := fmt.Sprintf("Request:\n%s\n\nAvailable workers: %s", state.OriginalRequest, strings.Join(workers, ", "))
	return worker.Prompt{System: leadSystem, Input: withRevision(input, state, orchestrator.DocPlan, StagePlanReview)}
}

func milestonesPrompt(state orchestrator.RunState) worker.Prompt {
	input := "Create a milestone table based on this plan:\n\n" + state.Documents[orchestrator.DocPlan]
	return worker.Prompt{System: milestonesSystem, Input: withRevision(input, state, orchestrator.DocMilestones, StageMilestoneReview)}
}

func techStackPrompt(state orchestrator.RunState) worker.Prompt {
	return worker.Prompt{System: techStackSystem, Input: state.Documents[orchestrator.DocPlan]}
}

func diagramPrompt(state orchestrator.RunState) worker.Prompt {
	return worker.Prompt{System: diagramSystem, Input: state.Documents[orchestrator.DocPlan]}
}

func proposalPrompt(state orchestrator.RunState) worker.Prompt {
	input := fmt.Sprintf("Milestone: %s\n\nProject SRS:\n%s\n\nTech stack:\n%s",
		state.ActiveUnit, state.Documents[orchestrator.DocPlan], state.Documents[orchestrator.DocTechStack])
	return worker.Prompt{System: proposalSystem, Input: input}
}

func arbiterPrompt(state orchestrator.RunState, notes string) worker.Prompt {
	names := make([]string, 0, len(state.Proposals))
	for n := range state.Proposals {
		names = append(names, n)
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Milestone: %s\n\n", state.ActiveUnit)
	for _, n := range names {
		fmt.Fprintf(&sb, "### Proposal from %s\n\n%s\n\n", n, state.Proposals[n])
	}
	if notes != "" {
		sb.WriteString(notes)
	}
	return worker.Prompt{System: arbiterSystem, Input: strings.TrimSpace(sb.String())}
}
