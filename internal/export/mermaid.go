package export

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/blueprint/internal/orchestrator"
)

// GraphMermaid renders a stage graph as a Mermaid "graph LR" diagram.
// Review gates are drawn as rhombi, fan-out siblings as a subgraph hanging
// off their fan-out point, and optional stages with a dashed outline.
func GraphMermaid(g *orchestrator.Graph) string {
	// Mermaid IDs must be alphanumeric, so stages get N0, N1, ...
	nodeIDs := make(map[string]string)
	nextID := 0
	getID := func(name string) string {
		if id, ok := nodeIDs[name]; ok {
			return id
		}
		id := fmt.Sprintf("N%d", nextID)
		nextID++
		nodeIDs[name] = id
		return id
	}

	var sb strings.Builder
	sb.WriteString("graph LR\n")

	var optional []string
	for _, name := range g.Stages() {
		id := getID(name)
		switch {
		case g.IsGate(name):
			fmt.Fprintf(&sb, "  %s{%q}\n", id, name)
		case g.Branches(name) != nil:
			fmt.Fprintf(&sb, "  %s[[%q]]\n", id, name)
		default:
			fmt.Fprintf(&sb, "  %s[%q]\n", id, name)
		}
		if g.IsOptional(name) {
			optional = append(optional, id)
		}
	}
	fmt.Fprintf(&sb, "  %s((%q))\n", getID(orchestrator.End), "end")

	for _, name := range g.Stages() {
		branches := g.Branches(name)
		if branches == nil {
			continue
		}
		group := getID(name + "/branches")
		fmt.Fprintf(&sb, "  subgraph %s[%q]\n", group, name+" siblings")
		for _, b := range branches {
			fmt.Fprintf(&sb, "    %s[%q]\n", getID(name+"/"+b), b)
		}
		sb.WriteString("  end\n")
		for _, b := range branches {
			fmt.Fprintf(&sb, "  %s -.-> %s\n", getID(name), getID(name+"/"+b))
		}
	}

	for _, e := range g.Edges() {
		if e.To == "" {
			fmt.Fprintf(&sb, "  %s -. router .-> %s\n", getID(e.From), getID(e.From))
			continue
		}
		if e.Label != "" {
			fmt.Fprintf(&sb, "  %s -- %s --> %s\n", getID(e.From), e.Label, getID(e.To))
			continue
		}
		fmt.Fprintf(&sb, "  %s --> %s\n", getID(e.From), getID(e.To))
	}

	if len(optional) > 0 {
		sb.WriteString("  classDef optional stroke-dasharray: 5 5\n")
		fmt.Fprintf(&sb, "  class %s optional\n", strings.Join(optional, ","))
	}
	return sb.String()
}
