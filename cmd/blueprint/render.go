package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dusk-indust/blueprint/internal/artifact"
	"github.com/dusk-indust/blueprint/internal/orchestrator"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0A526"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	boxStyle   = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1)
)

func renderHeader(request, root string, workers []string) string {
	lines := []string{
		titleStyle.Render("blueprint"),
		dimStyle.Render("request: ") + truncate(request, 72),
		dimStyle.Render("output:  ") + filepath.Join(root, artifact.ProjectDir),
		dimStyle.Render("workers: ") + strings.Join(workers, ", "),
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// renderEvent colours one progress line by status.
func renderEvent(ev orchestrator.ProgressEvent) string {
	line := orchestrator.FormatProgress(ev)
	switch ev.Status {
	case orchestrator.ProgressComplete:
		return okStyle.Render(line)
	case orchestrator.ProgressDegraded, orchestrator.ProgressWaiting:
		return warnStyle.Render(line)
	case orchestrator.ProgressFailed:
		return errStyle.Render(line)
	case orchestrator.ProgressPending:
		return dimStyle.Render(line)
	default:
		return line
	}
}

func renderSummary(state *orchestrator.RunState, root string, runErr error) string {
	var lines []string
	if runErr != nil {
		lines = append(lines, errStyle.Render("Run failed"), errStyle.Render(runErr.Error()))
	} else {
		lines = append(lines, okStyle.Render("Run complete"))
	}

	if state != nil {
		var written []string
		for _, kind := range orchestrator.DocumentKinds {
			if _, ok := state.Document(kind); ok {
				written = append(written, string(kind))
			}
		}
		lines = append(lines, dimStyle.Render("run:       ")+state.RunID)
		if len(written) > 0 {
			lines = append(lines, dimStyle.Render("documents: ")+strings.Join(written, ", "))
		}
		if state.ActiveUnit != "" {
			lines = append(lines, dimStyle.Render("unit:      ")+truncate(state.ActiveUnit, 72))
		}
		for _, d := range state.Degraded {
			lines = append(lines, warnStyle.Render(fmt.Sprintf("degraded %s: %s", d.Stage, truncate(d.Reason, 72))))
		}
	}
	lines = append(lines, dimStyle.Render("files:     ")+filepath.Join(root, artifact.ProjectDir))
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
