// Package status reports what a blueprint run has left on disk under
// <root>/project.
package status

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/dusk-indust/blueprint/internal/artifact"
	"github.com/dusk-indust/blueprint/internal/export"
	"github.com/dusk-indust/blueprint/internal/orchestrator"
	"github.com/dusk-indust/blueprint/internal/pipeline"
)

// DocumentInfo describes one top-level document.
type DocumentInfo struct {
	Kind      orchestrator.DocumentKind `json:"kind"`
	Name      string                    `json:"name"`  // human-readable name (e.g. "Milestones")
	Stage     string                    `json:"stage"` // stage that writes it
	File      string                    `json:"file"`
	Complete  bool                      `json:"complete"`
	Secondary bool                      `json:"secondary"` // rendered PDF or PNG exists
}

// UnitInfo describes one unit folder.
type UnitInfo struct {
	Folder    string   `json:"folder"`
	Proposals []string `json:"proposals"`
	Decision  bool     `json:"decision"`
}

// Report is the on-disk status of one output root.
type Report struct {
	Root       string                `json:"root"`
	Exists     bool                  `json:"exists"`
	Documents  []DocumentInfo        `json:"documents"`
	Units      []UnitInfo            `json:"units,omitempty"`
	Checkpoint *export.RunCheckpoint `json:"checkpoint,omitempty"`
	// CheckpointErr is set when run_state.json exists but cannot be read.
	CheckpointErr string `json:"checkpointError,omitempty"`
}

var documents = []struct {
	kind      orchestrator.DocumentKind
	label     string
	stage     string
	file      string
	secondary string
}{
	{orchestrator.DocPlan, "Project Plan", pipeline.StageProjectLead, pipeline.PlanFile, "project_plan.pdf"},
	{orchestrator.DocMilestones, "Milestones", pipeline.StageMilestones, pipeline.MilestoneFile, "milestone.pdf"},
	{orchestrator.DocTechStack, "Tech Stack", pipeline.StageTechStack, pipeline.TechStackFile, "tech_stack.pdf"},
	{orchestrator.DocDiagram, "Flow Diagram", pipeline.StageFlowDiagram, pipeline.DiagramFile, pipeline.DiagramImage},
}

// Scan inspects <root>/project. A missing directory is reported with
// Exists false, not as an error.
func Scan(ctx context.Context, root string) (*Report, error) {
	fs := afs.New()
	base := url.Join(url.Normalize(root, file.Scheme), artifact.ProjectDir)
	r := &Report{Root: root}

	ok, err := fs.Exists(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("status: %s: %w", base, err)
	}
	for _, d := range documents {
		r.Documents = append(r.Documents, DocumentInfo{Kind: d.kind, Name: d.label, Stage: d.stage, File: d.file})
	}
	if !ok {
		return r, nil
	}
	r.Exists = true

	objects, err := fs.List(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("status: list %s: %w", base, err)
	}
	files := make(map[string]bool)
	var folders []string
	for _, obj := range objects {
		switch {
		case !obj.IsDir():
			files[obj.Name()] = true
		case strings.HasPrefix(obj.Name(), "milestone"):
			folders = append(folders, obj.Name())
		}
	}

	for i, d := range documents {
		r.Documents[i].Complete = files[d.file]
		r.Documents[i].Secondary = files[d.secondary]
	}

	sort.Strings(folders)
	for _, folder := range folders {
		u, err := scanUnit(ctx, fs, url.Join(base, folder), folder)
		if err != nil {
			return nil, err
		}
		r.Units = append(r.Units, u)
	}

	if files[pipeline.CheckpointFile] {
		data, err := fs.DownloadWithURL(ctx, url.Join(base, pipeline.CheckpointFile))
		if err == nil {
			r.Checkpoint, err = export.LoadCheckpoint(data)
		}
		if err != nil {
			r.CheckpointErr = err.Error()
		}
	}
	return r, nil
}

func scanUnit(ctx context.Context, fs afs.Service, location, folder string) (UnitInfo, error) {
	u := UnitInfo{Folder: folder}
	objects, err := fs.List(ctx, location)
	if err != nil {
		return u, fmt.Errorf("status: list %s: %w", location, err)
	}
	for _, obj := range objects {
		if obj.IsDir() {
			continue
		}
		name := obj.Name()
		switch {
		case name == pipeline.DecisionFile:
			u.Decision = true
		case strings.HasPrefix(name, "proposal_") && path.Ext(name) == ".md":
			u.Proposals = append(u.Proposals, strings.TrimSuffix(strings.TrimPrefix(name, "proposal_"), ".md"))
		}
	}
	sort.Strings(u.Proposals)
	return u, nil
}

// NextDocument returns the first top-level document that has not been
// written yet, or "" when all of them exist.
func (r *Report) NextDocument() orchestrator.DocumentKind {
	for _, d := range r.Documents {
		if !d.Complete {
			return d.Kind
		}
	}
	return ""
}

// NextStage names the stage that writes NextDocument, or "" when every
// document exists.
func (r *Report) NextStage() string {
	for _, d := range r.Documents {
		if !d.Complete {
			return d.Stage
		}
	}
	return ""
}

// Done reports whether at least one unit has a decision.
func (r *Report) Done() bool {
	for _, u := range r.Units {
		if u.Decision {
			return true
		}
	}
	return false
}

// Format renders the report as plain text.
func (r *Report) Format() string {
	var sb strings.Builder
	if !r.Exists {
		fmt.Fprintf(&sb, "No blueprint output under %s.\n", path.Join(r.Root, artifact.ProjectDir))
		return sb.String()
	}

	fmt.Fprintf(&sb, "Blueprint output under %s\n\n", path.Join(r.Root, artifact.ProjectDir))
	for _, d := range r.Documents {
		mark := "[ ]"
		if d.Complete {
			mark = "[x]"
		}
		extra := ""
		if d.Complete && !d.Secondary {
			extra = " (no rendered copy)"
		}
		fmt.Fprintf(&sb, "  %s %-13s %s%s\n", mark, d.Name, d.File, extra)
	}

	for _, u := range r.Units {
		decision := "pending"
		if u.Decision {
			decision = "decided"
		}
		fmt.Fprintf(&sb, "\n  %s: %d proposal(s) [%s], decision %s\n",
			u.Folder, len(u.Proposals), strings.Join(u.Proposals, ", "), decision)
	}

	if cp := r.Checkpoint; cp != nil {
		fmt.Fprintf(&sb, "\n  Last run %s, checkpoint %s\n", cp.State.RunID, cp.ExportedAt)
		for _, d := range cp.State.Degraded {
			fmt.Fprintf(&sb, "    degraded at %s: %s\n", d.Stage, d.Reason)
		}
	}
	if r.CheckpointErr != "" {
		fmt.Fprintf(&sb, "\n  Checkpoint unreadable: %s\n", r.CheckpointErr)
	}

	switch {
	case r.Done():
	case r.NextStage() != "":
		fmt.Fprintf(&sb, "\nNext: %s\n", r.NextStage())
	default:
		sb.WriteString("\nNext: proposals and decision\n")
	}
	return sb.String()
}
