// Package export turns run data into portable formats: a JSON checkpoint of
// the Run State and a Mermaid drawing of the stage graph.
package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dusk-indust/blueprint/internal/orchestrator"
)

// CheckpointVersion is bumped when the checkpoint layout changes.
const CheckpointVersion = 1

// RunCheckpoint is the top-level JSON checkpoint structure.
type RunCheckpoint struct {
	Version    int                    `json:"version"`
	ExportedAt string                 `json:"exportedAt"`
	Stages     []StageExport          `json:"stages"`
	State      *orchestrator.RunState `json:"state"`
}

// StageExport describes which documents a run has produced.
type StageExport struct {
	Document string `json:"document"`
	Status   string `json:"status"`
	Bytes    int    `json:"bytes,omitempty"`
}

// Checkpoint encodes state as indented JSON.
func Checkpoint(state *orchestrator.RunState) ([]byte, error) {
	if state == nil {
		return nil, fmt.Errorf("export: nil run state")
	}
	cp := RunCheckpoint{
		Version:    CheckpointVersion,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		State:      state,
	}
	for _, kind := range orchestrator.DocumentKinds {
		s := StageExport{Document: string(kind), Status: "pending"}
		if doc, ok := state.Document(kind); ok {
			s.Status = "complete"
			s.Bytes = len(doc)
		}
		cp.Stages = append(cp.Stages, s)
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: encode checkpoint: %w", err)
	}
	return append(data, '\n'), nil
}

// LoadCheckpoint decodes a checkpoint written by Checkpoint.
func LoadCheckpoint(data []byte) (*RunCheckpoint, error) {
	var cp RunCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("export: decode checkpoint: %w", err)
	}
	if cp.Version != CheckpointVersion {
		return nil, fmt.Errorf("export: unsupported checkpoint version %d", cp.Version)
	}
	if cp.State == nil {
		return nil, fmt.Errorf("export: checkpoint has no run state")
	}
	return &cp, nil
}
