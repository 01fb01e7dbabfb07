package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/blueprint/internal/orchestrator"
)

// decisionFile is the YAML a reviewer drops next to a request:
//
//	decision: changes
//	feedback: split milestone 2 into backend and frontend
type decisionFile struct {
	Decision string `yaml:"decision"`
	Feedback string `yaml:"feedback"`
}

// Inbox exchanges reviews through a directory. Each request is written as
// <id>.request.md and the gate waits for <id>.decision.yaml to appear.
type Inbox struct {
	dir    string
	logger *slog.Logger
}

// NewInbox creates an inbox rooted at dir. A nil logger uses slog.Default.
func NewInbox(dir string, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{dir: dir, logger: logger}
}

// RequestPath returns where the request with the given id is written.
func (in *Inbox) RequestPath(id string) string {
	return filepath.Join(in.dir, id+".request.md")
}

// DecisionPath returns where the decision for the given id is expected.
func (in *Inbox) DecisionPath(id string) string {
	return filepath.Join(in.dir, id+".decision.yaml")
}

// Decide writes the request file and blocks until a parseable decision file
// for it shows up or ctx is done.
func (in *Inbox) Decide(ctx context.Context, req orchestrator.ReviewRequest) (orchestrator.Decision, error) {
	if err := os.MkdirAll(in.dir, 0o755); err != nil {
		return orchestrator.Decision{}, fmt.Errorf("review: create inbox: %w", err)
	}

	// Watch before writing the request so a fast reviewer cannot be missed.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return orchestrator.Decision{}, fmt.Errorf("review: create fsnotify watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(in.dir); err != nil {
		return orchestrator.Decision{}, fmt.Errorf("review: watch %s: %w", in.dir, err)
	}

	if err := os.WriteFile(in.RequestPath(req.ID), []byte(renderRequest(req)), 0o644); err != nil {
		return orchestrator.Decision{}, fmt.Errorf("review: write request: %w", err)
	}
	in.logger.Info("review requested", "gate", req.Gate, "request", in.RequestPath(req.ID))

	want := in.DecisionPath(req.ID)
	if d, ok := in.tryRead(want); ok {
		return in.finish(req.ID, d), nil
	}

	for {
		select {
		case <-ctx.Done():
			return orchestrator.Decision{}, ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return orchestrator.Decision{}, errors.New("review: inbox watcher closed")
			}
			if filepath.Clean(event.Name) != want {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if d, ok := in.tryRead(want); ok {
					return in.finish(req.ID, d), nil
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return orchestrator.Decision{}, errors.New("review: inbox watcher closed")
			}
			in.logger.Warn("inbox watcher error", "err", err)
		}
	}
}

// tryRead parses the decision file. A missing, half-written or invalid file
// is not an error: the reviewer may still be editing it.
func (in *Inbox) tryRead(path string) (orchestrator.Decision, bool) {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return orchestrator.Decision{}, false
	}
	var f decisionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		in.logger.Warn("unreadable decision file", "path", path, "err", err)
		return orchestrator.Decision{}, false
	}
	if f.Decision == "" {
		return orchestrator.Decision{}, false
	}
	d, err := ParseDecision(f.Decision, f.Feedback)
	if err != nil {
		in.logger.Warn("invalid decision file", "path", path, "err", err)
		return orchestrator.Decision{}, false
	}
	return d, true
}

func (in *Inbox) finish(id string, d orchestrator.Decision) orchestrator.Decision {
	if err := os.Remove(in.RequestPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		in.logger.Warn("remove request file", "err", err)
	}
	return d
}

func renderRequest(req orchestrator.ReviewRequest) string {
	header := fmt.Sprintf("<!-- run: %s | gate: %s | document: %s | iteration: %d -->\n",
		req.RunID, req.Gate, req.Document, req.Iteration)
	if req.Rejection != "" {
		header += fmt.Sprintf("<!-- previous decision refused: %s -->\n", req.Rejection)
	}
	footer := fmt.Sprintf("\n\n<!-- answer in %s.decision.yaml with `decision: approve` or `decision: changes` plus `feedback: ...` -->\n", req.ID)
	return header + "\n" + req.Content + footer
}
