package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/dusk-indust/blueprint/internal/artifact"
	"github.com/dusk-indust/blueprint/internal/config"
	"github.com/dusk-indust/blueprint/internal/export"
	"github.com/dusk-indust/blueprint/internal/pipeline"
	"github.com/dusk-indust/blueprint/internal/review"
	"github.com/dusk-indust/blueprint/internal/worker"
)

// runGraph prints the stage graph for the configured workers as Mermaid.
// No model is contacted.
func runGraph(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("blueprint graph", flag.ContinueOnError)
	configDir := fs.String("config-dir", ".", "directory holding blueprint.yml and .env")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		return err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	offline := func(spec worker.Spec) (worker.Invoker, error) {
		return worker.InvokerFunc(func(context.Context, worker.Prompt) (string, error) {
			return "", errors.New("graph mode does not invoke workers")
		}), nil
	}
	pool, err := worker.NewPool(reg, offline, 0)
	if err != nil {
		return err
	}
	p, err := pipeline.New(pool, artifact.NewFSSink("."), review.AutoApprove{},
		pipeline.WithRoles(cfg.Roles), pipeline.WithFanOut(cfg.FanOut))
	if err != nil {
		return err
	}
	g, err := p.Graph()
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, export.GraphMermaid(g))
	return nil
}
