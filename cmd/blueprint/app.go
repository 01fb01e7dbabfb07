package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dusk-indust/blueprint/internal/artifact"
	"github.com/dusk-indust/blueprint/internal/config"
	"github.com/dusk-indust/blueprint/internal/diagram"
	"github.com/dusk-indust/blueprint/internal/mcptools"
	"github.com/dusk-indust/blueprint/internal/orchestrator"
	"github.com/dusk-indust/blueprint/internal/pipeline"
	"github.com/dusk-indust/blueprint/internal/review"
	"github.com/dusk-indust/blueprint/internal/tracing"
	"github.com/dusk-indust/blueprint/internal/worker"
)

// app holds everything loaded once per process.
type app struct {
	flags  cliFlags
	cfg    *config.Config
	logger *slog.Logger
	pool   *worker.Pool

	stopTracing func(context.Context) error
}

func newApp(flags cliFlags, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(flags.ConfigDir)
	if err != nil {
		return nil, err
	}
	if flags.MaxRevisions > 0 {
		cfg.MaxRevisions = flags.MaxRevisions
	}
	if flags.TraceFile != "" {
		cfg.TraceFile = flags.TraceFile
	}
	if flags.NoDiagram {
		off := false
		cfg.RenderDiagram = &off
	}

	level := slog.LevelInfo
	if flags.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	if reg.Len() == 0 {
		return nil, errors.New("no workers configured: set <NAME>_LLM=<model> in the environment or .env, or list workers in blueprint.yml")
	}
	pool, err := worker.NewPool(reg, worker.OllamaFactory(cfg.OllamaURL, cfg.Temperature, nil), cfg.WorkerTimeout)
	if err != nil {
		return nil, err
	}

	a := &app{flags: flags, cfg: cfg, logger: logger, pool: pool}
	if cfg.TraceFile != "" {
		a.stopTracing, err = tracing.Init("blueprint", version, cfg.TraceFile)
		if err != nil {
			return nil, fmt.Errorf("tracing: %w", err)
		}
	}
	logger.Debug("config loaded", "workers", reg.Names(), "ollama", cfg.OllamaURL, "maxRevisions", cfg.MaxRevisions)
	return a, nil
}

func (a *app) close() {
	if a.stopTracing == nil {
		return
	}
	if err := a.stopTracing(context.Background()); err != nil {
		a.logger.Warn("trace flush failed", "err", err)
	}
}

// build assembles a pipeline writing under root.
func (a *app) build(root string, reviews orchestrator.DecisionSource) (*pipeline.Pipeline, error) {
	opts := []pipeline.Option{
		pipeline.WithRoles(a.cfg.Roles),
		pipeline.WithFanOut(a.cfg.FanOut),
		pipeline.WithSecondaryPolicy(a.cfg.SecondaryFailure),
		pipeline.WithLogger(a.logger),
		pipeline.WithGateOptions(orchestrator.WithGateLogger(a.logger)),
	}
	if a.cfg.DiagramEnabled() {
		opts = append(opts, pipeline.WithRenderer(diagram.NewInkRenderer(a.cfg.DiagramEndpoint, nil)))
	}
	sink := artifact.NewFSSink(root, artifact.WithSinkLogger(a.logger))
	return pipeline.New(a.pool, sink, reviews, opts...)
}

func (a *app) execOptions() []orchestrator.Option {
	return []orchestrator.Option{
		orchestrator.WithMaxRevisions(a.cfg.MaxRevisions),
		orchestrator.WithTracer(tracing.Tracer()),
	}
}

func (a *app) runPipeline(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	console := review.NewConsole(stdin, stdout)

	request := strings.TrimSpace(a.flags.Request)
	if request == "" {
		var err error
		if request, err = console.Ask(ctx, "Describe the project you want planned: "); err != nil {
			return err
		}
		if request = strings.TrimSpace(request); request == "" {
			return errors.New("a project request is required")
		}
	}
	root := a.flags.Output
	if root == "" {
		answer, err := console.Ask(ctx, "Output directory [.]: ")
		if err != nil {
			return err
		}
		root = strings.TrimSpace(answer)
		if root == "" {
			root = "."
		}
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	term := &terminal{out: stdout}
	var reviews orchestrator.DecisionSource = console
	switch {
	case a.flags.AutoApprove:
		reviews = review.AutoApprove{}
	case a.flags.Inbox != "":
		reviews = review.NewInbox(a.flags.Inbox, a.logger)
		fmt.Fprintf(stdout, "Review requests will appear in %s\n", a.flags.Inbox)
	}

	p, err := a.build(root, term.exclusive(reviews))
	if err != nil {
		return err
	}

	progress := orchestrator.NewProgressReporter()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range progress.Subscribe() {
			term.println(renderEvent(ev))
		}
	}()

	fmt.Fprintln(stdout, renderHeader(request, root, p.Enrolled()))
	state, runErr := p.Run(ctx, orchestrator.NewRunState(request, root), append(a.execOptions(), orchestrator.WithProgress(progress))...)
	progress.Close()
	<-printed

	fmt.Fprintln(stdout, renderSummary(state, root, runErr))
	return runErr
}

func (a *app) serveMCP(ctx context.Context) error {
	opts := []mcptools.ServiceOption{
		mcptools.WithServiceLogger(a.logger),
		mcptools.WithRunOptions(a.execOptions()...),
	}
	if a.flags.Output != "" {
		opts = append(opts, mcptools.WithDefaultRoot(a.flags.Output))
	}
	svc := mcptools.NewRunService(a.build, opts...)
	defer svc.Close()

	server := mcptools.NewServer(svc)
	if a.flags.MCPAddr != "" {
		a.logger.Info("serving MCP over HTTP", "addr", a.flags.MCPAddr)
		return mcptools.ServeHTTP(ctx, server, a.flags.MCPAddr)
	}
	return mcptools.ServeStdio(ctx, server)
}
