package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// CLI flags parsed from command line.
type cliFlags struct {
	ConfigDir    string
	Request      string
	Output       string
	AutoApprove  bool
	Inbox        string
	MaxRevisions int
	TraceFile    string
	NoDiagram    bool
	ServeMCP     bool
	MCPAddr      string
	Verbose      bool
	Version      bool
}

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		switch args[0] {
		case "status":
			return runStatus(ctx, args[1:], stdout)
		case "graph":
			return runGraph(args[1:], stdout)
		}
	}

	var flags cliFlags

	fs := flag.NewFlagSet("blueprint", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&flags.ConfigDir, "config-dir", ".", "directory holding blueprint.yml and .env")
	fs.StringVar(&flags.Request, "request", "", "project request (prompted for when empty)")
	fs.StringVar(&flags.Output, "output", "", "output root; documents go to <output>/project (prompted for when empty)")
	fs.BoolVar(&flags.AutoApprove, "auto-approve", false, "approve every review gate without asking")
	fs.StringVar(&flags.Inbox, "inbox", "", "answer review gates through decision files in this directory")
	fs.IntVar(&flags.MaxRevisions, "max-revisions", 0, "revision budget per stage (default from config)")
	fs.StringVar(&flags.TraceFile, "trace-file", "", "write OpenTelemetry spans to this file")
	fs.BoolVar(&flags.NoDiagram, "no-diagram", false, "skip rendering the flow diagram to PNG")
	fs.BoolVar(&flags.ServeMCP, "serve-mcp", false, "run as MCP server on stdio")
	fs.StringVar(&flags.MCPAddr, "mcp-addr", "", "serve MCP over streamable HTTP on this address instead of stdio")
	fs.BoolVar(&flags.Verbose, "verbose", false, "enable debug logging")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if flags.Version {
		fmt.Fprintln(stdout, version)
		return nil
	}
	if flags.AutoApprove && flags.Inbox != "" {
		return fmt.Errorf("-auto-approve and -inbox are mutually exclusive")
	}

	a, err := newApp(flags, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	if flags.ServeMCP || flags.MCPAddr != "" {
		return a.serveMCP(ctx)
	}
	return a.runPipeline(ctx, stdin, stdout)
}
