package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewServer creates an MCP server with the blueprint tools registered:
// start_run, list_pending_reviews, submit_review and run_status.
func NewServer(svc *RunService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "blueprint",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_run",
		Description: "Start a planning run for a project request. The run writes a project plan, milestones, tech stack, flow diagram, per-worker proposals and a decision under <outputDir>/project, pausing at review gates.",
	}, svc.StartRun)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_pending_reviews",
		Description: "List review requests waiting for a decision. Each request carries the document content, the gate name and the revision iteration.",
	}, svc.ListPendingReviews)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_review",
		Description: "Answer a pending review request with approve, or changes plus feedback. Changes send the document back to its author with the feedback.",
	}, svc.SubmitReview)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_status",
		Description: "Report stage progress of a run. Finished runs include degraded events, the selected outcome and a listing of the files written.",
	}, svc.RunStatus)

	return server
}

// ServeStdio runs the MCP server on stdio transport, blocking until stdin
// is closed or the context is cancelled.
func ServeStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// ServeHTTP exposes the MCP server over streamable HTTP on addr.
func ServeHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
