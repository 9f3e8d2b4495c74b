package mcptools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewCallGraphMCPServer creates an MCP server with all 6 call graph tools registered.
func NewCallGraphMCPServer(svc *CallGraphService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "callreach",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reachable_data",
		Description: "List the database tables and fields reachable from the function containing a file:line, following call edges breadth-first. Sensitive fields are aggregated per table.field with the call paths that reach them.",
	}, svc.ReachableData)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "paths_to_data",
		Description: "Find the entry points (handlers, exported APIs) whose call paths reach accesses to a table, optionally restricted to one field. Returns each path in entry-point-to-accessor order.",
	}, svc.PathsToData)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_function",
		Description: "Look up a function in the call graph by id. Returns its location, callees, callers and direct data accesses.",
	}, svc.GetFunction)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "function_at_line",
		Description: "Return the innermost function whose line range contains the given line of a file.",
	}, svc.FunctionAtLine)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "graph_stats",
		Description: "Return function, file, table and call-site counts for the project's call graph.",
	}, svc.GraphStats)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "provider_stats",
		Description: "Return graph counts plus shard cache hits, misses, evictions and shards currently loaded.",
	}, svc.ProviderStats)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP starts an HTTP server exposing the MCP tools over the streamable
// HTTP transport.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
