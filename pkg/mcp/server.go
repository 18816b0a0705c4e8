// Package mcp exposes the adminflow engine to agents over the Model
// Context Protocol.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/storefrontlabs/adminflow/internal/engine"
	"github.com/storefrontlabs/adminflow/internal/store"
)

// AdminServerDeps holds the dependencies for creating an AdminServer.
type AdminServerDeps struct {
	Orchestrator *engine.Orchestrator
	Store        store.Store
	Logger       *slog.Logger
}

// AdminServer wraps an MCP server with adminflow-specific tool handlers.
type AdminServer struct {
	orchestrator *engine.Orchestrator
	store        store.Store
	logger       *slog.Logger
	mcpServer    *server.MCPServer
}

// NewAdminServer creates a new AdminServer with all 4 tools registered.
func NewAdminServer(deps AdminServerDeps) *AdminServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &AdminServer{
		orchestrator: deps.Orchestrator,
		store:        deps.Store,
		logger:       logger,
	}

	mcpSrv := server.NewMCPServer(
		"adminflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Adminflow executes store-administration commands phrased in natural language, with guardrails and human confirmation for risky changes. Use adminflow.submit to run a command, adminflow.confirm to approve or deny a pending confirmation, adminflow.status to inspect a workflow, and adminflow.query to list workflows/events/products/orders."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *AdminServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *AdminServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 4 registered MCP tools as ServerTool entries.
func (s *AdminServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: submitTool(), Handler: s.handleSubmit},
		{Tool: confirmTool(), Handler: s.handleConfirm},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
}

// --- Tool definitions ---

func submitTool() mcp.Tool {
	return mcp.NewTool("adminflow.submit",
		mcp.WithDescription("Submit a natural-language store-administration command"),
		mcp.WithString("message", mcp.Required(), mcp.Description("The command in plain English")),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session the command belongs to")),
	)
}

func confirmTool() mcp.Tool {
	return mcp.NewTool("adminflow.confirm",
		mcp.WithDescription("Approve or deny a workflow awaiting confirmation"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the suspended workflow")),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session that created the workflow")),
		mcp.WithBoolean("confirmed", mcp.Required(), mcp.Description("true to approve, false to deny")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("adminflow.status",
		mcp.WithDescription("Get the current state of a workflow"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to inspect")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("adminflow.query",
		mcp.WithDescription("List workflows, audit events, products, or orders"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("workflows", "events", "products", "orders"),
			mcp.Description("Which resource to list"),
		),
		mcp.WithString("session_id", mcp.Description("Filter workflows by session")),
		mcp.WithString("workflow_id", mcp.Description("Workflow whose events to list (required for events)")),
		mcp.WithString("status", mcp.Description("Filter workflows or orders by status")),
		mcp.WithNumber("limit", mcp.Description("Maximum results to return (default 50)")),
	)
}
