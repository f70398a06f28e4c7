package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/stepflow/internal/engine"
	"github.com/rendis/stepflow/internal/store"
	"github.com/rendis/stepflow/internal/streaming"
	"github.com/rendis/stepflow/internal/validation"
)

// Version is reported to MCP clients during initialization.
const Version = "1.0.0"

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Executor  engine.Executor
	Store     store.Store
	Validator validation.Validator
	Hub       streaming.EventHub
	Logger    *slog.Logger
}

// Server wraps an MCP server with stepflow tool handlers.
type Server struct {
	executor  engine.Executor
	store     store.Store
	validator validation.Validator
	hub       streaming.EventHub
	logger    *slog.Logger
	sessions  *SessionRegistry
	mcpServer *server.MCPServer
}

// NewServer creates a Server with every tool registered. A nil Validator
// selects validation.NewWorkflowValidator.
func NewServer(deps ServerDeps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	v := deps.Validator
	if v == nil {
		wv, err := validation.NewWorkflowValidator()
		if err != nil {
			return nil, err
		}
		v = wv
	}

	s := &Server{
		executor:  deps.Executor,
		store:     deps.Store,
		validator: v,
		hub:       deps.Hub,
		logger:    logger,
		sessions:  NewSessionRegistry(),
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, session server.ClientSession) {
		s.sessions.Remove(session.SessionID())
	})

	mcpSrv := server.NewMCPServer(
		"stepflow",
		Version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions("Stepflow runs multi-step agent workflows. Use stepflow.define to store a workflow, "+
			"stepflow.run to execute it, stepflow.status and stepflow.cancel to follow or stop a run, "+
			"stepflow.query to list workflows and runs, stepflow.match_agents and stepflow.suggest_capabilities "+
			"to pick agents for a task, and stepflow.diagram to render a workflow."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes. Run progress events are pushed to watching sessions while
// serving.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.hub != nil {
		notifier := NewProgressNotifier(s.mcpServer, s.sessions, s.logger)
		go func() {
			if err := notifier.Forward(ctx, s.hub); err != nil && ctx.Err() == nil {
				s.logger.Warn("progress forwarding stopped", "error", err)
			}
		}()
	}

	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: cancelTool(), Handler: s.handleCancel},
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: matchAgentsTool(), Handler: s.handleMatchAgents},
		{Tool: suggestCapabilitiesTool(), Handler: s.handleSuggestCapabilities},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func runTool() mcp.Tool {
	return mcp.NewTool("stepflow.run",
		mcp.WithDescription("Execute a stored workflow and return the finished run"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to execute")),
		mcp.WithObject("context", mcp.Description("Initial run context")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("stepflow.status",
		mcp.WithDescription("Get the persisted state of a run"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to query")),
	)
}

func cancelTool() mcp.Tool {
	return mcp.NewTool("stepflow.cancel",
		mcp.WithDescription("Cancel a running run"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to cancel")),
	)
}

func defineTool() mcp.Tool {
	return mcp.NewTool("stepflow.define",
		mcp.WithDescription("Validate and store a workflow definition"),
		mcp.WithObject("workflow", mcp.Required(), mcp.Description("Workflow definition: name, trigger_kind, trigger_config, enabled, steps")),
		mcp.WithString("user_id", mcp.Description("Owner of the workflow (overrides workflow.user_id)")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("stepflow.query",
		mcp.WithDescription("List workflows or runs"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("workflows", "runs"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (user_id, trigger_kind, enabled, workflow_id, status, since, limit, offset)")),
	)
}

func matchAgentsTool() mcp.Tool {
	return mcp.NewTool("stepflow.match_agents",
		mcp.WithDescription("Rank agents by how well their capabilities fit a task description"),
		mcp.WithString("description", mcp.Required(), mcp.Description("Free-text task description")),
		mcp.WithArray("agents", mcp.Required(),
			mcp.Description("Candidate agents: id, name, capabilities, availability, tasks_completed"),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithNumber("limit", mcp.Description("Maximum number of matches (default 10)")),
		mcp.WithNumber("min_score", mcp.Description("Drop matches scoring below this value")),
		mcp.WithBoolean("online_only", mcp.Description("Only consider online agents")),
	)
}

func suggestCapabilitiesTool() mcp.Tool {
	return mcp.NewTool("stepflow.suggest_capabilities",
		mcp.WithDescription("Suggest capability categories for a task description"),
		mcp.WithString("description", mcp.Required(), mcp.Description("Free-text task description")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("stepflow.diagram",
		mcp.WithDescription("Render a workflow as Mermaid, ASCII art, or an image, optionally with a run's progress"),
		mcp.WithString("workflow_id", mcp.Description("Workflow to render")),
		mcp.WithString("run_id", mcp.Description("Run whose progress is overlaid (implies its workflow)")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("mermaid", "ascii", "png", "svg"),
			mcp.Description("Output format"),
		),
	)
}
