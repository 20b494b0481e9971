package mcp

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/extbridge/pkg/schema"
)

// Handler executes one extbridge request. *dispatch.Dispatcher satisfies it.
type Handler interface {
	Handle(ctx context.Context, req schema.Request) any
}

// BridgeServerDeps holds the dependencies for creating a BridgeServer.
type BridgeServerDeps struct {
	Handler Handler
	Version string
	Logger  *slog.Logger
}

// BridgeServer exposes the extbridge actions as MCP tools.
type BridgeServer struct {
	handler   Handler
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewBridgeServer creates a new BridgeServer with one tool per action registered.
func NewBridgeServer(deps BridgeServerDeps) *BridgeServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &BridgeServer{
		handler: deps.Handler,
		logger:  logger,
	}

	mcpSrv := server.NewMCPServer(
		"extbridge",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("extbridge discovers unpacked browser extensions in a folder and loads them into Firefox for development. Use extbridge.set_folder to choose the folder, extbridge.scan to list extensions, extbridge.load or extbridge.load_all to start them, and extbridge.unload or extbridge.unload_all to stop them."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve runs the stdio transport on in/out and blocks until ctx is cancelled or in closes.
func (s *BridgeServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, in, out)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *BridgeServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *BridgeServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: statusTool(), Handler: s.handleAction(schema.ActionStatus)},
		{Tool: scanTool(), Handler: s.handleAction(schema.ActionScan)},
		{Tool: setFolderTool(), Handler: s.handleAction(schema.ActionSetFolder)},
		{Tool: loadTool(), Handler: s.handleAction(schema.ActionLoad)},
		{Tool: loadAllTool(), Handler: s.handleAction(schema.ActionLoadAll)},
		{Tool: unloadTool(), Handler: s.handleAction(schema.ActionUnload)},
		{Tool: unloadAllTool(), Handler: s.handleAction(schema.ActionUnloadAll)},
	}
}

// --- Tool definitions ---

func toolName(a schema.Action) string {
	return "extbridge." + string(a)
}

func statusTool() mcp.Tool {
	return mcp.NewTool(toolName(schema.ActionStatus),
		mcp.WithDescription("Report configuration, loader availability and loaded extensions"),
	)
}

func scanTool() mcp.Tool {
	return mcp.NewTool(toolName(schema.ActionScan),
		mcp.WithDescription("List the extensions found in the configured folder"),
	)
}

func setFolderTool() mcp.Tool {
	return mcp.NewTool(toolName(schema.ActionSetFolder),
		mcp.WithDescription("Set and persist the extension folder, then scan it"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Folder containing one subdirectory per extension")),
	)
}

func loadTool() mcp.Tool {
	return mcp.NewTool(toolName(schema.ActionLoad),
		mcp.WithDescription("Load one extension into Firefox"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Extension directory holding manifest.json")),
	)
}

func loadAllTool() mcp.Tool {
	return mcp.NewTool(toolName(schema.ActionLoadAll),
		mcp.WithDescription("Load every extension in the configured folder"),
	)
}

func unloadTool() mcp.Tool {
	return mcp.NewTool(toolName(schema.ActionUnload),
		mcp.WithDescription("Unload a previously loaded extension"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Extension directory as passed to load")),
	)
}

func unloadAllTool() mcp.Tool {
	return mcp.NewTool(toolName(schema.ActionUnloadAll),
		mcp.WithDescription("Unload every loaded extension"),
	)
}
