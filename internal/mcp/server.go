package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/lodestone-kb/lodestone/internal/kb"
)

const (
	// ServerName is the MCP server name
	ServerName = "lodestone"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with the knowledge-base core.
type Server struct {
	mcp    *server.MCPServer
	core   *kb.Core
	logger *slog.Logger
}

// NewServer creates an MCP server over an already-opened Core.
func NewServer(core *kb.Core, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion),
		core:   core,
		logger: logger.With("component", "mcp"),
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown.
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.core.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools.
func (s *Server) registerTools() {
	s.mcp.AddTool(indexResourceTool(), s.handleIndexResource)
	s.mcp.AddTool(deleteIndexTool(), s.handleDeleteIndex)
	s.mcp.AddTool(searchKnowledgeTool(), s.handleSearchKnowledge)
	s.mcp.AddTool(semanticSearchTool(), s.handleSemanticSearch)
	s.mcp.AddTool(vectorSearchTool(), s.handleVectorSearch)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
