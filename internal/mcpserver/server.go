// Package mcpserver exposes fraud scoring to LLM agents over the Model
// Context Protocol. Every tool is a thin call into the dashboard's JSON API.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported to MCP clients during initialization.
const Version = "1.0.0"

// NewMCPServer creates a configured MCP server with all fraudscope tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("fraudscope", Version)
	h := NewHandlers(NewFraudscopeClient(cfg))

	s.AddTool(ToolAssessTransaction, h.HandleAssessTransaction)
	s.AddTool(ToolGetModelStats, h.HandleGetModelStats)
	s.AddTool(ToolListMerchants, h.HandleListMerchants)
	s.AddTool(ToolListCategories, h.HandleListCategories)
	s.AddTool(ToolRecentAssessments, h.HandleRecentAssessments)

	return s
}
