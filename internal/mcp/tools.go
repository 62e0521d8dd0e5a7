// Package mcp exposes the chat engine as MCP tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// RegisterTools registers the answer-engine tools with the server.
func RegisterTools(server *mcpserver.MCPServer, eng Engine) *Handlers {
	h := NewHandlers(eng)

	server.AddTool(mcp.Tool{
		Name:        "submit_turn",
		Description: "Ask a grounded question about the loaded clinical trial records and drug documentation. Answers cite their sources; medical advice requests are refused.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation id. Omit to start a new session.",
				},
				"message": map[string]interface{}{
					"type":        "string",
					"description": "User question",
				},
			},
			Required: []string{"message"},
		},
	}, h.SubmitTurn)

	server.AddTool(mcp.Tool{
		Name:        "reset_session",
		Description: "Clear the conversation history of a session.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session to reset",
				},
			},
			Required: []string{"session_id"},
		},
	}, h.ResetSession)

	server.AddTool(mcp.Tool{
		Name:        "get_metrics",
		Description: "Return the process-wide answer metrics.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, h.GetMetrics)

	return h
}
