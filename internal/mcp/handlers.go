package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"trialrag/internal/engine"
	"trialrag/internal/metrics"
)

// Engine is what the tools call into.
type Engine interface {
	SubmitTurn(ctx context.Context, sessionID, message string) (engine.Reply, error)
	ResetSession(sessionID string) error
	Metrics() metrics.Snapshot
}

// Handlers holds the tool handler functions.
type Handlers struct {
	engine Engine
}

// NewHandlers returns tool handlers backed by eng.
func NewHandlers(eng Engine) *Handlers {
	return &Handlers{engine: eng}
}

type turnResponse struct {
	SessionID       string             `json:"session_id"`
	Message         string             `json:"assistant_message"`
	Citation        *string            `json:"source_citation"`
	SourceUsed      string             `json:"source_used"`
	IsUnknown       bool               `json:"is_unknown"`
	IsSafetyRefusal bool               `json:"is_safety_refusal"`
	IsClarification bool               `json:"is_clarification"`
	Sources         []engine.SourceRef `json:"sources,omitempty"`
}

// SubmitTurn handles the submit_turn tool.
func (h *Handlers) SubmitTurn(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message argument is required and must be a string"), nil
	}
	sessionID := request.GetString("session_id", "")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	reply, err := h.engine.SubmitTurn(ctx, sessionID, message)
	if err != nil {
		if errors.Is(err, engine.ErrRetrievalTimeout) {
			return mcp.NewToolResultError("retrieval timed out, please retry"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("turn failed: %v", err)), nil
	}

	resp := turnResponse{
		SessionID:       sessionID,
		Message:         reply.Message,
		SourceUsed:      reply.Source,
		IsUnknown:       reply.Unknown,
		IsSafetyRefusal: reply.SafetyRefusal,
		IsClarification: reply.Clarification,
		Sources:         reply.Sources,
	}
	if reply.Citation != "" {
		c := reply.Citation
		resp.Citation = &c
	}
	return jsonResult(resp)
}

// ResetSession handles the reset_session tool.
func (h *Handlers) ResetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil || sessionID == "" {
		return mcp.NewToolResultError("session_id argument is required and must be a string"), nil
	}
	if err := h.engine.ResetSession(sessionID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reset failed: %v", err)), nil
	}
	return jsonResult(map[string]string{"status": "success", "session_id": sessionID})
}

// GetMetrics handles the get_metrics tool.
func (h *Handlers) GetMetrics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.engine.Metrics())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
