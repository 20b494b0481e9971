package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/extbridge/internal/logging"
	"github.com/rendis/extbridge/pkg/schema"
)

// handleAction returns the tool handler that forwards to the given action.
func (s *BridgeServer) handleAction(action schema.Action) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		r := schema.Request{Action: action}
		if requiresPath(action) {
			path, err := req.RequireString("path")
			if err != nil || path == "" {
				return mcp.NewToolResultError("path is required"), nil
			}
			r.Path = path
		}

		ctx = logging.WithRequestID(ctx, uuid.New().String())
		if session := server.ClientSessionFromContext(ctx); session != nil {
			s.logger.DebugContext(ctx, "tool call", slog.String("session", session.SessionID()), slog.String("tool", req.Params.Name))
		}

		resp := s.handler.Handle(ctx, r)
		if e, ok := resp.(*schema.ErrorResponse); ok {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %s", e.Code, e.Message)), nil
		}
		return marshalResult(resp)
	}
}

func requiresPath(a schema.Action) bool {
	switch a {
	case schema.ActionSetFolder, schema.ActionLoad, schema.ActionUnload:
		return true
	}
	return false
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
