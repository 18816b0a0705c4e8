package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/storefrontlabs/adminflow/internal/store"
	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// handleSubmit runs a natural-language command through the pipeline.
func (s *AdminServer) handleSubmit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message is required"), nil
	}
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	wf, subErr := s.orchestrator.Submit(ctx, sessionID, message)
	if subErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("submit failed: %v", subErr)), nil
	}
	return marshalResult(replyView(wf))
}

// handleConfirm approves or denies a suspended workflow.
func (s *AdminServer) handleConfirm(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	confirmed, err := req.RequireBool("confirmed")
	if err != nil {
		return mcp.NewToolResultError("confirmed is required"), nil
	}

	wf, confErr := s.orchestrator.Confirm(ctx, workflowID, sessionID, confirmed)
	if confErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("confirm failed: %v", confErr)), nil
	}
	return marshalResult(replyView(wf))
}

// handleStatus returns the full workflow record.
func (s *AdminServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	wf, getErr := s.orchestrator.Get(ctx, workflowID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", getErr)), nil
	}
	return marshalResult(wf)
}

// handleQuery lists workflows, events, products, or orders.
func (s *AdminServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	limit := req.GetInt("limit", 50)

	switch resource {
	case "workflows":
		filter := store.WorkflowFilter{
			SessionID: req.GetString("session_id", ""),
			Limit:     limit,
		}
		if v := req.GetString("status", ""); v != "" {
			status := schema.Status(v)
			filter.Status = &status
		}
		workflows, listErr := s.orchestrator.List(ctx, filter)
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list workflows failed: %v", listErr)), nil
		}
		return marshalResult(map[string]any{"workflows": workflows})

	case "events":
		workflowID := req.GetString("workflow_id", "")
		if workflowID == "" {
			return mcp.NewToolResultError("workflow_id is required for events"), nil
		}
		events, evErr := s.orchestrator.Events(ctx, workflowID)
		if evErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list events failed: %v", evErr)), nil
		}
		return marshalResult(map[string]any{"events": events})

	case "products":
		products, listErr := s.store.ListProducts(ctx, store.ProductFilter{Limit: limit})
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list products failed: %v", listErr)), nil
		}
		return marshalResult(map[string]any{"products": products})

	case "orders":
		filter := store.OrderFilter{Limit: limit}
		if v := req.GetString("status", ""); v != "" {
			status := schema.OrderStatus(v)
			filter.Status = &status
		}
		orders, listErr := s.store.ListOrders(ctx, filter)
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list orders failed: %v", listErr)), nil
		}
		return marshalResult(map[string]any{"orders": orders})

	default:
		return mcp.NewToolResultError("resource must be workflows, events, products, or orders"), nil
	}
}

// replyView is the agent-facing view of a workflow: the reply text plus
// the state needed to confirm or poll.
func replyView(wf *schema.WorkflowRecord) map[string]any {
	out := map[string]any{
		"workflow_id": wf.WorkflowID,
		"session_id":  wf.SessionID,
		"status":      wf.Status,
		"step":        wf.Step,
	}
	if wf.Response != nil {
		out["message"] = wf.Response.Message
		out["response_type"] = wf.Response.ResponseType
	}
	if wf.ExpiresAt != nil {
		out["expires_at"] = wf.ExpiresAt
	}
	return out
}

// marshalResult serializes v as the tool's JSON result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
