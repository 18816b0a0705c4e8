package panel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/storefrontlabs/adminflow/internal/store"
	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// handleChat submits a natural-language command for the given session.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if body.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	wf, err := s.deps.Orchestrator.Submit(r.Context(), body.SessionID, body.Message)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflowReply(wf))
}

// handleConfirm resolves a pending confirmation.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WorkflowID string `json:"workflow_id"`
		SessionID  string `json:"session_id"`
		Confirmed  *bool  `json:"confirmed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.WorkflowID == "" {
		writeError(w, http.StatusBadRequest, "workflow_id is required")
		return
	}
	if body.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if body.Confirmed == nil {
		writeError(w, http.StatusBadRequest, "confirmed is required")
		return
	}

	wf, err := s.deps.Orchestrator.Confirm(r.Context(), body.WorkflowID, body.SessionID, *body.Confirmed)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflowReply(wf))
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.WorkflowFilter{
		SessionID: q.Get("session_id"),
		Limit:     intQuery(q.Get("limit"), 50),
		Offset:    intQuery(q.Get("offset"), 0),
	}
	if v := q.Get("status"); v != "" {
		status := schema.Status(v)
		filter.Status = &status
	}

	workflows, err := s.deps.Orchestrator.List(r.Context(), filter)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": workflows})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.deps.Orchestrator.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleWorkflowEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.deps.Orchestrator.Events(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := s.deps.Store.ListProducts(r.Context(), store.ProductFilter{
		ActiveOnly: q.Get("active") == "true",
		Limit:      intQuery(q.Get("limit"), 50),
		Offset:     intQuery(q.Get("offset"), 0),
	})
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Store.GetProduct(r.Context(), r.PathValue("sku"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.OrderFilter{
		Limit:  intQuery(q.Get("limit"), 50),
		Offset: intQuery(q.Get("offset"), 0),
	}
	if v := q.Get("status"); v != "" {
		status := schema.OrderStatus(v)
		filter.Status = &status
	}

	orders, err := s.deps.Store.ListOrders(r.Context(), filter)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.deps.Store.GetOrder(r.Context(), r.PathValue("number"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// workflowReply is the chat-facing view of a workflow record: the reply
// text plus enough state for the client to confirm or poll.
func workflowReply(wf *schema.WorkflowRecord) map[string]any {
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

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
