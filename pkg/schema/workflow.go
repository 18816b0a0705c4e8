package schema

import (
	"encoding/json"
	"time"
)

// Step is the internal pipeline position of a workflow record.
type Step string

const (
	StepPlanning   Step = "planning"
	StepValidating Step = "validating"
	StepPolicy     Step = "policy"
	StepExecuting  Step = "executing"
	StepResponding Step = "responding"
	StepCompleted  Step = "completed"
	StepFailed     Step = "failed"
)

// Status is the externally observable lifecycle state of a workflow record.
// Orthogonal to Step: callers see Status, the engine tracks Step.
type Status string

const (
	StatusIdle                Status = "idle"
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusExecuting           Status = "executing"
	StatusCompleted           Status = "completed"
	StatusFailed              Status = "failed"
)

// ResponseType classifies the user-facing response of a workflow.
type ResponseType string

const (
	ResponseSuccess      ResponseType = "success"
	ResponseConfirmation ResponseType = "confirmation"
	ResponseError        ResponseType = "error"
)

// Plan is the structured intent extracted from the user message.
// Set once during planning, immutable afterwards.
type Plan struct {
	Intent     string          `json:"intent"`
	Entities   json.RawMessage `json:"entities,omitempty"`
	Confidence float64         `json:"confidence"`
}

// Validation is the verdict produced by the validation stage.
// Re-derivable from the plan and domain snapshots, never hand-edited.
type Validation struct {
	Valid                bool     `json:"valid"`
	Errors               []string `json:"errors,omitempty"`
	Warnings             []string `json:"warnings,omitempty"`
	RiskFlag             string   `json:"risk_flag,omitempty"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
	OldValue             any      `json:"old_value,omitempty"`
	NewValue             any      `json:"new_value,omitempty"`
	DeviationPercent     float64  `json:"deviation_percent,omitempty"`
}

// PendingAction is the snapshot taken when the policy stage decides CONFIRM.
// Immutable until consumed by the resume path.
type PendingAction struct {
	Intent   string          `json:"intent"`
	Entities json.RawMessage `json:"entities,omitempty"`
	RiskFlag string          `json:"risk_flag,omitempty"`
}

// Execution is the normalized outcome of the domain mutation.
// Written at most once per record; presence means the mutation was attempted.
type Execution struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Response is the user-facing result of a workflow.
type Response struct {
	Message      string       `json:"message"`
	ResponseType ResponseType `json:"response_type"`
}

// WorkflowRecord is the persisted unit of work: one per user message,
// tracking the command from extraction through completion.
type WorkflowRecord struct {
	WorkflowID string `json:"workflow_id"`
	SessionID  string `json:"session_id"`
	TraceID    string `json:"trace_id,omitempty"`
	Message    string `json:"message"`

	Step   Step   `json:"step"`
	Status Status `json:"status"`

	Plan          *Plan          `json:"plan,omitempty"`
	Validation    *Validation    `json:"validation,omitempty"`
	PendingAction *PendingAction `json:"pending_action,omitempty"`
	Execution     *Execution     `json:"execution,omitempty"`
	Response      *Response      `json:"response,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the record has reached a terminal status.
func (r *WorkflowRecord) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Suspended reports whether the record is parked waiting for confirmation.
// The data-model invariant: pending_confirmation ⟺ pendingAction set and
// execution unset.
func (r *WorkflowRecord) Suspended() bool {
	return r.Status == StatusPendingConfirmation && r.PendingAction != nil && r.Execution == nil
}

// Clone returns a deep copy of the record so stored state cannot be
// mutated through returned snapshots.
func (r *WorkflowRecord) Clone() *WorkflowRecord {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Plan != nil {
		p := *r.Plan
		p.Entities = append(json.RawMessage(nil), r.Plan.Entities...)
		cp.Plan = &p
	}
	if r.Validation != nil {
		v := *r.Validation
		v.Errors = append([]string(nil), r.Validation.Errors...)
		v.Warnings = append([]string(nil), r.Validation.Warnings...)
		cp.Validation = &v
	}
	if r.PendingAction != nil {
		pa := *r.PendingAction
		pa.Entities = append(json.RawMessage(nil), r.PendingAction.Entities...)
		cp.PendingAction = &pa
	}
	if r.Execution != nil {
		ex := *r.Execution
		ex.Data = append(json.RawMessage(nil), r.Execution.Data...)
		cp.Execution = &ex
	}
	if r.Response != nil {
		resp := *r.Response
		cp.Response = &resp
	}
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		cp.ExpiresAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
