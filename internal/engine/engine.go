// Package engine orchestrates the command workflow: extraction, guardrail
// validation, policy decision, execution, and response. Workflows suspend
// at the policy step when a human must confirm and resume exactly once on
// approval.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storefrontlabs/adminflow/internal/logging"
	"github.com/storefrontlabs/adminflow/internal/nlp"
	"github.com/storefrontlabs/adminflow/internal/policy"
	"github.com/storefrontlabs/adminflow/internal/store"
	"github.com/storefrontlabs/adminflow/internal/validate"
	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// Defaults for Config fields left zero.
const (
	DefaultOutlierThreshold    = 40.0
	DefaultConfidenceThreshold = 0.75
	DefaultConfirmationTTL     = 24 * time.Hour
	DefaultExecutionTimeout    = 30 * time.Second
)

// DefaultHighRiskIntents always require confirmation regardless of
// extraction confidence or validation risk. Refunds are included on top of
// the destructive catalog mutations: they move money.
var DefaultHighRiskIntents = []string{
	schema.IntentCancelOrder,
	schema.IntentUpdatePrice,
	schema.IntentUpdatePromotion,
	schema.IntentRefundOrder,
}

// Config tunes the orchestrator.
type Config struct {
	// OutlierThreshold is the price deviation percent above which a price
	// change requires confirmation.
	OutlierThreshold float64
	// ConfidenceThreshold below which mutating commands require
	// confirmation.
	ConfidenceThreshold float64
	// HighRiskIntents always require confirmation. Nil means defaults;
	// an explicit empty slice disables the list.
	HighRiskIntents []string
	// ConfirmationTTL bounds how long a pending confirmation stays
	// actionable.
	ConfirmationTTL time.Duration
	// ExecutionTimeout bounds a single command execution.
	ExecutionTimeout time.Duration
	// Overrides are operator CEL predicates that may escalate commands to
	// confirmation.
	Overrides *policy.OverrideSet
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.OutlierThreshold == 0 {
		out.OutlierThreshold = DefaultOutlierThreshold
	}
	if out.ConfidenceThreshold == 0 {
		out.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if out.HighRiskIntents == nil {
		out.HighRiskIntents = DefaultHighRiskIntents
	}
	if out.ConfirmationTTL == 0 {
		out.ConfirmationTTL = DefaultConfirmationTTL
	}
	if out.ExecutionTimeout == 0 {
		out.ExecutionTimeout = DefaultExecutionTimeout
	}
	return out
}

// CommandRunner executes a single validated command and always returns an
// outcome envelope. Satisfied by *execute.Dispatcher.
type CommandRunner interface {
	Execute(ctx context.Context, intent string, entities []byte) *schema.Execution
}

// Orchestrator drives workflow records through the pipeline. All state
// lives in the store; the orchestrator itself only holds synchronization.
type Orchestrator struct {
	store      store.Store
	extractor  nlp.Extractor
	responder  nlp.Responder
	validator  *validate.Stage
	dispatcher CommandRunner
	stepFSM    *StepFSM
	statusFSM  *StatusFSM
	config     Config
	logger     *slog.Logger

	// mu guards locks. Per-workflow mutexes serialize Confirm and expiry
	// against each other; entries are dropped once the record is terminal.
	// A late confirm then takes a fresh mutex, but the persisted record is
	// already resolved so it can only replay or report staleness.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(
	s store.Store,
	extractor nlp.Extractor,
	responder nlp.Responder,
	validator *validate.Stage,
	dispatcher CommandRunner,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:      s,
		extractor:  extractor,
		responder:  responder,
		validator:  validator,
		dispatcher: dispatcher,
		stepFSM:    NewStepFSM(s),
		statusFSM:  NewStatusFSM(s),
		config:     cfg.withDefaults(),
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}

	trace := func(ctx context.Context, workflowID, from, to string) error {
		o.logger.DebugContext(ctx, "state transition",
			slog.String("workflow_id", workflowID),
			slog.String("from", from),
			slog.String("to", to))
		return nil
	}
	for from, tos := range ValidStepTransitions {
		for _, to := range tos {
			o.stepFSM.OnAfter(from, to, trace)
		}
	}
	for from, tos := range ValidStatusTransitions {
		for _, to := range tos {
			o.statusFSM.OnAfter(from, to, trace)
		}
	}
	return o
}

// Submit runs a new command message through the pipeline. The returned
// record is terminal or suspended awaiting confirmation; pipeline
// failures surface as failed records with an error response rather than
// as Go errors. Only infrastructure faults return an error.
func (o *Orchestrator) Submit(ctx context.Context, sessionID, message string) (*schema.WorkflowRecord, error) {
	if strings.TrimSpace(message) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "message is empty")
	}
	if sessionID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "session_id is required")
	}

	now := time.Now().UTC()
	wf := &schema.WorkflowRecord{
		WorkflowID: uuid.NewString(),
		SessionID:  sessionID,
		TraceID:    uuid.NewString(),
		Message:    message,
		Step:       schema.StepPlanning,
		Status:     schema.StatusIdle,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	ctx = logging.WithIDs(ctx, wf.WorkflowID, sessionID, wf.TraceID)

	if err := o.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	if err := o.appendEvent(ctx, wf, schema.EventWorkflowCreated, []byte(fmt.Sprintf("%q", message))); err != nil {
		return nil, err
	}
	o.logger.InfoContext(ctx, "workflow created")

	// Planning: extraction plus output schema validation.
	plan, err := o.extractor.Extract(ctx, message, o.sessionContext(ctx, sessionID))
	if err == nil {
		err = validate.ValidateExtraction(plan)
	}
	if err != nil {
		o.logger.WarnContext(ctx, "extraction failed", slog.Any("error", err))
		return o.failWorkflow(ctx, wf, "I couldn't understand that request. Could you rephrase it?")
	}
	wf.Plan = plan
	if err := o.advanceStep(ctx, wf, schema.StepValidating); err != nil {
		return nil, err
	}

	// Validation: deterministic guardrails over current domain state.
	verdict, err := o.validator.Run(ctx, plan)
	if err != nil {
		return nil, err
	}
	wf.Validation = verdict
	if err := o.advanceStep(ctx, wf, schema.StepPolicy); err != nil {
		return nil, err
	}
	if !verdict.Valid {
		return o.completeWithResponse(ctx, wf, &schema.Response{
			Message:      "I can't do that: " + strings.Join(verdict.Errors, "; "),
			ResponseType: schema.ResponseError,
		})
	}

	// Policy: run now or suspend for a human.
	decision := policy.Decide(policy.Config{
		ConfidenceThreshold: o.config.ConfidenceThreshold,
		HighRiskIntents:     o.config.HighRiskIntents,
		Overrides:           o.config.Overrides,
	}, plan, verdict)

	if decision.Outcome == policy.OutcomeConfirm {
		return o.suspend(ctx, wf, decision)
	}

	return o.execute(ctx, wf, schema.StatusIdle, plan.Intent, plan.Entities)
}

// Confirm resolves a suspended workflow. A second confirmation of an
// already-executed workflow replays the stored response without executing
// again.
func (o *Orchestrator) Confirm(ctx context.Context, workflowID, sessionID string, confirmed bool) (*schema.WorkflowRecord, error) {
	lock := o.lockFor(workflowID)
	lock.Lock()
	defer lock.Unlock()

	wf, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.SessionID != sessionID {
		// Do not reveal that the workflow exists to another session.
		return nil, schema.NewError(schema.ErrCodeSessionMismatch, "workflow not found")
	}
	// Replays and stale confirms hit terminal records whose lock entry was
	// already evicted; drop the one lockFor just recreated.
	defer func() {
		if wf.Terminal() {
			o.evictLock(workflowID)
		}
	}()
	ctx = logging.WithIDs(ctx, wf.WorkflowID, wf.SessionID, wf.TraceID)

	if wf.Execution != nil {
		o.logger.InfoContext(ctx, "confirmation replayed, already executed")
		return wf, nil
	}
	if wf.Status != schema.StatusPendingConfirmation {
		return nil, schema.NewErrorf(schema.ErrCodeStaleConfirmation,
			"workflow is %s, nothing to confirm", wf.Status)
	}
	if wf.ExpiresAt != nil && time.Now().After(*wf.ExpiresAt) {
		if _, err := o.expire(ctx, wf); err != nil {
			return nil, err
		}
		return nil, schema.NewError(schema.ErrCodeExpired, "the confirmation window has expired, please start over")
	}

	if !confirmed {
		if err := o.appendEvent(ctx, wf, schema.EventConfirmDenied, nil); err != nil {
			return nil, err
		}
		o.logger.InfoContext(ctx, "confirmation denied")
		pending := wf.PendingAction
		wf.PendingAction = nil
		wf.ExpiresAt = nil
		return o.completeWithResponse(ctx, wf, &schema.Response{
			Message:      "Okay, I won't " + strings.ReplaceAll(pending.Intent, "_", " ") + ". Nothing was changed.",
			ResponseType: schema.ResponseSuccess,
		})
	}

	if err := o.appendEvent(ctx, wf, schema.EventConfirmReceived, nil); err != nil {
		return nil, err
	}
	o.logger.InfoContext(ctx, "confirmation received, resuming")
	pending := wf.PendingAction
	wf.ExpiresAt = nil
	return o.execute(ctx, wf, schema.StatusPendingConfirmation, pending.Intent, pending.Entities)
}

// Get returns a workflow record by ID.
func (o *Orchestrator) Get(ctx context.Context, workflowID string) (*schema.WorkflowRecord, error) {
	return o.store.GetWorkflow(ctx, workflowID)
}

// List returns workflow records matching the filter.
func (o *Orchestrator) List(ctx context.Context, filter store.WorkflowFilter) ([]*schema.WorkflowRecord, error) {
	return o.store.ListWorkflows(ctx, filter)
}

// Events returns the audit trail of a workflow in sequence order.
func (o *Orchestrator) Events(ctx context.Context, workflowID string) ([]*store.Event, error) {
	return o.store.GetEvents(ctx, workflowID, 0)
}

// ExpireStale fails every pending confirmation whose window has passed.
// Returns the number of workflows expired. Called by the scheduler.
func (o *Orchestrator) ExpireStale(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	pending := schema.StatusPendingConfirmation
	stale, err := o.store.ListWorkflows(ctx, store.WorkflowFilter{
		Status:        &pending,
		ExpiresBefore: &now,
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, wf := range stale {
		lock := o.lockFor(wf.WorkflowID)
		lock.Lock()
		// Reload under the lock: a confirm may have raced the sweep.
		current, err := o.store.GetWorkflow(ctx, wf.WorkflowID)
		if err == nil && current.Status == schema.StatusPendingConfirmation &&
			current.ExpiresAt != nil && now.After(*current.ExpiresAt) {
			wctx := logging.WithIDs(ctx, current.WorkflowID, current.SessionID, current.TraceID)
			if _, err := o.expire(wctx, current); err != nil {
				o.logger.ErrorContext(wctx, "expire failed", slog.Any("error", err))
			} else {
				expired++
			}
		} else if err == nil && current.Terminal() {
			// A confirm raced the sweep and resolved it; drop the entry.
			o.evictLock(wf.WorkflowID)
		}
		lock.Unlock()
	}
	return expired, nil
}

// --- pipeline internals ---

// execute runs the command and drives the record to a terminal state.
// fromStatus is the status the workflow resumes from (idle for immediate
// runs, pending_confirmation for confirmed ones).
func (o *Orchestrator) execute(ctx context.Context, wf *schema.WorkflowRecord, fromStatus schema.Status, intent string, entities []byte) (*schema.WorkflowRecord, error) {
	if err := o.statusFSM.Transition(ctx, wf.WorkflowID, fromStatus, schema.StatusExecuting); err != nil {
		return nil, err
	}
	wf.Status = schema.StatusExecuting
	if err := o.advanceStep(ctx, wf, schema.StepExecuting); err != nil {
		return nil, err
	}

	exec := o.runWithWatchdog(ctx, intent, entities)
	wf.Execution = exec
	wf.Response = o.responder.Respond(ctx, intent, exec)

	if !exec.Success {
		if err := o.appendEvent(ctx, wf, schema.EventExecutionFailed, []byte(fmt.Sprintf("%q", exec.Error))); err != nil {
			return nil, err
		}
		if err := o.statusFSM.Transition(ctx, wf.WorkflowID, schema.StatusExecuting, schema.StatusFailed); err != nil {
			return nil, err
		}
		wf.Status = schema.StatusFailed
		if err := o.advanceStep(ctx, wf, schema.StepFailed); err != nil {
			return nil, err
		}
		return wf, o.finish(ctx, wf)
	}

	if err := o.advanceStep(ctx, wf, schema.StepResponding); err != nil {
		return nil, err
	}
	if err := o.appendEvent(ctx, wf, schema.EventResponseGenerated, nil); err != nil {
		return nil, err
	}

	if err := o.statusFSM.Transition(ctx, wf.WorkflowID, schema.StatusExecuting, schema.StatusCompleted); err != nil {
		return nil, err
	}
	wf.Status = schema.StatusCompleted
	if err := o.advanceStep(ctx, wf, schema.StepCompleted); err != nil {
		return nil, err
	}
	return wf, o.finish(ctx, wf)
}

// runWithWatchdog bounds a single execution. The dispatcher observes the
// deadline through ctx; the select is the backstop for a handler that
// ignores it.
func (o *Orchestrator) runWithWatchdog(ctx context.Context, intent string, entities []byte) *schema.Execution {
	execCtx, cancel := context.WithTimeout(ctx, o.config.ExecutionTimeout)
	defer cancel()

	done := make(chan *schema.Execution, 1)
	go func() {
		done <- o.dispatcher.Execute(execCtx, intent, entities)
	}()

	select {
	case exec := <-done:
		return exec
	case <-execCtx.Done():
		o.logger.ErrorContext(ctx, "execution watchdog fired",
			slog.String("intent", intent),
			slog.Duration("timeout", o.config.ExecutionTimeout))
		return &schema.Execution{
			Success: false,
			Error:   fmt.Sprintf("execution of %s timed out after %s", intent, o.config.ExecutionTimeout),
		}
	}
}

// suspend parks the workflow at the policy step awaiting confirmation.
func (o *Orchestrator) suspend(ctx context.Context, wf *schema.WorkflowRecord, decision policy.Decision) (*schema.WorkflowRecord, error) {
	if err := o.statusFSM.Transition(ctx, wf.WorkflowID, schema.StatusIdle, schema.StatusPendingConfirmation); err != nil {
		return nil, err
	}
	wf.Status = schema.StatusPendingConfirmation
	wf.PendingAction = decision.PendingAction
	wf.Response = &schema.Response{
		Message:      decision.Message,
		ResponseType: schema.ResponseConfirmation,
	}
	expires := time.Now().UTC().Add(o.config.ConfirmationTTL)
	wf.ExpiresAt = &expires

	o.logger.InfoContext(ctx, "workflow suspended for confirmation",
		slog.String("reason", decision.Reason),
		slog.Time("expires_at", expires))

	wf.UpdatedAt = time.Now().UTC()
	if err := o.store.SaveWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// expire marks a pending confirmation as failed after its window passed.
func (o *Orchestrator) expire(ctx context.Context, wf *schema.WorkflowRecord) (*schema.WorkflowRecord, error) {
	if err := o.appendEvent(ctx, wf, schema.EventConfirmExpired, nil); err != nil {
		return nil, err
	}
	if err := o.statusFSM.Transition(ctx, wf.WorkflowID, schema.StatusPendingConfirmation, schema.StatusFailed); err != nil {
		return nil, err
	}
	wf.Status = schema.StatusFailed
	wf.PendingAction = nil
	wf.Response = &schema.Response{
		Message:      "The confirmation window expired, so nothing was changed. Please start over if you still want this.",
		ResponseType: schema.ResponseError,
	}
	if err := o.advanceStep(ctx, wf, schema.StepFailed); err != nil {
		return nil, err
	}
	o.logger.InfoContext(ctx, "pending confirmation expired")
	return wf, o.finish(ctx, wf)
}

// completeWithResponse finishes a workflow that never executed anything
// (invalid commands, denied confirmations).
func (o *Orchestrator) completeWithResponse(ctx context.Context, wf *schema.WorkflowRecord, resp *schema.Response) (*schema.WorkflowRecord, error) {
	wf.Response = resp
	if err := o.advanceStep(ctx, wf, schema.StepResponding); err != nil {
		return nil, err
	}
	if err := o.statusFSM.Transition(ctx, wf.WorkflowID, wf.Status, schema.StatusCompleted); err != nil {
		return nil, err
	}
	wf.Status = schema.StatusCompleted
	if err := o.advanceStep(ctx, wf, schema.StepCompleted); err != nil {
		return nil, err
	}
	return wf, o.finish(ctx, wf)
}

// failWorkflow drives the record to failed with a user-facing error
// response. Used for pipeline failures before the policy step.
func (o *Orchestrator) failWorkflow(ctx context.Context, wf *schema.WorkflowRecord, message string) (*schema.WorkflowRecord, error) {
	wf.Response = &schema.Response{
		Message:      message,
		ResponseType: schema.ResponseError,
	}
	if err := o.advanceStep(ctx, wf, schema.StepFailed); err != nil {
		return nil, err
	}
	if err := o.statusFSM.Transition(ctx, wf.WorkflowID, wf.Status, schema.StatusFailed); err != nil {
		return nil, err
	}
	wf.Status = schema.StatusFailed
	return wf, o.finish(ctx, wf)
}

// advanceStep moves the pipeline step forward and persists nothing; the
// caller saves when the record settles.
func (o *Orchestrator) advanceStep(ctx context.Context, wf *schema.WorkflowRecord, to schema.Step) error {
	if err := o.stepFSM.Transition(ctx, wf.WorkflowID, wf.Step, to); err != nil {
		return err
	}
	wf.Step = to
	return nil
}

// finish stamps completion, persists the terminal record, and releases the
// workflow's lock map entry.
func (o *Orchestrator) finish(ctx context.Context, wf *schema.WorkflowRecord) error {
	now := time.Now().UTC()
	wf.UpdatedAt = now
	wf.CompletedAt = &now
	if err := o.store.SaveWorkflow(ctx, wf); err != nil {
		return err
	}
	o.evictLock(wf.WorkflowID)
	o.logger.InfoContext(ctx, "workflow finished",
		slog.String("step", string(wf.Step)),
		slog.String("status", string(wf.Status)))
	return nil
}

func (o *Orchestrator) appendEvent(ctx context.Context, wf *schema.WorkflowRecord, eventType string, payload []byte) error {
	return o.store.AppendEvent(ctx, &store.Event{
		WorkflowID: wf.WorkflowID,
		SessionID:  wf.SessionID,
		Type:       eventType,
		Payload:    payload,
	})
}

// sessionContext assembles recent-intent hints for the extractor. Failures
// degrade to an empty context; extraction works without history.
func (o *Orchestrator) sessionContext(ctx context.Context, sessionID string) nlp.SessionContext {
	sc := nlp.SessionContext{SessionID: sessionID}
	recent, err := o.store.ListWorkflows(ctx, store.WorkflowFilter{SessionID: sessionID, Limit: 5})
	if err != nil {
		return sc
	}
	for _, wf := range recent {
		if wf.Plan != nil {
			sc.RecentIntents = append(sc.RecentIntents, wf.Plan.Intent)
		}
	}
	return sc
}

func (o *Orchestrator) lockFor(workflowID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[workflowID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[workflowID] = lock
	}
	return lock
}

func (o *Orchestrator) evictLock(workflowID string) {
	o.mu.Lock()
	delete(o.locks, workflowID)
	o.mu.Unlock()
}
