package engine

import (
	"context"
	"sync"

	"github.com/storefrontlabs/adminflow/internal/store"
	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// TransitionHook is called before or after a state transition. A non-nil
// error from a before hook aborts the transition.
type TransitionHook func(ctx context.Context, workflowID, from, to string) error

// ValidStepTransitions is the legality table for workflow step moves.
// Steps advance monotonically through the pipeline; the only backward
// move in the machine lives in the status dimension (suspension), not here.
var ValidStepTransitions = map[schema.Step][]schema.Step{
	schema.StepPlanning:   {schema.StepValidating, schema.StepFailed},
	schema.StepValidating: {schema.StepPolicy, schema.StepFailed},
	schema.StepPolicy:     {schema.StepExecuting, schema.StepResponding, schema.StepFailed},
	schema.StepExecuting:  {schema.StepResponding, schema.StepFailed},
	schema.StepResponding: {schema.StepCompleted, schema.StepFailed},
}

// ValidStatusTransitions is the legality table for workflow status moves.
// pending_confirmation -> executing is the resume edge; terminal statuses
// have no outgoing moves.
var ValidStatusTransitions = map[schema.Status][]schema.Status{
	schema.StatusIdle:                {schema.StatusPendingConfirmation, schema.StatusExecuting, schema.StatusCompleted, schema.StatusFailed},
	schema.StatusPendingConfirmation: {schema.StatusExecuting, schema.StatusCompleted, schema.StatusFailed},
	schema.StatusExecuting:           {schema.StatusCompleted, schema.StatusFailed},
}

// EventAppender is satisfied by the Store; used by FSMs to emit audit
// events on transitions.
type EventAppender = store.EventAppender

type stepHookKey struct {
	from, to schema.Step
}

// StepFSM manages pipeline step transitions for workflow records.
type StepFSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[stepHookKey][]TransitionHook
	after    map[stepHookKey][]TransitionHook
}

// NewStepFSM creates a new StepFSM that emits events via the given appender.
func NewStepFSM(appender EventAppender) *StepFSM {
	return &StepFSM{
		appender: appender,
		before:   make(map[stepHookKey][]TransitionHook),
		after:    make(map[stepHookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a step transition.
func (f *StepFSM) OnBefore(from, to schema.Step, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stepHookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a step transition.
func (f *StepFSM) OnAfter(from, to schema.Step, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stepHookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and executes a step transition, emitting the
// corresponding audit event. The caller is responsible for persisting the
// new state to the store.
func (f *StepFSM) Transition(ctx context.Context, workflowID string, from, to schema.Step) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !isValidStepTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid step transition: %s -> %s", from, to).
			WithDetails(map[string]any{"workflow_id": workflowID, "from": string(from), "to": string(to)})
	}

	key := stepHookKey{from, to}

	for _, hook := range f.before[key] {
		if err := hook(ctx, workflowID, string(from), string(to)); err != nil {
			return err
		}
	}

	if eventType := stepEventType(to); eventType != "" {
		event := &store.Event{
			WorkflowID: workflowID,
			Type:       eventType,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit step event: %s", err.Error()).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(ctx, workflowID, string(from), string(to)); err != nil {
			return err
		}
	}

	return nil
}

func isValidStepTransition(from, to schema.Step) bool {
	allowed, ok := ValidStepTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

func stepEventType(to schema.Step) string {
	switch to {
	case schema.StepValidating:
		return schema.EventPlanExtracted
	case schema.StepPolicy:
		return schema.EventValidationDone
	case schema.StepExecuting:
		return schema.EventExecutionStarted
	case schema.StepResponding:
		return schema.EventExecutionDone
	case schema.StepCompleted:
		return schema.EventWorkflowCompleted
	case schema.StepFailed:
		return schema.EventWorkflowFailed
	default:
		return ""
	}
}

type statusHookKey struct {
	from, to schema.Status
}

// StatusFSM manages workflow lifecycle status transitions, including
// suspension for confirmation and resume.
type StatusFSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[statusHookKey][]TransitionHook
	after    map[statusHookKey][]TransitionHook
}

// NewStatusFSM creates a new StatusFSM that emits events via the given appender.
func NewStatusFSM(appender EventAppender) *StatusFSM {
	return &StatusFSM{
		appender: appender,
		before:   make(map[statusHookKey][]TransitionHook),
		after:    make(map[statusHookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a status transition.
func (f *StatusFSM) OnBefore(from, to schema.Status, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := statusHookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a status transition.
func (f *StatusFSM) OnAfter(from, to schema.Status, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := statusHookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and executes a status transition, emitting the
// corresponding audit event.
func (f *StatusFSM) Transition(ctx context.Context, workflowID string, from, to schema.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !isValidStatusTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid status transition: %s -> %s", from, to).
			WithDetails(map[string]any{"workflow_id": workflowID, "from": string(from), "to": string(to)})
	}

	key := statusHookKey{from, to}

	for _, hook := range f.before[key] {
		if err := hook(ctx, workflowID, string(from), string(to)); err != nil {
			return err
		}
	}

	if eventType := statusEventType(to); eventType != "" {
		event := &store.Event{
			WorkflowID: workflowID,
			Type:       eventType,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit status event: %s", err.Error()).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(ctx, workflowID, string(from), string(to)); err != nil {
			return err
		}
	}

	return nil
}

func isValidStatusTransition(from, to schema.Status) bool {
	allowed, ok := ValidStatusTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

func statusEventType(to schema.Status) string {
	switch to {
	case schema.StatusPendingConfirmation:
		return schema.EventConfirmRequested
	default:
		return ""
	}
}
