package schema

// Event type constants for the audit log.
const (
	EventWorkflowCreated   = "workflow_created"
	EventPlanExtracted     = "plan_extracted"
	EventValidationDone    = "validation_completed"
	EventPolicyDecided     = "policy_decided"
	EventConfirmRequested  = "confirmation_requested"
	EventConfirmReceived   = "confirmation_received"
	EventConfirmDenied     = "confirmation_denied"
	EventConfirmExpired    = "confirmation_expired"
	EventExecutionStarted  = "execution_started"
	EventExecutionDone     = "execution_completed"
	EventExecutionFailed   = "execution_failed"
	EventResponseGenerated = "response_generated"
	EventWorkflowCompleted = "workflow_completed"
	EventWorkflowFailed    = "workflow_failed"
)
