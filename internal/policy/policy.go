// Package policy decides whether a validated command runs immediately or
// suspends for human confirmation. The decision is a pure function of the
// plan, the validation verdict, and configuration.
package policy

import (
	"fmt"
	"strings"

	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// Outcome of a policy decision.
type Outcome string

const (
	// OutcomeContinue lets the command proceed straight to execution.
	OutcomeContinue Outcome = "CONTINUE"
	// OutcomeConfirm suspends the command until a human confirms it.
	OutcomeConfirm Outcome = "CONFIRM"
)

// Decision is the policy verdict for one command.
type Decision struct {
	Outcome Outcome
	// Reason names which policy check demanded confirmation.
	Reason string
	// Message is the confirmation prompt shown to the user. Empty when
	// the outcome is CONTINUE.
	Message string
	// PendingAction captures what to execute once confirmed.
	PendingAction *schema.PendingAction
}

// Config tunes the confirmation policy.
type Config struct {
	// ConfidenceThreshold below which every mutating command needs
	// confirmation regardless of risk.
	ConfidenceThreshold float64
	// HighRiskIntents always require confirmation.
	HighRiskIntents []string
	// Overrides are operator CEL predicates that may escalate further.
	Overrides *OverrideSet
}

// Decide returns the policy verdict for a validated plan. Checks run in a
// fixed order so the reason reported for a confirmation is stable:
// validation risk flags first, then extraction confidence, then the
// high-risk intent list, then operator overrides. Overrides can only
// escalate to CONFIRM, never clear a confirmation.
func Decide(cfg Config, plan *schema.Plan, v *schema.Validation) Decision {
	if !schema.IsMutating(plan.Intent) {
		return Decision{Outcome: OutcomeContinue}
	}

	pending := &schema.PendingAction{
		Intent:   plan.Intent,
		Entities: plan.Entities,
		RiskFlag: v.RiskFlag,
	}

	if v.RequiresConfirmation {
		return Decision{
			Outcome:       OutcomeConfirm,
			Reason:        v.RiskFlag,
			Message:       riskMessage(plan, v),
			PendingAction: pending,
		}
	}

	if plan.Confidence < cfg.ConfidenceThreshold {
		return Decision{
			Outcome: OutcomeConfirm,
			Reason:  "LOW_CONFIDENCE",
			Message: fmt.Sprintf("I understood this as %s but I'm not certain I read it right. %s",
				describeIntent(plan.Intent), confirmToken(plan)),
			PendingAction: pending,
		}
	}

	for _, intent := range cfg.HighRiskIntents {
		if intent == plan.Intent {
			return Decision{
				Outcome: OutcomeConfirm,
				Reason:  "HIGH_RISK_INTENT",
				Message: fmt.Sprintf("%s is a sensitive operation. %s",
					describeIntent(plan.Intent), confirmToken(plan)),
				PendingAction: pending,
			}
		}
	}

	if o := cfg.Overrides.firstMatch(plan, v); o != nil {
		msg := o.Message
		if msg == "" {
			msg = describeIntent(plan.Intent) + " needs a second look."
		}
		return Decision{
			Outcome:       OutcomeConfirm,
			Reason:        "OVERRIDE:" + o.Name,
			Message:       msg + " " + confirmToken(plan),
			PendingAction: pending,
		}
	}

	return Decision{Outcome: OutcomeContinue}
}

// riskMessage builds the confirmation prompt for a risk flagged by
// validation, including the old and new values so the user sees exactly
// what they are approving.
func riskMessage(plan *schema.Plan, v *schema.Validation) string {
	switch v.RiskFlag {
	case "PRICE_OUTLIER":
		oldPrice, _ := v.OldValue.(float64)
		newPrice, _ := v.NewValue.(float64)
		return fmt.Sprintf(
			"This would change the price from %.2f to %.2f, a %.1f%% change. %s",
			oldPrice, newPrice, v.DeviationPercent, confirmToken(plan))
	default:
		return fmt.Sprintf("%s was flagged as risky. %s", describeIntent(plan.Intent), confirmToken(plan))
	}
}

// confirmToken renders the literal reply the user sends to approve the
// pending action, keyed by the target so transcripts stay unambiguous.
func confirmToken(plan *schema.Plan) string {
	target := schema.TargetID(plan.Intent, plan.Entities)
	if target == "" {
		return `Reply "CONFIRM" to proceed.`
	}
	return fmt.Sprintf("Reply \"CONFIRM %s\" to proceed.", target)
}

// describeIntent renders an intent identifier as a human phrase.
func describeIntent(intent string) string {
	return strings.ReplaceAll(intent, "_", " ")
}
