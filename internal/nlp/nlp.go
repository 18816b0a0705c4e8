// Package nlp turns free-form admin messages into structured plans and
// execution outcomes back into prose. Extractors are the only
// non-deterministic stage in the pipeline; everything downstream treats
// their output as untrusted until it passes schema validation.
package nlp

import (
	"context"
	"time"

	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// DefaultTimeout bounds a single extraction call.
const DefaultTimeout = 30 * time.Second

// SessionContext carries conversational state an extractor may use to
// resolve references like "that order".
type SessionContext struct {
	SessionID string
	// RecentIntents lists the intents of the session's latest workflows,
	// newest first.
	RecentIntents []string
}

// Extractor converts a natural-language message into a structured plan.
type Extractor interface {
	Extract(ctx context.Context, message string, sc SessionContext) (*schema.Plan, error)
}

// Responder renders the final user-facing message for a workflow outcome.
// Implementations must not fail the workflow: a response of last resort is
// always available.
type Responder interface {
	Respond(ctx context.Context, intent string, exec *schema.Execution) *schema.Response
}
