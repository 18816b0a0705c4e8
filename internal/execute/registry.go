// Package execute carries out validated, approved commands against the
// catalog. Handlers trust their caller: validation and policy have already
// run by the time anything reaches this package, and re-checking here would
// race against the verdict the user confirmed.
package execute

import (
	"context"
	"sort"
	"sync"

	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// Handler executes one intent. entities is the raw extracted payload; the
// handler decodes it and returns a JSON-serializable result describing
// what changed.
type Handler func(ctx context.Context, entities []byte) (any, error)

// Registry maps intents to handlers. Thread-safe.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for an intent. Returns error on duplicate intent.
func (r *Registry) Register(intent string, h Handler) error {
	if intent == "" {
		return schema.NewError(schema.ErrCodeValidation, "intent is empty")
	}
	if h == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[intent]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "handler for %q already registered", intent)
	}

	r.handlers[intent] = h
	return nil
}

// Get retrieves a handler by intent.
func (r *Registry) Get(intent string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[intent]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "unsupported intent: %s", intent)
	}
	return h, nil
}

// Intents returns all registered intents, sorted.
func (r *Registry) Intents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.handlers))
	for intent := range r.handlers {
		out = append(out, intent)
	}
	sort.Strings(out)
	return out
}
