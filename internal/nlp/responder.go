package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// responseTemplate renders one intent's success message. Each %s/%v in
// Format is filled by the corresponding jq query run against the
// execution's result data.
type responseTemplate struct {
	Format  string
	Queries []string
}

var successTemplates = map[string]responseTemplate{
	schema.IntentUpdatePrice: {
		Format:  "Done. %v now costs %v (was %v).",
		Queries: []string{".sku", ".new_price", ".old_price"},
	},
	schema.IntentUpdateDescription: {
		Format:  "Updated the description for %v.",
		Queries: []string{".sku"},
	},
	schema.IntentUpdatePromotion: {
		Format:  "Promotion for %v is now %v.",
		Queries: []string{".sku", `if .new_promoted then "on" else "off" end`},
	},
	schema.IntentCancelOrder: {
		Format:  "Order %v has been cancelled (was %v).",
		Queries: []string{".order_number", ".old_status"},
	},
	schema.IntentUpdateOrderStatus: {
		Format:  "Order %v moved from %v to %v.",
		Queries: []string{".order_number", ".old_status", ".new_status"},
	},
	schema.IntentRefundOrder: {
		Format:  "Refunded %v on order %v. Total refunded so far: %v of %v.",
		Queries: []string{".amount", ".order_number", ".new_refunded_total", ".grand_total"},
	},
	schema.IntentLookupProduct: {
		Format:  "%v: %v, priced at %v.",
		Queries: []string{".sku", ".name", ".price"},
	},
	schema.IntentLookupOrder: {
		Format:  "Order %v is %v with a total of %v.",
		Queries: []string{".order_number", ".status", ".grand_total"},
	},
}

// TemplateResponder renders deterministic responses from execution results
// using jq field queries. It never fails: missing fields or unknown intents
// fall back to a generic message. Thread-safe: compiled *gojq.Code objects
// are cached and reused across goroutines.
type TemplateResponder struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewTemplateResponder creates the template-based responder.
func NewTemplateResponder() *TemplateResponder {
	return &TemplateResponder{
		cache: make(map[string]*gojq.Code),
	}
}

// Respond implements Responder.
func (r *TemplateResponder) Respond(ctx context.Context, intent string, exec *schema.Execution) *schema.Response {
	if exec == nil {
		return &schema.Response{
			Message:      "The request completed without executing anything.",
			ResponseType: schema.ResponseSuccess,
		}
	}
	if !exec.Success {
		msg := exec.Error
		if msg == "" {
			msg = "the operation failed"
		}
		return &schema.Response{
			Message:      "Sorry, I couldn't do that: " + msg,
			ResponseType: schema.ResponseError,
		}
	}

	tpl, ok := successTemplates[intent]
	if !ok {
		return genericSuccess(intent)
	}

	var data any
	if err := json.Unmarshal(exec.Data, &data); err != nil {
		return genericSuccess(intent)
	}

	args := make([]any, 0, len(tpl.Queries))
	for _, q := range tpl.Queries {
		val, err := r.query(ctx, q, data)
		if err != nil || val == nil {
			return genericSuccess(intent)
		}
		args = append(args, val)
	}

	return &schema.Response{
		Message:      fmt.Sprintf(tpl.Format, args...),
		ResponseType: schema.ResponseSuccess,
	}
}

// query runs a compiled jq expression against data and returns its first
// output.
func (r *TemplateResponder) query(ctx context.Context, expression string, data any) (any, error) {
	code, err := r.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, data)
	val, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, isErr := val.(error); isErr {
		return nil, err
	}
	return val, nil
}

func (r *TemplateResponder) getOrCompile(expression string) (*gojq.Code, error) {
	r.mu.RLock()
	if code, ok := r.cache[expression]; ok {
		r.mu.RUnlock()
		return code, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if code, ok := r.cache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("jq parse error in %q: %w", expression, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("jq compile error in %q: %w", expression, err)
	}

	r.cache[expression] = code
	return code, nil
}

func genericSuccess(intent string) *schema.Response {
	return &schema.Response{
		Message:      "Done: " + strings.ReplaceAll(intent, "_", " ") + " completed.",
		ResponseType: schema.ResponseSuccess,
	}
}

var _ Responder = (*TemplateResponder)(nil)
