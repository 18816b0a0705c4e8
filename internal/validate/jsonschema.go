package validate

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// extractionSchemaJSON is the JSON Schema every extractor output must
// satisfy before the workflow trusts it. Embedded as a constant to avoid
// filesystem dependencies.
const extractionSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://adminflow.dev/schemas/extraction.json",
  "type": "object",
  "required": ["intent", "entities", "confidence"],
  "properties": {
    "intent": {
      "type": "string",
      "minLength": 1
    },
    "entities": {
      "type": "object",
      "properties": {
        "sku": { "type": "string" },
        "order_number": { "type": "string" },
        "new_price": { "type": "number" },
        "description": { "type": "string" },
        "promoted": { "type": "boolean" },
        "new_status": { "type": "string" },
        "amount": { "type": "number" },
        "reason": { "type": "string" }
      },
      "additionalProperties": true
    },
    "confidence": {
      "type": "number",
      "minimum": 0,
      "maximum": 1
    }
  },
  "additionalProperties": false
}`

var (
	extractionSchemaOnce sync.Once
	extractionSchema     *jsonschema.Schema
	extractionSchemaErr  error
)

func compiledExtractionSchema() (*jsonschema.Schema, error) {
	extractionSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.AssertFormat()
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(extractionSchemaJSON))
		if err != nil {
			extractionSchemaErr = fmt.Errorf("unmarshal extraction schema: %w", err)
			return
		}
		if err := c.AddResource("https://adminflow.dev/schemas/extraction.json", doc); err != nil {
			extractionSchemaErr = fmt.Errorf("add extraction schema resource: %w", err)
			return
		}
		extractionSchema, extractionSchemaErr = c.Compile("https://adminflow.dev/schemas/extraction.json")
	})
	return extractionSchema, extractionSchemaErr
}

// ValidateExtraction checks an extractor's output against the extraction
// schema. Extractors sit behind a model call, so their output is untrusted
// input until it passes here.
func ValidateExtraction(plan *schema.Plan) error {
	if plan == nil {
		return schema.NewError(schema.ErrCodeExtraction, "extraction result is nil")
	}

	compiled, err := compiledExtractionSchema()
	if err != nil {
		return schema.NewError(schema.ErrCodeExtraction, "extraction schema unavailable").WithCause(err)
	}

	doc, err := toJSONValue(map[string]any{
		"intent":     plan.Intent,
		"entities":   plan.Entities,
		"confidence": plan.Confidence,
	})
	if err != nil {
		return schema.NewError(schema.ErrCodeExtraction, "failed to serialize extraction").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toFlowError converts a jsonschema.ValidationError into a FlowError with
// leaf violation messages.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeExtraction, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeExtraction, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeExtraction, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	msg := fmt.Sprintf("extraction failed schema validation with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeExtraction, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
