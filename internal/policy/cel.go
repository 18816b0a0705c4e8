package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// Override is an operator-supplied CEL predicate that escalates a command
// to confirmation when it evaluates true. Overrides can only tighten
// policy; nothing an override says can skip a confirmation the base
// policy already demanded.
type Override struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	// Message is shown to the user when the override fires. Optional.
	Message string `json:"message"`
}

// OverrideSet evaluates operator overrides against per-command facts.
/// Thread-safe: compiled programs are cached and reused across goroutines.
type OverrideSet struct {
	env       *cel.Env
	overrides []Override

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewOverrideSet compiles every override up front so malformed expressions
// surface at startup. The environment exposes five top-level variables:
//   - intent (string): the extracted intent
//   - confidence (double): extraction confidence in [0, 1]
//   - risk_flag (string): risk flag from validation, "" when none
//   - deviation (double): price deviation percent, 0 when not a price change
//   - valid (bool): whether validation passed
func NewOverrideSet(overrides []Override) (*OverrideSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("intent", cel.StringType),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("risk_flag", cel.StringType),
		cel.Variable("deviation", cel.DoubleType),
		cel.Variable("valid", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	os := &OverrideSet{
		env:       env,
		overrides: overrides,
		cache:     make(map[string]cel.Program),
	}
	for _, o := range overrides {
		if o.Expression == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "override %q has an empty expression", o.Name)
		}
		if _, err := os.getOrCompile(o.Expression); err != nil {
			return nil, err
		}
	}
	return os, nil
}

// firstMatch returns the first override whose predicate evaluates true, or
// nil. Evaluation errors are swallowed as non-matches: a broken override
// must not block the whole policy stage, and compile errors were already
// rejected at construction.
func (os *OverrideSet) firstMatch(plan *schema.Plan, v *schema.Validation) *Override {
	if os == nil || len(os.overrides) == 0 {
		return nil
	}
	activation := map[string]any{
		"intent":     plan.Intent,
		"confidence": plan.Confidence,
		"risk_flag":  v.RiskFlag,
		"deviation":  v.DeviationPercent,
		"valid":      v.Valid,
	}
	for i := range os.overrides {
		o := &os.overrides[i]
		prg, err := os.getOrCompile(o.Expression)
		if err != nil {
			continue
		}
		out, _, err := prg.Eval(activation)
		if err != nil {
			continue
		}
		if matched, ok := out.Value().(bool); ok && matched {
			return o
		}
	}
	return nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (os *OverrideSet) getOrCompile(expression string) (cel.Program, error) {
	os.mu.RLock()
	if prg, ok := os.cache[expression]; ok {
		os.mu.RUnlock()
		return prg, nil
	}
	os.mu.RUnlock()

	os.mu.Lock()
	defer os.mu.Unlock()

	if prg, ok := os.cache[expression]; ok {
		return prg, nil
	}

	ast, issues := os.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"override compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err())
	}

	prg, err := os.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"override program error for %q: %s", expression, err.Error()).
			WithCause(err)
	}

	os.cache[expression] = prg
	return prg, nil
}
