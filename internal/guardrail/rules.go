package guardrail

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// Rule is an operator-supplied check expressed as an expr-lang predicate.
// The expression evaluates against the validation environment and must
// return a boolean; false means the rule is violated.
type Rule struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	// Message is shown to the user when the rule fails.
	Message string `json:"message"`
	// Severity is "error" (blocks the command) or "warn".
	Severity string `json:"severity"`
}

// RuleSet evaluates a fixed list of rules against per-command environments.
/// Thread-safe: compiled *vm.Program objects are cached and reused across
// goroutines.
type RuleSet struct {
	rules []Rule

	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewRuleSet compiles every rule up front so malformed expressions surface
// at startup rather than mid-command.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	rs := &RuleSet{
		rules: rules,
		cache: make(map[string]*vm.Program),
	}
	for _, r := range rules {
		if r.Expression == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "rule %q has an empty expression", r.Name)
		}
		if _, err := rs.getOrCompile(r.Expression); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

// Env is the variable environment a RuleSet evaluates against. Keys become
// top-level variables in rule expressions.
type Env map[string]any

// RuleEnv builds the standard environment for a plan plus optional domain
// snapshots. Nil snapshots are exposed as nil so rules can guard with ?. .
func RuleEnv(plan *schema.Plan, product *schema.Product, order *schema.Order) Env {
	env := Env{
		"intent":     plan.Intent,
		"confidence": plan.Confidence,
		"product":    nil,
		"order":      nil,
	}
	if product != nil {
		env["product"] = map[string]any{
			"sku":      product.SKU,
			"price":    product.Price,
			"active":   product.Active,
			"promoted": product.Promoted,
		}
	}
	if order != nil {
		env["order"] = map[string]any{
			"order_number":   order.OrderNumber,
			"status":         string(order.Status),
			"grand_total":    order.GrandTotal,
			"refunded_total": order.RefundedTotal,
		}
	}
	return env
}

// Check evaluates every rule against env and folds violations into a Result.
// A rule that evaluates to a non-boolean is treated as an error severity
// violation; silently passing a broken rule would defeat its purpose.
func (rs *RuleSet) Check(env Env) Result {
	out := OK()
	for _, r := range rs.rules {
		prg, err := rs.getOrCompile(r.Expression)
		if err != nil {
			out = Merge(out, Fail("rule %s: %s", r.Name, err.Error()))
			continue
		}
		val, err := vm.Run(prg, map[string]any(env))
		if err != nil {
			out = Merge(out, Fail("rule %s failed to evaluate: %s", r.Name, err.Error()))
			continue
		}
		pass, ok := val.(bool)
		if !ok {
			out = Merge(out, Fail("rule %s returned %T, want bool", r.Name, val))
			continue
		}
		if pass {
			continue
		}
		msg := r.Message
		if msg == "" {
			msg = "rule " + r.Name + " violated"
		}
		if r.Severity == "warn" {
			out = Merge(out, Warn("%s", msg))
		} else {
			out = Merge(out, Fail("%s", msg))
		}
	}
	return out
}

func (rs *RuleSet) getOrCompile(expression string) (*vm.Program, error) {
	rs.mu.RLock()
	if prg, ok := rs.cache[expression]; ok {
		rs.mu.RUnlock()
		return prg, nil
	}
	rs.mu.RUnlock()

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if prg, ok := rs.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"rule compile error in %q: %s", expression, err.Error()).
			WithCause(err)
	}

	rs.cache[expression] = prg
	return prg, nil
}
