package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefrontlabs/adminflow/pkg/schema"
)

func TestNewRuleSet_RejectsBadExpression(t *testing.T) {
	_, err := NewRuleSet([]Rule{{Name: "broken", Expression: "intent =="}})
	require.Error(t, err)

	_, err = NewRuleSet([]Rule{{Name: "empty", Expression: ""}})
	require.Error(t, err)
}

func TestRuleSet_ErrorSeverityBlocks(t *testing.T) {
	rs, err := NewRuleSet([]Rule{{
		Name:       "no-free-products",
		Expression: `intent != "update_product_price" || product == nil || product.price > 0`,
		Message:    "products may not be free",
		Severity:   "error",
	}})
	require.NoError(t, err)

	plan := &schema.Plan{Intent: schema.IntentUpdatePrice, Confidence: 0.9}
	r := rs.Check(RuleEnv(plan, &schema.Product{SKU: "P1", Price: 0, Active: true}, nil))
	assert.False(t, r.Valid)
	assert.Contains(t, r.Errors[0], "products may not be free")

	r = rs.Check(RuleEnv(plan, &schema.Product{SKU: "P1", Price: 10, Active: true}, nil))
	assert.True(t, r.Valid)
}

func TestRuleSet_WarnSeverityPasses(t *testing.T) {
	rs, err := NewRuleSet([]Rule{{
		Name:       "low-confidence",
		Expression: "confidence >= 0.5",
		Message:    "low extraction confidence",
		Severity:   "warn",
	}})
	require.NoError(t, err)

	plan := &schema.Plan{Intent: schema.IntentLookupProduct, Confidence: 0.3}
	r := rs.Check(RuleEnv(plan, nil, nil))
	assert.True(t, r.Valid)
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0], "low extraction confidence")
}

func TestRuleSet_NonBoolResultFails(t *testing.T) {
	rs, err := NewRuleSet([]Rule{{
		Name:       "returns-string",
		Expression: `intent`,
	}})
	require.NoError(t, err)

	r := rs.Check(RuleEnv(&schema.Plan{Intent: "x", Confidence: 1}, nil, nil))
	assert.False(t, r.Valid)
	assert.Contains(t, r.Errors[0], "want bool")
}

func TestRuleEnv_OrderFields(t *testing.T) {
	rs, err := NewRuleSet([]Rule{{
		Name:       "no-big-refunds",
		Expression: `order == nil || order.grand_total < 1000`,
		Message:    "large orders need manual review",
	}})
	require.NoError(t, err)

	plan := &schema.Plan{Intent: schema.IntentRefundOrder, Confidence: 0.9}
	r := rs.Check(RuleEnv(plan, nil, &schema.Order{OrderNumber: "1", GrandTotal: 2500}))
	assert.False(t, r.Valid)
}
