package validate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefrontlabs/adminflow/internal/catalog"
	"github.com/storefrontlabs/adminflow/internal/guardrail"
	"github.com/storefrontlabs/adminflow/internal/store"
	"github.com/storefrontlabs/adminflow/pkg/schema"
)

func newStage(t *testing.T) (*Stage, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	svc := catalog.NewService(st)
	stage := NewStage(svc, nil, Config{OutlierThreshold: 40}, nil)
	return stage, st
}

func seedProduct(t *testing.T, st store.Store, sku string, price float64, active bool) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, st.PutProduct(context.Background(), &schema.Product{
		SKU: sku, Name: "Test " + sku, Price: price, Active: active,
		CreatedAt: now, UpdatedAt: now,
	}))
}

func seedOrder(t *testing.T, st store.Store, number string, status schema.OrderStatus, total, refunded float64) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, st.PutOrder(context.Background(), &schema.Order{
		OrderNumber: number, Status: status, GrandTotal: total, RefundedTotal: refunded,
		CreatedAt: now, UpdatedAt: now,
	}))
}

func pricePlan(sku string, price float64) *schema.Plan {
	return &schema.Plan{
		Intent:     schema.IntentUpdatePrice,
		Entities:   schema.MarshalEntities(schema.PriceUpdatePayload{SKU: sku, NewPrice: price}),
		Confidence: 0.9,
	}
}

func TestRun_PriceOutlierFlagged(t *testing.T) {
	stage, st := newStage(t)
	seedProduct(t, st, "P1", 100, true)

	v, err := stage.Run(context.Background(), pricePlan("P1", 145))
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.True(t, v.RequiresConfirmation)
	assert.Equal(t, guardrail.RiskPriceOutlier, v.RiskFlag)
	assert.InDelta(t, 45.0, v.DeviationPercent, 0.001)
	assert.Equal(t, 100.0, v.OldValue)
	assert.Equal(t, 145.0, v.NewValue)
}

func TestRun_SmallPriceChangePasses(t *testing.T) {
	stage, st := newStage(t)
	seedProduct(t, st, "P1", 100, true)

	v, err := stage.Run(context.Background(), pricePlan("P1", 135))
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.False(t, v.RequiresConfirmation)
	assert.Empty(t, v.RiskFlag)
}

func TestRun_IsIdempotent(t *testing.T) {
	stage, st := newStage(t)
	seedProduct(t, st, "P1", 890, true)

	plan := pricePlan("P1", 67)
	first, err := stage.Run(context.Background(), plan)
	require.NoError(t, err)
	second, err := stage.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRun_UnknownProductFailsClosed(t *testing.T) {
	stage, _ := newStage(t)

	v, err := stage.Run(context.Background(), pricePlan("GHOST", 10))
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Contains(t, v.Errors[0], "GHOST")
}

func TestRun_InactiveProductRejected(t *testing.T) {
	stage, st := newStage(t)
	seedProduct(t, st, "P1", 50, false)

	v, err := stage.Run(context.Background(), pricePlan("P1", 55))
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Contains(t, v.Errors[0], "inactive")
}

func TestRun_NegativePriceRejected(t *testing.T) {
	stage, st := newStage(t)
	seedProduct(t, st, "P1", 50, true)

	v, err := stage.Run(context.Background(), pricePlan("P1", -3))
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestRun_CancelShippedOrderRejected(t *testing.T) {
	stage, st := newStage(t)
	seedOrder(t, st, "1003", schema.OrderStatusShipped, 44.40, 0)

	v, err := stage.Run(context.Background(), &schema.Plan{
		Intent:     schema.IntentCancelOrder,
		Entities:   schema.MarshalEntities(schema.CancelOrderPayload{OrderNumber: "1003"}),
		Confidence: 0.9,
	})
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Contains(t, v.Errors[0], "shipped")
}

func TestRun_CancelPendingOrderAllowed(t *testing.T) {
	stage, st := newStage(t)
	seedOrder(t, st, "1001", schema.OrderStatusPending, 79.90, 0)

	v, err := stage.Run(context.Background(), &schema.Plan{
		Intent:     schema.IntentCancelOrder,
		Entities:   schema.MarshalEntities(schema.CancelOrderPayload{OrderNumber: "1001"}),
		Confidence: 0.9,
	})
	require.NoError(t, err)
	assert.True(t, v.Valid)
}

func TestRun_RefundBoundIsCumulative(t *testing.T) {
	stage, st := newStage(t)
	seedOrder(t, st, "1002", schema.OrderStatusProcessing, 150.39, 100)

	v, err := stage.Run(context.Background(), &schema.Plan{
		Intent:     schema.IntentRefundOrder,
		Entities:   schema.MarshalEntities(schema.RefundPayload{OrderNumber: "1002", Amount: 60}),
		Confidence: 0.9,
	})
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

// Every mutating intent must dispatch to its guardrail chain. Against an
// empty store each one has to fail the existence check; a verdict of valid
// would mean the intent fell through to the no-op branch.
func TestRun_EveryMutatingIntentReachesItsGuardrails(t *testing.T) {
	stage, _ := newStage(t)

	plans := map[string]any{
		schema.IntentUpdatePrice:       schema.PriceUpdatePayload{SKU: "GHOST", NewPrice: 10},
		schema.IntentUpdateDescription: schema.DescriptionUpdatePayload{SKU: "GHOST", Description: "x"},
		schema.IntentUpdatePromotion:   schema.PromotionUpdatePayload{SKU: "GHOST", Promoted: true},
		schema.IntentCancelOrder:       schema.CancelOrderPayload{OrderNumber: "9999"},
		schema.IntentUpdateOrderStatus: schema.OrderStatusUpdatePayload{OrderNumber: "9999", NewStatus: "shipped"},
		schema.IntentRefundOrder:       schema.RefundPayload{OrderNumber: "9999", Amount: 10},
	}
	require.Len(t, plans, len(schema.MutatingIntents))

	for intent, payload := range plans {
		v, err := stage.Run(context.Background(), &schema.Plan{
			Intent:     intent,
			Entities:   schema.MarshalEntities(payload),
			Confidence: 0.9,
		})
		require.NoError(t, err, intent)
		assert.False(t, v.Valid, "%s skipped its guardrails", intent)
		require.NotEmpty(t, v.Errors, intent)
		assert.Contains(t, v.Errors[0], "not found", intent)
	}
}

func TestRun_UnknownIntentTriviallyValid(t *testing.T) {
	stage, _ := newStage(t)

	v, err := stage.Run(context.Background(), &schema.Plan{
		Intent:     "reorder_inventory",
		Entities:   []byte(`{}`),
		Confidence: 0.5,
	})
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Empty(t, v.Errors)
}

func TestRun_MissingIdentifierRejected(t *testing.T) {
	stage, _ := newStage(t)

	v, err := stage.Run(context.Background(), pricePlan("", 10))
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Contains(t, v.Errors[0], "no product identified")
}

func TestRun_OperatorRules(t *testing.T) {
	st := store.NewMemoryStore()
	svc := catalog.NewService(st)
	rules, err := guardrail.NewRuleSet([]guardrail.Rule{{
		Name:       "no-promoted-price-cuts",
		Expression: `intent != "update_product_price" || product == nil || !product.promoted`,
		Message:    "promoted products are price locked",
	}})
	require.NoError(t, err)
	stage := NewStage(svc, rules, Config{OutlierThreshold: 40}, nil)

	now := time.Now().UTC()
	require.NoError(t, st.PutProduct(context.Background(), &schema.Product{
		SKU: "P1", Price: 100, Active: true, Promoted: true, CreatedAt: now, UpdatedAt: now,
	}))

	v, err := stage.Run(context.Background(), pricePlan("P1", 110))
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Contains(t, v.Errors[0], "price locked")
}

func TestValidateExtraction(t *testing.T) {
	require.NoError(t, ValidateExtraction(&schema.Plan{
		Intent:     schema.IntentUpdatePrice,
		Entities:   []byte(`{"sku":"P1","new_price":10}`),
		Confidence: 0.8,
	}))

	err := ValidateExtraction(&schema.Plan{Intent: "", Entities: []byte(`{}`), Confidence: 0.8})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExtraction))

	err = ValidateExtraction(&schema.Plan{Intent: "x", Entities: []byte(`{}`), Confidence: 1.5})
	require.Error(t, err)

	err = ValidateExtraction(nil)
	require.Error(t, err)
}
