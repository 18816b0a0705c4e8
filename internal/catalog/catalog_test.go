package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefrontlabs/adminflow/internal/store"
	"github.com/storefrontlabs/adminflow/pkg/schema"
)

func newService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewService(st), st
}

func seedProduct(t *testing.T, st store.Store, sku string, price float64) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, st.PutProduct(context.Background(), &schema.Product{
		SKU: sku, Name: "Thing", Price: price, Active: true, CreatedAt: now, UpdatedAt: now,
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

func TestSetPrice(t *testing.T) {
	svc, st := newService(t)
	seedProduct(t, st, "P1", 890)
	ctx := context.Background()

	change, err := svc.SetPrice(ctx, "P1", 67)
	require.NoError(t, err)
	assert.Equal(t, 890.0, change.OldPrice)
	assert.Equal(t, 67.0, change.NewPrice)

	p, err := st.GetProduct(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 67.0, p.Price)

	_, err = svc.SetPrice(ctx, "MISSING", 10)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestSetDescriptionAndPromotion(t *testing.T) {
	svc, st := newService(t)
	seedProduct(t, st, "P1", 10)
	ctx := context.Background()

	dc, err := svc.SetDescription(ctx, "P1", "new words")
	require.NoError(t, err)
	assert.Equal(t, "new words", dc.NewDescription)

	pc, err := svc.SetPromotion(ctx, "P1", true)
	require.NoError(t, err)
	assert.False(t, pc.OldPromoted)
	assert.True(t, pc.NewPromoted)

	p, err := st.GetProduct(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "new words", p.Description)
	assert.True(t, p.Promoted)
}

func TestCancelOrder(t *testing.T) {
	svc, st := newService(t)
	seedOrder(t, st, "1001", schema.OrderStatusPending, 50, 0)
	ctx := context.Background()

	change, err := svc.CancelOrder(ctx, "1001", "customer asked")
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatusPending, change.OldStatus)
	assert.Equal(t, schema.OrderStatusCancelled, change.NewStatus)
	assert.Equal(t, "customer asked", change.Reason)

	// Cancelling twice is a conflict, not a silent no-op.
	_, err = svc.CancelOrder(ctx, "1001", "")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
}

func TestSetOrderStatus(t *testing.T) {
	svc, st := newService(t)
	seedOrder(t, st, "1002", schema.OrderStatusProcessing, 50, 0)
	ctx := context.Background()

	change, err := svc.SetOrderStatus(ctx, "1002", schema.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatusProcessing, change.OldStatus)
	assert.Equal(t, schema.OrderStatusShipped, change.NewStatus)

	o, err := st.GetOrder(ctx, "1002")
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatusShipped, o.Status)
}

func TestRefund_EnforcesCumulativeBound(t *testing.T) {
	svc, st := newService(t)
	seedOrder(t, st, "1002", schema.OrderStatusProcessing, 150.39, 0)
	ctx := context.Background()

	change, err := svc.Refund(ctx, "1002", 100)
	require.NoError(t, err)
	assert.Equal(t, 0.0, change.OldRefundedTotal)
	assert.Equal(t, 100.0, change.NewRefundedTotal)
	assert.Equal(t, 150.39, change.GrandTotal)

	_, err = svc.Refund(ctx, "1002", 60)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))

	o, err := st.GetOrder(ctx, "1002")
	require.NoError(t, err)
	assert.Equal(t, 100.0, o.RefundedTotal)

	// The exact remainder is still allowed.
	_, err = svc.Refund(ctx, "1002", 50.39)
	require.NoError(t, err)
}

func TestRefund_RejectsNonPositiveAmounts(t *testing.T) {
	svc, st := newService(t)
	seedOrder(t, st, "1001", schema.OrderStatusPending, 50, 0)
	ctx := context.Background()

	_, err := svc.Refund(ctx, "1001", 0)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	_, err = svc.Refund(ctx, "1001", -5)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}
