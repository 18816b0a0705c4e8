package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefrontlabs/adminflow/pkg/schema"
)

func rec(id, session string, status schema.Status) *schema.WorkflowRecord {
	now := time.Now().UTC()
	return &schema.WorkflowRecord{
		WorkflowID: id,
		SessionID:  session,
		Message:    "msg",
		Step:       schema.StepPlanning,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestMemoryStore_WorkflowCRUD(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.CreateWorkflow(ctx, rec("wf-1", "s1", schema.StatusIdle)))

	err := m.CreateWorkflow(ctx, rec("wf-1", "s1", schema.StatusIdle))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))

	got, err := m.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", got.WorkflowID)

	got.Status = schema.StatusCompleted
	require.NoError(t, m.SaveWorkflow(ctx, got))
	again, err := m.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, schema.StatusCompleted, again.Status)

	_, err = m.GetWorkflow(ctx, "nope")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	err = m.SaveWorkflow(ctx, rec("nope", "s1", schema.StatusIdle))
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	require.NoError(t, m.DeleteWorkflow(ctx, "wf-1"))
	_, err = m.GetWorkflow(ctx, "wf-1")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestMemoryStore_GetReturnsCopies(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.CreateWorkflow(ctx, rec("wf-1", "s1", schema.StatusIdle)))

	got, err := m.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	got.Status = schema.StatusFailed

	fresh, err := m.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, schema.StatusIdle, fresh.Status)
}

func TestMemoryStore_ListWorkflowsFilters(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	pending := rec("wf-1", "s1", schema.StatusPendingConfirmation)
	soon := time.Now().Add(time.Minute)
	pending.ExpiresAt = &soon
	require.NoError(t, m.CreateWorkflow(ctx, pending))
	require.NoError(t, m.CreateWorkflow(ctx, rec("wf-2", "s1", schema.StatusCompleted)))
	require.NoError(t, m.CreateWorkflow(ctx, rec("wf-3", "s2", schema.StatusCompleted)))

	bySession, err := m.ListWorkflows(ctx, WorkflowFilter{SessionID: "s1"})
	require.NoError(t, err)
	assert.Len(t, bySession, 2)

	completed := schema.StatusCompleted
	byStatus, err := m.ListWorkflows(ctx, WorkflowFilter{Status: &completed})
	require.NoError(t, err)
	assert.Len(t, byStatus, 2)

	later := time.Now().Add(time.Hour)
	expiring, err := m.ListWorkflows(ctx, WorkflowFilter{ExpiresBefore: &later})
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, "wf-1", expiring[0].WorkflowID)

	limited, err := m.ListWorkflows(ctx, WorkflowFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryStore_EventSequencePerWorkflow(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.AppendEvent(ctx, &Event{WorkflowID: "wf-1", Type: schema.EventWorkflowCreated}))
	}
	require.NoError(t, m.AppendEvent(ctx, &Event{WorkflowID: "wf-2", Type: schema.EventWorkflowCreated}))

	events, err := m.GetEvents(ctx, "wf-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Sequence)
		assert.False(t, ev.Timestamp.IsZero())
	}

	// Sequences are independent per workflow.
	other, err := m.GetEvents(ctx, "wf-2", 0)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, int64(1), other[0].Sequence)

	tail, err := m.GetEvents(ctx, "wf-1", 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(3), tail[0].Sequence)
}

func TestMemoryStore_AppendEventRequiresWorkflowID(t *testing.T) {
	m := NewMemoryStore()
	err := m.AppendEvent(context.Background(), &Event{Type: "x"})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestMemoryStore_ProductsAndOrders(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, m.PutProduct(ctx, &schema.Product{SKU: "A-1", Price: 10, Active: true, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, m.PutProduct(ctx, &schema.Product{SKU: "B-1", Price: 20, CreatedAt: now, UpdatedAt: now}))

	p, err := m.GetProduct(ctx, "A-1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, p.Price)

	active, err := m.ListProducts(ctx, ProductFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "A-1", active[0].SKU)

	require.NoError(t, m.PutOrder(ctx, &schema.Order{OrderNumber: "1001", Status: schema.OrderStatusPending, GrandTotal: 50, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, m.PutOrder(ctx, &schema.Order{OrderNumber: "1002", Status: schema.OrderStatusShipped, GrandTotal: 60, CreatedAt: now, UpdatedAt: now}))

	shipped := schema.OrderStatusShipped
	orders, err := m.ListOrders(ctx, OrderFilter{Status: &shipped})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "1002", orders[0].OrderNumber)

	_, err = m.GetOrder(ctx, "9999")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestMemoryStore_PurgeTerminal(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	old := rec("wf-old", "s1", schema.StatusCompleted)
	past := time.Now().Add(-48 * time.Hour)
	old.CompletedAt = &past
	require.NoError(t, m.CreateWorkflow(ctx, old))
	require.NoError(t, m.AppendEvent(ctx, &Event{WorkflowID: "wf-old", Type: schema.EventWorkflowCompleted}))

	fresh := rec("wf-fresh", "s1", schema.StatusCompleted)
	nowish := time.Now()
	fresh.CompletedAt = &nowish
	require.NoError(t, m.CreateWorkflow(ctx, fresh))

	// Pending workflows are never purged, however old.
	require.NoError(t, m.CreateWorkflow(ctx, rec("wf-pending", "s1", schema.StatusPendingConfirmation)))

	removed, err := m.PurgeTerminal(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = m.GetWorkflow(ctx, "wf-old")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	events, err := m.GetEvents(ctx, "wf-old", 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = m.GetWorkflow(ctx, "wf-fresh")
	assert.NoError(t, err)
	_, err = m.GetWorkflow(ctx, "wf-pending")
	assert.NoError(t, err)
}
