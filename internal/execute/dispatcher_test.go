package execute

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefrontlabs/adminflow/internal/catalog"
	"github.com/storefrontlabs/adminflow/internal/store"
	"github.com/storefrontlabs/adminflow/pkg/schema"
)

func newDispatcher(t *testing.T) (*Dispatcher, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	d, err := NewDispatcher(catalog.NewService(st), nil)
	require.NoError(t, err)
	return d, st
}

func put(t *testing.T, st store.Store, p *schema.Product) {
	t.Helper()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	require.NoError(t, st.PutProduct(context.Background(), p))
}

func TestExecute_PriceUpdate(t *testing.T) {
	d, st := newDispatcher(t)
	put(t, st, &schema.Product{SKU: "P1", Name: "Tee", Price: 890, Active: true})

	exec := d.Execute(context.Background(),
		schema.IntentUpdatePrice, []byte(`{"sku":"P1","new_price":67}`))
	require.True(t, exec.Success)

	var change catalog.PriceChange
	require.NoError(t, json.Unmarshal(exec.Data, &change))
	assert.Equal(t, 890.0, change.OldPrice)
	assert.Equal(t, 67.0, change.NewPrice)

	p, err := st.GetProduct(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, 67.0, p.Price)
}

func TestExecute_UnsupportedIntent(t *testing.T) {
	d, _ := newDispatcher(t)

	exec := d.Execute(context.Background(), "launch_rocket", []byte(`{}`))
	require.False(t, exec.Success)
	assert.Contains(t, exec.Error, "unsupported intent")
}

func TestExecute_MalformedPayload(t *testing.T) {
	d, _ := newDispatcher(t)

	exec := d.Execute(context.Background(), schema.IntentUpdatePrice, []byte(`{"new_price":"67"`))
	require.False(t, exec.Success)
	assert.Contains(t, exec.Error, "malformed")
}

func TestExecute_MissingTargetReportsError(t *testing.T) {
	d, _ := newDispatcher(t)

	exec := d.Execute(context.Background(),
		schema.IntentUpdatePrice, []byte(`{"sku":"GHOST","new_price":10}`))
	require.False(t, exec.Success)
	assert.Contains(t, exec.Error, "GHOST")
}

func TestExecute_RefundBoundEnforcedAtWrite(t *testing.T) {
	d, st := newDispatcher(t)
	now := time.Now().UTC()
	require.NoError(t, st.PutOrder(context.Background(), &schema.Order{
		OrderNumber: "1002", Status: schema.OrderStatusProcessing,
		GrandTotal: 150.39, RefundedTotal: 100,
		CreatedAt: now, UpdatedAt: now,
	}))

	exec := d.Execute(context.Background(),
		schema.IntentRefundOrder, []byte(`{"order_number":"1002","amount":60}`))
	require.False(t, exec.Success)
	assert.Contains(t, exec.Error, "exceed")

	o, err := st.GetOrder(context.Background(), "1002")
	require.NoError(t, err)
	assert.Equal(t, 100.0, o.RefundedTotal)
}

func TestExecute_Lookup(t *testing.T) {
	d, st := newDispatcher(t)
	put(t, st, &schema.Product{SKU: "P1", Name: "Tee", Price: 19.9, Active: true})

	exec := d.Execute(context.Background(), schema.IntentLookupProduct, []byte(`{"sku":"P1"}`))
	require.True(t, exec.Success)

	var p schema.Product
	require.NoError(t, json.Unmarshal(exec.Data, &p))
	assert.Equal(t, "Tee", p.Name)
}

func TestExecute_PanicRecovered(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("explode", func(context.Context, []byte) (any, error) {
		panic("boom")
	}))
	d := &Dispatcher{registry: reg, logger: slog.Default()}

	exec := d.Execute(context.Background(), "explode", nil)
	require.False(t, exec.Success)
	assert.Contains(t, exec.Error, "internal error")
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	reg := NewRegistry()
	h := func(context.Context, []byte) (any, error) { return nil, nil }
	require.NoError(t, reg.Register("a", h))
	err := reg.Register("a", h)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
}
