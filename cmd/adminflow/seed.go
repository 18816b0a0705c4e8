package main

import (
	"context"
	"time"

	"github.com/storefrontlabs/adminflow/internal/store"
	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// seedDemoData loads a small catalog for local development. Existing rows
// with the same keys are overwritten.
func seedDemoData(ctx context.Context, st store.Store) error {
	now := time.Now().UTC()

	products := []*schema.Product{
		{SKU: "TSHIRT-01", Name: "Classic Tee", Description: "Plain cotton t-shirt", Price: 19.90, Active: true, CreatedAt: now, UpdatedAt: now},
		{SKU: "HOODIE-01", Name: "Zip Hoodie", Description: "Heavyweight fleece hoodie", Price: 59.00, Active: true, Promoted: true, CreatedAt: now, UpdatedAt: now},
		{SKU: "MUG-01", Name: "Enamel Mug", Description: "350ml camping mug", Price: 12.50, Active: true, CreatedAt: now, UpdatedAt: now},
		{SKU: "POSTER-01", Name: "City Poster", Description: "A2 matte print", Price: 25.00, Active: false, CreatedAt: now, UpdatedAt: now},
	}
	for _, p := range products {
		if err := st.PutProduct(ctx, p); err != nil {
			return err
		}
	}

	orders := []*schema.Order{
		{OrderNumber: "1001", Status: schema.OrderStatusPending, GrandTotal: 79.90, CustomerEmail: "ana@example.com", CreatedAt: now, UpdatedAt: now},
		{OrderNumber: "1002", Status: schema.OrderStatusProcessing, GrandTotal: 150.39, CustomerEmail: "ben@example.com", CreatedAt: now, UpdatedAt: now},
		{OrderNumber: "1003", Status: schema.OrderStatusShipped, GrandTotal: 44.40, CustomerEmail: "cho@example.com", CreatedAt: now, UpdatedAt: now},
		{OrderNumber: "1004", Status: schema.OrderStatusDelivered, GrandTotal: 12.50, RefundedTotal: 12.50, CustomerEmail: "dee@example.com", CreatedAt: now, UpdatedAt: now},
	}
	for _, o := range orders {
		if err := st.PutOrder(ctx, o); err != nil {
			return err
		}
	}

	return nil
}
