// Package catalog exposes the order/product domain API the workflow engine
// validates against and executes mutations on. Reads return immutable
// snapshots; each mutation applies exactly one change and reports the old
// and new values for explanation.
package catalog

import (
	"context"
	"time"

	"github.com/storefrontlabs/adminflow/internal/store"
	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// Reader is the domain read API consumed by the validation stage.
type Reader interface {
	GetBySKU(ctx context.Context, sku string) (*schema.Product, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (*schema.Order, error)
}

// Mutator is the domain mutation API consumed by the execution dispatcher.
// One method per supported intent; each returns old/new values.
type Mutator interface {
	SetPrice(ctx context.Context, sku string, price float64) (*PriceChange, error)
	SetDescription(ctx context.Context, sku, description string) (*DescriptionChange, error)
	SetPromotion(ctx context.Context, sku string, promoted bool) (*PromotionChange, error)
	CancelOrder(ctx context.Context, orderNumber, reason string) (*OrderStatusChange, error)
	SetOrderStatus(ctx context.Context, orderNumber string, status schema.OrderStatus) (*OrderStatusChange, error)
	Refund(ctx context.Context, orderNumber string, amount float64) (*RefundChange, error)
}

// PriceChange reports a price mutation.
type PriceChange struct {
	SKU      string  `json:"sku"`
	OldPrice float64 `json:"old_price"`
	NewPrice float64 `json:"new_price"`
}

// DescriptionChange reports a description mutation.
type DescriptionChange struct {
	SKU            string `json:"sku"`
	OldDescription string `json:"old_description"`
	NewDescription string `json:"new_description"`
}

// PromotionChange reports a promotion-status mutation.
type PromotionChange struct {
	SKU         string `json:"sku"`
	OldPromoted bool   `json:"old_promoted"`
	NewPromoted bool   `json:"new_promoted"`
}

// OrderStatusChange reports an order-status mutation (including cancellation).
type OrderStatusChange struct {
	OrderNumber string             `json:"order_number"`
	OldStatus   schema.OrderStatus `json:"old_status"`
	NewStatus   schema.OrderStatus `json:"new_status"`
	Reason      string             `json:"reason,omitempty"`
}

// RefundChange reports a refund mutation.
type RefundChange struct {
	OrderNumber      string  `json:"order_number"`
	Amount           float64 `json:"amount"`
	OldRefundedTotal float64 `json:"old_refunded_total"`
	NewRefundedTotal float64 `json:"new_refunded_total"`
	GrandTotal       float64 `json:"grand_total"`
}

// Service implements Reader and Mutator over a Store.
type Service struct {
	store store.Store
}

// NewService creates a catalog service backed by the given store.
func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// GetBySKU returns an immutable product snapshot.
func (s *Service) GetBySKU(ctx context.Context, sku string) (*schema.Product, error) {
	return s.store.GetProduct(ctx, sku)
}

// GetByOrderNumber returns an immutable order snapshot.
func (s *Service) GetByOrderNumber(ctx context.Context, orderNumber string) (*schema.Order, error) {
	return s.store.GetOrder(ctx, orderNumber)
}

// ListProducts lists products with optional filtering and pagination.
func (s *Service) ListProducts(ctx context.Context, filter store.ProductFilter) ([]*schema.Product, error) {
	return s.store.ListProducts(ctx, filter)
}

// ListOrders lists orders with optional filtering and pagination.
func (s *Service) ListOrders(ctx context.Context, filter store.OrderFilter) ([]*schema.Order, error) {
	return s.store.ListOrders(ctx, filter)
}

// SetPrice updates a product's price.
func (s *Service) SetPrice(ctx context.Context, sku string, price float64) (*PriceChange, error) {
	p, err := s.store.GetProduct(ctx, sku)
	if err != nil {
		return nil, err
	}
	change := &PriceChange{SKU: sku, OldPrice: p.Price, NewPrice: price}
	p.Price = price
	p.UpdatedAt = time.Now().UTC()
	if err := s.store.PutProduct(ctx, p); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "save product %s: %s", sku, err.Error()).WithCause(err)
	}
	return change, nil
}

// SetDescription updates a product's description.
func (s *Service) SetDescription(ctx context.Context, sku, description string) (*DescriptionChange, error) {
	p, err := s.store.GetProduct(ctx, sku)
	if err != nil {
		return nil, err
	}
	change := &DescriptionChange{SKU: sku, OldDescription: p.Description, NewDescription: description}
	p.Description = description
	p.UpdatedAt = time.Now().UTC()
	if err := s.store.PutProduct(ctx, p); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "save product %s: %s", sku, err.Error()).WithCause(err)
	}
	return change, nil
}

// SetPromotion updates a product's promotion status.
func (s *Service) SetPromotion(ctx context.Context, sku string, promoted bool) (*PromotionChange, error) {
	p, err := s.store.GetProduct(ctx, sku)
	if err != nil {
		return nil, err
	}
	change := &PromotionChange{SKU: sku, OldPromoted: p.Promoted, NewPromoted: promoted}
	p.Promoted = promoted
	p.UpdatedAt = time.Now().UTC()
	if err := s.store.PutProduct(ctx, p); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "save product %s: %s", sku, err.Error()).WithCause(err)
	}
	return change, nil
}

// CancelOrder cancels an order. Transition legality is the validation
// stage's responsibility; the catalog only guards the terminal no-op.
func (s *Service) CancelOrder(ctx context.Context, orderNumber, reason string) (*OrderStatusChange, error) {
	o, err := s.store.GetOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if o.Status == schema.OrderStatusCancelled {
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "order %s is already cancelled", orderNumber)
	}
	change := &OrderStatusChange{
		OrderNumber: orderNumber,
		OldStatus:   o.Status,
		NewStatus:   schema.OrderStatusCancelled,
		Reason:      reason,
	}
	o.Status = schema.OrderStatusCancelled
	o.UpdatedAt = time.Now().UTC()
	if err := s.store.PutOrder(ctx, o); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "save order %s: %s", orderNumber, err.Error()).WithCause(err)
	}
	return change, nil
}

// SetOrderStatus moves an order to the given status.
func (s *Service) SetOrderStatus(ctx context.Context, orderNumber string, status schema.OrderStatus) (*OrderStatusChange, error) {
	o, err := s.store.GetOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	change := &OrderStatusChange{OrderNumber: orderNumber, OldStatus: o.Status, NewStatus: status}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	if err := s.store.PutOrder(ctx, o); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "save order %s: %s", orderNumber, err.Error()).WithCause(err)
	}
	return change, nil
}

// Refund records a refund against an order. The cumulative-bound invariant
// is enforced here as well as in validation: refunded totals crossing the
// grand total would corrupt the books regardless of who called.
func (s *Service) Refund(ctx context.Context, orderNumber string, amount float64) (*RefundChange, error) {
	if amount <= 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "refund amount must be positive, got %.2f", amount)
	}
	o, err := s.store.GetOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	// Sub-cent tolerance matches the validation-stage bound.
	if o.RefundedTotal+amount-o.GrandTotal > 1e-9 {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"refund of %.2f would exceed order total %.2f (already refunded %.2f)",
			amount, o.GrandTotal, o.RefundedTotal)
	}
	change := &RefundChange{
		OrderNumber:      orderNumber,
		Amount:           amount,
		OldRefundedTotal: o.RefundedTotal,
		NewRefundedTotal: o.RefundedTotal + amount,
		GrandTotal:       o.GrandTotal,
	}
	o.RefundedTotal += amount
	o.UpdatedAt = time.Now().UTC()
	if err := s.store.PutOrder(ctx, o); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "save order %s: %s", orderNumber, err.Error()).WithCause(err)
	}
	return change, nil
}
