package schema

import "time"

// OrderStatus is the lifecycle state of an order in the catalog.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// KnownOrderStatus reports whether s is a recognized order status.
func KnownOrderStatus(s string) bool {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Product is an immutable catalog snapshot handed to validation.
type Product struct {
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Active      bool      `json:"active"`
	Promoted    bool      `json:"promoted"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a copy of the product snapshot.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Order is an immutable order snapshot handed to validation.
// RefundedTotal accumulates across refunds and may never exceed GrandTotal.
type Order struct {
	OrderNumber   string      `json:"order_number"`
	Status        OrderStatus `json:"status"`
	GrandTotal    float64     `json:"grand_total"`
	RefundedTotal float64     `json:"refunded_total"`
	CustomerEmail string      `json:"customer_email,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Clone returns a copy of the order snapshot.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	return &cp
}
