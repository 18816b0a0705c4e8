package store

import (
	"context"
	"time"

	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use and must return deep
// copies so callers never share mutable state with the store.
type Store interface {
	// Workflow records
	CreateWorkflow(ctx context.Context, rec *schema.WorkflowRecord) error
	GetWorkflow(ctx context.Context, workflowID string) (*schema.WorkflowRecord, error)
	SaveWorkflow(ctx context.Context, rec *schema.WorkflowRecord) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.WorkflowRecord, error)
	DeleteWorkflow(ctx context.Context, workflowID string) error

	// Audit log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, workflowID string, since int64) ([]*Event, error)

	// Catalog: products
	GetProduct(ctx context.Context, sku string) (*schema.Product, error)
	PutProduct(ctx context.Context, p *schema.Product) error
	ListProducts(ctx context.Context, filter ProductFilter) ([]*schema.Product, error)

	// Catalog: orders
	GetOrder(ctx context.Context, orderNumber string) (*schema.Order, error)
	PutOrder(ctx context.Context, o *schema.Order) error
	ListOrders(ctx context.Context, filter OrderFilter) ([]*schema.Order, error)

	// Maintenance
	Migrate(ctx context.Context) error
	// PurgeTerminal deletes terminal workflows completed before cutoff,
	// along with their events, and returns how many were removed.
	PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error)
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}

// EventAppender is the subset of Store needed to emit audit events.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *Event) error
}

// Event is an immutable entry in the audit log. Sequence is monotone per
// workflow and assigned by the store on append.
type Event struct {
	ID         int64     `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Type       string    `json:"event_type"`
	Payload    []byte    `json:"payload,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Sequence   int64     `json:"sequence"`
}

// WorkflowFilter specifies criteria for listing workflow records.
type WorkflowFilter struct {
	SessionID     string         `json:"session_id,omitempty"`
	Status        *schema.Status `json:"status,omitempty"`
	ExpiresBefore *time.Time     `json:"expires_before,omitempty"`
	Since         *time.Time     `json:"since,omitempty"`
	Limit         int            `json:"limit,omitempty"`
	Offset        int            `json:"offset,omitempty"`
}

// ProductFilter specifies criteria for listing products.
type ProductFilter struct {
	ActiveOnly bool `json:"active_only,omitempty"`
	Limit      int  `json:"limit,omitempty"`
	Offset     int  `json:"offset,omitempty"`
}

// OrderFilter specifies criteria for listing orders.
type OrderFilter struct {
	Status *schema.OrderStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}
