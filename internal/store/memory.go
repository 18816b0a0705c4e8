package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// MemoryStore is an in-process Store for single-instance deployments and
// tests. All maps are guarded by a single RWMutex; values are deep-copied
// on both put and get.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*schema.WorkflowRecord
	events    map[string][]*Event // keyed by workflow ID, ordered by sequence
	products  map[string]*schema.Product
	orders    map[string]*schema.Order
	nextEvent int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*schema.WorkflowRecord),
		events:    make(map[string][]*Event),
		products:  make(map[string]*schema.Product),
		orders:    make(map[string]*schema.Order),
	}
}

// --- Workflow records ---

func (m *MemoryStore) CreateWorkflow(_ context.Context, rec *schema.WorkflowRecord) error {
	if rec == nil || rec.WorkflowID == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow record missing id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.workflows[rec.WorkflowID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow %s already exists", rec.WorkflowID)
	}
	m.workflows[rec.WorkflowID] = rec.Clone()
	return nil
}

func (m *MemoryStore) GetWorkflow(_ context.Context, workflowID string) (*schema.WorkflowRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.workflows[workflowID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow not found: %s", workflowID)
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) SaveWorkflow(_ context.Context, rec *schema.WorkflowRecord) error {
	if rec == nil || rec.WorkflowID == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow record missing id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[rec.WorkflowID]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "workflow not found: %s", rec.WorkflowID)
	}
	m.workflows[rec.WorkflowID] = rec.Clone()
	return nil
}

func (m *MemoryStore) ListWorkflows(_ context.Context, filter WorkflowFilter) ([]*schema.WorkflowRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*schema.WorkflowRecord
	for _, rec := range m.workflows {
		if filter.SessionID != "" && rec.SessionID != filter.SessionID {
			continue
		}
		if filter.Status != nil && rec.Status != *filter.Status {
			continue
		}
		if filter.ExpiresBefore != nil {
			if rec.ExpiresAt == nil || !rec.ExpiresAt.Before(*filter.ExpiresBefore) {
				continue
			}
		}
		if filter.Since != nil && rec.CreatedAt.Before(*filter.Since) {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (m *MemoryStore) DeleteWorkflow(_ context.Context, workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[workflowID]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "workflow not found: %s", workflowID)
	}
	delete(m.workflows, workflowID)
	delete(m.events, workflowID)
	return nil
}

// --- Audit log ---

func (m *MemoryStore) AppendEvent(_ context.Context, event *Event) error {
	if event == nil || event.WorkflowID == "" {
		return schema.NewError(schema.ErrCodeValidation, "event missing workflow id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextEvent++
	cp := *event
	cp.ID = m.nextEvent
	cp.Sequence = int64(len(m.events[event.WorkflowID])) + 1
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now().UTC()
	}
	cp.Payload = append([]byte(nil), event.Payload...)
	m.events[event.WorkflowID] = append(m.events[event.WorkflowID], &cp)

	event.ID = cp.ID
	event.Sequence = cp.Sequence
	return nil
}

func (m *MemoryStore) GetEvents(_ context.Context, workflowID string, since int64) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Event
	for _, ev := range m.events[workflowID] {
		if ev.Sequence <= since {
			continue
		}
		cp := *ev
		cp.Payload = append([]byte(nil), ev.Payload...)
		out = append(out, &cp)
	}
	return out, nil
}

// --- Products ---

func (m *MemoryStore) GetProduct(_ context.Context, sku string) (*schema.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[sku]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "product not found: %s", sku)
	}
	return p.Clone(), nil
}

func (m *MemoryStore) PutProduct(_ context.Context, p *schema.Product) error {
	if p == nil || p.SKU == "" {
		return schema.NewError(schema.ErrCodeValidation, "product missing sku")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.SKU] = p.Clone()
	return nil
}

func (m *MemoryStore) ListProducts(_ context.Context, filter ProductFilter) ([]*schema.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*schema.Product
	for _, p := range m.products {
		if filter.ActiveOnly && !p.Active {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return paginate(out, filter.Limit, filter.Offset), nil
}

// --- Orders ---

func (m *MemoryStore) GetOrder(_ context.Context, orderNumber string) (*schema.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[orderNumber]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "order not found: %s", orderNumber)
	}
	return o.Clone(), nil
}

func (m *MemoryStore) PutOrder(_ context.Context, o *schema.Order) error {
	if o == nil || o.OrderNumber == "" {
		return schema.NewError(schema.ErrCodeValidation, "order missing order number")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.OrderNumber] = o.Clone()
	return nil
}

func (m *MemoryStore) ListOrders(_ context.Context, filter OrderFilter) ([]*schema.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*schema.Order
	for _, o := range m.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return paginate(out, filter.Limit, filter.Offset), nil
}

// --- Maintenance / lifecycle ---

func (m *MemoryStore) Migrate(context.Context) error { return nil }

func (m *MemoryStore) PurgeTerminal(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, rec := range m.workflows {
		if rec.Terminal() && rec.CompletedAt != nil && rec.CompletedAt.Before(cutoff) {
			delete(m.workflows, id)
			delete(m.events, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Vacuum(context.Context) error { return nil }
func (m *MemoryStore) Close() error                 { return nil }

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
