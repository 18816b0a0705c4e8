package execute

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/storefrontlabs/adminflow/internal/catalog"
	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// Dispatcher routes intents to their handlers and wraps every outcome,
// success or failure, in an Execution envelope. Handler panics are
// recovered into failed envelopes so one bad command cannot take the
// engine down.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher builds a dispatcher with the standard catalog handlers
// registered.
func NewDispatcher(svc *catalog.Service, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg := NewRegistry()
	for intent, h := range catalogHandlers(svc) {
		if err := reg.Register(intent, h); err != nil {
			return nil, err
		}
	}
	return &Dispatcher{registry: reg, logger: logger}, nil
}

// Execute runs the handler for intent and returns the outcome envelope.
// The returned Execution is never nil; infrastructure failures land in its
// Error field rather than in a Go error so the caller always has a record
// to persist.
func (d *Dispatcher) Execute(ctx context.Context, intent string, entities []byte) (exec *schema.Execution) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.ErrorContext(ctx, "handler panicked",
				slog.String("intent", intent),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			exec = &schema.Execution{
				Success: false,
				Error:   fmt.Sprintf("internal error executing %s", intent),
			}
		}
	}()

	h, err := d.registry.Get(intent)
	if err != nil {
		return &schema.Execution{Success: false, Error: err.Error()}
	}

	result, err := h(ctx, entities)
	if err != nil {
		d.logger.WarnContext(ctx, "execution failed",
			slog.String("intent", intent),
			slog.Any("error", err))
		return &schema.Execution{Success: false, Error: err.Error()}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return &schema.Execution{
			Success: false,
			Error:   fmt.Sprintf("encode result for %s: %s", intent, err.Error()),
		}
	}
	return &schema.Execution{Success: true, Data: data}
}

// catalogHandlers binds each supported intent to the catalog service.
func catalogHandlers(svc *catalog.Service) map[string]Handler {
	return map[string]Handler{
		schema.IntentUpdatePrice: func(ctx context.Context, entities []byte) (any, error) {
			var p schema.PriceUpdatePayload
			if err := json.Unmarshal(entities, &p); err != nil {
				return nil, schema.NewError(schema.ErrCodeExecution, "malformed price update payload").WithCause(err)
			}
			return svc.SetPrice(ctx, p.SKU, p.NewPrice)
		},
		schema.IntentUpdateDescription: func(ctx context.Context, entities []byte) (any, error) {
			var p schema.DescriptionUpdatePayload
			if err := json.Unmarshal(entities, &p); err != nil {
				return nil, schema.NewError(schema.ErrCodeExecution, "malformed description update payload").WithCause(err)
			}
			return svc.SetDescription(ctx, p.SKU, p.Description)
		},
		schema.IntentUpdatePromotion: func(ctx context.Context, entities []byte) (any, error) {
			var p schema.PromotionUpdatePayload
			if err := json.Unmarshal(entities, &p); err != nil {
				return nil, schema.NewError(schema.ErrCodeExecution, "malformed promotion update payload").WithCause(err)
			}
			return svc.SetPromotion(ctx, p.SKU, p.Promoted)
		},
		schema.IntentCancelOrder: func(ctx context.Context, entities []byte) (any, error) {
			var p schema.CancelOrderPayload
			if err := json.Unmarshal(entities, &p); err != nil {
				return nil, schema.NewError(schema.ErrCodeExecution, "malformed cancel order payload").WithCause(err)
			}
			return svc.CancelOrder(ctx, p.OrderNumber, p.Reason)
		},
		schema.IntentUpdateOrderStatus: func(ctx context.Context, entities []byte) (any, error) {
			var p schema.OrderStatusUpdatePayload
			if err := json.Unmarshal(entities, &p); err != nil {
				return nil, schema.NewError(schema.ErrCodeExecution, "malformed order status payload").WithCause(err)
			}
			return svc.SetOrderStatus(ctx, p.OrderNumber, schema.OrderStatus(p.NewStatus))
		},
		schema.IntentRefundOrder: func(ctx context.Context, entities []byte) (any, error) {
			var p schema.RefundPayload
			if err := json.Unmarshal(entities, &p); err != nil {
				return nil, schema.NewError(schema.ErrCodeExecution, "malformed refund payload").WithCause(err)
			}
			return svc.Refund(ctx, p.OrderNumber, p.Amount)
		},
		schema.IntentLookupProduct: func(ctx context.Context, entities []byte) (any, error) {
			var p schema.LookupPayload
			if err := json.Unmarshal(entities, &p); err != nil {
				return nil, schema.NewError(schema.ErrCodeExecution, "malformed lookup payload").WithCause(err)
			}
			return svc.GetBySKU(ctx, p.SKU)
		},
		schema.IntentLookupOrder: func(ctx context.Context, entities []byte) (any, error) {
			var p schema.LookupPayload
			if err := json.Unmarshal(entities, &p); err != nil {
				return nil, schema.NewError(schema.ErrCodeExecution, "malformed lookup payload").WithCause(err)
			}
			return svc.GetByOrderNumber(ctx, p.OrderNumber)
		},
	}
}
