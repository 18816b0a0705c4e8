// Package validate runs every extracted plan through the deterministic
// guardrails before anything touches the domain. The stage reads current
// domain state once, hands immutable snapshots to pure checks, and folds
// their verdicts into a single schema.Validation.
package validate

import (
	"context"
	"log/slog"

	"github.com/storefrontlabs/adminflow/internal/catalog"
	"github.com/storefrontlabs/adminflow/internal/guardrail"
	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// Config tunes the risk checks.
type Config struct {
	// OutlierThreshold is the price deviation percentage above which a
	// change is flagged for confirmation.
	OutlierThreshold float64
}

// Stage validates plans against current domain state.
type Stage struct {
	reader catalog.Reader
	rules  *guardrail.RuleSet
	cfg    Config
	logger *slog.Logger
}

// NewStage creates a validation stage. rules may be nil when no operator
// rule set is configured.
func NewStage(reader catalog.Reader, rules *guardrail.RuleSet, cfg Config, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{reader: reader, rules: rules, cfg: cfg, logger: logger}
}

// Run validates the plan and returns the verdict. Only infrastructure
// failures return an error; business violations come back as an invalid
// Validation. Run never mutates domain state, so re-running it against
// unchanged state yields the same verdict.
func (s *Stage) Run(ctx context.Context, plan *schema.Plan) (*schema.Validation, error) {
	payload, err := schema.DecodePayload(plan.Intent, plan.Entities)
	if err != nil {
		return invalid(err.Error()), nil
	}

	var r guardrail.Result
	var product *schema.Product
	var order *schema.Order

	// DecodePayload returns pointers, so the cases must too.
	switch p := payload.(type) {
	case *schema.PriceUpdatePayload:
		product, r = s.checkPriceUpdate(ctx, *p)
	case *schema.DescriptionUpdatePayload:
		product, r = s.checkProductMutation(ctx, p.SKU)
	case *schema.PromotionUpdatePayload:
		product, r = s.checkProductMutation(ctx, p.SKU)
	case *schema.CancelOrderPayload:
		order, r = s.checkCancel(ctx, *p)
	case *schema.OrderStatusUpdatePayload:
		order, r = s.checkOrderStatus(ctx, *p)
	case *schema.RefundPayload:
		order, r = s.checkRefund(ctx, *p)
	default:
		// Lookups and unknown intents have nothing to guard.
		r = guardrail.OK()
	}

	if r.Valid && s.rules != nil {
		r = guardrail.Merge(r, s.rules.Check(guardrail.RuleEnv(plan, product, order)))
	}

	v := &schema.Validation{
		Valid:                r.Valid,
		Errors:               r.Errors,
		Warnings:             r.Warnings,
		RiskFlag:             r.RiskFlag,
		RequiresConfirmation: r.RequiresConfirmation,
		OldValue:             r.OldValue,
		NewValue:             r.NewValue,
		DeviationPercent:     r.DeviationPercent,
	}
	if !v.Valid {
		s.logger.InfoContext(ctx, "validation rejected command",
			slog.String("intent", plan.Intent),
			slog.Any("errors", v.Errors))
	}
	return v, nil
}

func (s *Stage) checkPriceUpdate(ctx context.Context, p schema.PriceUpdatePayload) (*schema.Product, guardrail.Result) {
	product, r := s.loadProduct(ctx, p.SKU)
	if !r.Valid {
		return nil, r
	}
	r = guardrail.Merge(r, guardrail.ProductActive(product))
	if !r.Valid {
		return product, r
	}
	r = guardrail.Merge(r, guardrail.PriceBound(p.NewPrice))
	if !r.Valid {
		return product, r
	}
	return product, guardrail.Merge(r, guardrail.PriceOutlier(product.Price, p.NewPrice, s.cfg.OutlierThreshold))
}

func (s *Stage) checkProductMutation(ctx context.Context, sku string) (*schema.Product, guardrail.Result) {
	product, r := s.loadProduct(ctx, sku)
	if !r.Valid {
		return nil, r
	}
	return product, guardrail.Merge(r, guardrail.ProductActive(product))
}

func (s *Stage) checkCancel(ctx context.Context, p schema.CancelOrderPayload) (*schema.Order, guardrail.Result) {
	order, r := s.loadOrder(ctx, p.OrderNumber)
	if !r.Valid {
		return nil, r
	}
	return order, guardrail.Merge(r, guardrail.Cancellable(order.Status))
}

func (s *Stage) checkOrderStatus(ctx context.Context, p schema.OrderStatusUpdatePayload) (*schema.Order, guardrail.Result) {
	order, r := s.loadOrder(ctx, p.OrderNumber)
	if !r.Valid {
		return nil, r
	}
	return order, guardrail.Merge(r, guardrail.OrderTransition(order.Status, schema.OrderStatus(p.NewStatus)))
}

func (s *Stage) checkRefund(ctx context.Context, p schema.RefundPayload) (*schema.Order, guardrail.Result) {
	order, r := s.loadOrder(ctx, p.OrderNumber)
	if !r.Valid {
		return nil, r
	}
	return order, guardrail.Merge(r, guardrail.RefundBound(order.GrandTotal, order.RefundedTotal, p.Amount))
}

// loadProduct fetches a product snapshot, translating not-found into a
// business verdict. Any other store error fails closed as invalid too:
// a command we could not check is a command we must not run.
func (s *Stage) loadProduct(ctx context.Context, sku string) (*schema.Product, guardrail.Result) {
	if sku == "" {
		return nil, guardrail.Fail("no product identified in the request")
	}
	product, err := s.reader.GetBySKU(ctx, sku)
	if err != nil {
		if schema.IsCode(err, schema.ErrCodeNotFound) {
			return nil, guardrail.Fail("product %s not found", sku)
		}
		s.logger.ErrorContext(ctx, "product lookup failed", slog.String("sku", sku), slog.Any("error", err))
		return nil, guardrail.Fail("could not verify product %s", sku)
	}
	return product, guardrail.OK()
}

func (s *Stage) loadOrder(ctx context.Context, orderNumber string) (*schema.Order, guardrail.Result) {
	if orderNumber == "" {
		return nil, guardrail.Fail("no order identified in the request")
	}
	order, err := s.reader.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		if schema.IsCode(err, schema.ErrCodeNotFound) {
			return nil, guardrail.Fail("order %s not found", orderNumber)
		}
		s.logger.ErrorContext(ctx, "order lookup failed", slog.String("order_number", orderNumber), slog.Any("error", err))
		return nil, guardrail.Fail("could not verify order %s", orderNumber)
	}
	return order, guardrail.OK()
}

func invalid(msg string) *schema.Validation {
	return &schema.Validation{Valid: false, Errors: []string{msg}}
}
