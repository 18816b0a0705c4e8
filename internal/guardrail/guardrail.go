// Package guardrail holds the deterministic business checks the validation
// stage composes. Every check is a pure function of its inputs: same inputs,
// same verdict, no clock, no store, no randomness.
package guardrail

import (
	"fmt"
	"math"

	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// Risk flags attached to validation results.
const (
	RiskPriceOutlier = "PRICE_OUTLIER"
)

// Result is the outcome of a single check or a merge of several.
type Result struct {
	Valid                bool
	Errors               []string
	Warnings             []string
	RiskFlag             string
	RequiresConfirmation bool
	OldValue             any
	NewValue             any
	DeviationPercent     float64
}

// OK returns a passing result.
func OK() Result {
	return Result{Valid: true}
}

// Fail returns a failing result with the given error message.
func Fail(format string, args ...any) Result {
	return Result{Valid: false, Errors: []string{fmt.Sprintf(format, args...)}}
}

// Warn returns a passing result carrying a warning.
func Warn(format string, args ...any) Result {
	return Result{Valid: true, Warnings: []string{fmt.Sprintf(format, args...)}}
}

// Merge folds b into a. Validity is conjunctive; errors and warnings
// accumulate; risk escalation and value context are taken from whichever
// result carries them.
func Merge(a, b Result) Result {
	out := Result{
		Valid:    a.Valid && b.Valid,
		Errors:   append(append([]string{}, a.Errors...), b.Errors...),
		Warnings: append(append([]string{}, a.Warnings...), b.Warnings...),
	}
	out.RiskFlag = a.RiskFlag
	if b.RiskFlag != "" {
		out.RiskFlag = b.RiskFlag
	}
	out.RequiresConfirmation = a.RequiresConfirmation || b.RequiresConfirmation
	out.OldValue = a.OldValue
	out.NewValue = a.NewValue
	out.DeviationPercent = a.DeviationPercent
	if b.OldValue != nil || b.NewValue != nil {
		out.OldValue = b.OldValue
		out.NewValue = b.NewValue
		out.DeviationPercent = b.DeviationPercent
	}
	return out
}

// ProductExists verifies a product snapshot was found and is usable.
func ProductExists(p *schema.Product, sku string) Result {
	if p == nil {
		return Fail("product %s not found", sku)
	}
	return OK()
}

// ProductActive verifies the product accepts mutations.
func ProductActive(p *schema.Product) Result {
	if p == nil {
		return Fail("product not found")
	}
	if !p.Active {
		return Fail("product %s is inactive", p.SKU)
	}
	return OK()
}

// OrderExists verifies an order snapshot was found.
func OrderExists(o *schema.Order, orderNumber string) Result {
	if o == nil {
		return Fail("order %s not found", orderNumber)
	}
	return OK()
}

// PriceBound checks a proposed price is non-negative. A zero price passes
// with a warning since free items are legal but usually a typo.
func PriceBound(price float64) Result {
	if price < 0 {
		return Fail("price must not be negative, got %.2f", price)
	}
	if price == 0 {
		return Warn("price of 0.00 makes the product free")
	}
	return OK()
}

// Deviation returns the relative change from oldVal to newVal as a
// percentage. An old value of zero has no meaningful baseline: any nonzero
// new value counts as a full deviation.
func Deviation(oldVal, newVal float64) float64 {
	if oldVal == 0 {
		if newVal > 0 {
			return 100
		}
		return 0
	}
	return math.Abs(newVal-oldVal) / oldVal * 100
}

// PriceOutlier flags price changes that deviate from the current price by
// more than threshold percent. Outliers stay valid but require confirmation.
func PriceOutlier(oldVal, newVal, threshold float64) Result {
	dev := Deviation(oldVal, newVal)
	r := OK()
	r.OldValue = oldVal
	r.NewValue = newVal
	r.DeviationPercent = dev
	if dev > threshold {
		r.RiskFlag = RiskPriceOutlier
		r.RequiresConfirmation = true
	}
	return r
}

// orderTransitions is the legality table for order status moves. Absent
// entries are illegal; terminal statuses have no outgoing moves.
var orderTransitions = map[schema.OrderStatus][]schema.OrderStatus{
	schema.OrderStatusPending:    {schema.OrderStatusProcessing, schema.OrderStatusCancelled},
	schema.OrderStatusProcessing: {schema.OrderStatusShipped, schema.OrderStatusCancelled},
	schema.OrderStatusShipped:    {schema.OrderStatusDelivered},
}

// OrderTransition checks whether an order may move from its current status
// to the target status.
func OrderTransition(from, to schema.OrderStatus) Result {
	if !schema.KnownOrderStatus(string(to)) {
		return Fail("unknown order status %q", to)
	}
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return OK()
		}
	}
	return Fail("cannot move order from %s to %s", from, to)
}

// Cancellable checks whether an order in the given status may be cancelled.
func Cancellable(status schema.OrderStatus) Result {
	r := OrderTransition(status, schema.OrderStatusCancelled)
	if !r.Valid {
		return Fail("cannot cancel an order that is %s", status)
	}
	return r
}

// RefundBound checks a refund request against the order's grand total net
// of refunds already issued. The bound is cumulative: prior refunds shrink
// the headroom for later ones.
func RefundBound(grandTotal, refundedTotal, amount float64) Result {
	if amount <= 0 {
		return Fail("refund amount must be positive, got %.2f", amount)
	}
	// Sub-cent tolerance so refunding the exact remainder is not rejected
	// over float representation noise.
	remaining := grandTotal - refundedTotal
	if amount-remaining > 1e-9 {
		return Fail("refund of %.2f exceeds remaining refundable amount %.2f (order total %.2f, already refunded %.2f)",
			amount, remaining, grandTotal, refundedTotal)
	}
	return OK()
}
