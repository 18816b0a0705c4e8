package schema

import (
	"encoding/json"
	"fmt"
)

// Intent identifiers. The extractor normalizes free text into one of these;
// anything else is treated as informational and bypasses guardrails.
const (
	IntentUpdatePrice       = "update_product_price"
	IntentUpdateDescription = "update_product_description"
	IntentUpdatePromotion   = "update_promotion_status"
	IntentCancelOrder       = "cancel_order"
	IntentUpdateOrderStatus = "update_order_status"
	IntentRefundOrder       = "refund_order"
	IntentLookupProduct     = "lookup_product"
	IntentLookupOrder       = "lookup_order"
)

// MutatingIntents lists every intent that reaches the execution dispatcher
// with a domain side effect.
var MutatingIntents = []string{
	IntentUpdatePrice,
	IntentUpdateDescription,
	IntentUpdatePromotion,
	IntentCancelOrder,
	IntentUpdateOrderStatus,
	IntentRefundOrder,
}

// IsMutating reports whether the intent performs a domain mutation.
func IsMutating(intent string) bool {
	for _, m := range MutatingIntents {
		if m == intent {
			return true
		}
	}
	return false
}

// --- Typed entity payloads (tagged union, one per intent) ---

// PriceUpdatePayload carries the entities for update_product_price.
type PriceUpdatePayload struct {
	SKU      string  `json:"sku"`
	NewPrice float64 `json:"new_price"`
}

// DescriptionUpdatePayload carries the entities for update_product_description.
type DescriptionUpdatePayload struct {
	SKU         string `json:"sku"`
	Description string `json:"description"`
}

// PromotionUpdatePayload carries the entities for update_promotion_status.
type PromotionUpdatePayload struct {
	SKU      string `json:"sku"`
	Promoted bool   `json:"promoted"`
}

// CancelOrderPayload carries the entities for cancel_order.
type CancelOrderPayload struct {
	OrderNumber string `json:"order_number"`
	Reason      string `json:"reason,omitempty"`
}

// OrderStatusUpdatePayload carries the entities for update_order_status.
type OrderStatusUpdatePayload struct {
	OrderNumber string `json:"order_number"`
	NewStatus   string `json:"new_status"`
}

// RefundPayload carries the entities for refund_order.
type RefundPayload struct {
	OrderNumber string  `json:"order_number"`
	Amount      float64 `json:"amount"`
	Reason      string  `json:"reason,omitempty"`
}

// LookupPayload carries the entities for the read-only lookup intents.
type LookupPayload struct {
	SKU         string `json:"sku,omitempty"`
	OrderNumber string `json:"order_number,omitempty"`
}

// DecodePayload decodes raw extracted entities into the typed payload for
// the given intent. Unknown intents decode as LookupPayload so the read
// path always has a usable shape.
func DecodePayload(intent string, entities json.RawMessage) (any, error) {
	if len(entities) == 0 {
		entities = json.RawMessage(`{}`)
	}
	var target any
	switch intent {
	case IntentUpdatePrice:
		target = &PriceUpdatePayload{}
	case IntentUpdateDescription:
		target = &DescriptionUpdatePayload{}
	case IntentUpdatePromotion:
		target = &PromotionUpdatePayload{}
	case IntentCancelOrder:
		target = &CancelOrderPayload{}
	case IntentUpdateOrderStatus:
		target = &OrderStatusUpdatePayload{}
	case IntentRefundOrder:
		target = &RefundPayload{}
	default:
		target = &LookupPayload{}
	}
	if err := json.Unmarshal(entities, target); err != nil {
		return nil, NewErrorf(ErrCodeValidation, "decode %s entities: %s", intent, err.Error()).WithCause(err)
	}
	return target, nil
}

// TargetID returns the entity identifier a command operates on (SKU or
// order number). Used for confirmation tokens and audit details.
func TargetID(intent string, entities json.RawMessage) string {
	payload, err := DecodePayload(intent, entities)
	if err != nil {
		return ""
	}
	switch p := payload.(type) {
	case *PriceUpdatePayload:
		return p.SKU
	case *DescriptionUpdatePayload:
		return p.SKU
	case *PromotionUpdatePayload:
		return p.SKU
	case *CancelOrderPayload:
		return p.OrderNumber
	case *OrderStatusUpdatePayload:
		return p.OrderNumber
	case *RefundPayload:
		return p.OrderNumber
	case *LookupPayload:
		if p.SKU != "" {
			return p.SKU
		}
		return p.OrderNumber
	}
	return ""
}

// MarshalEntities is a convenience for building entity payloads in code
// (tests, the pattern extractor).
func MarshalEntities(payload any) json.RawMessage {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("marshal entities: %v", err))
	}
	return raw
}
