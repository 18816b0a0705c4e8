package nlp

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// PatternExtractor is a deterministic, offline extractor built on regular
// expressions. It covers the common phrasings of each intent and is the
// fallback when no model API key is configured; it also keeps tests and
// local development hermetic.
type PatternExtractor struct{}

// NewPatternExtractor creates the regex-based extractor.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

// Pattern confidence tiers. A full structural match is high confidence but
// not certainty: regexes cannot see negation or sarcasm.
const (
	patternConfidenceHigh = 0.9
	patternConfidenceLow  = 0.2
)

var (
	skuPattern   = `(?:sku\s+)?([A-Za-z]+-?\d+|[A-Za-z0-9\-]*\d[A-Za-z0-9\-]*)`
	orderPattern = `(?:order\s+)?#?([A-Za-z0-9\-]+)`
	pricePattern = `\$?(\d+(?:\.\d+)?)`

	rePriceUpdate = regexp.MustCompile(`(?i)(?:change|set|update)\s+(?:the\s+)?price\s+(?:of|for|on)\s+` + skuPattern + `\s+to\s+` + pricePattern)
	reDescUpdate  = regexp.MustCompile(`(?i)(?:change|set|update)\s+(?:the\s+)?description\s+(?:of|for|on)\s+` + skuPattern + `\s+to\s+(.+)`)
	rePromote     = regexp.MustCompile(`(?i)(promote|unpromote|feature|unfeature)\s+` + skuPattern)
	reCancel      = regexp.MustCompile(`(?i)cancel\s+order\s+#?([A-Za-z0-9\-]+)(?:\s+because\s+(.+))?`)
	reStatus      = regexp.MustCompile(`(?i)(?:mark|move|set)\s+order\s+#?([A-Za-z0-9\-]+)\s+(?:as|to)\s+(\w+)`)
	reRefund      = regexp.MustCompile(`(?i)refund\s+` + pricePattern + `\s+(?:on|for|to)\s+order\s+#?([A-Za-z0-9\-]+)(?:\s+because\s+(.+))?`)
	reLookupProd  = regexp.MustCompile(`(?i)(?:show|look\s*up|find|what\s+is|check)\s+(?:product\s+|sku\s+)` + `([A-Za-z0-9\-]+)`)
	reLookupOrder = regexp.MustCompile(`(?i)(?:show|look\s*up|find|check|status\s+of)\s+order\s+#?([A-Za-z0-9\-]+)`)
)

// Extract implements Extractor. Patterns are tried in a fixed order so a
// message matching several always resolves the same way.
func (p *PatternExtractor) Extract(ctx context.Context, message string, sc SessionContext) (*schema.Plan, error) {
	msg := strings.TrimSpace(message)

	if m := rePriceUpdate.FindStringSubmatch(msg); m != nil {
		price, err := strconv.ParseFloat(m[2], 64)
		if err == nil {
			return plan(schema.IntentUpdatePrice, schema.PriceUpdatePayload{
				SKU: m[1], NewPrice: price,
			}, patternConfidenceHigh), nil
		}
	}

	if m := reDescUpdate.FindStringSubmatch(msg); m != nil {
		return plan(schema.IntentUpdateDescription, schema.DescriptionUpdatePayload{
			SKU: m[1], Description: strings.TrimSpace(m[2]),
		}, patternConfidenceHigh), nil
	}

	if m := rePromote.FindStringSubmatch(msg); m != nil {
		verb := strings.ToLower(m[1])
		return plan(schema.IntentUpdatePromotion, schema.PromotionUpdatePayload{
			SKU: m[2], Promoted: verb == "promote" || verb == "feature",
		}, patternConfidenceHigh), nil
	}

	if m := reRefund.FindStringSubmatch(msg); m != nil {
		amount, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return plan(schema.IntentRefundOrder, schema.RefundPayload{
				OrderNumber: m[2], Amount: amount, Reason: strings.TrimSpace(m[3]),
			}, patternConfidenceHigh), nil
		}
	}

	if m := reCancel.FindStringSubmatch(msg); m != nil {
		return plan(schema.IntentCancelOrder, schema.CancelOrderPayload{
			OrderNumber: m[1], Reason: strings.TrimSpace(m[2]),
		}, patternConfidenceHigh), nil
	}

	if m := reStatus.FindStringSubmatch(msg); m != nil {
		return plan(schema.IntentUpdateOrderStatus, schema.OrderStatusUpdatePayload{
			OrderNumber: m[1], NewStatus: strings.ToLower(m[2]),
		}, patternConfidenceHigh), nil
	}

	if m := reLookupOrder.FindStringSubmatch(msg); m != nil {
		return plan(schema.IntentLookupOrder, schema.LookupPayload{
			OrderNumber: m[1],
		}, patternConfidenceHigh), nil
	}

	if m := reLookupProd.FindStringSubmatch(msg); m != nil {
		return plan(schema.IntentLookupProduct, schema.LookupPayload{
			SKU: m[1],
		}, patternConfidenceHigh), nil
	}

	return plan("unknown", schema.LookupPayload{}, patternConfidenceLow), nil
}

func plan(intent string, payload any, confidence float64) *schema.Plan {
	return &schema.Plan{
		Intent:     intent,
		Entities:   schema.MarshalEntities(payload),
		Confidence: confidence,
	}
}

var _ Extractor = (*PatternExtractor)(nil)
