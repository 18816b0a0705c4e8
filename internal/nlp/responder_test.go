package nlp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/storefrontlabs/adminflow/pkg/schema"
)

func TestTemplateResponder_PriceSuccess(t *testing.T) {
	r := NewTemplateResponder()
	resp := r.Respond(context.Background(), schema.IntentUpdatePrice, &schema.Execution{
		Success: true,
		Data:    []byte(`{"sku":"TSHIRT-01","old_price":890,"new_price":67}`),
	})
	assert.Equal(t, schema.ResponseSuccess, resp.ResponseType)
	assert.Contains(t, resp.Message, "TSHIRT-01")
	assert.Contains(t, resp.Message, "67")
	assert.Contains(t, resp.Message, "890")
}

func TestTemplateResponder_RefundSuccess(t *testing.T) {
	r := NewTemplateResponder()
	resp := r.Respond(context.Background(), schema.IntentRefundOrder, &schema.Execution{
		Success: true,
		Data:    []byte(`{"order_number":"1002","amount":100,"new_refunded_total":100,"grand_total":150.39}`),
	})
	assert.Equal(t, schema.ResponseSuccess, resp.ResponseType)
	assert.Contains(t, resp.Message, "1002")
	assert.Contains(t, resp.Message, "150.39")
}

func TestTemplateResponder_PromotionUsesOnOff(t *testing.T) {
	r := NewTemplateResponder()
	resp := r.Respond(context.Background(), schema.IntentUpdatePromotion, &schema.Execution{
		Success: true,
		Data:    []byte(`{"sku":"HOODIE-01","new_promoted":true}`),
	})
	assert.Contains(t, resp.Message, "on")

	resp = r.Respond(context.Background(), schema.IntentUpdatePromotion, &schema.Execution{
		Success: true,
		Data:    []byte(`{"sku":"HOODIE-01","new_promoted":false}`),
	})
	assert.Contains(t, resp.Message, "off")
}

func TestTemplateResponder_Failure(t *testing.T) {
	r := NewTemplateResponder()
	resp := r.Respond(context.Background(), schema.IntentCancelOrder, &schema.Execution{
		Success: false,
		Error:   "order not found: 9999",
	})
	assert.Equal(t, schema.ResponseError, resp.ResponseType)
	assert.Contains(t, resp.Message, "order not found: 9999")
}

func TestTemplateResponder_FallsBackOnMissingFields(t *testing.T) {
	r := NewTemplateResponder()
	resp := r.Respond(context.Background(), schema.IntentUpdatePrice, &schema.Execution{
		Success: true,
		Data:    []byte(`{"unexpected":"shape"}`),
	})
	assert.Equal(t, schema.ResponseSuccess, resp.ResponseType)
	assert.Contains(t, resp.Message, "Done")
}

func TestTemplateResponder_UnknownIntent(t *testing.T) {
	r := NewTemplateResponder()
	resp := r.Respond(context.Background(), "reticulate_splines", &schema.Execution{
		Success: true,
		Data:    []byte(`{}`),
	})
	assert.Equal(t, schema.ResponseSuccess, resp.ResponseType)
	assert.Contains(t, resp.Message, "reticulate splines")
}

func TestTemplateResponder_NilExecution(t *testing.T) {
	r := NewTemplateResponder()
	resp := r.Respond(context.Background(), schema.IntentLookupOrder, nil)
	assert.Equal(t, schema.ResponseSuccess, resp.ResponseType)
}
