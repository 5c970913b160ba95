package httppresentation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appcheckout "github.com/Zhima-Mochi/minishop-settlement/internal/application/checkout"
	appinventory "github.com/Zhima-Mochi/minishop-settlement/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-settlement/internal/application/order"
	apppayment "github.com/Zhima-Mochi/minishop-settlement/internal/application/payment"
	apppromo "github.com/Zhima-Mochi/minishop-settlement/internal/application/promotion"
	appship "github.com/Zhima-Mochi/minishop-settlement/internal/application/shipping"
	dompromo "github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"
	domship "github.com/Zhima-Mochi/minishop-settlement/internal/domain/shipping"
	"github.com/Zhima-Mochi/minishop-settlement/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-settlement/internal/infrastructure/outbox"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("id-%d", s.n)
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.SeedLevel("p-a", "loc-1", 0, 10))
	require.NoError(t, store.SeedLevel("p-b", "loc-1", 0, 10))
	minPurchase := int64(100_00)
	require.NoError(t, store.PutRule(&dompromo.Rule{
		ID: "big", Name: "Big spender", Code: "BIG", ValueType: dompromo.ValuePercentage,
		Value: decimal.NewFromInt(20), MinPurchaseAmount: &minPurchase, IsActive: true,
	}))

	catalog := memory.NewCatalog()
	catalog.SetMerchantDefault("M1", domship.Profile{ID: "m1", MerchantID: "M1", Countries: []string{"US", "CA"}})
	catalog.SetMerchantDefault("M2", domship.Profile{ID: "m2", MerchantID: "M2", Countries: []string{"US"}})
	rates := memory.NewRateTable()
	rates.Set("M1", "US", domship.Quote{MerchantID: "M1", ServiceName: "standard", PriceMinor: 500, Currency: "USD"})
	rates.Set("M2", "US", domship.Quote{MerchantID: "M2", ServiceName: "standard", PriceMinor: 700, Currency: "USD"})

	bus := outbox.NewBus(nil)
	ids := &seqIDs{}
	promotions := apppromo.NewEvaluateUseCase(store, nil)
	shipping := appship.NewOptionsUseCase(rates, nil, time.Second)
	transitions := apporder.NewTransitionUseCase(store, bus, nil)
	checkout := appcheckout.NewService(
		appship.NewGate(catalog, nil, time.Second),
		appinventory.NewAvailabilityUseCase(store, nil, time.Second),
		promotions, shipping,
		apporder.NewCreateOrdersUseCase(store, store, ids, bus, nil, time.Second),
		ids, nil,
	)
	payments := apppayment.NewSessionUseCase(store, memory.NewGateway("https://pay.test"), memory.NewSessionStore(), bus, nil, time.Second)

	return NewHandler(Services{
		Checkout: checkout, Promotions: promotions, Shipping: shipping,
		Transitions: transitions, Payments: payments,
	}, nil).Router()
}

const cartJSON = `{"id":"cart-1","lines":[
	{"id":"A","listing_id":"p-a","merchant_id":"M1","quantity":2,"unit_price":1000,"currency":"usd"},
	{"id":"B","listing_id":"p-b","merchant_id":"M2","quantity":1,"unit_price":5000,"currency":"usd"}]}`

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestQuoteEndpoint(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/checkout/quote", `{"cart":`+cartJSON+`,"country":"US","code":"big"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))

	q := decode[quoteResponse](t, rec)
	assert.Equal(t, int64(7000), q.Subtotal)
	assert.Equal(t, int64(1200), q.ShippingTotal)
	assert.Equal(t, "standard", q.Shipping.Default.ServiceName)
	require.NotNil(t, q.Promotions.Code)
	assert.Equal(t, string(dompromo.CodeNotEligible), q.Promotions.Code.Status)
	assert.Equal(t, "minimum purchase of 100.00 required, add 30.00 more", q.Promotions.Code.Message)
}

func TestQuoteUnshippableNamesLines(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/checkout/quote", `{"cart":`+cartJSON+`,"country":"CA"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decode[errorResponse](t, rec)
	assert.Equal(t, kindUnshippable, body.Kind)
	require.Len(t, body.Lines, 1)
	assert.Equal(t, "B", body.Lines[0].CartLineID)
	assert.Equal(t, "does not ship to CA", body.Lines[0].Reason)
}

func TestShippingOptionsMerchantUnquoted(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/checkout/shipping-options", `{"cart":`+cartJSON+`,"country":"CA"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, kindMerchantUnquoted, decode[errorResponse](t, rec).Kind)
}

func TestPlaceOrdersAndReplay(t *testing.T) {
	h := newTestRouter(t)
	body := `{"cart":` + cartJSON + `,"customer":{"id":"c1"},"address":{"line1":"1 Main St","city":"Springfield","country":"us"}}`

	first := do(t, h, http.MethodPost, "/checkout/orders", body, headerIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	created := decode[placeOrdersResponse](t, first)
	require.Len(t, created.Orders, 2)
	assert.False(t, created.Replayed)
	require.NotNil(t, created.Shipping)
	assert.Equal(t, "standard", created.Shipping.ServiceName)

	again := do(t, h, http.MethodPost, "/checkout/orders", body, headerIdempotencyKey, "key-1")
	require.Equal(t, http.StatusOK, again.Code)
	replayed := decode[placeOrdersResponse](t, again)
	assert.True(t, replayed.Replayed)
	assert.Equal(t, created.CheckoutID, replayed.CheckoutID)
}

func TestHoldBlocksFulfillment(t *testing.T) {
	h := newTestRouter(t)
	body := `{"cart":` + cartJSON + `,"address":{"line1":"1 Main St","city":"Springfield","country":"US"}}`
	rec := do(t, h, http.MethodPost, "/checkout/orders", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orderID := decode[placeOrdersResponse](t, rec).Orders[0].ID

	missingReason := do(t, h, http.MethodPost, "/orders/workflow", `{"order_id":"`+orderID+`","status":"on_hold"}`)
	assert.Equal(t, http.StatusBadRequest, missingReason.Code)

	hold := do(t, h, http.MethodPost, "/orders/workflow", `{"order_id":"`+orderID+`","status":"on_hold","reason":"address check"}`)
	require.Equal(t, http.StatusOK, hold.Code, hold.Body.String())
	assert.Equal(t, "on_hold", decode[orderDTO](t, hold).WorkflowStatus)

	fulfill := do(t, h, http.MethodPost, "/orders/fulfill", `{"order_id":"`+orderID+`"}`)
	require.Equal(t, http.StatusConflict, fulfill.Code)
	assert.Equal(t, kindOnHold, decode[errorResponse](t, fulfill).Kind)

	cancel := do(t, h, http.MethodPost, "/orders/cancel", `{"order_id":"`+orderID+`"}`)
	require.Equal(t, http.StatusOK, cancel.Code)

	history := do(t, h, http.MethodGet, "/orders/history?order_id="+orderID, "")
	require.Equal(t, http.StatusOK, history.Code)
	var trail struct {
		Events []map[string]any `json:"events"`
	}
	require.NoError(t, json.Unmarshal(history.Body.Bytes(), &trail))
	assert.Len(t, trail.Events, 3)
}

func TestPaymentSessionIsIdempotent(t *testing.T) {
	h := newTestRouter(t)
	body := `{"cart":` + cartJSON + `,"address":{"line1":"1 Main St","city":"Springfield","country":"US"}}`
	placed := decode[placeOrdersResponse](t, do(t, h, http.MethodPost, "/checkout/orders", body))
	ids, _ := json.Marshal([]string{placed.Orders[1].ID, placed.Orders[0].ID})

	first := do(t, h, http.MethodPost, "/payment/session", `{"order_ids":`+string(ids)+`}`)
	second := do(t, h, http.MethodPost, "/payment/session", `{"order_ids":`+string(ids)+`}`)
	assert.Contains(t, []int{http.StatusCreated, http.StatusOK}, first.Code, first.Body.String())
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, decode[sessionDTO](t, first).ID, decode[sessionDTO](t, second).ID)
}

func TestRequestErrors(t *testing.T) {
	h := newTestRouter(t)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/checkout/quote", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/checkout/quote", `{"cart":`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/checkout/quote", `{"unknown":1}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/orders/history?order_id=nope", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)

	missingID := do(t, h, http.MethodPost, "/orders/fulfill", `{}`)
	assert.Equal(t, http.StatusBadRequest, missingID.Code)
	assert.Equal(t, kindValidation, decode[errorResponse](t, missingID).Kind)
}

func TestOrderLinesCarryOptions(t *testing.T) {
	h := newTestRouter(t)
	withOptions := `{"id":"cart-1","lines":[
	{"id":"A","listing_id":"p-a","merchant_id":"M1","quantity":1,"unit_price":1000,"currency":"usd",
	 "options":[{"name":"Size","value":"M"},{"name":"Color","value":"Red"}]}]}`
	body := `{"cart":` + withOptions + `,"address":{"line1":"1 Main St","city":"Springfield","country":"US"}}`

	rec := do(t, h, http.MethodPost, "/checkout/orders", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orders := decode[placeOrdersResponse](t, rec).Orders
	require.Len(t, orders, 1)
	require.Len(t, orders[0].LineItems, 1)
	assert.Equal(t, []optionDTO{{Name: "Size", Value: "M"}, {Name: "Color", Value: "Red"}}, orders[0].LineItems[0].Options)
}
