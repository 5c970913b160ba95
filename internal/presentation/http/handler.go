package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	appcheckout "github.com/Zhima-Mochi/minishop-settlement/internal/application/checkout"
	apporder "github.com/Zhima-Mochi/minishop-settlement/internal/application/order"
	apppayment "github.com/Zhima-Mochi/minishop-settlement/internal/application/payment"
	apppromo "github.com/Zhima-Mochi/minishop-settlement/internal/application/promotion"
	appship "github.com/Zhima-Mochi/minishop-settlement/internal/application/shipping"
	domorder "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability/logctx"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerTenantID       = "X-Tenant-ID"
	headerIdempotencyKey = "Idempotency-Key"
	maxBodyBytes         = 1 << 20
)

// Services are the use cases the HTTP surface exposes.
type Services struct {
	Checkout    *appcheckout.Service
	Promotions  *apppromo.EvaluateUseCase
	Shipping    *appship.OptionsUseCase
	Transitions *apporder.TransitionUseCase
	Payments    *apppayment.SessionUseCase
}

type Handler struct {
	svc Services
	log observability.Logger
	tel observability.Observability
}

func NewHandler(svc Services, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		svc: svc,
		log: tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel: tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Trace → request logger + HTTP metrics → access log → handler
	h.muxHandle(mux, http.MethodPost, "/checkout/quote", h.handleQuote)
	h.muxHandle(mux, http.MethodPost, "/checkout/promotions", h.handlePromotions)
	h.muxHandle(mux, http.MethodPost, "/checkout/shipping-options", h.handleShippingOptions)
	h.muxHandle(mux, http.MethodPost, "/checkout/orders", h.handlePlaceOrders)
	h.muxHandle(mux, http.MethodPost, "/orders/workflow", h.handleWorkflow)
	h.muxHandle(mux, http.MethodPost, "/orders/fulfill", h.orderAction(h.svc.Transitions.Fulfill))
	h.muxHandle(mux, http.MethodPost, "/orders/cancel", h.orderAction(h.svc.Transitions.Cancel))
	h.muxHandle(mux, http.MethodPost, "/orders/refund", h.orderAction(h.svc.Transitions.Refund))
	h.muxHandle(mux, http.MethodGet, "/orders/history", h.handleHistory)
	h.muxHandle(mux, http.MethodPost, "/payment/session", h.handleStartSession)
	h.muxHandle(mux, http.MethodPost, "/payment/capture", h.handleCapture)
	h.muxHandle(mux, http.MethodGet, "/health", h.handleHealth)

	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, method, route string, handler http.HandlerFunc) {
	mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		ctx := contextWithRoute(r.Context(), route)
		r = r.WithContext(ctx)

		wrapped := h.withTrace(
			ObservabilityMiddleware(
				logctx.FromOr(ctx, h.log),
				func(r *http.Request) string { return r.Header.Get(headerRequestID) },
				func(r *http.Request) string { return r.Header.Get(headerTenantID) },
				h.tel,
			)(
				h.withAccessLog(http.HandlerFunc(handler)),
			),
		)
		wrapped.ServeHTTP(w, r)
	})
}

type quoteRequest struct {
	Cart     cartDTO     `json:"cart"`
	Customer customerDTO `json:"customer"`
	Code     string      `json:"code,omitempty"`
	Country  string      `json:"country"`
}

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err)
		return
	}
	q, err := h.svc.Checkout.Quote(r.Context(), appcheckout.QuoteInput{
		Cart: req.Cart.toDomain(), Customer: req.Customer.toDomain(), Code: req.Code, Country: req.Country,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuote(q))
}

type promotionsRequest struct {
	Cart     cartDTO     `json:"cart"`
	Customer customerDTO `json:"customer"`
	Code     string      `json:"code,omitempty"`
}

func (h *Handler) handlePromotions(w http.ResponseWriter, r *http.Request) {
	var req promotionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err)
		return
	}
	res, err := h.svc.Promotions.Execute(r.Context(), apppromo.EvaluateInput{
		Cart: req.Cart.toDomain(), Customer: req.Customer.toDomain(), Code: req.Code,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPromotions(res))
}

type shippingOptionsRequest struct {
	Cart    cartDTO `json:"cart"`
	Country string  `json:"country"`
}

func (h *Handler) handleShippingOptions(w http.ResponseWriter, r *http.Request) {
	var req shippingOptionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err)
		return
	}
	opts, err := h.svc.Shipping.Execute(r.Context(), appship.OptionsInput{Cart: req.Cart.toDomain(), Country: req.Country})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOptions(opts))
}

type placeOrdersRequest struct {
	CheckoutID    string           `json:"checkout_id,omitempty"`
	Cart          cartDTO          `json:"cart"`
	Customer      customerDTO      `json:"customer"`
	Code          string           `json:"code,omitempty"`
	Address       addressDTO       `json:"address"`
	ServiceName   string           `json:"service_name,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	TaxByMerchant map[string]int64 `json:"tax_by_merchant,omitempty"`
}

type placeOrdersResponse struct {
	CheckoutID string        `json:"checkout_id"`
	Orders     []orderDTO    `json:"orders"`
	Replayed   bool          `json:"replayed"`
	Shipping   *selectionDTO `json:"shipping,omitempty"`
}

func (h *Handler) handlePlaceOrders(w http.ResponseWriter, r *http.Request) {
	var req placeOrdersRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err)
		return
	}
	res, err := h.svc.Checkout.Place(r.Context(), appcheckout.PlaceInput{
		CheckoutID:     req.CheckoutID,
		Cart:           req.Cart.toDomain(),
		Customer:       req.Customer.toDomain(),
		Code:           req.Code,
		Address:        req.Address.toDomain(),
		ServiceName:    req.ServiceName,
		Notes:          req.Notes,
		TaxByMerchant:  req.TaxByMerchant,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(headerIdempotencyKey)),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := placeOrdersResponse{
		CheckoutID: res.Orders.CheckoutID,
		Orders:     toOrders(res.Orders.Orders),
		Replayed:   res.Orders.Replayed,
	}
	status := http.StatusCreated
	if res.Orders.Replayed {
		status = http.StatusOK
	} else {
		sel := toSelection(res.Selection)
		resp.Shipping = &sel
	}
	writeJSON(w, status, resp)
}

type workflowRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}

func (h *Handler) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err)
		return
	}
	o, err := h.svc.Transitions.SetWorkflowStatus(r.Context(), apporder.WorkflowInput{
		OrderID: req.OrderID, Status: req.Status, Reason: req.Reason,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

type orderRequest struct {
	OrderID string `json:"order_id"`
}

func (h *Handler) orderAction(action func(context.Context, string) (*domorder.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req orderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, kindValidation, err)
			return
		}
		o, err := action(r.Context(), req.OrderID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toOrder(o))
	}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("order_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, kindValidation, errors.New("order_id is required"))
		return
	}
	events, err := h.svc.Transitions.History(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "events": events})
}

type startSessionRequest struct {
	OrderIDs []string `json:"order_ids"`
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err)
		return
	}
	res, err := h.svc.Payments.Execute(r.Context(), apppayment.StartSessionInput{OrderIDs: req.OrderIDs})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, toSession(res.Session))
}

type captureRequest struct {
	SessionKey string `json:"session_key"`
}

func (h *Handler) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err)
		return
	}
	s, err := h.svc.Payments.Capture(r.Context(), req.SessionKey)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toSession(s))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		route := routeFromContext(parentCtx)
		if route == "unknown" {
			route = r.URL.Path
		}

		ctxWithSpan, span := h.tel.Tracer().Start(parentCtx, r.Method+" "+route,
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.String("http.target", r.URL.Path),
			attribute.String("http.user_agent", r.UserAgent()),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
