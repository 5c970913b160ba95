package order

import (
	"time"

	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"
)

type AuditKind string

const (
	KindCreated            AuditKind = "order.created"
	KindWorkflowChanged    AuditKind = "order.workflow_changed"
	KindFulfillmentChanged AuditKind = "order.fulfillment_changed"
	KindStatusChanged      AuditKind = "order.status_changed"
	KindPaymentChanged     AuditKind = "order.payment_changed"
)

// SettlementSnapshot freezes what a checkout applied to one order, for dispute resolution.
type SettlementSnapshot struct {
	Allocations      []promotion.Allocation `json:"allocations"`
	ShippingService  string                 `json:"shipping_service"`
	ShippingPrice    int64                  `json:"shipping_price"`
	ShippingCurrency string                 `json:"shipping_currency"`
	OptionTotalPrice int64                  `json:"option_total_price"`
}

// AuditEvent is one append-only entry in an order's audit trail.
type AuditEvent struct {
	OrderID        string              `json:"order_id"`
	MerchantID     string              `json:"merchant_id"`
	Kind           AuditKind           `json:"kind"`
	Previous       string              `json:"previous,omitempty"`
	Current        string              `json:"current,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	PreviousReason string              `json:"previous_reason,omitempty"`
	Settlement     *SettlementSnapshot `json:"settlement,omitempty"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

func (e AuditEvent) EventName() string { return string(e.Kind) }
func (e AuditEvent) EventKey() string  { return e.OrderID }

func NewCreatedEvent(o *Order, snapshot SettlementSnapshot) AuditEvent {
	return AuditEvent{
		OrderID:    o.ID,
		MerchantID: o.MerchantID,
		Kind:       KindCreated,
		Current:    string(o.Status),
		Settlement: &snapshot,
		OccurredAt: time.Now().UTC(),
	}
}

func newTransitionEvent(o *Order, kind AuditKind, from, to string) AuditEvent {
	return AuditEvent{
		OrderID:    o.ID,
		MerchantID: o.MerchantID,
		Kind:       kind,
		Previous:   from,
		Current:    to,
		OccurredAt: time.Now().UTC(),
	}
}

// OrdersCreatedEvent is published once per committed checkout; payment session
// creation reacts to it.
type OrdersCreatedEvent struct {
	CheckoutID string
	OrderIDs   []string
	CustomerID string
	Total      int64
	Currency   string
	OccurredAt time.Time
}

func (OrdersCreatedEvent) EventName() string  { return "checkout.orders_created" }
func (e OrdersCreatedEvent) EventKey() string { return e.CheckoutID }

func NewOrdersCreatedEvent(checkoutID, customerID string, orders []*Order) OrdersCreatedEvent {
	evt := OrdersCreatedEvent{
		CheckoutID: checkoutID,
		CustomerID: customerID,
		OccurredAt: time.Now().UTC(),
	}
	for _, o := range orders {
		evt.OrderIDs = append(evt.OrderIDs, o.ID)
		evt.Total += o.TotalAmount
		evt.Currency = o.Currency
	}
	return evt
}
