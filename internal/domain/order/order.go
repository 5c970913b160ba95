package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/cart"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: conflict")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
	ErrOnHold                 = errors.New("order: on hold, fulfillment blocked")
	ErrHoldReasonRequired     = errors.New("order: hold reason is required")
	ErrInvalidWorkflowStatus  = errors.New("order: unknown workflow status")
	ErrTransactionAborted     = errors.New("order: transaction aborted")
	ErrInvalidAmount          = errors.New("order: amounts must be zero or greater")
	ErrNoLineItems            = errors.New("order: at least one line item is required")
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type FulfillmentStatus string

const (
	FulfillmentUnfulfilled FulfillmentStatus = "unfulfilled"
	FulfillmentFulfilled   FulfillmentStatus = "fulfilled"
)

type Status string

const (
	StatusOpen      Status = "open"
	StatusCancelled Status = "cancelled"
	StatusClosed    Status = "closed"
)

type LineItem struct {
	CartLineID     string
	ListingID      string
	VariantID      string
	Quantity       int
	UnitPrice      int64
	Subtotal       int64
	DiscountAmount int64
	PromotionID    string
	Options        cart.VariantOptions
}

// Order is the record of one merchant's share of a checkout. Amounts are minor units.
type Order struct {
	ID                string
	CheckoutID        string
	MerchantID        string
	CustomerID        string
	CustomerEmail     string
	Currency          string
	LineItems         []LineItem
	Subtotal          int64
	DiscountAmount    int64
	ShippingAmount    int64
	TaxAmount         int64
	TotalAmount       int64
	ShippingService   string
	ShippingAddress   cart.Address
	Notes             string
	PaymentStatus     PaymentStatus
	FulfillmentStatus FulfillmentStatus
	Status            Status
	WorkflowStatus    WorkflowStatus
	HoldReason        string
	IdempotencyKey    string
	// Version is the revision last read from the store. Update succeeds only
	// against the same revision and advances it.
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Draft carries everything needed to create an order.
type Draft struct {
	ID              string
	CheckoutID      string
	MerchantID      string
	Customer        cart.Customer
	Currency        string
	LineItems       []LineItem
	ShippingAmount  int64
	TaxAmount       int64
	ShippingService string
	ShippingAddress cart.Address
	Notes           string
	IdempotencyKey  string
}

// New builds an open, unpaid, unfulfilled order and derives its totals from the line items.
func New(d Draft) (*Order, error) {
	if len(d.LineItems) == 0 {
		return nil, ErrNoLineItems
	}
	if d.ShippingAmount < 0 || d.TaxAmount < 0 {
		return nil, ErrInvalidAmount
	}
	var subtotal, discount int64
	for _, li := range d.LineItems {
		if li.DiscountAmount < 0 || li.DiscountAmount > li.Subtotal {
			return nil, fmt.Errorf("%w: line %s discount %d exceeds subtotal %d",
				ErrInvalidAmount, li.CartLineID, li.DiscountAmount, li.Subtotal)
		}
		subtotal += li.Subtotal
		discount += li.DiscountAmount
	}

	now := time.Now().UTC()
	return &Order{
		ID:                d.ID,
		CheckoutID:        d.CheckoutID,
		MerchantID:        d.MerchantID,
		CustomerID:        d.Customer.ID,
		CustomerEmail:     d.Customer.Email,
		Currency:          d.Currency,
		LineItems:         append([]LineItem(nil), d.LineItems...),
		Subtotal:          subtotal,
		DiscountAmount:    discount,
		ShippingAmount:    d.ShippingAmount,
		TaxAmount:         d.TaxAmount,
		TotalAmount:       subtotal - discount + d.ShippingAmount + d.TaxAmount,
		ShippingService:   d.ShippingService,
		ShippingAddress:   d.ShippingAddress,
		Notes:             d.Notes,
		PaymentStatus:     PaymentPending,
		FulfillmentStatus: FulfillmentUnfulfilled,
		Status:            StatusOpen,
		WorkflowStatus:    WorkflowNormal,
		IdempotencyKey:    d.IdempotencyKey,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.LineItems = make([]LineItem, len(o.LineItems))
	for i, li := range o.LineItems {
		li.Options = append(cart.VariantOptions(nil), li.Options...)
		clone.LineItems[i] = li
	}
	return &clone
}

// SetWorkflowStatus moves the operational flag. It never touches payment,
// fulfillment or status.
func (o *Order) SetWorkflowStatus(to WorkflowStatus, reason string) (AuditEvent, error) {
	if o.Status == StatusCancelled {
		return AuditEvent{}, ErrInvalidStateTransition
	}
	from := o.WorkflowStatus
	prevReason := o.HoldReason
	next, err := workflowStateOf(from).Enter(o, to, reason)
	if err != nil {
		return AuditEvent{}, err
	}
	o.WorkflowStatus = next.Status()
	o.touch()
	evt := newTransitionEvent(o, KindWorkflowChanged, string(from), string(o.WorkflowStatus))
	evt.Reason = o.HoldReason
	evt.PreviousReason = prevReason
	return evt, nil
}

// Fulfill marks the order shipped. Blocked while on hold.
func (o *Order) Fulfill() (AuditEvent, error) {
	if !workflowStateOf(o.WorkflowStatus).AllowsFulfillment() {
		return AuditEvent{}, ErrOnHold
	}
	if o.Status != StatusOpen || o.FulfillmentStatus == FulfillmentFulfilled {
		return AuditEvent{}, ErrInvalidStateTransition
	}
	from := o.FulfillmentStatus
	o.FulfillmentStatus = FulfillmentFulfilled
	o.closeIfSettled()
	o.touch()
	return newTransitionEvent(o, KindFulfillmentChanged, string(from), string(o.FulfillmentStatus)), nil
}

// Cancel is permitted while on hold.
func (o *Order) Cancel() (AuditEvent, error) {
	if o.Status != StatusOpen || o.FulfillmentStatus == FulfillmentFulfilled {
		return AuditEvent{}, ErrInvalidStateTransition
	}
	from := o.Status
	o.Status = StatusCancelled
	o.touch()
	return newTransitionEvent(o, KindStatusChanged, string(from), string(o.Status)), nil
}

// Refund is permitted while on hold.
func (o *Order) Refund() (AuditEvent, error) {
	if o.PaymentStatus != PaymentPaid {
		return AuditEvent{}, ErrInvalidStateTransition
	}
	from := o.PaymentStatus
	o.PaymentStatus = PaymentRefunded
	o.touch()
	return newTransitionEvent(o, KindPaymentChanged, string(from), string(o.PaymentStatus)), nil
}

// MarkPaid records a successful capture reported by the payment gateway.
func (o *Order) MarkPaid() (AuditEvent, error) {
	if o.PaymentStatus != PaymentPending || o.Status == StatusCancelled {
		return AuditEvent{}, ErrInvalidStateTransition
	}
	from := o.PaymentStatus
	o.PaymentStatus = PaymentPaid
	o.closeIfSettled()
	o.touch()
	return newTransitionEvent(o, KindPaymentChanged, string(from), string(o.PaymentStatus)), nil
}

func (o *Order) closeIfSettled() {
	if o.Status == StatusOpen && o.PaymentStatus == PaymentPaid && o.FulfillmentStatus == FulfillmentFulfilled {
		o.Status = StatusClosed
	}
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
