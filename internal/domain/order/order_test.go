package order

import (
	"testing"

	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/cart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(t *testing.T) *Order {
	t.Helper()
	o, err := New(Draft{
		ID: "o1", CheckoutID: "chk-1", MerchantID: "M1", Currency: "USD",
		Customer: cart.Customer{ID: "c1"},
		LineItems: []LineItem{
			{CartLineID: "A", ListingID: "p-a", Quantity: 2, UnitPrice: 1000, Subtotal: 2000, DiscountAmount: 200},
			{CartLineID: "B", ListingID: "p-b", Quantity: 1, UnitPrice: 500, Subtotal: 500},
		},
		ShippingAmount: 450, TaxAmount: 120,
	})
	require.NoError(t, err)
	return o
}

func TestNewDerivesTotals(t *testing.T) {
	o := newOrder(t)
	assert.Equal(t, int64(2500), o.Subtotal)
	assert.Equal(t, int64(200), o.DiscountAmount)
	assert.Equal(t, int64(2500-200+450+120), o.TotalAmount)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, FulfillmentUnfulfilled, o.FulfillmentStatus)
	assert.Equal(t, StatusOpen, o.Status)
	assert.Equal(t, WorkflowNormal, o.WorkflowStatus)
}

func TestNewRejectsBadDrafts(t *testing.T) {
	_, err := New(Draft{ID: "o1"})
	assert.ErrorIs(t, err, ErrNoLineItems)

	_, err = New(Draft{ID: "o1", LineItems: []LineItem{{CartLineID: "A", Subtotal: 100, DiscountAmount: 101}}})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = New(Draft{ID: "o1", LineItems: []LineItem{{CartLineID: "A", Subtotal: 100}}, ShippingAmount: -1})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestHoldRequiresReasonAndBlocksFulfillment(t *testing.T) {
	o := newOrder(t)

	_, err := o.SetWorkflowStatus(WorkflowOnHold, "")
	require.ErrorIs(t, err, ErrHoldReasonRequired)
	assert.Equal(t, WorkflowNormal, o.WorkflowStatus)

	evt, err := o.SetWorkflowStatus(WorkflowOnHold, "fraud review")
	require.NoError(t, err)
	assert.Equal(t, KindWorkflowChanged, evt.Kind)
	assert.Equal(t, "normal", evt.Previous)
	assert.Equal(t, "on_hold", evt.Current)
	assert.Equal(t, "fraud review", evt.Reason)

	_, err = o.Fulfill()
	assert.ErrorIs(t, err, ErrOnHold)
	assert.Equal(t, FulfillmentUnfulfilled, o.FulfillmentStatus)

	evt, err = o.SetWorkflowStatus(WorkflowInProgress, "ignored")
	require.NoError(t, err)
	assert.Empty(t, o.HoldReason)
	assert.Equal(t, "fraud review", evt.PreviousReason)

	_, err = o.Fulfill()
	assert.NoError(t, err)
}

func TestWorkflowNeverTouchesSettlement(t *testing.T) {
	o := newOrder(t)
	before := *o

	for _, to := range []WorkflowStatus{WorkflowInProgress, WorkflowOnHold, WorkflowNormal} {
		_, err := o.SetWorkflowStatus(to, "check")
		require.NoError(t, err)
		assert.Equal(t, before.PaymentStatus, o.PaymentStatus)
		assert.Equal(t, before.FulfillmentStatus, o.FulfillmentStatus)
		assert.Equal(t, before.Status, o.Status)
		assert.Equal(t, before.TotalAmount, o.TotalAmount)
	}
}

func TestCancelAndRefundWhileOnHold(t *testing.T) {
	o := newOrder(t)
	_, err := o.MarkPaid()
	require.NoError(t, err)
	_, err = o.SetWorkflowStatus(WorkflowOnHold, "chargeback")
	require.NoError(t, err)

	_, err = o.Refund()
	require.NoError(t, err)
	assert.Equal(t, PaymentRefunded, o.PaymentStatus)

	_, err = o.Cancel()
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status)

	_, err = o.SetWorkflowStatus(WorkflowNormal, "")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestOrderClosesWhenPaidAndFulfilled(t *testing.T) {
	o := newOrder(t)
	_, err := o.Fulfill()
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, o.Status)

	_, err = o.MarkPaid()
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, o.Status)

	_, err = o.MarkPaid()
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestParseWorkflowStatus(t *testing.T) {
	ws, err := ParseWorkflowStatus("on_hold")
	require.NoError(t, err)
	assert.Equal(t, WorkflowOnHold, ws)

	_, err = ParseWorkflowStatus("paused")
	assert.ErrorIs(t, err, ErrInvalidWorkflowStatus)
}
