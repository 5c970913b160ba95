package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-settlement/internal/application"
	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/cart"
	domain "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-settlement/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseWorkflow = "order.workflow"
	useCaseFulfill  = "order.fulfill"
	useCaseCancel   = "order.cancel"
	useCaseRefund   = "order.refund"
	useCaseMarkPaid = "order.mark_paid"
)

// TransitionUseCase applies post-creation status changes. Each change is stored
// together with its audit event.
type TransitionUseCase struct {
	repo      domain.Repository
	publisher domoutbox.Publisher
	in        application.Instruments
}

func NewTransitionUseCase(repo domain.Repository, publisher domoutbox.Publisher, tel observability.Observability) *TransitionUseCase {
	return &TransitionUseCase{repo: repo, publisher: publisher, in: application.NewInstruments(tel, orderService)}
}

type WorkflowInput struct {
	OrderID string
	Status  string
	Reason  string
}

func (uc *TransitionUseCase) SetWorkflowStatus(ctx context.Context, cmd WorkflowInput) (*domain.Order, error) {
	return uc.apply(ctx, useCaseWorkflow, "SetWorkflowStatus", cmd.OrderID, func(o *domain.Order) (domain.AuditEvent, error) {
		to, err := domain.ParseWorkflowStatus(cmd.Status)
		if err != nil {
			return domain.AuditEvent{}, err
		}
		return o.SetWorkflowStatus(to, cmd.Reason)
	})
}

func (uc *TransitionUseCase) Fulfill(ctx context.Context, orderID string) (*domain.Order, error) {
	return uc.apply(ctx, useCaseFulfill, "FulfillOrder", orderID, (*domain.Order).Fulfill)
}

func (uc *TransitionUseCase) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	return uc.apply(ctx, useCaseCancel, "CancelOrder", orderID, (*domain.Order).Cancel)
}

func (uc *TransitionUseCase) Refund(ctx context.Context, orderID string) (*domain.Order, error) {
	return uc.apply(ctx, useCaseRefund, "RefundOrder", orderID, (*domain.Order).Refund)
}

// MarkPaid handles the gateway callback for a captured payment.
func (uc *TransitionUseCase) MarkPaid(ctx context.Context, orderID string) (*domain.Order, error) {
	return uc.apply(ctx, useCaseMarkPaid, "MarkOrderPaid", orderID, (*domain.Order).MarkPaid)
}

// History returns the audit trail for one order, oldest first.
func (uc *TransitionUseCase) History(ctx context.Context, orderID string) ([]domain.AuditEvent, error) {
	if _, err := uc.repo.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return uc.repo.AuditTrail(ctx, orderID)
}

func (uc *TransitionUseCase) apply(
	ctx context.Context,
	useCase, spanName, orderID string,
	change func(*domain.Order) (domain.AuditEvent, error),
) (_ *domain.Order, err error) {
	ctx, run := uc.in.Begin(ctx, useCase, spanName, attribute.String("order.id", orderID))
	defer func() { run.End(err) }()

	if orderID == "" {
		run.Fail("ORDER_ID_REQUIRED")
		return nil, cart.Invalid("order id is required")
	}

	o, err := uc.repo.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			run.Fail("NOT_FOUND")
			return nil, err
		}
		run.Fail("REPO_GET_FAILED")
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}

	evt, err := change(o)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrOnHold):
			run.Fail("ON_HOLD")
		case errors.Is(err, domain.ErrHoldReasonRequired):
			run.Fail("HOLD_REASON_REQUIRED")
		default:
			run.Fail("INVALID_TRANSITION")
		}
		return nil, err
	}

	// Update is conditional on the version read above, so a change that raced
	// this one (a hold placed mid-fulfillment) surfaces as ErrConflict instead
	// of being overwritten.
	if err := uc.repo.Update(ctx, o, evt); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			run.Fail("CONFLICT")
			return nil, err
		}
		run.Fail("REPO_UPDATE_FAILED")
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}

	if uc.publisher != nil {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		start := time.Now()
		perr := uc.publisher.Publish(pubCtx, evt)
		cancel()
		uc.in.External(publishPeer, evt.EventName(), start, perr)
		if perr != nil {
			run.Status("EVENT_PUBLISH_FAILED")
			run.With(observability.F("event_publish_error", perr.Error()))
		}
	}

	run.With(
		observability.F("order_id", o.ID),
		observability.F("previous", evt.Previous),
		observability.F("current", evt.Current),
	)
	return o, nil
}
