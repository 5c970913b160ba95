package payment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Zhima-Mochi/minishop-settlement/internal/application"
	domorder "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-settlement/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-settlement/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	paymentService        = "payment-service"
	useCaseStartSession   = "payment.start_session"
	useCaseCapture        = "payment.capture"
	gatewayPeer           = "payment_gateway"
	defaultGatewayTimeout = 5 * time.Second
	publishTimeout        = 300 * time.Millisecond
)

type StartSessionInput struct {
	OrderIDs []string
}

type StartSessionResult struct {
	Session  *dompay.Session
	Replayed bool
}

// SessionUseCase opens one gateway session for the orders of a checkout. The
// same order ids always map to the same session, so callers may retry freely.
type SessionUseCase struct {
	orders    OrderReader
	gateway   dompay.Gateway
	sessions  dompay.SessionStore
	publisher domoutbox.Publisher
	timeout   time.Duration
	in        application.Instruments
}

func NewSessionUseCase(
	orders OrderReader,
	gateway dompay.Gateway,
	sessions dompay.SessionStore,
	publisher domoutbox.Publisher,
	tel observability.Observability,
	timeout time.Duration,
) *SessionUseCase {
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &SessionUseCase{
		orders:    orders,
		gateway:   gateway,
		sessions:  sessions,
		publisher: publisher,
		timeout:   timeout,
		in:        application.NewInstruments(tel, paymentService),
	}
}

func (uc *SessionUseCase) Execute(ctx context.Context, cmd StartSessionInput) (_ *StartSessionResult, err error) {
	ids := slices.Compact(slices.Sorted(slices.Values(cmd.OrderIDs)))
	key := dompay.SessionKey(ids)
	ctx, run := uc.in.Begin(ctx, useCaseStartSession, "StartPaymentSession",
		attribute.Int("payment.orders", len(ids)),
		attribute.String("payment.idempotency_key", key),
	)
	defer func() { run.End(err) }()

	if len(ids) == 0 || ids[0] == "" {
		run.Fail("ORDER_IDS_REQUIRED")
		return nil, fmt.Errorf("%w: order ids are required", dompay.ErrNothingToPay)
	}

	existing, err := uc.sessions.FindByKey(ctx, key)
	switch {
	case err == nil:
		run.Status("IDEMPOTENT_REPLAY")
		return &StartSessionResult{Session: existing, Replayed: true}, nil
	case !errors.Is(err, dompay.ErrSessionNotFound):
		run.Fail("SESSION_LOOKUP_FAILED")
		return nil, err
	}

	req, err := uc.request(ctx, key, ids)
	if err != nil {
		run.Fail("ORDERS_NOT_PAYABLE")
		return nil, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	start := time.Now()
	session, err := uc.gateway.CreateSession(gwCtx, req)
	cancel()
	uc.in.External(gatewayPeer, "create_session", start, err)
	if err != nil {
		run.Fail("GATEWAY_FAILED")
		return nil, fmt.Errorf("payment: create session: %w", err)
	}
	session.IdempotencyKey = key
	if err := uc.sessions.Save(ctx, session); err != nil {
		run.Fail("SESSION_SAVE_FAILED")
		return nil, err
	}

	uc.publish(ctx, run, dompay.SessionCreatedEvent{
		SessionID:  session.ID,
		OrderIDs:   session.OrderIDs,
		Amount:     session.Amount,
		Currency:   session.Currency,
		OccurredAt: time.Now().UTC(),
	})
	run.With(
		observability.F("session_id", session.ID),
		observability.F("amount", session.Amount),
	)
	return &StartSessionResult{Session: session}, nil
}

// request checks every order is still payable and sums the amount.
func (uc *SessionUseCase) request(ctx context.Context, key string, ids []string) (dompay.SessionRequest, error) {
	req := dompay.SessionRequest{IdempotencyKey: key, OrderIDs: ids}
	for _, id := range ids {
		o, err := uc.orders.Get(ctx, id)
		if err != nil {
			return dompay.SessionRequest{}, fmt.Errorf("order %s: %w", id, err)
		}
		if o.PaymentStatus != domorder.PaymentPending || o.Status != domorder.StatusOpen {
			return dompay.SessionRequest{}, fmt.Errorf("%w: order %s is %s/%s", dompay.ErrNothingToPay, id, o.Status, o.PaymentStatus)
		}
		if req.Currency == "" {
			req.Currency = o.Currency
		} else if req.Currency != o.Currency {
			return dompay.SessionRequest{}, dompay.ErrMixedCurrency
		}
		req.Amount += o.TotalAmount
		if req.CustomerEmail == "" {
			req.CustomerEmail = o.CustomerEmail
		}
	}
	return req, nil
}

// Capture handles the gateway callback for a paid session and announces which
// orders it covered.
func (uc *SessionUseCase) Capture(ctx context.Context, sessionKey string) (_ *dompay.Session, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseCapture, "CapturePayment",
		attribute.String("payment.idempotency_key", sessionKey),
	)
	defer func() { run.End(err) }()

	session, err := uc.sessions.FindByKey(ctx, sessionKey)
	if err != nil {
		run.Fail("SESSION_NOT_FOUND")
		return nil, err
	}
	if uc.publisher == nil {
		run.Fail("NO_PUBLISHER")
		return nil, errors.New("payment: capture requires an event publisher")
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := uc.publisher.Publish(pubCtx, dompay.NewCapturedEvent(session)); err != nil {
		run.Fail("EVENT_PUBLISH_FAILED")
		return nil, fmt.Errorf("payment: publish capture: %w", err)
	}
	run.With(observability.F("session_id", session.ID))
	return session, nil
}

func (uc *SessionUseCase) publish(ctx context.Context, run *application.Execution, e domoutbox.Event) {
	if uc.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	start := time.Now()
	err := uc.publisher.Publish(pubCtx, e)
	uc.in.External("outbox", e.EventName(), start, err)
	if err != nil {
		run.Status("EVENT_PUBLISH_FAILED")
		run.With(observability.F("event_publish_error", err.Error()))
	}
}
