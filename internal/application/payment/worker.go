package payment

import (
	"context"

	domorder "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-settlement/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability/logctx"
)

const paymentWorker = "payment_worker"

// Worker opens the payment session once a checkout's orders are committed.
// Failures are logged and left for the manual retry endpoint.
type Worker struct {
	subscriber domoutbox.Subscriber
	sessions   *SessionUseCase
	log        observability.Logger
}

func NewWorker(subscriber domoutbox.Subscriber, sessions *SessionUseCase, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber: subscriber,
		sessions:   sessions,
		log:        tel.Logger().With(observability.F("service", paymentWorker)),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.sessions == nil {
		return
	}
	w.subscriber.Subscribe(domorder.OrdersCreatedEvent{}.EventName(), w.handleOrdersCreated)
}

func (w *Worker) handleOrdersCreated(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domorder.OrdersCreatedEvent)
	if !ok {
		return nil
	}
	ctx, logger := logctx.Enrich(ctx, w.log,
		observability.F("event", e.EventName()),
		observability.F("checkout_id", evt.CheckoutID),
	)

	res, err := w.sessions.Execute(ctx, StartSessionInput{OrderIDs: evt.OrderIDs})
	if err != nil {
		logger.Warn("payment_session_failed",
			observability.F("error", err.Error()),
		)
		return err
	}

	logger.Info("payment_session_ready",
		observability.F("session_id", res.Session.ID),
		observability.F("replayed", res.Replayed),
	)
	return nil
}
