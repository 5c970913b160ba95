package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-settlement/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-settlement/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const workerService = "order-worker"

// Worker reacts to payment callbacks by marking the covered orders paid.
type Worker struct {
	transitions *TransitionUseCase
	subscriber  domoutbox.Subscriber
	tel         observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewWorker(transitions *TransitionUseCase, subscriber domoutbox.Subscriber, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		transitions:  transitions,
		subscriber:   subscriber,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", workerService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.transitions == nil {
		return
	}
	w.subscriber.Subscribe(dompay.CapturedEvent{}.EventName(), w.handleCaptured)
}

func (w *Worker) handleCaptured(ctx context.Context, e domoutbox.Event) error {
	const useCase = "order.worker.payment_captured"
	evt, ok := e.(dompay.CapturedEvent)
	if !ok {
		w.count(useCase, "ignored")
		return nil
	}

	ctx, span := w.tel.Tracer().Start(ctx, "UC.PaymentCaptured",
		attribute.String("use_case", useCase),
		attribute.String("event", e.EventName()),
		attribute.String("payment.session_id", evt.SessionID),
	)
	start := time.Now()
	outcome, status := "success", "OK"
	var paid, skipped int

	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCase),
		observability.F("event", e.EventName()),
	)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With(
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	ctx = logctx.With(ctx, logger)

	var errs []error
	defer func() {
		lat := time.Since(start).Seconds()
		w.observe(useCase, outcome, lat)
		logger.Info("use_case_done",
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
			observability.F("session_id", evt.SessionID),
			observability.F("orders_paid", paid),
			observability.F("orders_skipped", skipped),
		)
		if outcome == "error" {
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()
	}()

	for _, id := range evt.OrderIDs {
		_, err := w.transitions.MarkPaid(ctx, id)
		switch {
		case err == nil:
			paid++
		case errors.Is(err, domain.ErrInvalidStateTransition):
			// redelivered callback or cancelled order
			skipped++
		default:
			errs = append(errs, fmt.Errorf("order %s: %w", id, err))
		}
	}
	if len(errs) > 0 {
		outcome, status = "error", "MARK_PAID_FAILED"
		err := errors.Join(errs...)
		span.RecordError(err)
		return fmt.Errorf("worker: payment captured: %w", err)
	}
	return nil
}

func (w *Worker) count(useCase, outcome string) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
}

func (w *Worker) observe(useCase string, outcome string, latencySeconds float64) {
	w.count(useCase, outcome)
	w.durHistogram.Observe(latencySeconds,
		observability.L("use_case", useCase),
	)
}
