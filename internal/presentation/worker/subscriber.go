package workerpresentation

import (
	"context"

	domoutbox "github.com/Zhima-Mochi/minishop-settlement/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const componentWorker = "worker"

// Subscriber decorates a bus so every handler runs under a consumer span
// with an event-scoped logger in its context.
type Subscriber struct {
	next domoutbox.Subscriber
	tel  observability.Observability
	log  observability.Logger
}

func NewSubscriber(next domoutbox.Subscriber, tel observability.Observability) *Subscriber {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Subscriber{
		next: next,
		tel:  tel,
		log:  tel.Logger().With(observability.F("component", componentWorker)),
	}
}

func (s *Subscriber) Subscribe(eventName string, h domoutbox.Handler) {
	s.next.Subscribe(eventName, func(ctx context.Context, e domoutbox.Event) error {
		attrs := EventAttrs{Event: e.EventName()}
		spanAttrs := []attribute.KeyValue{attribute.String("messaging.event", e.EventName())}
		if k, ok := e.(domoutbox.Keyed); ok {
			attrs.Key = k.EventKey()
			spanAttrs = append(spanAttrs, attribute.String("messaging.key", attrs.Key))
		}

		ctx, span := s.tel.Tracer().Start(ctx, "Consume."+e.EventName(), spanAttrs...)
		defer span.End()

		ctx = WithEventContext(ctx, s.log, trace.SpanContextFromContext(ctx), attrs)

		err := h(ctx, e)
		if err != nil {
			span.RecordError(err)
		}
		return err
	})
}
