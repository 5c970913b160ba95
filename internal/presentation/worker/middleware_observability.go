package workerpresentation

import (
	"context"

	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// EventAttrs are the low-cardinality identifiers attached to a delivery's logger.
type EventAttrs struct {
	// EventID is generated when empty.
	EventID string
	Event   string
	// Key is the aggregate the event belongs to: an order, checkout or session id.
	Key string
}

// WithEventContext stores a delivery-scoped logger carrying event identifiers
// and, when sc is valid, the trace and span ids.
func WithEventContext(ctx context.Context, base observability.Logger, sc trace.SpanContext, attrs EventAttrs) context.Context {
	if base == nil {
		base = observability.NopLogger()
	}
	if attrs.EventID == "" {
		attrs.EventID = uuid.NewString()
	}

	fields := []observability.Field{observability.F("event_id", attrs.EventID)}
	if attrs.Event != "" {
		fields = append(fields, observability.F("event", attrs.Event))
	}
	if attrs.Key != "" {
		fields = append(fields, observability.F("event_key", attrs.Key))
	}
	if sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	return logctx.With(ctx, base.With(fields...))
}
