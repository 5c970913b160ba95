package oteltrace

import (
	"context"
	"strings"

	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultScope = "github.com/Zhima-Mochi/minishop-settlement"

type tracer struct {
	t     trace.Tracer
	fixed []attribute.KeyValue
}

// New returns a tracer on the global provider. Spans are no-ops until a
// TracerProvider is installed with otel.SetTracerProvider.
func New(service string) observability.Tracer {
	return NewWithProvider(service, otel.GetTracerProvider())
}

// NewWithProvider binds the tracer to tp. Every span carries service.name so
// traces from several settlement replicas can be told apart.
func NewWithProvider(service string, tp trace.TracerProvider) observability.Tracer {
	if service == "" {
		service = "settlement"
	}
	return &tracer{
		t:     tp.Tracer(defaultScope),
		fixed: []attribute.KeyValue{attribute.String("service.name", service)},
	}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(t.fixed)+len(attrs))
	all = append(all, t.fixed...)
	all = append(all, attrs...)
	return t.t.Start(ctx, name, trace.WithAttributes(all...), trace.WithSpanKind(kindOf(name)))
}

// kindOf maps the span names used across the service onto otel kinds:
// "HTTP GET rates" for outbound calls, "POST /checkout/quote" for inbound
// requests, "Consume.<event>" for subscribers.
func kindOf(name string) trace.SpanKind {
	switch {
	case strings.HasPrefix(name, "HTTP "):
		return trace.SpanKindClient
	case strings.HasPrefix(name, "Consume."):
		return trace.SpanKindConsumer
	case strings.Contains(name, " /"):
		return trace.SpanKindServer
	}
	return trace.SpanKindInternal
}
