package application

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const SpanPrefix = "UC."

// Instruments holds the logger, tracer and RED metrics a use case needs.
// Build it once in the constructor; never create metrics inside Execute.
type Instruments struct {
	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewInstruments(tel observability.Observability, service string) Instruments {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return Instruments{
		log:          tel.Logger().With(observability.F("service", service)),
		tracer:       tel.Tracer(),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

// Logger returns the request-scoped logger when present, else the base logger.
func (in Instruments) Logger(ctx context.Context) observability.Logger {
	return logctx.FromOr(ctx, in.log)
}

// Execution tracks one use case run from Begin to End.
type Execution struct {
	in      Instruments
	useCase string
	ctx     context.Context
	span    trace.Span
	start   time.Time
	outcome string
	status  string
	logger  observability.Logger
	fields  []observability.Field
}

func (in Instruments) Begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Execution) {
	logger := in.Logger(ctx).With(observability.F("use_case", useCase))
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := in.tracer.Start(ctx, SpanPrefix+spanName, attrs...)
	ctx = logctx.With(ctx, logger)
	return ctx, &Execution{
		in:      in,
		useCase: useCase,
		ctx:     ctx,
		span:    span,
		start:   time.Now(),
		outcome: "success",
		status:  "OK",
		logger:  logger,
	}
}

// Fail marks the run as an error outcome with a stable status code.
func (e *Execution) Fail(status string) {
	e.outcome, e.status = "error", status
}

// Status overrides the status code while keeping the outcome.
func (e *Execution) Status(status string) {
	e.status = status
}

// With adds fields to the final use_case_done entry.
func (e *Execution) With(fields ...observability.Field) {
	e.fields = append(e.fields, fields...)
}

func (e *Execution) Span() trace.Span { return e.span }

// End closes the span, records metrics and writes the single use_case_done log.
func (e *Execution) End(err error) {
	lat := time.Since(e.start).Seconds()
	if err != nil && e.outcome == "success" {
		e.outcome, e.status = "error", "FAILED"
	}

	if e.span != nil {
		if err != nil {
			e.span.RecordError(err)
			e.span.SetStatus(codes.Error, e.status)
		} else {
			e.span.SetStatus(codes.Ok, e.status)
		}
		e.span.End()
	}

	e.in.reqCounter.Add(1,
		observability.L("use_case", e.useCase),
		observability.L("outcome", e.outcome),
	)
	e.in.durHistogram.Observe(lat,
		observability.L("use_case", e.useCase),
	)

	fields := append([]observability.Field{
		observability.F("outcome", e.outcome),
		observability.F("status", e.status),
		observability.F("latency_seconds", lat),
	}, e.fields...)
	if sc := trace.SpanContextFromContext(e.ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	e.logger.Info("use_case_done", fields...)
}

// External records one call to a collaborator.
func (in Instruments) External(peer, endpoint string, start time.Time, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case isTimeout(err):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	in.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	in.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
