package httppresentation

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability/logctx"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// ObservabilityMiddleware combines:
// - request-scoped logger injection (dynamic fields only)
// - X-Request-ID generation + echo
// - HTTP metrics (counter + histogram) with low-cardinality labels
//
// It expects the server span to already be in the request context.
func ObservabilityMiddleware(
	base observability.Logger,
	requestID func(*http.Request) string,
	tenantID func(*http.Request) string,
	tel observability.Observability,
) func(http.Handler) http.Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	if base == nil {
		base = tel.Logger()
	}
	requests := tel.Metrics().Counter(observability.MHTTPRequests)
	latency := tel.Metrics().Histogram(observability.MHTTPRequestDuration)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sc := trace.SpanContextFromContext(ctx)

			rid := ""
			if requestID != nil {
				rid = requestID(r)
			}
			if rid == "" {
				rid = uuid.NewString()
			}
			tid := ""
			if tenantID != nil {
				tid = tenantID(r)
			}
			w.Header().Set(headerRequestID, rid)

			fields := []observability.Field{observability.F("request_id", rid)}
			if tid != "" {
				fields = append(fields, observability.F("tenant_id", tid))
			}
			if sc.IsValid() {
				fields = append(fields,
					observability.F("trace_id", sc.TraceID().String()),
					observability.F("span_id", sc.SpanID().String()),
				)
			}
			ctx = logctx.With(ctx, base.With(fields...))

			start := time.Now()
			lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(lrw, r.WithContext(ctx))

			labels := []observability.Label{
				observability.L("method", r.Method),
				observability.L("route", routeFromContext(ctx)),
				observability.L("status", strconv.Itoa(lrw.status)),
			}
			requests.Add(1, labels...)
			latency.Observe(time.Since(start).Seconds(), labels...)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status, w.wroteHeader = code, true
	}
	w.ResponseWriter.WriteHeader(code)
}
