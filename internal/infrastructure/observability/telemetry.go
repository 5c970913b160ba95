package observability

import (
	"slices"

	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"
)

// settlementCounters and settlementHistograms are the instruments the use
// cases, the HTTP router and the subscribers record into.
var (
	settlementCounters = []observability.MetricKey{
		observability.MUsecaseRequests,
		observability.MHTTPRequests,
		observability.MExternalRequests,
		observability.MCheckoutStages,
		observability.MDiscountAllocated,
		observability.MOutboxEvents,
	}
	settlementHistograms = []observability.MetricKey{
		observability.MUsecaseDuration,
		observability.MHTTPRequestDuration,
		observability.MExternalRequestDuration,
	}
)

type Options struct {
	Tracer     observability.Tracer
	Logger     observability.Logger
	Counters   map[observability.MetricKey]observability.Counter
	Histograms map[observability.MetricKey]observability.Histogram
}

// Telemetry is the observability bundle handed to every settlement component.
type Telemetry struct {
	tracer     observability.Tracer
	logger     observability.Logger
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
	missing    []observability.MetricKey
}

// New assembles the bundle. A settlement instrument absent from opts records
// into a nop and is reported once through the logger as metric_unregistered.
func New(opts Options) *Telemetry {
	t := &Telemetry{
		tracer:     opts.Tracer,
		logger:     opts.Logger,
		counters:   make(map[observability.MetricKey]observability.Counter, len(opts.Counters)),
		histograms: make(map[observability.MetricKey]observability.Histogram, len(opts.Histograms)),
	}
	if t.tracer == nil {
		t.tracer = observability.NopTracer()
	}
	if t.logger == nil {
		t.logger = observability.NopLogger()
	}
	for k, c := range opts.Counters {
		if c != nil {
			t.counters[k] = c
		}
	}
	for k, h := range opts.Histograms {
		if h != nil {
			t.histograms[k] = h
		}
	}

	for _, k := range settlementCounters {
		if _, ok := t.counters[k]; !ok {
			t.missing = append(t.missing, k)
		}
	}
	for _, k := range settlementHistograms {
		if _, ok := t.histograms[k]; !ok {
			t.missing = append(t.missing, k)
		}
	}
	for _, k := range t.missing {
		t.logger.Warn("metric_unregistered", observability.F("metric", string(k)))
	}
	return t
}

func (t *Telemetry) Tracer() observability.Tracer   { return t.tracer }
func (t *Telemetry) Logger() observability.Logger   { return t.logger }
func (t *Telemetry) Metrics() observability.Metrics { return t }

// Missing lists the settlement instruments that fall back to nop.
func (t *Telemetry) Missing() []observability.MetricKey { return slices.Clone(t.missing) }

func (t *Telemetry) Counter(name observability.MetricKey) observability.Counter {
	if c, ok := t.counters[name]; ok {
		return c
	}
	return observability.NopCounter()
}

func (t *Telemetry) Histogram(name observability.MetricKey) observability.Histogram {
	if h, ok := t.histograms[name]; ok {
		return h
	}
	return observability.NopHistogram()
}
