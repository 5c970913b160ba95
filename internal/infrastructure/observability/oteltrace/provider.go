package oteltrace

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig selects where spans go and how many of them are kept.
type ProviderConfig struct {
	Service string
	Env     string

	// Endpoint is the OTLP/gRPC collector address. Empty keeps spans in
	// process: trace and span ids are still minted for log correlation.
	Endpoint     string
	Insecure     bool
	SampleRatio  float64
	BatchTimeout time.Duration
}

// NewProvider builds the SDK tracer provider. The caller installs it with
// otel.SetTracerProvider and must Shutdown it to flush queued spans.
func NewProvider(ctx context.Context, cfg ProviderConfig) (*sdktrace.TracerProvider, error) {
	if cfg.Service == "" {
		cfg.Service = "settlement"
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.Service),
		semconv.DeploymentEnvironment(cfg.Env),
	))
	if err != nil {
		return nil, fmt.Errorf("oteltrace: resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	}
	if cfg.Endpoint != "" {
		eopts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			eopts = append(eopts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, eopts...)
		if err != nil {
			return nil, fmt.Errorf("oteltrace: otlp exporter: %w", err)
		}
		var bopts []sdktrace.BatchSpanProcessorOption
		if cfg.BatchTimeout > 0 {
			bopts = append(bopts, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
		}
		opts = append(opts, sdktrace.WithBatcher(exporter, bopts...))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// sampler honours an upstream decision and samples new roots at ratio.
func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
