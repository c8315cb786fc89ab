// Package otelx wires OpenTelemetry tracing for the clinic services: an OTLP
// gRPC exporter toward the collector and W3C propagation on every boundary
// (HTTP, Kafka headers, outbox rows).
package otelx

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Options configures tracing for one service instance.
type Options struct {
	ServiceName string
	Endpoint    string // collector host:port, e.g. jaeger:4317
	SampleRatio float64
	Disabled    bool
}

// OptionsFromEnv reads OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT and
// OTEL_SAMPLING_RATIO. Tracing is on by default so local compose stacks get
// traces without extra configuration.
func OptionsFromEnv(serviceName string) Options {
	opts := Options{
		ServiceName: serviceName,
		Endpoint:    "jaeger:4317",
		SampleRatio: 1,
	}

	switch strings.TrimSpace(os.Getenv("OTEL_ENABLED")) {
	case "false", "0":
		opts.Disabled = true
	}
	if ep := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); ep != "" {
		opts.Endpoint = ep
	}
	if raw := strings.TrimSpace(os.Getenv("OTEL_SAMPLING_RATIO")); raw != "" {
		if ratio, err := strconv.ParseFloat(raw, 64); err == nil && ratio >= 0 && ratio <= 1 {
			opts.SampleRatio = ratio
		}
	}
	return opts
}

// Setup installs the global tracer provider and propagators. Propagation is
// configured even when export is disabled so trace ids still flow through
// logs and outbox rows. Call the returned func during shutdown to flush
// pending spans.
func Setup(ctx context.Context, opts Options) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if opts.Disabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(3*time.Second),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(opts.ServiceName),
	))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}
