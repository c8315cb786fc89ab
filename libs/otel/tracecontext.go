package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Outbox rows persist the trace context of the request that produced them, so
// the publisher can attach the Kafka message to the original trace even after
// a restart. These two functions are the string round-trip for that.

// TraceContextStrings serializes the current trace context to the W3C
// traceparent/tracestate pair. Both are empty when no span is active.
func TraceContextStrings(ctx context.Context) (traceparent, tracestate string) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.Get("traceparent"), carrier.Get("tracestate")
}

// ContextWithTraceContext restores a trace context persisted with
// TraceContextStrings. An empty traceparent leaves ctx untouched.
func ContextWithTraceContext(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": traceparent}
	if tracestate != "" {
		carrier["tracestate"] = tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
