package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextStrings_RoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36},
		SpanID:     trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	traceparent, tracestate := TraceContextStrings(ctx)
	if traceparent == "" {
		t.Fatal("expected a traceparent for an active span context")
	}

	restored := trace.SpanContextFromContext(
		ContextWithTraceContext(context.Background(), traceparent, tracestate))
	if restored.TraceID() != sc.TraceID() {
		t.Fatalf("trace id lost: got %s, want %s", restored.TraceID(), sc.TraceID())
	}
	if !restored.IsSampled() {
		t.Fatal("sampled flag lost in the round trip")
	}
}

func TestTraceContextStrings_NoActiveSpan(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceparent, tracestate := TraceContextStrings(context.Background())
	if traceparent != "" || tracestate != "" {
		t.Fatalf("expected empty strings without a span, got %q / %q", traceparent, tracestate)
	}

	ctx := context.Background()
	if got := ContextWithTraceContext(ctx, "", ""); got != ctx {
		t.Fatal("empty traceparent must leave the context untouched")
	}
}
