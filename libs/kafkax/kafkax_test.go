package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMetaFallsBack(t *testing.T) {
	msg := kafka.Message{Topic: "clinic.appointment.booked.v1", Key: []byte("evt-1")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != "clinic.appointment.booked.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	msg.Headers = EventMeta{EventID: "evt-2", EventType: "custom"}.Headers()
	meta = ExtractEventMeta(msg)
	if meta.EventID != "evt-2" || meta.EventType != "custom" {
		t.Fatalf("expected header meta, got %+v", meta)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka:9092, ,redpanda:9092 ")
	if len(got) != 2 || got[0] != "kafka:9092" || got[1] != "redpanda:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	headers := InjectTraceHeaders(ctx, EventMeta{EventID: "1", EventType: "t"}.Headers())
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatalf("expected traceparent header, got %v", headers)
	}
	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	if got.TraceID() != traceID {
		t.Fatalf("trace id not propagated")
	}
}
