package core

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOTelTracerRecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	tracer := NewOTelTracer(tp)

	_, span := tracer.Start(context.Background(), "dispatch")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "insert")
	span.End(errors.New("boom"))

	ended := rec.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(ended))
	}
	if ended[0].Name() != "carerules.dispatch" || ended[0].Status().Code == codes.Error {
		t.Fatalf("unexpected first span %s %v", ended[0].Name(), ended[0].Status())
	}
	if ended[1].Status().Code != codes.Error || ended[1].Status().Description != "boom" {
		t.Fatalf("expected error status, got %v", ended[1].Status())
	}
	if len(ended[1].Events()) != 1 {
		t.Fatalf("expected the error recorded as an event, got %d", len(ended[1].Events()))
	}
	attrs := ended[0].Attributes()
	if len(attrs) != 1 || attrs[0].Value.AsString() != "dispatch" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
}

func TestOTelTracerNestsUnderCallerSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, parent := tp.Tracer("test").Start(context.Background(), "request")
	_, span := NewOTelTracer(tp).Start(ctx, "validate")
	span.End(nil)
	parent.End()

	ended := rec.Ended()
	if len(ended) != 2 || ended[0].Parent().SpanID() != parent.SpanContext().SpanID() {
		t.Fatalf("host span should be a child of the caller span")
	}
}
