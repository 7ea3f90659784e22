package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/drblury/hubflow"

// TraceParentKey is the W3C header carrying the parent span.
const TraceParentKey = "traceparent"

var propagator = propagation.TraceContext{}

// Tracer returns the tracer used for send and delivery spans.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// TraceParent renders the span stored in ctx as a traceparent value, or ""
// when ctx carries no valid span.
func TraceParent(ctx context.Context) string {
	if !trace.SpanContextFromContext(ctx).IsValid() {
		return ""
	}
	carrier := propagation.MapCarrier{}
	propagator.Inject(ctx, carrier)
	return carrier.Get(TraceParentKey)
}

// WithTraceParent returns ctx with the remote span described by traceParent.
// Malformed values leave ctx unchanged.
func WithTraceParent(ctx context.Context, traceParent string) context.Context {
	if traceParent == "" {
		return ctx
	}
	return propagator.Extract(ctx, propagation.MapCarrier{TraceParentKey: traceParent})
}

// RecordError marks span as failed.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
