package listener

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/hubflow/internal/runtime/envelope"
	"github.com/drblury/hubflow/internal/runtime/tracing"
	"github.com/drblury/hubflow/transport"
)

// SpanName is the span started around every delivery.
const SpanName = "hubflow.deliver"

// startDeliverySpan continues the producer's trace when the envelope carries
// a traceparent.
func startDeliverySpan(ctx context.Context, stream, group string, env *envelope.Envelope, pos transport.Position) (context.Context, trace.Span) {
	ctx = tracing.WithTraceParent(ctx, env.ParentID)
	return tracing.Tracer().Start(ctx, SpanName,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", stream),
			attribute.String("messaging.consumer.group.name", group),
			attribute.String("messaging.destination.partition.id", pos.Partition),
			attribute.String("messaging.kafka.offset", strconv.FormatInt(pos.Offset, 10)),
			attribute.String("messaging.message.id", env.ID.String()),
			attribute.String("hubflow.message_type", env.MessageType),
		),
	)
}

func endSpan(span trace.Span, err error) {
	tracing.RecordError(span, err)
	span.End()
}
