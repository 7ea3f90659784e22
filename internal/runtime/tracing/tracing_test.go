package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

const sampleParent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func TestTraceParentRoundTrip(t *testing.T) {
	ctx := WithTraceParent(context.Background(), sampleParent)

	sc := trace.SpanContextFromContext(ctx)
	assert.True(t, sc.IsValid())
	assert.True(t, sc.IsRemote())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())

	assert.Equal(t, sampleParent, TraceParent(ctx))
}

func TestTraceParentWithoutSpan(t *testing.T) {
	assert.Empty(t, TraceParent(context.Background()))
}

func TestWithTraceParentIgnoresGarbage(t *testing.T) {
	ctx := WithTraceParent(context.Background(), "not-a-traceparent")
	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())

	base := context.Background()
	assert.Equal(t, base, WithTraceParent(base, ""))
}

func TestRecordErrorNilIsNoop(t *testing.T) {
	_, span := Tracer().Start(context.Background(), "test")
	defer span.End()
	RecordError(span, nil)
	RecordError(span, errors.New("boom"))
}
