// Package sender implements the synchronous publish path: one envelope is
// encoded and written per call, and the call returns once the broker has
// acknowledged the write. Retry policy belongs to the caller.
package sender

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/hubflow/internal/runtime/codec"
	"github.com/drblury/hubflow/internal/runtime/envelope"
	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/internal/runtime/logging"
	"github.com/drblury/hubflow/internal/runtime/metrics"
	"github.com/drblury/hubflow/internal/runtime/tracing"
	"github.com/drblury/hubflow/transport"
)

// SpanName is the span started around every send.
const SpanName = "hubflow.send"

// Option configures a Sender.
type Option func(*Sender)

// WithCapabilities enforces the transport's message size limit before writing.
func WithCapabilities(caps transport.Capabilities) Option {
	return func(s *Sender) {
		s.caps = caps
	}
}

func WithMetrics(m *metrics.Pipeline) Option {
	return func(s *Sender) {
		s.metrics = m
	}
}

func WithLogger(logger logging.ServiceLogger) Option {
	return func(s *Sender) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Sender writes envelopes to one stream. It keeps no state between calls.
type Sender struct {
	stream   string
	producer transport.Producer
	codec    *codec.Codec
	caps     transport.Capabilities
	metrics  *metrics.Pipeline
	logger   logging.ServiceLogger
}

// New returns a Sender for stream. A nil codec uses codec defaults.
func New(stream string, producer transport.Producer, c *codec.Codec, opts ...Option) (*Sender, error) {
	if stream == "" {
		return nil, errspkg.ErrStreamRequired
	}
	if producer == nil {
		return nil, errspkg.ErrClientRequired
	}
	if c == nil {
		c = codec.New()
	}
	s := &Sender{
		stream:   stream,
		producer: producer,
		codec:    c,
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.LogFields{"stream": stream})
	return s, nil
}

// Stream returns the stream the sender writes to.
func (s *Sender) Stream() string {
	return s.stream
}

// Send encodes env and writes it to the stream. When env has no ParentID and
// ctx carries a span, a copy of env linked to that span is sent instead.
func (s *Sender) Send(ctx context.Context, env *envelope.Envelope) (err error) {
	if env == nil {
		return errspkg.ErrEnvelopeRequired
	}

	ctx, span := tracing.Tracer().Start(ctx, SpanName,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", s.stream),
			attribute.String("messaging.message.id", env.ID.String()),
			attribute.String("hubflow.message_type", env.MessageType),
		),
	)
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	if env.ParentID == "" {
		if tp := tracing.TraceParent(ctx); tp != "" {
			env = env.ShallowCopy()
			env.ParentID = tp
		}
	}

	msg, err := s.codec.Encode(env)
	if err != nil {
		s.metrics.RecordSendFailure(s.stream)
		return fmt.Errorf("encode envelope %s: %w", env.ID, err)
	}
	if err = s.caps.CheckSize(len(msg.Body)); err != nil {
		s.metrics.RecordSendFailure(s.stream)
		return err
	}

	if err = s.producer.Send(ctx, s.stream, msg); err != nil {
		s.metrics.RecordSendFailure(s.stream)
		s.logger.Debug("Send failed", logging.LogFields{
			"message_id":    env.ID.String(),
			"partition_key": msg.PartitionKey,
			"error":         err.Error(),
		})
		return fmt.Errorf("send to %s: %w", s.stream, err)
	}

	s.metrics.RecordSent(s.stream)
	s.logger.Trace("Envelope sent", logging.LogFields{
		"message_id":    env.ID.String(),
		"partition_key": msg.PartitionKey,
	})
	return nil
}
