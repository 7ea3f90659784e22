package runtime

import (
	"context"
	"fmt"
	"reflect"

	"github.com/drblury/hubflow/internal/runtime/envelope"
	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/internal/runtime/jsoncodec"
	metadatapkg "github.com/drblury/hubflow/internal/runtime/metadata"
)

const contentTypeJSON = "application/json"

// PublishOption adjusts the envelope built by Publish.
type PublishOption func(*envelope.Envelope)

// WithPartitionKey overrides the key derived from the message's tagged fields.
func WithPartitionKey(key string) PublishOption {
	return func(env *envelope.Envelope) {
		env.PartitionKey = key
	}
}

// WithMessageType overrides the registered or derived message type.
func WithMessageType(name string) PublishOption {
	return func(env *envelope.Envelope) {
		env.MessageType = name
	}
}

// WithHeaders merges headers into the envelope.
func WithHeaders(headers metadatapkg.Metadata) PublishOption {
	return func(env *envelope.Envelope) {
		for k, v := range headers {
			env.SetHeader(k, v)
		}
	}
}

// WithParentID links the envelope to an explicit traceparent instead of the
// span carried by the context.
func WithParentID(traceParent string) PublishOption {
	return func(env *envelope.Envelope) {
		env.ParentID = traceParent
	}
}

// Publish marshals message as JSON and sends it to stream. The partition key
// comes from the message's `partitionkey` tagged fields.
func (s *Service) Publish(ctx context.Context, stream string, message any, opts ...PublishOption) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	env, err := s.NewEnvelope(message, opts...)
	if err != nil {
		return err
	}
	return s.SendEnvelope(ctx, stream, env)
}

// NewEnvelope builds the envelope Publish would send for message.
func (s *Service) NewEnvelope(message any, opts ...PublishOption) (*envelope.Envelope, error) {
	if message == nil {
		return nil, errspkg.ErrMessageRequired
	}

	fn, ok, err := s.resolver.For(reflect.TypeOf(message))
	if err != nil {
		return nil, err
	}

	data, err := jsoncodec.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", message, err)
	}

	env := envelope.New(s.MessageTypeOf(message), data)
	env.ContentType = contentTypeJSON
	if ok {
		env.PartitionKey = fn(message)
	}
	for _, opt := range opts {
		opt(env)
	}
	return env, nil
}

// SendEnvelope sends a prepared envelope to stream. stream may be a bare name
// or an endpoint address.
func (s *Service) SendEnvelope(ctx context.Context, stream string, env *envelope.Envelope) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	return s.transport.Send(ctx, stream, env)
}
