// Package codec maps envelopes to broker wire messages and back.
//
// Outbound messages always use the CloudEvents structured JSON mode with the
// attributes mirrored into ce_ properties. Inbound messages are classified by
// shape first; CloudEvents that fail to decode degrade to a baseline mapping
// that treats the body as opaque data, so a malformed event never blocks a
// partition.
package codec

import (
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/cloudevents/sdk-go/v2/extensions"

	ce "github.com/drblury/hubflow/internal/runtime/cloudevents"
	"github.com/drblury/hubflow/internal/runtime/envelope"
	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/transport"
)

// DefaultSource is used when neither the codec nor the envelope names a source.
const DefaultSource = "urn:hubflow"

// Option configures a Codec.
type Option func(*Codec)

// WithSource sets the service URN written as the CloudEvents source.
func WithSource(urn string) Option {
	return func(c *Codec) {
		c.source = urn
	}
}

// Codec is stateless after construction and safe for concurrent use.
type Codec struct {
	source string
}

func New(opts ...Option) *Codec {
	c := &Codec{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Source returns the CloudEvents source used for env.
func (c *Codec) Source(env *envelope.Envelope) string {
	switch {
	case c != nil && c.source != "":
		return c.source
	case env != nil && env.Source != "":
		return env.Source
	default:
		return DefaultSource
	}
}

// Encode builds the wire message for env.
func (c *Codec) Encode(env *envelope.Envelope) (*transport.Message, error) {
	if env == nil {
		return nil, errspkg.ErrEnvelopeRequired
	}
	if env.MessageType == "" {
		return nil, errspkg.ErrMessageTypeRequired
	}

	e := event.New(ce.SpecVersion)
	e.SetID(env.ID.String())
	e.SetType(env.MessageType)
	e.SetSource(c.Source(env))
	if !env.SentAt.IsZero() {
		e.SetTime(env.SentAt)
	}
	contentType := env.ContentType
	if contentType == "" {
		contentType = ce.DefaultDataContentType
	}
	if len(env.Data) > 0 {
		// []byte data is written as data_base64 so any payload survives.
		if err := e.SetData(contentType, append([]byte(nil), env.Data...)); err != nil {
			return nil, err
		}
	} else {
		e.SetDataContentType(contentType)
	}
	if env.ParentID != "" {
		extensions.DistributedTracingExtension{TraceParent: env.ParentID}.AddTracingAttributes(&e)
	}

	body, wireContentType, err := ce.MarshalStructured(&e)
	if err != nil {
		return nil, err
	}

	props := make(map[string]any, len(env.Headers)+10)
	for k, v := range env.Headers {
		props[k] = v
	}
	for k, v := range ce.Mirror(e) {
		props[k] = v
	}

	key := env.PartitionKey
	if key == "" {
		key = env.ID.String()
	}
	props[ce.PartitionKey] = key
	if env.ParentID != "" {
		props[ce.PlainTraceParent] = env.ParentID
	}

	return &transport.Message{
		Body:         body,
		ContentType:  wireContentType,
		Properties:   props,
		PartitionKey: key,
	}, nil
}
