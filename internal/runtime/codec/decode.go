package codec

import (
	"fmt"
	"strings"

	"github.com/cloudevents/sdk-go/v2/event"

	ce "github.com/drblury/hubflow/internal/runtime/cloudevents"
	"github.com/drblury/hubflow/internal/runtime/envelope"
	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/internal/runtime/ids"
	"github.com/drblury/hubflow/internal/runtime/jsoncodec"
	"github.com/drblury/hubflow/internal/runtime/metadata"
	"github.com/drblury/hubflow/transport"
)

// Baseline property names read when a message carries no usable CloudEvent.
const (
	PropMessageID   = "id"
	PropMessageType = "message-type"
)

// Decoded is the outcome of Decode.
type Decoded struct {
	Envelope *envelope.Envelope
	Shape    ce.Shape
	// Fallback holds the reason a CloudEvents-shaped message was mapped with
	// the baseline mapper. It is nil for clean decodes and opaque messages.
	Fallback error
}

// Decode maps msg to an envelope. Only a nil message is an error; malformed
// CloudEvents are reported through Decoded.Fallback.
func (c *Codec) Decode(msg *transport.Message) (Decoded, error) {
	if msg == nil {
		return Decoded{}, errspkg.ErrMessageRequired
	}

	shape := ce.Classify(msg.ContentType, msg.Properties)
	if !shape.IsCloudEvent() {
		return Decoded{Envelope: Baseline(msg), Shape: shape}, nil
	}

	e, raw, err := readEvent(shape, msg)
	if err == nil {
		var env *envelope.Envelope
		if env, err = fromEvent(e, raw, msg); err == nil {
			return Decoded{Envelope: env, Shape: shape}, nil
		}
	}
	return Decoded{
		Envelope: Baseline(msg),
		Shape:    shape,
		Fallback: fmt.Errorf("%s cloudevent: %w", shape, err),
	}, nil
}

// readEvent recovers the CloudEvent for shape. raw reports whether the event
// data is already the application's bytes.
func readEvent(shape ce.Shape, msg *transport.Message) (event.Event, bool, error) {
	switch shape {
	case ce.ShapeStructured:
		e, err := ce.UnmarshalStructured(msg.Body)
		return e, e.DataBase64, err
	case ce.ShapeStructuredJSON:
		if e, err := ce.UnmarshalStructured(msg.Body); err == nil {
			return e, e.DataBase64, nil
		}
		e, err := ce.FromBinary(msg.Properties, msg.Body)
		return e, true, err
	default:
		e, err := ce.FromBinary(msg.Properties, msg.Body)
		return e, true, err
	}
}

func fromEvent(e event.Event, raw bool, msg *transport.Message) (*envelope.Envelope, error) {
	data, err := eventData(e, raw)
	if err != nil {
		return nil, err
	}

	env := &envelope.Envelope{
		MessageType: e.Type(),
		Data:        data,
		ContentType: e.DataContentType(),
		Source:      e.Source(),
		Headers:     metadata.Metadata{},
	}
	if id, ok := ids.ParseEnvelopeID(e.ID()); ok {
		env.ID = id
	}
	if t := e.Time(); !t.IsZero() {
		env.SentAt = t.UTC()
	}

	for k, v := range msg.Properties {
		if ce.IsAttribute(k) || k == ce.PartitionKey {
			continue
		}
		env.Headers[k] = metadata.Stringify(v)
	}
	if tp := ce.TraceParent(e); tp != "" {
		env.ParentID = tp
		env.Headers[ce.PlainTraceParent] = tp
	}
	env.PartitionKey = partitionKey(msg)
	return env, nil
}

// eventData returns the application payload of e. Raw data is copied; JSON
// values embedded by other producers are rendered as canonical text.
func eventData(e event.Event, raw bool) ([]byte, error) {
	if len(e.DataEncoded) == 0 {
		return nil, nil
	}
	if raw || !isJSONMediaType(e.DataMediaType()) {
		return append([]byte(nil), e.DataEncoded...), nil
	}
	return jsoncodec.Canonical(e.DataEncoded)
}

func isJSONMediaType(mt string) bool {
	return mt == "" || mt == event.ApplicationJSON || mt == event.TextJSON || strings.HasSuffix(mt, "+json")
}

// Baseline maps msg without CloudEvents semantics: the body is opaque data and
// every property is copied into the headers.
func Baseline(msg *transport.Message) *envelope.Envelope {
	env := &envelope.Envelope{
		Data:        append([]byte(nil), msg.Body...),
		ContentType: msg.ContentType,
		Headers:     metadata.FromProperties(msg.Properties),
	}
	if id, ok := firstProperty(msg, PropMessageID, ce.PropID); ok {
		env.ID, _ = ids.ParseEnvelopeID(id)
	}
	env.MessageType, _ = firstProperty(msg, PropMessageType, ce.PropType)
	env.ParentID, _ = firstProperty(msg, ce.PlainTraceParent, ce.PropTraceParent)
	env.PartitionKey = partitionKey(msg)
	return env
}

func partitionKey(msg *transport.Message) string {
	if key, ok := msg.Property(ce.PartitionKey); ok {
		return key
	}
	return msg.PartitionKey
}

func firstProperty(msg *transport.Message, names ...string) (string, bool) {
	for _, name := range names {
		if v, ok := msg.Property(name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}
