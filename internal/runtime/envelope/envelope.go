// Package envelope defines the broker-agnostic unit of transport.
package envelope

import (
	"time"

	"github.com/google/uuid"

	"github.com/drblury/hubflow/internal/runtime/ids"
	"github.com/drblury/hubflow/internal/runtime/metadata"
)

// Envelope carries one application message between the host and a broker.
// ID is assigned once by the producer. Data must not be modified after the
// envelope is handed to a sender or received from a listener.
type Envelope struct {
	ID          uuid.UUID
	MessageType string
	Data        []byte
	ContentType string
	// PartitionKey is optional; empty leaves distribution to the codec default.
	PartitionKey string
	// ParentID is a W3C traceparent linking this message to its cause.
	ParentID string
	// Source identifies the producing service (a URN).
	Source string
	// SentAt is the zero time when unknown.
	SentAt  time.Time
	Headers metadata.Metadata
	// Destination is the logical address the envelope was received on.
	Destination string
}

// New creates an envelope with a fresh ID and the current time as SentAt.
func New(messageType string, data []byte) *Envelope {
	return &Envelope{
		ID:          ids.NewEnvelopeID(),
		MessageType: messageType,
		Data:        data,
		SentAt:      time.Now().UTC(),
		Headers:     metadata.Metadata{},
	}
}

// CausationID returns the trace linkage of the envelope. ParentID doubles as
// the causation id.
func (e *Envelope) CausationID() string {
	return e.ParentID
}

// Header returns the named header value.
func (e *Envelope) Header(name string) (string, bool) {
	if e.Headers == nil {
		return "", false
	}
	v, ok := e.Headers[name]
	return v, ok
}

// SetHeader sets a header, allocating the map when needed.
func (e *Envelope) SetHeader(name, value string) {
	if e.Headers == nil {
		e.Headers = metadata.Metadata{}
	}
	e.Headers[name] = value
}

// ShallowCopy returns a copy sharing Data but owning its Headers map.
func (e *Envelope) ShallowCopy() *Envelope {
	cp := *e
	cp.Headers = e.Headers.Clone()
	return &cp
}

// LogFields returns the fields used to identify the envelope in log lines.
func (e *Envelope) LogFields() map[string]any {
	fields := map[string]any{
		"message_id":   e.ID.String(),
		"message_type": e.MessageType,
	}
	if e.PartitionKey != "" {
		fields["partition_key"] = e.PartitionKey
	}
	return fields
}
