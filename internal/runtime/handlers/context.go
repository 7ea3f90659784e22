package handlers

import (
	"github.com/drblury/hubflow/internal/runtime/envelope"
	loggingpkg "github.com/drblury/hubflow/internal/runtime/logging"
)

// MessageContextBase holds the received envelope and a logger scoped to it.
type MessageContextBase struct {
	Envelope *envelope.Envelope
	Logger   loggingpkg.ServiceLogger
}

// Header returns the named header of the received envelope, or "".
func (b MessageContextBase) Header(name string) string {
	if b.Envelope == nil {
		return ""
	}
	v, _ := b.Envelope.Header(name)
	return v
}

// CausationID returns the traceparent the envelope was sent under.
func (b MessageContextBase) CausationID() string {
	if b.Envelope == nil {
		return ""
	}
	return b.Envelope.CausationID()
}

// Destination returns the address the envelope was received on.
func (b MessageContextBase) Destination() string {
	if b.Envelope == nil {
		return ""
	}
	return b.Envelope.Destination
}
