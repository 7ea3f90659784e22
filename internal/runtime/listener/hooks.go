package listener

import (
	"context"
	"time"

	"github.com/drblury/hubflow/internal/runtime/envelope"
	"github.com/drblury/hubflow/internal/runtime/logging"
	"github.com/drblury/hubflow/transport"
)

// DeliveryContext describes one delivery attempt to hooks.
type DeliveryContext struct {
	// Context is the context passed to the receiver.
	Context context.Context
	// Stream is the stream the message was read from.
	Stream string
	// ConsumerGroup is the group the listener reads under.
	ConsumerGroup string
	// Address is the endpoint address set as the envelope destination.
	Address string
	// Position is the broker position of the wire message.
	Position transport.Position
	// Envelope is the decoded envelope handed to the receiver.
	Envelope *envelope.Envelope
	// StartedAt is when delivery began.
	StartedAt time.Time
	// Duration is only set for OnDeliveryDone and OnDeliveryError.
	Duration time.Duration
}

// DeliveryHooks observe deliveries. Nil hooks are skipped.
type DeliveryHooks struct {
	// OnDeliveryStart runs before the receiver is invoked.
	OnDeliveryStart func(dc DeliveryContext)
	// OnDeliveryDone runs after the receiver succeeded and before the checkpoint.
	OnDeliveryDone func(dc DeliveryContext)
	// OnDeliveryError runs when the receiver failed or panicked.
	OnDeliveryError func(dc DeliveryContext, err error)
}

// Merge returns hooks calling h first and other second.
func (h DeliveryHooks) Merge(other DeliveryHooks) DeliveryHooks {
	return DeliveryHooks{
		OnDeliveryStart: chain(h.OnDeliveryStart, other.OnDeliveryStart),
		OnDeliveryDone:  chain(h.OnDeliveryDone, other.OnDeliveryDone),
		OnDeliveryError: chainError(h.OnDeliveryError, other.OnDeliveryError),
	}
}

func chain(a, b func(DeliveryContext)) func(DeliveryContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(dc DeliveryContext) {
		a(dc)
		b(dc)
	}
}

func chainError(a, b func(DeliveryContext, error)) func(DeliveryContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(dc DeliveryContext, err error) {
		a(dc, err)
		b(dc, err)
	}
}

// LoggingHooks log every delivery at debug level and failures at error level.
func LoggingHooks(logger logging.ServiceLogger) DeliveryHooks {
	fields := func(dc DeliveryContext) logging.LogFields {
		f := logging.LogFields{
			"stream":    dc.Stream,
			"partition": dc.Position.Partition,
			"offset":    dc.Position.Offset,
		}
		if dc.Envelope != nil {
			f["message_id"] = dc.Envelope.ID.String()
			f["message_type"] = dc.Envelope.MessageType
		}
		return f
	}
	return DeliveryHooks{
		OnDeliveryStart: func(dc DeliveryContext) {
			logger.Debug("Delivery started", fields(dc))
		},
		OnDeliveryDone: func(dc DeliveryContext) {
			f := fields(dc)
			f["duration_ms"] = dc.Duration.Milliseconds()
			logger.Debug("Delivery completed", f)
		},
		OnDeliveryError: func(dc DeliveryContext, err error) {
			f := fields(dc)
			f["duration_ms"] = dc.Duration.Milliseconds()
			logger.Error("Delivery failed", err, f)
		},
	}
}

// AlertingHooks call alert for every failed delivery.
func AlertingHooks(alert func(dc DeliveryContext, err error)) DeliveryHooks {
	return DeliveryHooks{OnDeliveryError: alert}
}
