package kafka

import (
	"context"
	"strconv"

	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	ce "github.com/drblury/hubflow/internal/runtime/cloudevents"
	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/internal/runtime/ids"
	"github.com/drblury/hubflow/internal/runtime/metadata"
	"github.com/drblury/hubflow/transport"
)

// ContentTypeHeader carries Message.ContentType as a Kafka header.
const ContentTypeHeader = "content-type"

// newMarshaler keys Kafka records by the partitionKey property so equal keys
// land on the same partition.
func newMarshaler() kafka.MarshalerUnmarshaler {
	return kafka.NewWithPartitioningMarshaler(func(_ string, msg *message.Message) (string, error) {
		return msg.Metadata.Get(ce.PartitionKey), nil
	})
}

func toWatermill(msg *transport.Message) (*message.Message, error) {
	if msg == nil {
		return nil, errspkg.ErrMessageRequired
	}
	id, ok := msg.Property(ce.PropID)
	if !ok || id == "" {
		id = ids.NewInstanceID()
	}

	wm := message.NewMessage(id, msg.Body)
	wm.Metadata = metadata.PropertiesToWatermill(msg.Properties)
	if msg.ContentType != "" {
		wm.Metadata.Set(ContentTypeHeader, msg.ContentType)
	}
	if msg.PartitionKey != "" {
		wm.Metadata.Set(ce.PartitionKey, msg.PartitionKey)
	}
	return wm, nil
}

func fromWatermill(wm *message.Message) *transport.Message {
	props := metadata.WatermillToProperties(wm.Metadata)
	contentType := wm.Metadata.Get(ContentTypeHeader)
	delete(props, ContentTypeHeader)

	return &transport.Message{
		Body:         wm.Payload,
		ContentType:  contentType,
		Properties:   props,
		PartitionKey: wm.Metadata.Get(ce.PartitionKey),
		Position:     positionFromCtx(wm.Context()),
	}
}

func positionFromCtx(ctx context.Context) transport.Position {
	var pos transport.Position
	if partition, ok := kafka.MessagePartitionFromCtx(ctx); ok {
		pos.Partition = strconv.Itoa(int(partition))
	}
	if offset, ok := kafka.MessagePartitionOffsetFromCtx(ctx); ok {
		pos.Offset = offset
		pos.SequenceNumber = offset
	}
	if ts, ok := kafka.MessageTimestampFromCtx(ctx); ok {
		pos.EnqueuedAt = ts
	}
	return pos
}
