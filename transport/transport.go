// Package transport defines the broker client contracts used by hubflow. Each
// broker implementation (kafka, memory) lives in its own sub-package and
// registers itself with the transport registry.
package transport

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
)

// Message is the broker-native wire message. Messages are built fresh per send;
// received messages are read-only views owned by the broker client.
type Message struct {
	Body        []byte
	ContentType string
	// Properties carries broker metadata, not application headers.
	Properties map[string]any
	// PartitionKey routes the message on write. Empty lets the broker decide.
	PartitionKey string
	// Position is assigned by the broker on read.
	Position Position
}

// IsEmpty reports whether m is a heartbeat read without content.
func (m *Message) IsEmpty() bool {
	return m == nil || (len(m.Body) == 0 && len(m.Properties) == 0)
}

// Property returns the named property as a string when it is one.
func (m *Message) Property(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.Properties[name]
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case []byte:
		return string(val), true
	}
	return "", false
}

// Position locates a message inside a stream partition.
type Position struct {
	Partition      string
	Offset         int64
	SequenceNumber int64
	EnqueuedAt     time.Time
}

// Producer writes messages to a stream. Send returns only after the broker
// acknowledged the write.
type Producer interface {
	Send(ctx context.Context, stream string, msg *Message) error
}

// StreamInfo is the metadata a broker reports for a stream.
type StreamInfo struct {
	Name         string
	PartitionIDs []string
}

// StreamSpec describes a stream to provision.
type StreamSpec struct {
	Name              string
	Partitions        int
	ReplicationFactor int
}

// Client is a connected broker client scoped to one namespace or cluster.
type Client interface {
	Producer

	// NewProcessor binds a partition-aware reader to stream under consumerGroup.
	NewProcessor(stream, consumerGroup string) (Processor, error)
	// StreamProperties reads stream metadata. Missing streams wrap ErrStreamNotFound.
	StreamProperties(ctx context.Context, stream string) (StreamInfo, error)
	// CreateStream provisions a stream. An existing stream is not an error.
	CreateStream(ctx context.Context, spec StreamSpec) error
	Close() error
}

// Processor reads every partition of a stream that the consumer group assigns
// to it. Handlers run concurrently across partitions and serially within one.
type Processor interface {
	// Start returns once reading has begun. Reading continues until ctx is
	// cancelled or Stop is called.
	Start(ctx context.Context, onEvent EventHandler, onError ErrorHandler) error
	// Stop cancels further reads and waits for in-flight handlers. Repeated
	// calls are no-ops.
	Stop(ctx context.Context) error
}

// PartitionContext is handed to EventHandler for each read.
type PartitionContext interface {
	PartitionID() string
	// UpdateCheckpoint durably records msg's position as processed for the
	// partition and consumer group.
	UpdateCheckpoint(ctx context.Context, msg *Message) error
}

// EventHandler receives each read. msg is nil for heartbeat reads.
type EventHandler func(ctx context.Context, pc PartitionContext, msg *Message)

// ErrorHandler receives errors raised by the broker client itself.
type ErrorHandler func(ctx context.Context, partition string, err error)

// Builder creates a broker client from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Client, error)

// Config provides the configuration values needed by transports without
// depending on the full config package.
type Config interface {
	// GetTransport returns the transport name.
	GetTransport() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaClientID() string
	GetKafkaConsumerGroup() string

	// Memory
	GetMemoryPartitions() int
	GetCheckpointDir() string

	// Provisioning
	GetProvisionPartitions() int
	GetProvisionReplicationFactor() int
}

// CapabilitiesProvider is implemented by clients that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
