package transport

import (
	"fmt"

	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
)

// Capabilities describes the features supported by a broker backend.
type Capabilities struct {
	// Name is the human-readable name of the transport.
	Name string

	// SupportsPartitioning indicates writes honour Message.PartitionKey.
	SupportsPartitioning bool

	// SupportsCheckpointing indicates per-partition consumer positions are persisted.
	SupportsCheckpointing bool

	// SupportsDefer indicates messages can be parked and fetched later.
	SupportsDefer bool

	// SupportsRequeue indicates a single message can be put back for redelivery.
	SupportsRequeue bool

	// SupportsProvisioning indicates streams can be created at runtime.
	SupportsProvisioning bool

	// SupportsDeletion indicates streams can be deleted at runtime.
	SupportsDeletion bool

	// SupportsTracing indicates trace headers travel with the message.
	SupportsTracing bool

	// MaxMessageSize is the maximum encoded body size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// SupportsAtLeastOnce reports whether redelivery from the last checkpoint is possible.
func (c Capabilities) SupportsAtLeastOnce() bool {
	return c.SupportsCheckpointing
}

// CheckSize returns ErrMessageTooLarge when size exceeds MaxMessageSize.
func (c Capabilities) CheckSize(size int) error {
	if c.MaxMessageSize > 0 && int64(size) > c.MaxMessageSize {
		return fmt.Errorf("%w: %d bytes exceeds %s limit of %d", errspkg.ErrMessageTooLarge, size, c.Name, c.MaxMessageSize)
	}
	return nil
}

var (
	// KafkaCapabilities for Apache Kafka (and Event Hubs' Kafka endpoint).
	KafkaCapabilities = Capabilities{
		Name:                  "kafka",
		SupportsPartitioning:  true,
		SupportsCheckpointing: true,
		SupportsProvisioning:  true,
		SupportsTracing:       true,
		MaxMessageSize:        1048576, // Default 1MB
	}

	// MemoryCapabilities for the in-process partitioned hub.
	MemoryCapabilities = Capabilities{
		Name:                  "memory",
		SupportsPartitioning:  true,
		SupportsCheckpointing: true,
		SupportsProvisioning:  true,
		SupportsTracing:       true,
	}
)

// GetCapabilities returns the capabilities registered for a transport name.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
