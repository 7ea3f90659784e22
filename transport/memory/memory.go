package memory

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/transport"
	"github.com/drblury/hubflow/transport/checkpoint"
)

// TransportName is the name used to register this transport.
const TransportName = "memory"

// HubFactory allows overriding hub creation for testing.
var HubFactory = func(cfg transport.Config) (*Hub, error) {
	opts := []Option{WithAutoCreate(), WithPartitions(cfg.GetMemoryPartitions())}
	if dir := cfg.GetCheckpointDir(); dir != "" {
		store, err := checkpoint.OpenPebbleStore(dir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithCheckpointStore(store, true))
	}
	return NewHub(opts...), nil
}

func init() {
	Register()
}

// Register adds the memory transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.MemoryCapabilities)
}

// Build creates a client on a fresh hub.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Client, error) {
	hub, err := HubFactory(cfg)
	if err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}
	return NewClient(hub, logger), nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.MemoryCapabilities
}

// Client implements transport.Client on top of a Hub. Several clients may
// share one hub.
type Client struct {
	hub    *Hub
	logger watermill.LoggerAdapter
}

func NewClient(hub *Hub, logger watermill.LoggerAdapter) *Client {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Client{hub: hub, logger: logger}
}

func (c *Client) Capabilities() transport.Capabilities {
	return transport.MemoryCapabilities
}

func (c *Client) Send(ctx context.Context, stream string, msg *transport.Message) error {
	if msg == nil {
		return errspkg.ErrMessageRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	pos, err := c.hub.Append(stream, msg)
	if err != nil {
		return err
	}
	c.logger.Trace("Message appended", watermill.LogFields{
		"stream":    stream,
		"partition": pos.Partition,
		"offset":    pos.Offset,
	})
	return nil
}

func (c *Client) NewProcessor(stream, consumerGroup string) (transport.Processor, error) {
	if stream == "" {
		return nil, errspkg.ErrStreamRequired
	}
	return newProcessor(c.hub, stream, consumerGroup, c.logger), nil
}

func (c *Client) StreamProperties(ctx context.Context, stream string) (transport.StreamInfo, error) {
	if err := ctx.Err(); err != nil {
		return transport.StreamInfo{}, err
	}
	s, err := c.hub.lookup(stream, false)
	if err != nil {
		return transport.StreamInfo{}, err
	}
	info := transport.StreamInfo{Name: s.name}
	for _, p := range s.partitions {
		info.PartitionIDs = append(info.PartitionIDs, p.id)
	}
	return info, nil
}

func (c *Client) CreateStream(ctx context.Context, spec transport.StreamSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	created, err := c.hub.CreateStream(spec.Name, spec.Partitions)
	if err != nil {
		return err
	}
	if created {
		c.logger.Info("Stream created", watermill.LogFields{"stream": spec.Name, "partitions": spec.Partitions})
	}
	return nil
}

func (c *Client) Close() error {
	return c.hub.Close()
}
