// Package endpoint addresses streams and owns their administration and
// listener lifecycle. An Endpoint pairs a Sender and an optional Listener for
// one (stream, consumer group); a Transport keeps the endpoints of one broker
// client.
package endpoint

import (
	"context"
	"fmt"

	"github.com/drblury/hubflow/internal/runtime/config"
	"github.com/drblury/hubflow/internal/runtime/envelope"
	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/internal/runtime/listener"
	"github.com/drblury/hubflow/internal/runtime/logging"
	"github.com/drblury/hubflow/internal/runtime/sender"
	"github.com/drblury/hubflow/transport"
)

// Settings are the endpoint policies taken from configuration.
type Settings struct {
	// Environment gates Setup; see config.Config.IsDevelopment.
	Environment          string
	AutoProvision        bool
	Partitions           int
	ReplicationFactor    int
	DefaultConsumerGroup string
	DefaultMode          string
}

// SettingsFromConfig derives endpoint settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Environment:          cfg.Environment,
		AutoProvision:        cfg.AutoProvision,
		Partitions:           cfg.ProvisionPartitions,
		ReplicationFactor:    cfg.ProvisionReplicationFactor,
		DefaultConsumerGroup: cfg.ConsumerGroup(),
		DefaultMode:          cfg.ProcessingMode(),
	}
}

func (s Settings) isDevelopment() bool {
	c := config.Config{Environment: s.Environment}
	return c.IsDevelopment()
}

// Endpoint is one addressed stream.
type Endpoint struct {
	addr     Address
	client   transport.Client
	settings Settings
	sender   *sender.Sender
	listener *listener.Listener
	logger   logging.ServiceLogger
}

func (e *Endpoint) Address() Address {
	return e.addr
}

func (e *Endpoint) Sender() *sender.Sender {
	return e.sender
}

// Listener returns the endpoint's listener, or nil when nothing listens on it.
func (e *Endpoint) Listener() *listener.Listener {
	return e.listener
}

// Send writes env to the endpoint's stream.
func (e *Endpoint) Send(ctx context.Context, env *envelope.Envelope) error {
	return e.sender.Send(ctx, env)
}

// Check verifies the stream's metadata can be read.
func (e *Endpoint) Check(ctx context.Context) error {
	info, err := e.client.StreamProperties(ctx, e.addr.Stream)
	if err != nil {
		return fmt.Errorf("check %s: %w", e.addr.Stream, err)
	}
	e.logger.Debug("Stream reachable", logging.LogFields{"partitions": len(info.PartitionIDs)})
	return nil
}

// Setup creates the stream when auto-provisioning is enabled. Outside
// development environments it only logs a warning. An existing stream counts
// as success.
func (e *Endpoint) Setup(ctx context.Context) error {
	if !e.settings.AutoProvision {
		return nil
	}
	if !e.settings.isDevelopment() {
		e.logger.Warn("Auto-provisioning is only allowed in development environments; skipping", logging.LogFields{
			"environment": e.settings.Environment,
		})
		return nil
	}

	spec := transport.StreamSpec{
		Name:              e.addr.Stream,
		Partitions:        e.settings.Partitions,
		ReplicationFactor: e.settings.ReplicationFactor,
	}
	if err := e.client.CreateStream(ctx, spec); err != nil {
		return fmt.Errorf("provision %s: %w", e.addr.Stream, err)
	}
	e.logger.Info("Stream provisioned", logging.LogFields{"partitions": spec.Partitions})
	return nil
}

// Teardown is not supported: deleting streams needs administrative rights
// the runtime does not hold.
func (e *Endpoint) Teardown(context.Context) error {
	e.logger.Warn("Stream deletion is not supported; delete it with broker tooling", nil)
	return fmt.Errorf("teardown %s: %w", e.addr.Stream, errspkg.ErrNotSupported)
}
