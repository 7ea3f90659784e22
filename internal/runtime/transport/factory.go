// Package transport builds the broker client a Service runs on.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/hubflow/internal/runtime/config"
	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	brokertransport "github.com/drblury/hubflow/transport"

	// Register the built-in transports.
	_ "github.com/drblury/hubflow/transport/transports"
)

// Factory abstracts how hubflow initialises broker clients.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (brokertransport.Client, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (brokertransport.Client, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (brokertransport.Client, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory returns the factory backed by the transport registry.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (brokertransport.Client, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	return brokertransport.Build(ctx, conf, logger)
}

// Capabilities returns the capabilities of client, falling back to the
// registry entry for the configured transport name.
func Capabilities(client brokertransport.Client, conf *config.Config) brokertransport.Capabilities {
	if p, ok := client.(brokertransport.CapabilitiesProvider); ok {
		return p.Capabilities()
	}
	if conf == nil {
		return brokertransport.Capabilities{}
	}
	return brokertransport.GetCapabilities(conf.GetTransport())
}
