package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/drblury/hubflow/internal/runtime/codec"
	"github.com/drblury/hubflow/internal/runtime/config"
	"github.com/drblury/hubflow/internal/runtime/envelope"
	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/internal/runtime/inbox"
	"github.com/drblury/hubflow/internal/runtime/listener"
	"github.com/drblury/hubflow/internal/runtime/logging"
	"github.com/drblury/hubflow/internal/runtime/metrics"
	"github.com/drblury/hubflow/internal/runtime/sender"
	"github.com/drblury/hubflow/transport"
)

// Option configures a Transport.
type Option func(*Transport)

func WithCodec(c *codec.Codec) Option {
	return func(t *Transport) {
		if c != nil {
			t.codec = c
		}
	}
}

func WithMetrics(m *metrics.Pipeline) Option {
	return func(t *Transport) {
		t.metrics = m
	}
}

func WithLogger(logger logging.ServiceLogger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithInbox sets the store shared by durable endpoints.
func WithInbox(store inbox.Store) Option {
	return func(t *Transport) {
		t.inbox = store
	}
}

// WithCapabilities overrides the capabilities reported by the client.
func WithCapabilities(caps transport.Capabilities) Option {
	return func(t *Transport) {
		t.caps = &caps
	}
}

// Transport keeps the endpoints of one broker client, keyed by address.
type Transport struct {
	client   transport.Client
	settings Settings
	codec    *codec.Codec
	metrics  *metrics.Pipeline
	logger   logging.ServiceLogger
	inbox    inbox.Store
	caps     *transport.Capabilities

	mu        sync.Mutex
	endpoints map[string]*Endpoint
	order     []string
}

func NewTransport(client transport.Client, settings Settings, opts ...Option) (*Transport, error) {
	if client == nil {
		return nil, errspkg.ErrClientRequired
	}
	if settings.DefaultConsumerGroup == "" {
		settings.DefaultConsumerGroup = config.DefaultConsumerGroup
	}
	if settings.DefaultMode == "" {
		settings.DefaultMode = config.ModeBuffered
	}
	if !config.ValidMode(settings.DefaultMode) {
		return nil, fmt.Errorf("%w: unknown default mode %q", errspkg.ErrInvalidEndpoint, settings.DefaultMode)
	}

	t := &Transport{
		client:    client,
		settings:  settings,
		codec:     codec.New(),
		logger:    logging.NewNopLogger(),
		endpoints: make(map[string]*Endpoint),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.caps == nil {
		if p, ok := client.(transport.CapabilitiesProvider); ok {
			caps := p.Capabilities()
			t.caps = &caps
		} else {
			t.caps = &transport.Capabilities{}
		}
	}
	return t, nil
}

func (t *Transport) Capabilities() transport.Capabilities {
	return *t.caps
}

// Endpoint returns the endpoint for address, creating it on first use.
func (t *Transport) Endpoint(address string) (*Endpoint, error) {
	addr, err := Parse(address)
	if err != nil {
		return nil, err
	}
	addr = addr.withDefaults(t.settings.DefaultConsumerGroup, t.settings.DefaultMode)

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endpointLocked(addr)
}

func (t *Transport) endpointLocked(addr Address) (*Endpoint, error) {
	key := addr.String()
	if ep, ok := t.endpoints[key]; ok {
		return ep, nil
	}

	logger := t.logger.With(logging.LogFields{
		"stream":         addr.Stream,
		"consumer_group": addr.ConsumerGroup,
	})
	s, err := sender.New(addr.Stream, t.client, t.codec,
		sender.WithCapabilities(*t.caps),
		sender.WithMetrics(t.metrics),
		sender.WithLogger(t.logger),
	)
	if err != nil {
		return nil, err
	}
	ep := &Endpoint{
		addr:     addr,
		client:   t.client,
		settings: t.settings,
		sender:   s,
		logger:   logger,
	}
	t.endpoints[key] = ep
	t.order = append(t.order, key)
	return ep, nil
}

// Send writes env to the stream named by address.
func (t *Transport) Send(ctx context.Context, address string, env *envelope.Envelope) error {
	ep, err := t.Endpoint(address)
	if err != nil {
		return err
	}
	return ep.Send(ctx, env)
}

// Listen attaches receiver to the endpoint at address. Each endpoint has at
// most one listener.
func (t *Transport) Listen(address string, receiver listener.Receiver, opts ...listener.Option) (*Endpoint, error) {
	addr, err := Parse(address)
	if err != nil {
		return nil, err
	}
	addr = addr.withDefaults(t.settings.DefaultConsumerGroup, t.settings.DefaultMode)

	t.mu.Lock()
	defer t.mu.Unlock()
	ep, err := t.endpointLocked(addr)
	if err != nil {
		return nil, err
	}
	if ep.listener != nil {
		return nil, fmt.Errorf("%w: %s already has a listener", errspkg.ErrAlreadyStarted, addr)
	}

	base := []listener.Option{
		listener.WithCodec(t.codec),
		listener.WithMetrics(t.metrics),
		listener.WithLogger(t.logger),
	}
	if t.inbox != nil {
		base = append(base, listener.WithInbox(t.inbox))
	}
	l, err := listener.New(listener.Config{
		Stream:        addr.Stream,
		ConsumerGroup: addr.ConsumerGroup,
		Address:       addr.String(),
		Mode:          addr.Mode,
	}, t.client, receiver, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	ep.listener = l
	return ep, nil
}

// Endpoints returns the endpoints in creation order.
func (t *Transport) Endpoints() []*Endpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Endpoint, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, t.endpoints[key])
	}
	return out
}

// streams returns one endpoint per distinct stream so admin calls run once.
func (t *Transport) streams() []*Endpoint {
	seen := make(map[string]bool)
	var out []*Endpoint
	for _, ep := range t.Endpoints() {
		if seen[ep.addr.Stream] {
			continue
		}
		seen[ep.addr.Stream] = true
		out = append(out, ep)
	}
	return out
}

func (t *Transport) Check(ctx context.Context) error {
	var errs []error
	for _, ep := range t.streams() {
		errs = append(errs, ep.Check(ctx))
	}
	return errors.Join(errs...)
}

func (t *Transport) Setup(ctx context.Context) error {
	var errs []error
	for _, ep := range t.streams() {
		errs = append(errs, ep.Setup(ctx))
	}
	return errors.Join(errs...)
}

func (t *Transport) Teardown(ctx context.Context) error {
	var errs []error
	for _, ep := range t.streams() {
		errs = append(errs, ep.Teardown(ctx))
	}
	return errors.Join(errs...)
}

// StartListeners starts every listener. When one fails the listeners already
// started are stopped again and the error is returned.
func (t *Transport) StartListeners(ctx context.Context) error {
	var started []*listener.Listener
	for _, ep := range t.Endpoints() {
		if ep.listener == nil {
			continue
		}
		if err := ep.listener.Start(ctx); err != nil {
			for _, l := range started {
				_ = l.Stop(context.WithoutCancel(ctx))
			}
			return err
		}
		started = append(started, ep.listener)
	}
	return nil
}

// StopListeners stops every listener and joins their errors.
func (t *Transport) StopListeners(ctx context.Context) error {
	var errs []error
	for _, ep := range t.Endpoints() {
		if ep.listener != nil {
			errs = append(errs, ep.listener.Stop(ctx))
		}
	}
	return errors.Join(errs...)
}
