package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/hubflow/internal/runtime/codec"
	configpkg "github.com/drblury/hubflow/internal/runtime/config"
	"github.com/drblury/hubflow/internal/runtime/endpoint"
	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/internal/runtime/ids"
	"github.com/drblury/hubflow/internal/runtime/inbox"
	"github.com/drblury/hubflow/internal/runtime/listener"
	loggingpkg "github.com/drblury/hubflow/internal/runtime/logging"
	"github.com/drblury/hubflow/internal/runtime/metrics"
	"github.com/drblury/hubflow/internal/runtime/partitionkey"
	transportpkg "github.com/drblury/hubflow/internal/runtime/transport"
	brokertransport "github.com/drblury/hubflow/transport"
)

const shutdownTimeout = 10 * time.Second

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to get the defaults.
type ServiceDependencies struct {
	TransportFactory transportpkg.Factory
	// Registry receives the pipeline collectors. Nil creates a private registry.
	Registry *prometheus.Registry
	// Inbox backs durable endpoints. Nil opens a pebble inbox at
	// Config.InboxDir, or keeps one in memory per listener.
	Inbox inbox.Store
	// Hooks are attached to every listener created through the Service.
	Hooks    listener.DeliveryHooks
	Resolver *partitionkey.Resolver
}

// Service owns one broker client and the endpoints addressed through it.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	instanceID string
	client     brokertransport.Client
	transport  *endpoint.Transport
	codec      *codec.Codec
	resolver   *partitionkey.Resolver
	metrics    *metrics.Pipeline
	registry   *prometheus.Registry
	hooks      listener.DeliveryHooks

	inbox     inbox.Store
	ownsInbox bool

	messageTypes   map[reflect.Type]string
	messageTypesMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	resourceTracker *resourceTracker
	closeOnce       sync.Once
	closeErr        error
}

// NewService constructs a Service for the supplied configuration and panics
// when it cannot. Register listeners on the returned Service before calling
// Start.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	s, err := TryNewService(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewService is NewService returning the construction error.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	instanceID := ids.NewInstanceID()
	log = log.With(loggingpkg.LogFields{"instance_id": instanceID})
	log.Info("Creating event service", loggingpkg.LogFields{
		"transport": conf.GetTransport(),
		"config":    conf.String(),
	})

	s := &Service{
		Conf:            conf,
		Logger:          log,
		instanceID:      instanceID,
		codec:           codec.New(codec.WithSource(conf.ServiceSource)),
		resolver:        deps.Resolver,
		registry:        deps.Registry,
		hooks:           deps.Hooks,
		inbox:           deps.Inbox,
		messageTypes:    make(map[reflect.Type]string),
		resourceTracker: newResourceTracker(),
	}
	if s.resolver == nil {
		s.resolver = partitionkey.Default
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = metrics.New(s.registry)
	if err := s.metrics.Register(); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	if s.inbox == nil && conf.InboxDir != "" {
		store, err := inbox.OpenPebbleStore(conf.InboxDir)
		if err != nil {
			return nil, err
		}
		s.inbox = store
		s.ownsInbox = true
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	client, err := factory.Build(ctx, conf, loggingpkg.NewWatermillAdapter(log))
	if err != nil {
		s.closeInbox()
		return nil, fmt.Errorf("build %s transport: %w", conf.GetTransport(), err)
	}
	s.client = client

	opts := []endpoint.Option{
		endpoint.WithCodec(s.codec),
		endpoint.WithMetrics(s.metrics),
		endpoint.WithLogger(log),
		endpoint.WithCapabilities(transportpkg.Capabilities(client, conf)),
	}
	if s.inbox != nil {
		opts = append(opts, endpoint.WithInbox(s.inbox))
	}
	s.transport, err = endpoint.NewTransport(client, endpoint.SettingsFromConfig(conf), opts...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// InstanceID identifies this Service in logs.
func (s *Service) InstanceID() string {
	return s.instanceID
}

// Transport exposes the endpoint registry.
func (s *Service) Transport() *endpoint.Transport {
	return s.transport
}

// Metrics returns the pipeline statistics of this Service.
func (s *Service) Metrics() *metrics.Pipeline {
	return s.metrics
}

// Listen registers receiver on the endpoint at address. The listener starts
// with Start.
func (s *Service) Listen(address string, receiver listener.Receiver, opts ...listener.Option) (*endpoint.Endpoint, error) {
	if s == nil {
		return nil, errspkg.ErrServiceRequired
	}
	base := []listener.Option{listener.WithHooks(s.hooks)}
	return s.transport.Listen(address, receiver, append(base, opts...)...)
}

// Check verifies that every addressed stream exists.
func (s *Service) Check(ctx context.Context) error {
	return s.transport.Check(ctx)
}

// Setup provisions the addressed streams when the environment allows it.
func (s *Service) Setup(ctx context.Context) error {
	return s.transport.Setup(ctx)
}

// Teardown always fails with ErrNotSupported.
func (s *Service) Teardown(ctx context.Context) error {
	return s.transport.Teardown(ctx)
}

// Start provisions streams, starts every listener and blocks until ctx is
// cancelled. Listeners are stopped and the client is closed before it returns.
func (s *Service) Start(ctx context.Context) error {
	if err := s.transport.Setup(ctx); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	if err := s.transport.StartListeners(ctx); err != nil {
		return err
	}

	s.registerMetricsHandler()
	s.StartStatusServer()
	servers := s.startHTTPServers()
	s.Logger.Info("Event service started", loggingpkg.LogFields{"endpoints": len(s.transport.Endpoints())})

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error
	errs = append(errs, s.transport.StopListeners(stopCtx))
	for _, srv := range servers {
		errs = append(errs, srv.Shutdown(stopCtx))
	}
	errs = append(errs, s.Close())
	s.Logger.Info("Event service stopped", nil)
	return errors.Join(errs...)
}

// Close releases the broker client and an inbox the Service opened itself.
// Repeated calls return the first result.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.client != nil {
			errs = append(errs, s.client.Close())
		}
		errs = append(errs, s.closeInbox())
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func (s *Service) closeInbox() error {
	if !s.ownsInbox || s.inbox == nil {
		return nil
	}
	return s.inbox.Close()
}

func (s *Service) registerMetricsHandler() {
	if !s.Conf.MetricsEnabled {
		return
	}
	s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// RegisterHTTPHandler adds handler to the server listening on port. Servers
// start with Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() []*http.Server {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	servers := make([]*http.Server, 0, len(s.httpServers))
	for port, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
		servers = append(servers, srv)
	}
	return servers
}
