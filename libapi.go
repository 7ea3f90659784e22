package hubflow

import (
	runtimepkg "github.com/drblury/hubflow/internal/runtime"
	"github.com/drblury/hubflow/internal/runtime/codec"
	configpkg "github.com/drblury/hubflow/internal/runtime/config"
	"github.com/drblury/hubflow/internal/runtime/endpoint"
	"github.com/drblury/hubflow/internal/runtime/envelope"
	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/hubflow/internal/runtime/handlers"
	idspkg "github.com/drblury/hubflow/internal/runtime/ids"
	"github.com/drblury/hubflow/internal/runtime/inbox"
	jsoncodec "github.com/drblury/hubflow/internal/runtime/jsoncodec"
	"github.com/drblury/hubflow/internal/runtime/listener"
	loggingpkg "github.com/drblury/hubflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/hubflow/internal/runtime/metadata"
	"github.com/drblury/hubflow/internal/runtime/partitionkey"
	transportpkg "github.com/drblury/hubflow/internal/runtime/transport"
	brokertransport "github.com/drblury/hubflow/transport"
)

type (
	Config               = configpkg.Config
	Service              = runtimepkg.Service
	ServiceDependencies  = runtimepkg.ServiceDependencies
	TransportFactory     = transportpkg.Factory
	TransportFactoryFunc = transportpkg.FactoryFunc

	Envelope = envelope.Envelope
	Metadata = metadatapkg.Metadata
	Codec    = codec.Codec

	PublishOption = runtimepkg.PublishOption

	Receiver        = listener.Receiver
	ReceiverFunc    = listener.ReceiverFunc
	Listener        = listener.Listener
	ListenerOption  = listener.Option
	ListenerState   = listener.State
	DeliveryContext = listener.DeliveryContext
	DeliveryHooks   = listener.DeliveryHooks

	Endpoint        = endpoint.Endpoint
	EndpointAddress = endpoint.Address

	JSONReceiverRegistration[T any] = runtimepkg.JSONReceiverRegistration[T]
	JSONMessageContext[T any]       = handlerpkg.JSONMessageContext[T]
	JSONMessageHandler[T any]       = handlerpkg.JSONMessageHandler[T]
	MessageContextBase              = handlerpkg.MessageContextBase

	InboxStore = inbox.Store

	PartitionKeyResolver = partitionkey.Resolver

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	StatusReport   = runtimepkg.StatusReport
	EndpointStatus = runtimepkg.EndpointStatus

	ConfigValidationError = errspkg.ConfigValidationError

	TransportBuilder      = brokertransport.Builder
	TransportConfig       = brokertransport.Config
	TransportClient       = brokertransport.Client
	TransportRegistry     = brokertransport.Registry
	TransportCapabilities = brokertransport.Capabilities
)

const (
	ModeBuffered = configpkg.ModeBuffered
	ModeDurable  = configpkg.ModeDurable
	ModeInline   = configpkg.ModeInline

	DefaultConsumerGroup = configpkg.DefaultConsumerGroup
	EndpointScheme       = endpoint.Scheme
	PartitionKeyTag      = partitionkey.TagName
)

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	DefaultConfig  = configpkg.Default
	ConfigFromEnv  = configpkg.FromEnv
	ValidateConfig = configpkg.ValidateConfig

	NewEnvelope         = envelope.New
	ParseEndpoint       = endpoint.Parse
	ResolvePartitionKey = partitionkey.Resolve

	WithPartitionKey = runtimepkg.WithPartitionKey
	WithMessageType  = runtimepkg.WithMessageType
	WithHeaders      = runtimepkg.WithHeaders
	WithParentID     = runtimepkg.WithParentID

	WithListenerHooks = listener.WithHooks
	LoggingHooks      = listener.LoggingHooks
	AlertingHooks     = listener.AlertingHooks

	NewMemoryInbox  = inbox.NewMemoryStore
	OpenPebbleInbox = inbox.OpenPebbleStore

	GetCapabilities          = brokertransport.GetCapabilities
	DefaultTransportRegistry = brokertransport.DefaultRegistry
	RegisterTransport        = brokertransport.Register
	BuildTransport           = brokertransport.Build

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode
	Decode    = jsoncodec.Decode

	ErrServiceRequired     = errspkg.ErrServiceRequired
	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrLoggerRequired      = errspkg.ErrLoggerRequired
	ErrHandlerRequired     = errspkg.ErrHandlerRequired
	ErrPointerTypeRequired = errspkg.ErrPointerTypeRequired
	ErrReceiverRequired    = errspkg.ErrReceiverRequired
	ErrStreamRequired      = errspkg.ErrStreamRequired
	ErrEnvelopeRequired    = errspkg.ErrEnvelopeRequired
	ErrMessageRequired     = errspkg.ErrMessageRequired
	ErrMessageTypeRequired = errspkg.ErrMessageTypeRequired
	ErrMessageTooLarge     = errspkg.ErrMessageTooLarge
	ErrInvalidEndpoint     = errspkg.ErrInvalidEndpoint
	ErrStreamNotFound      = errspkg.ErrStreamNotFound
	ErrAlreadyStarted      = errspkg.ErrAlreadyStarted
	ErrNotSupported        = errspkg.ErrNotSupported

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewNopLogger         = loggingpkg.NewNopLogger

	NewMetadata   = metadatapkg.New
	NewInstanceID = idspkg.NewInstanceID
)

// Listener states.
const (
	ListenerStopped  = listener.StateStopped
	ListenerStarting = listener.StateStarting
	ListenerRunning  = listener.StateRunning
	ListenerStopping = listener.StateStopping
)

func RegisterJSONReceiver[T any](svc *Service, cfg JSONReceiverRegistration[T]) error {
	return runtimepkg.RegisterJSONReceiver(svc, cfg)
}
