package runtime

import (
	"reflect"

	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/hubflow/internal/runtime/handlers"
	"github.com/drblury/hubflow/internal/runtime/listener"
)

// JSONReceiverRegistration wires a typed JSON handler to an endpoint address.
type JSONReceiverRegistration[T any] struct {
	Address string
	// MessageType registers the wire name of T. Empty keeps the current name.
	MessageType string
	Handler     handlerpkg.JSONMessageHandler[T]
	Options     []listener.Option
}

// RegisterJSONReceiver decodes every envelope on the address into T and passes
// it to the handler.
func RegisterJSONReceiver[T any](svc *Service, cfg JSONReceiverRegistration[T]) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}

	receiver, err := handlerpkg.BuildJSONReceiver(cfg.Handler, svc.Logger)
	if err != nil {
		return err
	}
	if cfg.MessageType != "" {
		var zero T
		svc.RegisterMessageType(zero, cfg.MessageType)
	}

	_, err = svc.Listen(cfg.Address, receiver, cfg.Options...)
	return err
}

// RegisterMessageType sets the wire name Publish uses for values of sample's
// type. Pointer and value types share one name.
func (s *Service) RegisterMessageType(sample any, name string) {
	t := baseType(reflect.TypeOf(sample))
	if t == nil || name == "" {
		return
	}

	s.messageTypesMu.Lock()
	s.messageTypes[t] = name
	s.messageTypesMu.Unlock()
}

// MessageTypeOf returns the registered wire name of message's type, or its Go
// type name such as "orders.OrderPlaced".
func (s *Service) MessageTypeOf(message any) string {
	t := baseType(reflect.TypeOf(message))
	if t == nil {
		return ""
	}

	s.messageTypesMu.RLock()
	name, ok := s.messageTypes[t]
	s.messageTypesMu.RUnlock()
	if ok {
		return name
	}
	return t.String()
}

func baseType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
