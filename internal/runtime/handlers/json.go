// Package handlers adapts typed callbacks to listener receivers.
package handlers

import (
	"context"
	"fmt"
	"reflect"

	"github.com/drblury/hubflow/internal/runtime/envelope"
	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/internal/runtime/jsoncodec"
	"github.com/drblury/hubflow/internal/runtime/listener"
	loggingpkg "github.com/drblury/hubflow/internal/runtime/logging"
)

// JSONMessageContext exposes the decoded payload next to the envelope it
// arrived in.
type JSONMessageContext[T any] struct {
	MessageContextBase
	Payload T
}

// JSONMessageHandler processes one decoded payload. Returning an error leaves
// the checkpoint in place so the message is delivered again.
type JSONMessageHandler[T any] func(ctx context.Context, event JSONMessageContext[T]) error

// BuildJSONReceiver converts a typed JSON handler into a listener.Receiver.
// T must be a pointer type. Envelopes without data reach the handler with a
// zero payload.
func BuildJSONReceiver[T any](handler JSONMessageHandler[T], logger loggingpkg.ServiceLogger) (listener.Receiver, error) {
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}

	newPayload, err := jsonPrototypeFactory[T]()
	if err != nil {
		return nil, err
	}

	return listener.ReceiverFunc(func(ctx context.Context, env *envelope.Envelope) error {
		payload := newPayload()
		if len(env.Data) > 0 {
			if err := jsoncodec.Unmarshal(env.Data, payload); err != nil {
				return fmt.Errorf("unmarshal %s payload: %w", env.MessageType, err)
			}
		}

		return handler(ctx, JSONMessageContext[T]{
			MessageContextBase: MessageContextBase{
				Envelope: env,
				Logger:   logger.With(env.LogFields()),
			},
			Payload: payload,
		})
	}), nil
}

func jsonPrototypeFactory[T any]() (func() T, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("%w: got %v", errspkg.ErrPointerTypeRequired, typ)
	}
	elem := typ.Elem()
	return func() T {
		return reflect.New(elem).Interface().(T)
	}, nil
}
