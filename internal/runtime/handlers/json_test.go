package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/hubflow/internal/runtime/envelope"
	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/internal/runtime/metadata"
)

type orderPlaced struct {
	OrderID string `json:"order_id"`
	Amount  int    `json:"amount"`
}

func TestBuildJSONReceiverDecodesPayload(t *testing.T) {
	var got JSONMessageContext[*orderPlaced]
	receiver, err := BuildJSONReceiver(func(ctx context.Context, evt JSONMessageContext[*orderPlaced]) error {
		got = evt
		return nil
	}, nil)
	require.NoError(t, err)

	env := envelope.New("orders.OrderPlaced", []byte(`{"order_id":"o-1","amount":12}`))
	env.ParentID = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	env.Destination = "orders"
	env.Headers = metadata.Metadata{"tenant": "acme"}

	require.NoError(t, receiver.Deliver(context.Background(), env))
	require.NotNil(t, got.Payload)
	assert.Equal(t, "o-1", got.Payload.OrderID)
	assert.Equal(t, 12, got.Payload.Amount)
	assert.Equal(t, "acme", got.Header("tenant"))
	assert.Equal(t, "", got.Header("missing"))
	assert.Equal(t, env.ParentID, got.CausationID())
	assert.Equal(t, "orders", got.Destination())
	assert.NotNil(t, got.Logger)
}

func TestBuildJSONReceiverEmptyData(t *testing.T) {
	called := false
	receiver, err := BuildJSONReceiver(func(ctx context.Context, evt JSONMessageContext[*orderPlaced]) error {
		called = true
		require.NotNil(t, evt.Payload)
		assert.Equal(t, orderPlaced{}, *evt.Payload)
		return nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, receiver.Deliver(context.Background(), envelope.New("orders.OrderPlaced", nil)))
	assert.True(t, called)
}

func TestBuildJSONReceiverUnmarshalError(t *testing.T) {
	receiver, err := BuildJSONReceiver(func(ctx context.Context, evt JSONMessageContext[*orderPlaced]) error {
		t.Fatal("handler must not run")
		return nil
	}, nil)
	require.NoError(t, err)

	err = receiver.Deliver(context.Background(), envelope.New("orders.OrderPlaced", []byte(`{broken`)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal orders.OrderPlaced payload")
}

func TestBuildJSONReceiverPropagatesHandlerError(t *testing.T) {
	boom := errors.New("boom")
	receiver, err := BuildJSONReceiver(func(ctx context.Context, evt JSONMessageContext[*orderPlaced]) error {
		return boom
	}, nil)
	require.NoError(t, err)

	err = receiver.Deliver(context.Background(), envelope.New("orders.OrderPlaced", []byte(`{}`)))
	assert.ErrorIs(t, err, boom)
}

func TestBuildJSONReceiverValidation(t *testing.T) {
	_, err := BuildJSONReceiver[*orderPlaced](nil, nil)
	assert.ErrorIs(t, err, errspkg.ErrHandlerRequired)

	_, err = BuildJSONReceiver(func(context.Context, JSONMessageContext[orderPlaced]) error { return nil }, nil)
	assert.ErrorIs(t, err, errspkg.ErrPointerTypeRequired)

	_, err = BuildJSONReceiver(func(context.Context, JSONMessageContext[any]) error { return nil }, nil)
	assert.ErrorIs(t, err, errspkg.ErrPointerTypeRequired)
}

func TestMessageContextBaseWithoutEnvelope(t *testing.T) {
	var b MessageContextBase
	assert.Equal(t, "", b.Header("x"))
	assert.Equal(t, "", b.CausationID())
	assert.Equal(t, "", b.Destination())
}
