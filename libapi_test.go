package hubflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderPlaced struct {
	TenantID string `json:"tenant_id" partitionkey:"0"`
	OrderID  string `json:"order_id" partitionkey:"1"`
}

func TestRegisterJSONReceiverExportPropagatesErrors(t *testing.T) {
	err := RegisterJSONReceiver(nil, JSONReceiverRegistration[*orderPlaced]{})
	assert.True(t, errors.Is(err, ErrServiceRequired))
}

func TestServiceExports(t *testing.T) {
	cfg := DefaultConfig()
	svc, err := TryNewService(&cfg, NewNopLogger(), context.Background(), ServiceDependencies{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	env, err := svc.NewEnvelope(&orderPlaced{TenantID: "acme", OrderID: "o-1"}, WithHeaders(NewMetadata("k", "v")))
	require.NoError(t, err)
	assert.Equal(t, "acme|o-1", env.PartitionKey)
	assert.Equal(t, "v", env.Headers["k"])

	require.NoError(t, svc.SendEnvelope(context.Background(), "orders", env))
	assert.Equal(t, GetCapabilities("memory"), svc.Transport().Capabilities())
}

func TestEndpointExports(t *testing.T) {
	addr, err := ParseEndpoint("eventhub://orders?group=billing&mode=durable")
	require.NoError(t, err)
	assert.Equal(t, "orders", addr.Stream)
	assert.Equal(t, "billing", addr.ConsumerGroup)
	assert.Equal(t, ModeDurable, addr.Mode)

	_, err = ParseEndpoint("amqp://orders")
	assert.ErrorIs(t, err, ErrInvalidEndpoint)
}

func TestPartitionKeyExport(t *testing.T) {
	key, ok := ResolvePartitionKey(orderPlaced{TenantID: "a", OrderID: "b"})
	assert.True(t, ok)
	assert.Equal(t, "a|b", key)
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	data, err := Marshal(payload)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, Unmarshal(data, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestListenerStateExports(t *testing.T) {
	assert.Equal(t, "running", ListenerRunning.String())
	assert.Equal(t, "stopped", ListenerStopped.String())
}
