package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
)

type mockConfig struct {
	transport string
}

func (m *mockConfig) GetTransport() string               { return m.transport }
func (m *mockConfig) GetKafkaBrokers() []string          { return nil }
func (m *mockConfig) GetKafkaClientID() string           { return "" }
func (m *mockConfig) GetKafkaConsumerGroup() string      { return "" }
func (m *mockConfig) GetMemoryPartitions() int           { return 0 }
func (m *mockConfig) GetCheckpointDir() string           { return "" }
func (m *mockConfig) GetProvisionPartitions() int        { return 0 }
func (m *mockConfig) GetProvisionReplicationFactor() int { return 0 }

type mockClient struct{}

func (mockClient) Send(context.Context, string, *Message) error   { return nil }
func (mockClient) NewProcessor(string, string) (Processor, error) { return nil, nil }
func (mockClient) CreateStream(context.Context, StreamSpec) error { return nil }
func (mockClient) Close() error                                   { return nil }
func (mockClient) StreamProperties(context.Context, string) (StreamInfo, error) {
	return StreamInfo{}, nil
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.NotNil(t, reg.builders)
	assert.NotNil(t, reg.capabilities)
	assert.Empty(t, reg.Names())
}

func TestRegistry_RegisterAndBuild(t *testing.T) {
	reg := NewRegistry()

	var gotLogger watermill.LoggerAdapter
	reg.Register("test-transport", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Client, error) {
		gotLogger = logger
		return mockClient{}, nil
	})

	assert.True(t, reg.Has("test-transport"))
	assert.False(t, reg.Has("other"))

	client, err := reg.Build(context.Background(), &mockConfig{transport: "test-transport"}, nil)
	require.NoError(t, err)
	assert.Equal(t, mockClient{}, client)
	assert.NotNil(t, gotLogger, "nil logger should be replaced with a nop logger")
}

func TestRegistry_BuildErrors(t *testing.T) {
	reg := NewRegistry()
	reg.Register("b", func(context.Context, Config, watermill.LoggerAdapter) (Client, error) {
		return nil, errors.New("dial failed")
	})
	reg.Register("a", func(context.Context, Config, watermill.LoggerAdapter) (Client, error) {
		return mockClient{}, nil
	})

	_, err := reg.Build(context.Background(), nil, nil)
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)

	_, err = reg.Build(context.Background(), &mockConfig{transport: "nope"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown transport: "nope"`)
	assert.Contains(t, err.Error(), "[a b]")

	_, err = reg.Build(context.Background(), &mockConfig{transport: "b"}, nil)
	assert.EqualError(t, err, "dial failed")
}

func TestRegistry_Capabilities(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterWithCapabilities("kafka", func(context.Context, Config, watermill.LoggerAdapter) (Client, error) {
		return mockClient{}, nil
	}, KafkaCapabilities)

	assert.Equal(t, KafkaCapabilities, reg.GetCapabilities("kafka"))
	assert.Equal(t, Capabilities{Name: "unknown"}, reg.GetCapabilities("unknown"))
}
