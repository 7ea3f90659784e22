package listener

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/hubflow/internal/runtime/codec"
	"github.com/drblury/hubflow/internal/runtime/config"
	"github.com/drblury/hubflow/internal/runtime/envelope"
	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/internal/runtime/inbox"
	"github.com/drblury/hubflow/internal/runtime/metrics"
	"github.com/drblury/hubflow/transport"
	"github.com/drblury/hubflow/transport/checkpoint"
	"github.com/drblury/hubflow/transport/memory"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type collector struct {
	mu   sync.Mutex
	envs []*envelope.Envelope
}

func (c *collector) Deliver(_ context.Context, env *envelope.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.envs)
}

func (c *collector) get(i int) *envelope.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.envs[i]
}

func newHubClient(t *testing.T, opts ...memory.Option) (*memory.Hub, *memory.Client) {
	t.Helper()
	hub := memory.NewHub(append([]memory.Option{memory.WithPartitions(2), memory.WithAutoCreate()}, opts...)...)
	client := memory.NewClient(hub, nil)
	t.Cleanup(func() { _ = client.Close() })
	return hub, client
}

func publish(t *testing.T, client transport.Client, stream string, env *envelope.Envelope) {
	t.Helper()
	msg, err := codec.New().Encode(env)
	require.NoError(t, err)
	require.NoError(t, client.Send(context.Background(), stream, msg))
}

func stopOnCleanup(t *testing.T, l *Listener) {
	t.Cleanup(func() { _ = l.Stop(context.Background()) })
}

func TestNewValidation(t *testing.T) {
	_, client := newHubClient(t)
	recv := &collector{}

	_, err := New(Config{}, client, recv)
	assert.ErrorIs(t, err, errspkg.ErrStreamRequired)
	_, err = New(Config{Stream: "orders"}, nil, recv)
	assert.ErrorIs(t, err, errspkg.ErrClientRequired)
	_, err = New(Config{Stream: "orders"}, client, nil)
	assert.ErrorIs(t, err, errspkg.ErrReceiverRequired)

	l, err := New(Config{Stream: "orders"}, client, recv)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConsumerGroup, l.Config().ConsumerGroup)
	assert.Equal(t, config.ModeBuffered, l.Config().Mode)
	assert.Equal(t, "orders", l.Config().Address)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestLifecycle(t *testing.T) {
	_, client := newHubClient(t)
	l, err := New(Config{Stream: "orders"}, client, &collector{})
	require.NoError(t, err)
	assert.Equal(t, StateStopped, l.State())

	require.NoError(t, l.Start(context.Background()))
	assert.Equal(t, StateRunning, l.State())
	assert.ErrorIs(t, l.Start(context.Background()), errspkg.ErrAlreadyStarted)

	require.NoError(t, l.Stop(context.Background()))
	assert.Equal(t, StateStopped, l.State())
	require.NoError(t, l.Stop(context.Background()), "repeated stop is a no-op")

	require.NoError(t, l.Start(context.Background()), "a stopped listener can start again")
	require.NoError(t, l.Stop(context.Background()))
}

type failingClient struct {
	transport.Client
	err error
}

func (c failingClient) NewProcessor(string, string) (transport.Processor, error) {
	return nil, c.err
}

func TestStartFailureReturnsToStopped(t *testing.T) {
	_, client := newHubClient(t)
	boom := errors.New("namespace unreachable")
	l, err := New(Config{Stream: "orders"}, failingClient{Client: client, err: boom}, &collector{})
	require.NoError(t, err)

	err = l.Start(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateStopped, l.State())
}

type stubbornProcessor struct {
	stopErrs []error
	stops    int
}

func (p *stubbornProcessor) Start(context.Context, transport.EventHandler, transport.ErrorHandler) error {
	return nil
}

func (p *stubbornProcessor) Stop(context.Context) error {
	p.stops++
	if len(p.stopErrs) == 0 {
		return nil
	}
	err := p.stopErrs[0]
	p.stopErrs = p.stopErrs[1:]
	return err
}

type stubProcessorClient struct {
	transport.Client
	proc transport.Processor
}

func (c stubProcessorClient) NewProcessor(string, string) (transport.Processor, error) {
	return c.proc, nil
}

func TestStopTimeoutKeepsListenerStopping(t *testing.T) {
	_, client := newHubClient(t)
	proc := &stubbornProcessor{stopErrs: []error{context.DeadlineExceeded}}
	l, err := New(Config{Stream: "orders"}, stubProcessorClient{Client: client, proc: proc}, &collector{})
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))

	err = l.Stop(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateStopping, l.State())
	assert.ErrorIs(t, l.Start(context.Background()), errspkg.ErrAlreadyStarted, "readers may still be running")

	require.NoError(t, l.Stop(context.Background()))
	assert.Equal(t, StateStopped, l.State())
	assert.Equal(t, 2, proc.stops)
	require.NoError(t, l.Stop(context.Background()))
	assert.Equal(t, 2, proc.stops, "stopping a stopped listener does not touch the processor")

	require.NoError(t, l.Start(context.Background()))
	require.NoError(t, l.Stop(context.Background()))
}

func TestDeliversDecodedEnvelopes(t *testing.T) {
	_, client := newHubClient(t)
	recv := &collector{}
	m := metrics.New(prometheus.NewRegistry())
	l, err := New(Config{Stream: "orders", Address: "eventhub://orders"}, client, recv, WithMetrics(m))
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	stopOnCleanup(t, l)

	env := envelope.New("orders.placed", []byte(`{"id":1}`))
	env.PartitionKey = "tenant-1"
	publish(t, client, "orders", env)

	require.Eventually(t, func() bool { return recv.len() == 1 }, waitFor, tick)
	got := recv.get(0)
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, "orders.placed", got.MessageType)
	assert.Equal(t, "tenant-1", got.PartitionKey)
	assert.Equal(t, "eventhub://orders", got.Destination)

	require.Eventually(t, func() bool {
		return m.Snapshot().Streams["orders"].Checkpointed == 1
	}, waitFor, tick)
	assert.Equal(t, uint64(1), m.Snapshot().Streams["orders"].Received)
}

func TestFailedDeliveryIsRedeliveredAfterRestart(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	_, client := newHubClient(t, memory.WithCheckpointStore(store, false), memory.WithRedeliveryDelay(time.Hour))

	var attempts atomic.Int32
	var ids sync.Map
	recv := ReceiverFunc(func(_ context.Context, env *envelope.Envelope) error {
		n := attempts.Add(1)
		ids.Store(n, env.ID)
		if n == 1 {
			return errors.New("transient failure")
		}
		return nil
	})

	env := envelope.New("orders.placed", []byte("x"))
	env.PartitionKey = "k"
	publish(t, client, "orders", env)

	first, err := New(Config{Stream: "orders"}, client, recv)
	require.NoError(t, err)
	require.NoError(t, first.Start(context.Background()))
	require.Eventually(t, func() bool { return attempts.Load() == 1 }, waitFor, tick)
	require.NoError(t, first.Stop(context.Background()))

	for _, p := range []string{"0", "1"} {
		_, ok, err := store.Load(context.Background(), checkpoint.Key{Stream: "orders", ConsumerGroup: config.DefaultConsumerGroup, Partition: p})
		require.NoError(t, err)
		assert.False(t, ok, "failed delivery must not checkpoint")
	}

	second, err := New(Config{Stream: "orders"}, client, recv)
	require.NoError(t, err)
	require.NoError(t, second.Start(context.Background()))
	stopOnCleanup(t, second)
	require.Eventually(t, func() bool { return attempts.Load() == 2 }, waitFor, tick)

	firstID, _ := ids.Load(int32(1))
	secondID, _ := ids.Load(int32(2))
	assert.Equal(t, env.ID, firstID)
	assert.Equal(t, env.ID, secondID)

	require.Eventually(t, func() bool {
		for _, p := range []string{"0", "1"} {
			if cp, ok, _ := store.Load(context.Background(), checkpoint.Key{Stream: "orders", ConsumerGroup: config.DefaultConsumerGroup, Partition: p}); ok {
				return cp.Offset == 0
			}
		}
		return false
	}, waitFor, tick)
}

func TestReceiverPanicIsContained(t *testing.T) {
	_, client := newHubClient(t, memory.WithPartitions(1), memory.WithRedeliveryDelay(time.Millisecond))
	m := metrics.New(prometheus.NewRegistry())

	var (
		calls atomic.Int32
		mu    sync.Mutex
		types []string
	)
	recv := ReceiverFunc(func(_ context.Context, env *envelope.Envelope) error {
		mu.Lock()
		types = append(types, env.MessageType)
		mu.Unlock()
		if calls.Add(1) == 1 {
			panic("handler bug")
		}
		return nil
	})

	var hookErr atomic.Value
	hooks := DeliveryHooks{OnDeliveryError: func(_ DeliveryContext, err error) { hookErr.Store(err.Error()) }}

	l, err := New(Config{Stream: "orders"}, client, recv, WithMetrics(m), WithHooks(hooks))
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	stopOnCleanup(t, l)

	publish(t, client, "orders", envelope.New("a", []byte("1")))
	publish(t, client, "orders", envelope.New("b", []byte("2")))

	require.Eventually(t, func() bool { return calls.Load() == 3 }, waitFor, tick)
	require.Eventually(t, func() bool {
		s := m.Snapshot().Streams["orders"]
		return s.DeliveryFailures == 1 && s.Checkpointed == 2
	}, waitFor, tick)
	assert.Equal(t, "receiver panic: handler bug", hookErr.Load())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "a", "b"}, types, "the failed envelope is delivered again before the next one")
}

func TestFailedDeliveryIsNotSkippedByLaterSuccess(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	_, client := newHubClient(t, memory.WithPartitions(1), memory.WithCheckpointStore(store, false), memory.WithRedeliveryDelay(time.Hour))

	var (
		mu         sync.Mutex
		deliveries = map[string]int{}
	)
	recv := ReceiverFunc(func(_ context.Context, env *envelope.Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		deliveries[env.MessageType]++
		if env.MessageType == "a" && deliveries["a"] == 1 {
			return errors.New("transient failure")
		}
		return nil
	})
	count := func(messageType string) int {
		mu.Lock()
		defer mu.Unlock()
		return deliveries[messageType]
	}
	key := checkpoint.Key{Stream: "orders", ConsumerGroup: config.DefaultConsumerGroup, Partition: "0"}

	publish(t, client, "orders", envelope.New("a", []byte("1")))
	publish(t, client, "orders", envelope.New("b", []byte("2")))

	first, err := New(Config{Stream: "orders"}, client, recv)
	require.NoError(t, err)
	require.NoError(t, first.Start(context.Background()))
	require.Eventually(t, func() bool { return count("a") == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return count("b") > 0 }, 50*time.Millisecond, tick, "b waits behind the failed a")
	require.NoError(t, first.Stop(context.Background()))

	_, ok, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)

	second, err := New(Config{Stream: "orders"}, client, recv)
	require.NoError(t, err)
	require.NoError(t, second.Start(context.Background()))
	stopOnCleanup(t, second)

	require.Eventually(t, func() bool { return count("a") == 2 && count("b") == 1 }, waitFor, tick)
	require.Eventually(t, func() bool {
		cp, ok, _ := store.Load(context.Background(), key)
		return ok && cp.Offset == 1
	}, waitFor, tick)
}

func TestCorruptCloudEventFallsBack(t *testing.T) {
	_, client := newHubClient(t)
	recv := &collector{}
	m := metrics.New(prometheus.NewRegistry())
	l, err := New(Config{Stream: "orders"}, client, recv, WithMetrics(m))
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	stopOnCleanup(t, l)

	require.NoError(t, client.Send(context.Background(), "orders", &transport.Message{
		Body:        []byte(`{"specversion":`),
		ContentType: "application/cloudevents+json",
		Properties:  map[string]any{"ce_specversion": "1.0", "ce_type": "orders.placed"},
	}))

	require.Eventually(t, func() bool { return recv.len() == 1 }, waitFor, tick)
	assert.Equal(t, "orders.placed", recv.get(0).MessageType)
	require.Eventually(t, func() bool {
		return m.Snapshot().Streams["orders"].DecodeFallbacks == 1
	}, waitFor, tick)
}

func TestHeartbeatReadsAreSkipped(t *testing.T) {
	_, client := newHubClient(t, memory.WithHeartbeat(5*time.Millisecond))
	var calls atomic.Int32
	recv := ReceiverFunc(func(context.Context, *envelope.Envelope) error {
		calls.Add(1)
		return nil
	})
	l, err := New(Config{Stream: "orders"}, client, recv)
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, l.Stop(context.Background()))
	assert.Zero(t, calls.Load())
}

func TestDurableModeSkipsCompletedEnvelopes(t *testing.T) {
	_, client := newHubClient(t, memory.WithPartitions(1))
	store := inbox.NewMemoryStore()
	recv := &collector{}
	m := metrics.New(prometheus.NewRegistry())

	l, err := New(Config{Stream: "orders", Mode: config.ModeDurable}, client, recv, WithInbox(store), WithMetrics(m))
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	stopOnCleanup(t, l)

	env := envelope.New("orders.placed", []byte("x"))
	publish(t, client, "orders", env)
	publish(t, client, "orders", env)

	require.Eventually(t, func() bool {
		return m.Snapshot().Streams["orders"].Checkpointed == 2
	}, waitFor, tick)
	assert.Equal(t, 1, recv.len(), "duplicate of a completed envelope is not dispatched")

	entry, ok, err := store.Get(context.Background(), "orders", env.ID.String())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, entry.Completed())
}

func TestDurableModeLeavesFailedEntriesPending(t *testing.T) {
	_, client := newHubClient(t, memory.WithPartitions(1))
	store := inbox.NewMemoryStore()
	var calls atomic.Int32
	recv := ReceiverFunc(func(context.Context, *envelope.Envelope) error {
		calls.Add(1)
		return errors.New("down")
	})

	l, err := New(Config{Stream: "orders", Mode: config.ModeDurable}, client, recv, WithInbox(store))
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	stopOnCleanup(t, l)

	publish(t, client, "orders", envelope.New("orders.placed", []byte("x")))
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, waitFor, tick)

	require.Eventually(t, func() bool {
		pending, err := store.Pending(context.Background(), "orders")
		return err == nil && len(pending) == 1
	}, waitFor, tick)
}

func TestDeferAndRequeueAreUnsupported(t *testing.T) {
	_, client := newHubClient(t)
	l, err := New(Config{Stream: "orders"}, client, &collector{})
	require.NoError(t, err)

	env := envelope.New("orders.placed", nil)
	assert.NoError(t, l.Defer(context.Background(), env))
	assert.False(t, l.TryRequeue(context.Background(), env))
}

func TestHooksMerge(t *testing.T) {
	var order []string
	a := DeliveryHooks{
		OnDeliveryStart: func(DeliveryContext) { order = append(order, "a-start") },
		OnDeliveryError: func(DeliveryContext, error) { order = append(order, "a-error") },
	}
	b := DeliveryHooks{
		OnDeliveryStart: func(DeliveryContext) { order = append(order, "b-start") },
		OnDeliveryDone:  func(DeliveryContext) { order = append(order, "b-done") },
	}

	merged := a.Merge(b)
	merged.OnDeliveryStart(DeliveryContext{})
	merged.OnDeliveryDone(DeliveryContext{})
	merged.OnDeliveryError(DeliveryContext{}, errors.New("x"))

	assert.Equal(t, []string{"a-start", "b-start", "b-done", "a-error"}, order)
}

func TestHooksObserveDelivery(t *testing.T) {
	_, client := newHubClient(t)
	done := make(chan DeliveryContext, 1)
	hooks := DeliveryHooks{OnDeliveryDone: func(dc DeliveryContext) { done <- dc }}

	l, err := New(Config{Stream: "orders", ConsumerGroup: "audit"}, client, &collector{}, WithHooks(hooks))
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	stopOnCleanup(t, l)

	env := envelope.New("orders.placed", []byte("x"))
	publish(t, client, "orders", env)

	select {
	case dc := <-done:
		assert.Equal(t, "orders", dc.Stream)
		assert.Equal(t, "audit", dc.ConsumerGroup)
		assert.Equal(t, env.ID, dc.Envelope.ID)
		assert.NotEmpty(t, dc.Position.Partition)
	case <-time.After(waitFor):
		t.Fatal("delivery hook not called")
	}
}
