// Package listener consumes every partition of a stream under a consumer
// group, decodes each message into an envelope, hands it to a Receiver and
// checkpoints only after the receiver succeeded. Failed messages are left
// uncheckpointed so the broker redelivers them (at-least-once).
package listener

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/drblury/hubflow/internal/runtime/codec"
	"github.com/drblury/hubflow/internal/runtime/config"
	"github.com/drblury/hubflow/internal/runtime/envelope"
	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/internal/runtime/inbox"
	"github.com/drblury/hubflow/internal/runtime/logging"
	"github.com/drblury/hubflow/internal/runtime/metrics"
	"github.com/drblury/hubflow/transport"
)

// Receiver is the host capability envelopes are delivered to. Deliver may be
// called concurrently for different partitions and must be idempotent.
type Receiver interface {
	Deliver(ctx context.Context, env *envelope.Envelope) error
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, env *envelope.Envelope) error

func (f ReceiverFunc) Deliver(ctx context.Context, env *envelope.Envelope) error {
	return f(ctx, env)
}

// State is the lifecycle state of a Listener.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config binds a listener to a stream.
type Config struct {
	Stream        string
	ConsumerGroup string
	// Address is stamped on every envelope as its Destination.
	Address string
	// Mode is one of the config.Mode* processing modes.
	Mode string
}

// Option configures a Listener.
type Option func(*Listener)

func WithCodec(c *codec.Codec) Option {
	return func(l *Listener) {
		if c != nil {
			l.codec = c
		}
	}
}

// WithInbox sets the store used in durable mode.
func WithInbox(store inbox.Store) Option {
	return func(l *Listener) {
		l.inbox = store
	}
}

func WithHooks(hooks DeliveryHooks) Option {
	return func(l *Listener) {
		l.hooks = l.hooks.Merge(hooks)
	}
}

func WithMetrics(m *metrics.Pipeline) Option {
	return func(l *Listener) {
		l.metrics = m
	}
}

func WithLogger(logger logging.ServiceLogger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Listener is a partitioned, checkpointing consumer of one stream.
type Listener struct {
	cfg      Config
	client   transport.Client
	receiver Receiver
	codec    *codec.Codec
	inbox    inbox.Store
	hooks    DeliveryHooks
	metrics  *metrics.Pipeline
	logger   logging.ServiceLogger

	// mu serializes Start and Stop.
	mu        sync.Mutex
	state     atomic.Int32
	processor transport.Processor
}

// New returns a stopped listener.
func New(cfg Config, client transport.Client, receiver Receiver, opts ...Option) (*Listener, error) {
	if cfg.Stream == "" {
		return nil, errspkg.ErrStreamRequired
	}
	if client == nil {
		return nil, errspkg.ErrClientRequired
	}
	if receiver == nil {
		return nil, errspkg.ErrReceiverRequired
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = config.DefaultConsumerGroup
	}
	if cfg.Mode == "" {
		cfg.Mode = config.ModeBuffered
	}
	if cfg.Address == "" {
		cfg.Address = cfg.Stream
	}

	l := &Listener{
		cfg:      cfg,
		client:   client,
		receiver: receiver,
		codec:    codec.New(),
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if cfg.Mode == config.ModeDurable && l.inbox == nil {
		l.inbox = inbox.NewMemoryStore()
	}
	l.logger = l.logger.With(logging.LogFields{
		"stream":         cfg.Stream,
		"consumer_group": cfg.ConsumerGroup,
	})
	return l, nil
}

func (l *Listener) State() State {
	return State(l.state.Load())
}

func (l *Listener) Config() Config {
	return l.cfg
}

func (l *Listener) setState(s State) {
	l.state.Store(int32(s))
}

// Start creates the broker processor and returns once it is running.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.State() != StateStopped {
		return errspkg.ErrAlreadyStarted
	}
	l.setState(StateStarting)

	proc, err := l.client.NewProcessor(l.cfg.Stream, l.cfg.ConsumerGroup)
	if err == nil {
		err = proc.Start(ctx, l.handle, l.handleError)
	}
	if err != nil {
		l.setState(StateStopped)
		l.logger.Error("Listener failed to start", err, nil)
		return fmt.Errorf("start listener for %s: %w", l.cfg.Stream, err)
	}

	l.processor = proc
	l.setState(StateRunning)
	l.logger.Info("Listener started", logging.LogFields{"mode": l.cfg.Mode, "address": l.cfg.Address})
	return nil
}

// Stop cancels reads and waits for in-flight deliveries. When the processor
// does not finish before ctx ends the listener stays in StateStopping and
// cannot be started again until a later Stop completes. Stopping a listener
// that is already stopped is a no-op.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if state := l.State(); state != StateRunning && state != StateStopping {
		return nil
	}
	l.setState(StateStopping)

	if err := l.processor.Stop(ctx); err != nil {
		l.logger.Error("Listener did not stop; partitions still draining", err, nil)
		return fmt.Errorf("stop listener for %s: %w", l.cfg.Stream, err)
	}
	l.processor = nil
	l.setState(StateStopped)
	l.logger.Info("Listener stopped", nil)
	return nil
}

// Defer is not supported by partitioned streams. It logs a warning and does
// nothing; the message is only seen again through natural redelivery.
func (l *Listener) Defer(_ context.Context, env *envelope.Envelope) error {
	l.logger.Warn("Defer is not supported by partitioned streams; ignoring", envFields(env))
	return nil
}

// TryRequeue is not supported by partitioned streams and always reports false.
func (l *Listener) TryRequeue(_ context.Context, env *envelope.Envelope) bool {
	l.logger.Warn("Requeue is not supported by partitioned streams", envFields(env))
	return false
}

func envFields(env *envelope.Envelope) logging.LogFields {
	if env == nil {
		return nil
	}
	return env.LogFields()
}

func (l *Listener) handleError(_ context.Context, partition string, err error) {
	l.logger.Error("Partition processing error", err, logging.LogFields{"partition": partition})
}

// handle runs once per read. The transport calls it serially per partition.
func (l *Listener) handle(ctx context.Context, pc transport.PartitionContext, msg *transport.Message) {
	if msg.IsEmpty() {
		return
	}

	partition := pc.PartitionID()
	fields := logging.LogFields{
		"partition": partition,
		"offset":    msg.Position.Offset,
	}
	l.metrics.RecordReceived(l.cfg.Stream, partition)

	decoded, err := l.codec.Decode(msg)
	if err != nil {
		l.metrics.RecordDeliveryFailure(l.cfg.Stream, partition)
		l.logger.Error("Decode failed; checkpoint not updated", err, fields)
		return
	}
	env := decoded.Envelope
	fields["message_id"] = env.ID.String()
	if decoded.Fallback != nil {
		l.metrics.RecordDecodeFallback(l.cfg.Stream, partition)
		l.logger.Debug("Decoded with baseline mapping", logging.LogFields{
			"partition":  partition,
			"offset":     msg.Position.Offset,
			"message_id": env.ID.String(),
			"shape":      decoded.Shape.String(),
			"reason":     decoded.Fallback.Error(),
		})
	}
	env.Destination = l.cfg.Address

	if err := l.process(ctx, env, msg.Position); err != nil {
		l.metrics.RecordDeliveryFailure(l.cfg.Stream, partition)
		fields["message_type"] = env.MessageType
		l.logger.Error("Delivery failed; checkpoint not updated", err, fields)
		return
	}

	if err := pc.UpdateCheckpoint(ctx, msg); err != nil {
		l.logger.Error("Checkpoint update failed", err, fields)
		return
	}
	l.metrics.RecordCheckpoint(l.cfg.Stream, partition)
}

// process applies the processing mode and delivers env.
func (l *Listener) process(ctx context.Context, env *envelope.Envelope, pos transport.Position) error {
	if l.cfg.Mode != config.ModeDurable {
		return l.deliver(ctx, env, pos)
	}

	key := inboxKey(env, pos)
	entry, existed, err := l.inbox.Put(ctx, inbox.NewEntry(l.cfg.Stream, key, env))
	if err != nil {
		return fmt.Errorf("persist to inbox: %w", err)
	}
	if existed && entry.Completed() {
		l.logger.Debug("Envelope already completed; skipping delivery", logging.LogFields{
			"partition":  pos.Partition,
			"offset":     pos.Offset,
			"message_id": env.ID.String(),
		})
		return nil
	}
	if err := l.deliver(ctx, env, pos); err != nil {
		return err
	}
	if err := l.inbox.Complete(ctx, l.cfg.Stream, key); err != nil {
		return fmt.Errorf("complete inbox entry: %w", err)
	}
	return nil
}

func inboxKey(env *envelope.Envelope, pos transport.Position) string {
	if env.ID != uuid.Nil {
		return env.ID.String()
	}
	return fmt.Sprintf("%s@%d", pos.Partition, pos.Offset)
}

func (l *Listener) deliver(ctx context.Context, env *envelope.Envelope, pos transport.Position) (err error) {
	ctx, span := startDeliverySpan(ctx, l.cfg.Stream, l.cfg.ConsumerGroup, env, pos)
	dc := DeliveryContext{
		Context:       ctx,
		Stream:        l.cfg.Stream,
		ConsumerGroup: l.cfg.ConsumerGroup,
		Address:       l.cfg.Address,
		Position:      pos,
		Envelope:      env,
		StartedAt:     time.Now(),
	}
	defer func() {
		endSpan(span, err)
		dc.Duration = time.Since(dc.StartedAt)
		l.metrics.ObserveDelivery(l.cfg.Stream, dc.Duration)
		if err != nil {
			if l.hooks.OnDeliveryError != nil {
				l.hooks.OnDeliveryError(dc, err)
			}
			return
		}
		if l.hooks.OnDeliveryDone != nil {
			l.hooks.OnDeliveryDone(dc)
		}
	}()

	if l.hooks.OnDeliveryStart != nil {
		l.hooks.OnDeliveryStart(dc)
	}
	return l.invoke(ctx, env)
}

func (l *Listener) invoke(ctx context.Context, env *envelope.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("receiver panic: %v", r)
		}
	}()
	return l.receiver.Deliver(ctx, env)
}
