package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/internal/runtime/ids"
	"github.com/drblury/hubflow/transport"
)

// processor consumes a topic with a watermill-kafka consumer-group
// subscriber. The subscriber holds each partition until the current message
// is acked or nacked, so deliveries are serial per partition and concurrent
// across partitions. Acking commits the offset; nacking makes the subscriber
// deliver the message again.
type processor struct {
	client *Client
	stream string
	group  string
	logger watermill.LoggerAdapter

	mu         sync.Mutex
	started    bool
	subscriber message.Subscriber
	cancel     context.CancelFunc
	loop       sync.WaitGroup
	inflight   sync.WaitGroup
	// stopped is closed once the last Stop has drained; its result is stopErr.
	stopped chan struct{}
	stopErr error
}

func newProcessor(c *Client, stream, group string) *processor {
	return &processor{
		client: c,
		stream: stream,
		group:  group,
		logger: c.logger.With(watermill.LogFields{
			"topic":          stream,
			"consumer_group": group,
			"processor_id":   ids.NewInstanceID(),
		}),
	}
}

func (p *processor) Start(ctx context.Context, onEvent transport.EventHandler, onError transport.ErrorHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.draining() {
		return errspkg.ErrAlreadyStarted
	}

	sub, err := SubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:               p.client.brokers,
			Unmarshaler:           newMarshaler(),
			ConsumerGroup:         p.group,
			OverwriteSaramaConfig: subscriberSaramaConfig(p.client.clientID),
		},
		p.logger,
	)
	if err != nil {
		return fmt.Errorf("kafka subscriber: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	messages, err := sub.Subscribe(subCtx, p.stream)
	if err != nil {
		cancel()
		_ = sub.Close()
		return fmt.Errorf("subscribe to %s: %w", p.stream, err)
	}

	p.subscriber = sub
	p.cancel = cancel
	p.started = true
	p.stopped = nil

	p.loop.Add(1)
	go p.consume(messages, onEvent, onError)

	p.logger.Info("Processor started", nil)
	return nil
}

func (p *processor) consume(messages <-chan *message.Message, onEvent transport.EventHandler, onError transport.ErrorHandler) {
	defer p.loop.Done()
	for wm := range messages {
		p.inflight.Add(1)
		go p.dispatch(wm, onEvent, onError)
	}
}

func (p *processor) dispatch(wm *message.Message, onEvent transport.EventHandler, onError transport.ErrorHandler) {
	defer p.inflight.Done()

	msg := fromWatermill(wm)
	pc := &partitionContext{id: msg.Position.Partition, wm: wm}
	// The handler finishes even when Stop cancels the subscription.
	ctx := context.WithoutCancel(wm.Context())

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("event handler panicked: %v", r)
			p.logger.Error("Event handler panicked", err, watermill.LogFields{"partition": pc.id, "offset": msg.Position.Offset})
			if onError != nil {
				onError(ctx, pc.id, err)
			}
		}
		pc.finish()
	}()
	onEvent(ctx, pc, msg)
}

// draining reports whether handlers of an earlier Stop are still running.
// Callers hold p.mu.
func (p *processor) draining() bool {
	if p.stopped == nil {
		return false
	}
	select {
	case <-p.stopped:
		return false
	default:
		return true
	}
}

// Stop cancels the subscription and waits for in-flight handlers. When ctx
// ends first the handlers keep draining and a later Stop waits again.
func (p *processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.started = false
		p.cancel()
		stopped := make(chan struct{})
		p.stopped = stopped
		sub := p.subscriber
		go func() {
			closeErr := sub.Close()
			p.loop.Wait()
			p.inflight.Wait()
			if closeErr != nil {
				p.stopErr = fmt.Errorf("close subscriber: %w", closeErr)
			} else {
				p.logger.Info("Processor stopped", nil)
			}
			close(stopped)
		}()
	}
	stopped := p.stopped
	p.mu.Unlock()

	if stopped == nil {
		return nil
	}
	select {
	case <-stopped:
		return p.stopErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

type partitionContext struct {
	id string
	wm *message.Message

	mu           sync.Mutex
	checkpointed bool
}

func (pc *partitionContext) PartitionID() string { return pc.id }

// UpdateCheckpoint acks the message, which commits its offset for the group.
func (pc *partitionContext) UpdateCheckpoint(_ context.Context, msg *transport.Message) error {
	if msg == nil {
		return errspkg.ErrMessageRequired
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.checkpointed {
		return nil
	}
	if !pc.wm.Ack() {
		return fmt.Errorf("checkpoint partition %s offset %d: message already nacked", pc.id, msg.Position.Offset)
	}
	pc.checkpointed = true
	return nil
}

// finish nacks a message the handler did not checkpoint.
func (pc *partitionContext) finish() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if !pc.checkpointed {
		pc.wm.Nack()
	}
}
