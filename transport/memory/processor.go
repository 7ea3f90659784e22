package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/internal/runtime/ids"
	"github.com/drblury/hubflow/transport"
	"github.com/drblury/hubflow/transport/checkpoint"
)

type processor struct {
	hub    *Hub
	stream string
	group  string
	id     string
	logger watermill.LoggerAdapter

	mu      sync.Mutex
	started bool
	s       *stream
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	// stopped is closed once the readers of the last Stop have exited and
	// their partitions are released.
	stopped chan struct{}
}

func newProcessor(hub *Hub, stream, group string, logger watermill.LoggerAdapter) *processor {
	id := ids.NewInstanceID()
	return &processor{
		hub:    hub,
		stream: stream,
		group:  group,
		id:     id,
		logger: logger.With(watermill.LogFields{"stream": stream, "consumer_group": group, "processor_id": id}),
	}
}

func (p *processor) Start(ctx context.Context, onEvent transport.EventHandler, onError transport.ErrorHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.draining() {
		return errspkg.ErrAlreadyStarted
	}

	s, err := p.hub.lookup(p.stream, true)
	if err != nil {
		return err
	}

	claimed, released := p.hub.claim(s, p.group, p.id)
	starts, err := p.loadStarts(ctx, claimed)
	if err != nil {
		p.hub.release(s, p.group, p.id)
		return err
	}

	readCtx, cancel := context.WithCancel(ctx)
	p.s = s
	p.cancel = cancel
	p.started = true
	p.stopped = nil

	p.spawn(readCtx, claimed, starts, onEvent, onError)
	p.wg.Add(1)
	go p.rebalanceLoop(readCtx, released, onEvent, onError)

	p.logger.Info("Processor started", watermill.LogFields{"partitions": len(claimed)})
	return nil
}

// draining reports whether readers of an earlier Stop are still running.
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

// Stop cancels reads and waits for the readers to exit. When ctx expires
// first the readers keep draining in the background, the partitions stay
// claimed until they are done, and a later Stop waits again.
func (p *processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.started = false
		p.cancel()
		stopped := make(chan struct{})
		p.stopped = stopped
		s := p.s
		go func() {
			p.wg.Wait()
			p.hub.release(s, p.group, p.id)
			p.logger.Info("Processor stopped", nil)
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
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *processor) key(partitionID string) checkpoint.Key {
	return checkpoint.Key{Stream: p.stream, ConsumerGroup: p.group, Partition: partitionID}
}

// loadStarts returns the first offset to read for each partition.
func (p *processor) loadStarts(ctx context.Context, parts []*partition) ([]int64, error) {
	starts := make([]int64, len(parts))
	for i, part := range parts {
		cp, ok, err := p.hub.store.Load(ctx, p.key(part.id))
		if err != nil {
			return nil, fmt.Errorf("load checkpoint for partition %s: %w", part.id, err)
		}
		if ok {
			starts[i] = cp.Offset + 1
		}
	}
	return starts, nil
}

func (p *processor) spawn(ctx context.Context, parts []*partition, starts []int64, onEvent transport.EventHandler, onError transport.ErrorHandler) {
	for i, part := range parts {
		p.wg.Add(1)
		go p.readLoop(ctx, part, starts[i], onEvent, onError)
	}
}

// rebalanceLoop claims partitions that other processors of the group release.
func (p *processor) rebalanceLoop(ctx context.Context, released <-chan struct{}, onEvent transport.EventHandler, onError transport.ErrorHandler) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-released:
		}

		p.mu.Lock()
		if !p.started || ctx.Err() != nil {
			p.mu.Unlock()
			return
		}
		s := p.s
		var claimed []*partition
		claimed, released = p.hub.claim(s, p.group, p.id)
		if len(claimed) == 0 {
			p.mu.Unlock()
			continue
		}
		starts, err := p.loadStarts(ctx, claimed)
		if err != nil {
			p.mu.Unlock()
			p.logger.Error("Failed to take over partitions", err, nil)
			if onError != nil {
				onError(ctx, claimed[0].id, err)
			}
			p.hub.release(s, p.group, p.id, claimed...)
			if !sleep(ctx, p.hub.redelivery) {
				return
			}
			continue
		}
		p.spawn(ctx, claimed, starts, onEvent, onError)
		p.mu.Unlock()

		p.logger.Info("Partitions taken over", watermill.LogFields{"partitions": len(claimed)})
	}
}

func (p *processor) readLoop(ctx context.Context, part *partition, next int64, onEvent transport.EventHandler, onError transport.ErrorHandler) {
	defer p.wg.Done()

	pc := &partitionContext{processor: p, id: part.id}
	pc.committed.Store(next - 1)
	// Handlers finish their work even when Stop cancels further reads.
	handlerCtx := context.WithoutCancel(ctx)

	var heartbeat <-chan time.Time
	if p.hub.heartbeat > 0 {
		ticker := time.NewTicker(p.hub.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		if ctx.Err() != nil {
			return
		}

		msg, wait := part.read(next)
		if msg != nil {
			p.dispatch(handlerCtx, pc, msg, onEvent, onError)
			if pc.checkpointed(next) {
				next++
				continue
			}
			p.logger.Debug("Message not checkpointed; reading it again", watermill.LogFields{
				"partition": part.id,
				"offset":    next,
			})
			if !sleep(ctx, p.hub.redelivery) {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-wait:
		case <-heartbeat:
			p.dispatch(handlerCtx, pc, nil, onEvent, onError)
		}
	}
}

func (p *processor) dispatch(ctx context.Context, pc *partitionContext, msg *transport.Message, onEvent transport.EventHandler, onError transport.ErrorHandler) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("event handler panicked: %v", r)
			p.logger.Error("Event handler panicked", err, watermill.LogFields{"partition": pc.id})
			if onError != nil {
				onError(ctx, pc.id, err)
			}
		}
	}()
	onEvent(ctx, pc, msg)
}

// sleep waits for d and reports false when ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type partitionContext struct {
	processor *processor
	id        string
	// committed is the highest offset checkpointed through this context.
	committed atomic.Int64
}

func (pc *partitionContext) PartitionID() string { return pc.id }

func (pc *partitionContext) UpdateCheckpoint(ctx context.Context, msg *transport.Message) error {
	if msg == nil {
		return errspkg.ErrMessageRequired
	}
	err := pc.processor.hub.store.Save(ctx, pc.processor.key(pc.id), checkpoint.Checkpoint{
		Offset:         msg.Position.Offset,
		SequenceNumber: msg.Position.SequenceNumber,
		UpdatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	for {
		cur := pc.committed.Load()
		if msg.Position.Offset <= cur || pc.committed.CompareAndSwap(cur, msg.Position.Offset) {
			return nil
		}
	}
}

func (pc *partitionContext) checkpointed(offset int64) bool {
	return pc.committed.Load() >= offset
}
