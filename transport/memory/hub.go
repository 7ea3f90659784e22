// Package memory provides an in-process partitioned event hub transport. It
// honours partition keys, consumer groups and checkpoints, which makes it the
// default broker for local development and tests.
//
// A partition only moves past a message once its handler checkpointed it;
// otherwise the same message is read again after the redelivery delay, which
// stalls the partition the way a nacked Kafka message does. Partitions a
// stopping processor releases are claimed by the running processors of the
// same group, which resume after the last checkpoint.
package memory

import (
	"fmt"
	"maps"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/transport"
	"github.com/drblury/hubflow/transport/checkpoint"
)

const (
	// DefaultPartitions is used for streams created without an explicit count.
	DefaultPartitions = 4
	// DefaultRedeliveryDelay is the pause before a message that was not
	// checkpointed is read again.
	DefaultRedeliveryDelay = 100 * time.Millisecond
)

// Hub holds named streams, each an ordered set of append-only partitions.
type Hub struct {
	mu      sync.Mutex
	streams map[string]*stream

	partitions int
	autoCreate bool
	heartbeat  time.Duration
	redelivery time.Duration
	store      checkpoint.Store
	ownsStore  bool

	closeOnce sync.Once
}

// Option configures a Hub.
type Option func(*Hub)

// WithPartitions sets the partition count for streams created without one.
func WithPartitions(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.partitions = n
		}
	}
}

// WithAutoCreate creates unknown streams on first send or subscribe instead of
// failing with ErrStreamNotFound.
func WithAutoCreate() Option {
	return func(h *Hub) { h.autoCreate = true }
}

// WithHeartbeat makes idle partitions deliver an empty read every interval.
func WithHeartbeat(interval time.Duration) Option {
	return func(h *Hub) { h.heartbeat = interval }
}

// WithRedeliveryDelay sets how long a partition waits before reading a message
// again that its handler did not checkpoint.
func WithRedeliveryDelay(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.redelivery = d
		}
	}
}

// WithCheckpointStore replaces the in-memory checkpoint store. When owned is
// true the hub closes the store on Close.
func WithCheckpointStore(store checkpoint.Store, owned bool) Option {
	return func(h *Hub) {
		h.store = store
		h.ownsStore = owned
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		streams:    make(map[string]*stream),
		partitions: DefaultPartitions,
		redelivery: DefaultRedeliveryDelay,
		store:      checkpoint.NewMemoryStore(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type stream struct {
	name       string
	partitions []*partition
	next       atomic.Uint64
	// owners maps consumer group -> partition index -> processor instance id.
	owners map[string]map[int]string
	// released is closed and replaced whenever a processor gives up partitions.
	released chan struct{}
}

type partition struct {
	id     string
	mu     sync.Mutex
	events []transport.Message
	// notify is closed and replaced on every append.
	notify chan struct{}
}

func newStream(name string, partitions int) *stream {
	s := &stream{
		name:     name,
		owners:   make(map[string]map[int]string),
		released: make(chan struct{}),
	}
	for i := 0; i < partitions; i++ {
		s.partitions = append(s.partitions, &partition{
			id:     strconv.Itoa(i),
			notify: make(chan struct{}),
		})
	}
	return s
}

// CreateStream adds a stream with the given partition count. It reports false
// when the stream already existed.
func (h *Hub) CreateStream(name string, partitions int) (bool, error) {
	if name == "" {
		return false, errspkg.ErrStreamRequired
	}
	if partitions <= 0 {
		partitions = h.partitions
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.streams[name]; ok {
		return false, nil
	}
	h.streams[name] = newStream(name, partitions)
	return true, nil
}

func (h *Hub) lookup(name string, create bool) (*stream, error) {
	if name == "" {
		return nil, errspkg.ErrStreamRequired
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.streams[name]
	if ok {
		return s, nil
	}
	if !create || !h.autoCreate {
		return nil, fmt.Errorf("%w: %s", errspkg.ErrStreamNotFound, name)
	}
	s = newStream(name, h.partitions)
	h.streams[name] = s
	return s, nil
}

// Append routes msg to a partition and returns its assigned position. A
// non-empty partition key always maps to the same partition; an empty key is
// spread round robin.
func (h *Hub) Append(name string, msg *transport.Message) (transport.Position, error) {
	s, err := h.lookup(name, true)
	if err != nil {
		return transport.Position{}, err
	}

	var idx int
	if msg.PartitionKey != "" {
		idx = int(xxhash.Sum64String(msg.PartitionKey) % uint64(len(s.partitions)))
	} else {
		idx = int((s.next.Add(1) - 1) % uint64(len(s.partitions)))
	}
	return s.partitions[idx].append(msg), nil
}

// Depth returns the number of messages stored per partition id.
func (h *Hub) Depth(name string) (map[string]int, error) {
	s, err := h.lookup(name, false)
	if err != nil {
		return nil, err
	}
	depth := make(map[string]int, len(s.partitions))
	for _, p := range s.partitions {
		p.mu.Lock()
		depth[p.id] = len(p.events)
		p.mu.Unlock()
	}
	return depth, nil
}

// Close releases the checkpoint store when the hub owns it.
func (h *Hub) Close() error {
	var err error
	h.closeOnce.Do(func() {
		if h.ownsStore && h.store != nil {
			err = h.store.Close()
		}
	})
	return err
}

func (p *partition) append(msg *transport.Message) transport.Position {
	p.mu.Lock()
	defer p.mu.Unlock()

	offset := int64(len(p.events))
	stored := transport.Message{
		Body:         append([]byte(nil), msg.Body...),
		ContentType:  msg.ContentType,
		Properties:   maps.Clone(msg.Properties),
		PartitionKey: msg.PartitionKey,
		Position: transport.Position{
			Partition:      p.id,
			Offset:         offset,
			SequenceNumber: offset,
			EnqueuedAt:     time.Now().UTC(),
		},
	}
	p.events = append(p.events, stored)

	close(p.notify)
	p.notify = make(chan struct{})
	return stored.Position
}

// read returns a copy of the message at offset, or the channel that is closed
// on the next append when offset is past the end.
func (p *partition) read(offset int64) (*transport.Message, <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if offset < int64(len(p.events)) {
		stored := p.events[offset]
		msg := stored
		msg.Body = append([]byte(nil), stored.Body...)
		msg.Properties = maps.Clone(stored.Properties)
		return &msg, nil
	}
	return nil, p.notify
}

// claim assigns every partition of s not yet owned within group to owner. The
// returned channel is closed the next time any partition of s is released.
func (h *Hub) claim(s *stream, group, owner string) ([]*partition, <-chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	owned := s.owners[group]
	if owned == nil {
		owned = make(map[int]string)
		s.owners[group] = owned
	}
	var claimed []*partition
	for i, p := range s.partitions {
		if _, taken := owned[i]; taken {
			continue
		}
		owned[i] = owner
		claimed = append(claimed, p)
	}
	return claimed, s.released
}

// release gives up the partitions owner holds within group, or only parts when
// given, and wakes processors waiting to claim them.
func (h *Hub) release(s *stream, group, owner string, parts ...*partition) {
	h.mu.Lock()
	defer h.mu.Unlock()

	only := make(map[string]bool, len(parts))
	for _, p := range parts {
		only[p.id] = true
	}
	freed := false
	for i, o := range s.owners[group] {
		if o != owner || (len(only) > 0 && !only[s.partitions[i].id]) {
			continue
		}
		delete(s.owners[group], i)
		freed = true
	}
	if freed {
		close(s.released)
		s.released = make(chan struct{})
	}
}
