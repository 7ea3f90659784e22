// Package inbox persists decoded envelopes for endpoints in durable mode.
// An entry is written before the receiver runs and marked completed after it
// succeeds, so a redelivered envelope that already completed is not
// dispatched twice.
package inbox

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/drblury/hubflow/internal/runtime/envelope"
	"github.com/drblury/hubflow/internal/runtime/ids"
	"github.com/drblury/hubflow/internal/runtime/metadata"
)

// ErrEntryNotFound is returned when completing an entry that was never stored.
var ErrEntryNotFound = errors.New("hubflow: inbox entry not found")

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Entry is the stored form of one envelope.
type Entry struct {
	Stream       string            `json:"stream"`
	Key          string            `json:"key"`
	MessageID    string            `json:"message_id"`
	MessageType  string            `json:"message_type"`
	ContentType  string            `json:"content_type,omitempty"`
	PartitionKey string            `json:"partition_key,omitempty"`
	ParentID     string            `json:"parent_id,omitempty"`
	Source       string            `json:"source,omitempty"`
	Destination  string            `json:"destination,omitempty"`
	SentAt       time.Time         `json:"sent_at"`
	Data         []byte            `json:"data"`
	Headers      map[string]string `json:"headers,omitempty"`
	Status       Status            `json:"status"`
	ReceivedAt   time.Time         `json:"received_at"`
	CompletedAt  time.Time         `json:"completed_at"`
}

// NewEntry captures env as a pending entry.
func NewEntry(stream, key string, env *envelope.Envelope) Entry {
	return Entry{
		Stream:       stream,
		Key:          key,
		MessageID:    env.ID.String(),
		MessageType:  env.MessageType,
		ContentType:  env.ContentType,
		PartitionKey: env.PartitionKey,
		ParentID:     env.ParentID,
		Source:       env.Source,
		Destination:  env.Destination,
		SentAt:       env.SentAt,
		Data:         append([]byte(nil), env.Data...),
		Headers:      env.Headers.Clone(),
		Status:       StatusPending,
		ReceivedAt:   time.Now().UTC(),
	}
}

// Envelope rebuilds the stored envelope.
func (e Entry) Envelope() *envelope.Envelope {
	id, _ := ids.ParseEnvelopeID(e.MessageID)
	return &envelope.Envelope{
		ID:           id,
		MessageType:  e.MessageType,
		Data:         append([]byte(nil), e.Data...),
		ContentType:  e.ContentType,
		PartitionKey: e.PartitionKey,
		ParentID:     e.ParentID,
		Source:       e.Source,
		SentAt:       e.SentAt,
		Headers:      metadata.Metadata(e.Headers).Clone(),
		Destination:  e.Destination,
	}
}

func (e Entry) Completed() bool {
	return e.Status == StatusCompleted
}

// Store persists inbox entries per stream.
type Store interface {
	// Put stores entry unless one with the same stream and key exists. It
	// returns the stored entry and whether it was already present.
	Put(ctx context.Context, entry Entry) (Entry, bool, error)
	Complete(ctx context.Context, stream, key string) error
	Get(ctx context.Context, stream, key string) (Entry, bool, error)
	// Pending lists the entries of stream that never completed, oldest first.
	Pending(ctx context.Context, stream string) ([]Entry, error)
	Close() error
}

type memoryKey struct {
	stream string
	key    string
}

// MemoryStore keeps entries for the lifetime of the process.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[memoryKey]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[memoryKey]Entry)}
}

func (s *MemoryStore) Put(_ context.Context, entry Entry) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memoryKey{entry.Stream, entry.Key}
	if existing, ok := s.entries[k]; ok {
		return existing, true, nil
	}
	s.entries[k] = entry
	return entry, false, nil
}

func (s *MemoryStore) Complete(_ context.Context, stream, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memoryKey{stream, key}
	entry, ok := s.entries[k]
	if !ok {
		return ErrEntryNotFound
	}
	entry.Status = StatusCompleted
	entry.CompletedAt = time.Now().UTC()
	s.entries[k] = entry
	return nil
}

func (s *MemoryStore) Get(_ context.Context, stream, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[memoryKey{stream, key}]
	return entry, ok, nil
}

func (s *MemoryStore) Pending(_ context.Context, stream string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []Entry
	for k, entry := range s.entries {
		if k.stream == stream && !entry.Completed() {
			pending = append(pending, entry)
		}
	}
	sortByReceived(pending)
	return pending, nil
}

func (s *MemoryStore) Close() error { return nil }

func sortByReceived(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ReceivedAt.Equal(entries[j].ReceivedAt) {
			return entries[i].Key < entries[j].Key
		}
		return entries[i].ReceivedAt.Before(entries[j].ReceivedAt)
	})
}
