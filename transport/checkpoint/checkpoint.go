// Package checkpoint persists consumer positions per stream, consumer group and partition.
package checkpoint

import (
	"context"
	"sync"
	"time"
)

// Key identifies one checkpoint cursor.
type Key struct {
	Stream        string
	ConsumerGroup string
	Partition     string
}

// Checkpoint is the position of the last fully processed message.
type Checkpoint struct {
	Offset         int64     `json:"offset"`
	SequenceNumber int64     `json:"sequence_number"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Store loads and saves checkpoints.
type Store interface {
	// Load returns the stored checkpoint and whether one existed.
	Load(ctx context.Context, key Key) (Checkpoint, bool, error)
	Save(ctx context.Context, key Key, cp Checkpoint) error
	Close() error
}

// MemoryStore keeps checkpoints in a map. It survives processor restarts
// within one process.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[Key]Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[Key]Checkpoint)}
}

func (s *MemoryStore) Load(_ context.Context, key Key) (Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[key]
	return cp, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, key Key, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[key] = cp
	return nil
}

func (s *MemoryStore) Close() error { return nil }
