package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/drblury/hubflow/internal/runtime/jsoncodec"
	"github.com/drblury/hubflow/internal/storage/pebblestore"
)

const keyPrefix = "checkpoint\x00"

// PebbleStore persists checkpoints in a Pebble database.
type PebbleStore struct {
	db *pebblestore.DB
}

// OpenPebbleStore opens (or creates) a checkpoint database in dir.
func OpenPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func encodeKey(key Key) []byte {
	return []byte(keyPrefix + strings.Join([]string{key.Stream, key.ConsumerGroup, key.Partition}, "\x00"))
}

func (s *PebbleStore) Load(_ context.Context, key Key) (Checkpoint, bool, error) {
	raw, err := s.db.Get(encodeKey(key))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, err
	}
	var cp Checkpoint
	if err := jsoncodec.Unmarshal(raw, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("decode checkpoint %s/%s/%s: %w", key.Stream, key.ConsumerGroup, key.Partition, err)
	}
	return cp, true, nil
}

func (s *PebbleStore) Save(_ context.Context, key Key, cp Checkpoint) error {
	raw, err := jsoncodec.Marshal(cp)
	if err != nil {
		return err
	}
	return s.db.Set(encodeKey(key), raw)
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
