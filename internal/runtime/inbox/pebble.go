package inbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/drblury/hubflow/internal/runtime/jsoncodec"
	"github.com/drblury/hubflow/internal/storage/pebblestore"
)

const keyPrefix = "inbox\x00"

// PebbleStore persists entries in a Pebble database so completed envelopes
// are remembered across restarts.
type PebbleStore struct {
	// mu serializes read-modify-write sequences.
	mu sync.Mutex
	db *pebblestore.DB
}

// OpenPebbleStore opens (or creates) an inbox database in dir.
func OpenPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir})
	if err != nil {
		return nil, fmt.Errorf("open inbox store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func streamPrefix(stream string) []byte {
	return []byte(keyPrefix + stream + "\x00")
}

func entryKey(stream, key string) []byte {
	return append(streamPrefix(stream), key...)
}

func (s *PebbleStore) Put(_ context.Context, entry Entry) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok, err := s.get(entry.Stream, entry.Key)
	if err != nil || ok {
		return existing, ok, err
	}
	if err := s.set(entry); err != nil {
		return Entry{}, false, err
	}
	return entry, false, nil
}

func (s *PebbleStore) Complete(_ context.Context, stream, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok, err := s.get(stream, key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEntryNotFound
	}
	entry.Status = StatusCompleted
	entry.CompletedAt = time.Now().UTC()
	return s.set(entry)
}

func (s *PebbleStore) Get(_ context.Context, stream, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(stream, key)
}

func (s *PebbleStore) Pending(_ context.Context, stream string) ([]Entry, error) {
	var (
		pending []Entry
		decErr  error
	)
	err := s.db.ScanPrefix(streamPrefix(stream), func(_, value []byte) bool {
		var entry Entry
		if decErr = jsoncodec.Unmarshal(value, &entry); decErr != nil {
			return false
		}
		if !entry.Completed() {
			pending = append(pending, entry)
		}
		return true
	})
	if err == nil {
		err = decErr
	}
	if err != nil {
		return nil, err
	}
	sortByReceived(pending)
	return pending, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func (s *PebbleStore) get(stream, key string) (Entry, bool, error) {
	raw, err := s.db.Get(entryKey(stream, key))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var entry Entry
	if err := jsoncodec.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode inbox entry %s/%s: %w", stream, key, err)
	}
	return entry, true, nil
}

func (s *PebbleStore) set(entry Entry) error {
	raw, err := jsoncodec.Marshal(entry)
	if err != nil {
		return err
	}
	return s.db.Set(entryKey(entry.Stream, entry.Key), raw)
}
