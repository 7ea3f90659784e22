package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewInstanceID returns a time-sortable ULID used to tell processor instances
// apart in logs and partition ownership tables.
func NewInstanceID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewEnvelopeID returns a fresh envelope identifier. Version 7 keeps ids roughly
// time ordered; a random v4 id is used if the clock source fails.
func NewEnvelopeID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// ParseEnvelopeID parses s and reports whether it was a valid UUID. Invalid input
// yields uuid.Nil.
func ParseEnvelopeID(s string) (uuid.UUID, bool) {
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
