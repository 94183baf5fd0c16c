package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// KV is a string-keyed, string-valued durable store. Implementations enforce a capacity
// limit and must be safe for concurrent use.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

var (
	// ErrQuotaExceeded is returned when a write would push the store past its capacity.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrCorrupt marks a stored value that can no longer be decoded.
	ErrCorrupt = errors.New("stored value is corrupt")
)

// Error wraps every failure surfaced by a store.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Event is one submit outcome written to the interaction journal.
// Error is empty for successful completions.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Scope     string    `json:"scope"`
	Engine    string    `json:"engine"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Recorder abstracts the append-only interaction journal.
// LoadInteractions returns events in chronological order.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
}
