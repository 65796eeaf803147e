// Package eventstore persists pipeline run events and projects them into a
// run history.
package eventstore

import (
	"context"
	"encoding/json"
	"time"
)

// Event is one recorded fact about a pipeline run. Payload holds the JSON
// encoding of one of the *Payload types.
type Event struct {
	ID        int64
	RunID     string
	Type      string
	Timestamp time.Time
	Payload   []byte
	Metadata  map[string]string
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Store persists events in append order.
type Store interface {
	Append(ctx context.Context, runID, eventType string, payload []byte, metadata map[string]string) error
	// GetByRunID returns the events of one run, oldest first.
	GetByRunID(ctx context.Context, runID string) ([]Event, error)
	// GetRange returns events timestamped within [start, end], oldest first.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)
	Close() error
}
