package realtime

import (
	"encoding/json"
	"io"
)

// EventType selects which row-level changes a channel receives.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventAll    EventType = "*"
)

// Event is one row-level change delivered by the store's change feed.
type Event struct {
	Type       EventType       `json:"type"`
	Collection string          `json:"collection"`
	Row        json.RawMessage `json:"row"`
}

// Filter scopes a channel to a collection, an event type and optionally a
// single-column equality predicate. The feed cannot express OR across two
// columns; callers needing that open one channel per column.
type Filter struct {
	Collection string    `json:"collection"`
	Type       EventType `json:"type"`
	Column     string    `json:"column,omitempty"`
	Value      string    `json:"value,omitempty"`
}

// Feed is the transport behind subscriptions. Each Open call creates an
// independent named channel that must be closed explicitly; events and
// channel-level failures are delivered through the supplied callbacks.
type Feed interface {
	Open(name string, filter Filter, onEvent func(Event), onError func(error)) (io.Closer, error)
	Close() error
}
