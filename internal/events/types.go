// Package events provides in-process event publishing for sync and broker state changes.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	PositionsSynced     EventType = "POSITIONS_SYNCED"
	SyncFailed          EventType = "SYNC_FAILED"
	BrokerStatusChanged EventType = "BROKER_STATUS_CHANGED"
	ErrorOccurred       EventType = "ERROR_OCCURRED"
)

// AllEventTypes lists every event type the service emits
var AllEventTypes = []EventType{
	PositionsSynced,
	SyncFailed,
	BrokerStatusChanged,
	ErrorOccurred,
}

// Event represents a system event with typed data
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}
