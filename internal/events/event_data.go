package events

import "time"

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// SyncCompletedData contains data for PositionsSynced and SyncFailed events
type SyncCompletedData struct {
	RunID           string    `json:"run_id"`
	Success         bool      `json:"success"`
	FinishedAt      time.Time `json:"finished_at"`
	OptionsSynced   int       `json:"options_synced"`
	PositionsSynced int       `json:"positions_synced"`
	OptionsClosed   int       `json:"options_closed"`
	PositionsClosed int       `json:"positions_closed"`
	ErrorCount      int       `json:"error_count"`
}

// EventType returns PositionsSynced for completed passes and SyncFailed otherwise
func (d *SyncCompletedData) EventType() EventType {
	if d.Success {
		return PositionsSynced
	}
	return SyncFailed
}

// BrokerStatusData contains data for BrokerStatusChanged events
type BrokerStatusData struct {
	Connected bool   `json:"connected"`
	Host      string `json:"host,omitempty"`
	Port      int    `json:"port,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// EventType returns the event type for BrokerStatusData
func (d *BrokerStatusData) EventType() EventType {
	return BrokerStatusChanged
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
