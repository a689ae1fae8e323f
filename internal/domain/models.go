// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"time"
)

// DateLayout is the storage format for opened/closed/expiration dates
const DateLayout = "2006-01-02"

// Day truncates t to its calendar date in UTC
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// OptionKey is the identity of an open option row
type OptionKey struct {
	Symbol     string
	Right      OptionRight
	Strike     float64
	Expiration time.Time
}

func (k OptionKey) String() string {
	return fmt.Sprintf("%s %s %.2f %s", k.Symbol, k.Right, k.Strike, k.Expiration.Format(DateLayout))
}

// StoredOptionPosition is a persisted option row
type StoredOptionPosition struct {
	ID         int64       `json:"id"`
	Symbol     string      `json:"symbol"`
	Right      OptionRight `json:"type"`
	Strike     float64     `json:"strike"`
	Expiration time.Time   `json:"expiration"`
	Contracts  int64       `json:"contracts"`
	Premium    float64     `json:"premium"`
	Opened     time.Time   `json:"opened"`
	Closed     *time.Time  `json:"closed,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Key returns the identity key of the row
func (p StoredOptionPosition) Key() OptionKey {
	return OptionKey{Symbol: p.Symbol, Right: p.Right, Strike: p.Strike, Expiration: p.Expiration}
}

// StoredSharePosition is a persisted long (share) position row
type StoredSharePosition struct {
	ID        int64      `json:"id"`
	Symbol    string     `json:"symbol"`
	Shares    int64      `json:"shares"`
	BuyPrice  float64    `json:"buy_price"`
	Opened    time.Time  `json:"opened"`
	Closed    *time.Time `json:"closed,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// SyncRun is the outcome of one reconciliation pass. Immutable once finished.
type SyncRun struct {
	ID              string    `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	OptionsSynced   int       `json:"options_synced"`
	PositionsSynced int       `json:"positions_synced"`
	OptionsClosed   int       `json:"options_closed"`
	PositionsClosed int       `json:"positions_closed"`
	Errors          []string  `json:"errors"`
	Success         bool      `json:"success"`
}

// Clean reports whether the run completed without item errors
func (r SyncRun) Clean() bool {
	return r.Success && len(r.Errors) == 0
}

// StoreSummary holds live open-row counts from the store
type StoreSummary struct {
	OpenOptions     int `json:"open_options"`
	OpenShares      int `json:"open_positions"`
	DistinctSymbols int `json:"total_symbols"`
}

// SyncState is the orchestrator state machine position
type SyncState string

const (
	StateIdle        SyncState = "idle"
	StateConnecting  SyncState = "connecting"
	StateFetching    SyncState = "fetching"
	StateReconciling SyncState = "reconciling"
	StateFinalizing  SyncState = "finalizing"
)

// StatusView is the read-only status snapshot served to callers
type StatusView struct {
	Connected  bool
	State      SyncState
	LastSync   *time.Time
	LastRun    *SyncRun
	Store      StoreSummary
	StoreError string
}
