package domain

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when a snapshot is requested without an active broker session
var ErrNotConnected = errors.New("not connected to IBKR")

// ErrSyncInProgress is returned when a sync pass is requested while another is running
var ErrSyncInProgress = errors.New("sync already in progress")

// ProviderError is a fault while fetching a snapshot from an established session
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// UnknownSymbol tags item errors whose symbol could not be read
const UnknownSymbol = "unknown"

// ItemError is a fault confined to one position of a snapshot
type ItemError struct {
	Symbol string
	Err    error
}

// NewItemError tags err with symbol, or "unknown" when symbol is empty
func NewItemError(symbol string, err error) *ItemError {
	if symbol == "" {
		symbol = UnknownSymbol
	}
	return &ItemError{Symbol: symbol, Err: err}
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("Error syncing position %s: %v", e.Symbol, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}
