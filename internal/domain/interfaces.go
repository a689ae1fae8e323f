package domain

import (
	"context"
	"time"
)

// SnapshotProvider abstracts the broker session that reports held positions.
// Connect returns false without an error when the broker refuses or is unreachable.
type SnapshotProvider interface {
	Connect(ctx context.Context, host string, port, clientID int) (bool, error)
	IsConnected() bool
	FetchPositions(ctx context.Context) ([]ExternalPosition, error)
	Disconnect()
}

// ConnectionTester is implemented by providers that can report account details
type ConnectionTester interface {
	TestConnection(ctx context.Context, cfg ConnectionConfig) (*ConnectionTestResult, error)
}

// PositionStore is the persistence contract the reconciliation engine writes through.
// Every method is an independent atomic operation.
type PositionStore interface {
	// UpsertOption updates the open row matching key, or inserts one opened on the given day
	UpsertOption(ctx context.Context, key OptionKey, contracts int64, premium float64, opened time.Time) (int64, error)

	// UpsertShare updates the most recently opened open row for symbol, or inserts one
	UpsertShare(ctx context.Context, symbol string, shares int64, buyPrice float64, opened time.Time) (int64, error)

	// CloseOptionsExcept closes every open option row whose id is not in keep.
	// An empty keep set closes all open option rows.
	CloseOptionsExcept(ctx context.Context, keep []int64, closed time.Time) (int, error)

	// CloseSharesExcept closes every open share row whose symbol is not in keep.
	// An empty keep set closes all open share rows.
	CloseSharesExcept(ctx context.Context, keep []string, closed time.Time) (int, error)

	// OpenCounts returns live open-row counts
	OpenCounts(ctx context.Context) (StoreSummary, error)
}
