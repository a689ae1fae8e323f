// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/algo-dude/wheeler/internal/clients/ibkr"
	"github.com/algo-dude/wheeler/internal/database"
	"github.com/algo-dude/wheeler/internal/events"
	"github.com/algo-dude/wheeler/internal/modules/positions"
	"github.com/algo-dude/wheeler/internal/modules/reconciliation"
	"github.com/algo-dude/wheeler/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire() and passed to the server for access to services.
type Container struct {
	// Database shared with the Wheeler tracking application
	DB *database.DB

	// Clients
	BrokerClient *ibkr.Client // IBKR Client Portal gateway

	// Repositories
	PositionRepo *positions.Repository
	HistoryRepo  *reconciliation.HistoryRepository

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Services
	SyncService *reconciliation.Service

	// Background jobs
	Scheduler *scheduler.Scheduler
}

// JobInstances holds references to all registered jobs for manual triggering
type JobInstances struct {
	PositionSync        *scheduler.PositionSyncJob
	CheckWALCheckpoints *scheduler.CheckWALCheckpointsJob
	CheckDatabaseHealth *scheduler.CheckDatabaseHealthJob
}

// Close releases the container's resources
func (c *Container) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
