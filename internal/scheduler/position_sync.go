package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/algo-dude/wheeler/internal/domain"
)

// SyncRunner runs one reconciliation pass
type SyncRunner interface {
	Sync(ctx context.Context, cfg domain.ConnectionConfig) (*domain.SyncRun, error)
}

// PositionSyncJob runs a sync pass against the configured gateway
type PositionSyncJob struct {
	log     zerolog.Logger
	syncer  SyncRunner
	timeout time.Duration
}

// NewPositionSyncJob creates a new PositionSyncJob. A zero timeout means no deadline beyond the fetch timeout.
func NewPositionSyncJob(syncer SyncRunner, timeout time.Duration) *PositionSyncJob {
	return &PositionSyncJob{
		log:     zerolog.Nop(),
		syncer:  syncer,
		timeout: timeout,
	}
}

// SetLogger sets the logger for the job
func (j *PositionSyncJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name
func (j *PositionSyncJob) Name() string {
	return "ibkr_position_sync"
}

// Run executes the position sync job
func (j *PositionSyncJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	run, err := j.syncer.Sync(ctx, domain.ConnectionConfig{})
	if errors.Is(err, domain.ErrSyncInProgress) {
		j.log.Info().Msg("Sync already running, skipping scheduled pass")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to sync positions: %w", err)
	}

	if !run.Success {
		msg := ""
		if len(run.Errors) > 0 {
			msg = run.Errors[0]
		}
		return fmt.Errorf("position sync failed: %s", msg)
	}

	j.log.Info().
		Str("run_id", run.ID).
		Int("options_synced", run.OptionsSynced).
		Int("positions_synced", run.PositionsSynced).
		Int("errors", len(run.Errors)).
		Msg("Scheduled position sync completed")

	return nil
}
