package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/algo-dude/wheeler/internal/config"
	"github.com/algo-dude/wheeler/internal/scheduler"
)

const (
	walCheckSchedule    = "@hourly"
	healthCheckSchedule = "0 30 3 * * *" // Daily at 03:30
)

// RegisterJobs creates all jobs and registers them with the scheduler.
// Position sync is only scheduled when cfg.SyncSchedule is set.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	jobs := &JobInstances{}

	jobs.PositionSync = scheduler.NewPositionSyncJob(container.SyncService, 0)
	jobs.PositionSync.SetLogger(log.With().Str("job", "position_sync").Logger())
	if cfg.SyncSchedule != "" {
		if err := container.Scheduler.AddJob(cfg.SyncSchedule, jobs.PositionSync); err != nil {
			return nil, fmt.Errorf("failed to register position sync job: %w", err)
		}
	} else {
		log.Info().Msg("IBKR_SYNC_SCHEDULE not set, position sync runs on demand only")
	}

	jobs.CheckWALCheckpoints = scheduler.NewCheckWALCheckpointsJob(container.DB)
	jobs.CheckWALCheckpoints.SetLogger(log.With().Str("job", "wal_checkpoints").Logger())
	if err := container.Scheduler.AddJob(walCheckSchedule, jobs.CheckWALCheckpoints); err != nil {
		return nil, fmt.Errorf("failed to register WAL checkpoint job: %w", err)
	}

	jobs.CheckDatabaseHealth = scheduler.NewCheckDatabaseHealthJob(container.DB)
	jobs.CheckDatabaseHealth.SetLogger(log.With().Str("job", "database_health").Logger())
	if err := container.Scheduler.AddJob(healthCheckSchedule, jobs.CheckDatabaseHealth); err != nil {
		return nil, fmt.Errorf("failed to register database health job: %w", err)
	}

	log.Info().Int("jobs", container.Scheduler.JobCount()).Msg("Jobs registered")

	return jobs, nil
}
