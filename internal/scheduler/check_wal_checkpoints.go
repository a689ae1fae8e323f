package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/algo-dude/wheeler/internal/database"
)

// walFrameWarnThreshold is the WAL size (in frames) above which a warning is logged
const walFrameWarnThreshold = 1000

// WALCheckpointer is satisfied by *database.DB
type WALCheckpointer interface {
	Name() string
	WALCheckpoint(ctx context.Context, mode string) (database.WALStatus, error)
}

// CheckWALCheckpointsJob runs a passive WAL checkpoint and reports WAL growth
type CheckWALCheckpointsJob struct {
	log zerolog.Logger
	db  WALCheckpointer
}

// NewCheckWALCheckpointsJob creates a new CheckWALCheckpointsJob
func NewCheckWALCheckpointsJob(db WALCheckpointer) *CheckWALCheckpointsJob {
	return &CheckWALCheckpointsJob{
		log: zerolog.Nop(),
		db:  db,
	}
}

// SetLogger sets the logger for the job
func (j *CheckWALCheckpointsJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name
func (j *CheckWALCheckpointsJob) Name() string {
	return "check_wal_checkpoints"
}

// Run executes the check WAL checkpoints job
func (j *CheckWALCheckpointsJob) Run() error {
	if j.db == nil {
		j.log.Warn().Msg("Database not initialized, skipping WAL check")
		return nil
	}

	// Passive mode never blocks the Wheeler application's writers
	status, err := j.db.WALCheckpoint(context.Background(), "PASSIVE")
	if err != nil {
		j.log.Warn().
			Err(err).
			Str("database", j.db.Name()).
			Msg("Failed to check WAL checkpoint")
		return nil
	}

	if status.LogFrames > walFrameWarnThreshold {
		j.log.Warn().
			Str("database", j.db.Name()).
			Int("wal_frames", status.LogFrames).
			Int("checkpointed", status.Checkpointed).
			Bool("busy", status.Busy).
			Msg("WAL file is large, checkpoint may be needed")
	} else {
		j.log.Debug().
			Str("database", j.db.Name()).
			Int("wal_frames", status.LogFrames).
			Msg("WAL checkpoint status OK")
	}

	return nil
}
