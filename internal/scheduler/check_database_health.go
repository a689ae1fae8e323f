package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker is satisfied by *database.DB
type HealthChecker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// CheckDatabaseHealthJob verifies integrity of the shared Wheeler database
type CheckDatabaseHealthJob struct {
	log zerolog.Logger
	db  HealthChecker
}

// NewCheckDatabaseHealthJob creates a new CheckDatabaseHealthJob
func NewCheckDatabaseHealthJob(db HealthChecker) *CheckDatabaseHealthJob {
	return &CheckDatabaseHealthJob{
		log: zerolog.Nop(),
		db:  db,
	}
}

// SetLogger sets the logger for the job
func (j *CheckDatabaseHealthJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name
func (j *CheckDatabaseHealthJob) Name() string {
	return "check_database_health"
}

// Run executes the database health check
func (j *CheckDatabaseHealthJob) Run() error {
	if j.db == nil {
		j.log.Warn().Msg("Database not initialized, skipping")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().
			Err(err).
			Str("database", j.db.Name()).
			Msg("Database integrity check failed")
		return fmt.Errorf("database %s failed health check: %w", j.db.Name(), err)
	}

	j.log.Debug().Str("database", j.db.Name()).Msg("Database integrity OK")
	return nil
}
