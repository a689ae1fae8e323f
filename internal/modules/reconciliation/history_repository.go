package reconciliation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/algo-dude/wheeler/internal/domain"
)

// HistoryRepository stores finished sync runs in ibkr_sync_runs
type HistoryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryRepository creates a new sync history repository
func NewHistoryRepository(db *sql.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: log.With().Str("repo", "sync_history").Logger(),
	}
}

// Record appends a finished run
func (r *HistoryRepository) Record(ctx context.Context, run domain.SyncRun) error {
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("failed to encode run errors: %w", err)
	}

	success := 0
	if run.Success {
		success = 1
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO ibkr_sync_runs
			(id, started_at, finished_at, options_synced, positions_synced,
			 options_closed, positions_closed, errors, success)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.OptionsSynced, run.PositionsSynced, run.OptionsClosed, run.PositionsClosed,
		string(errorsJSON), success)
	if err != nil {
		return fmt.Errorf("failed to record sync run %s: %w", run.ID, err)
	}

	r.log.Debug().Str("run_id", run.ID).Bool("success", run.Success).Msg("Recorded sync run")
	return nil
}

// Latest returns up to limit runs, newest first
func (r *HistoryRepository) Latest(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, options_synced, positions_synced,
			options_closed, positions_closed, errors, success
		FROM ibkr_sync_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.SyncRun, 0)
	for rows.Next() {
		var (
			run                 domain.SyncRun
			startedAt, finished int64
			errorsJSON          string
			success             int
		)
		if err := rows.Scan(&run.ID, &startedAt, &finished, &run.OptionsSynced, &run.PositionsSynced,
			&run.OptionsClosed, &run.PositionsClosed, &errorsJSON, &success); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}

		run.StartedAt = time.UnixMilli(startedAt).UTC()
		run.FinishedAt = time.UnixMilli(finished).UTC()
		run.Success = success != 0
		if err := json.Unmarshal([]byte(errorsJSON), &run.Errors); err != nil {
			r.log.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to decode run errors")
			run.Errors = []string{}
		}

		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}

	return runs, nil
}
