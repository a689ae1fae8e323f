// Package positions persists option and share positions in the Wheeler database.
package positions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/algo-dude/wheeler/internal/domain"
)

// Repository handles option and long position rows. Implements domain.PositionStore.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new position repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "positions").Logger(),
	}
}

// ensureSymbol registers symbol in the symbols table if missing
func (r *Repository) ensureSymbol(ctx context.Context, symbol string) error {
	if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO symbols (symbol) VALUES (?)`, symbol); err != nil {
		return fmt.Errorf("failed to ensure symbol %s: %w", symbol, err)
	}
	return nil
}

// UpsertOption updates the open row matching key, or inserts one opened on the given day
func (r *Repository) UpsertOption(ctx context.Context, key domain.OptionKey, contracts int64, premium float64, opened time.Time) (int64, error) {
	if err := r.ensureSymbol(ctx, key.Symbol); err != nil {
		return 0, err
	}

	expiration := key.Expiration.Format(domain.DateLayout)

	var id int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM options
		WHERE symbol = ? AND type = ? AND strike = ? AND expiration = ? AND closed IS NULL
		LIMIT 1
	`, key.Symbol, string(key.Right), key.Strike, expiration).Scan(&id)

	switch {
	case err == nil:
		_, err = r.db.ExecContext(ctx, `
			UPDATE options
			SET contracts = ?, premium = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, contracts, premium, id)
		if err != nil {
			return 0, fmt.Errorf("failed to update option %s: %w", key, err)
		}
		r.log.Info().Int64("id", id).Str("option", key.String()).Int64("contracts", contracts).Msg("Updated option position")
		return id, nil

	case errors.Is(err, sql.ErrNoRows):
		result, err := r.db.ExecContext(ctx, `
			INSERT INTO options (symbol, type, opened, strike, expiration, premium, contracts)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, key.Symbol, string(key.Right), opened.Format(domain.DateLayout), key.Strike, expiration, premium, contracts)
		if err != nil {
			return 0, fmt.Errorf("failed to insert option %s: %w", key, err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read inserted option id: %w", err)
		}
		r.log.Info().Int64("id", id).Str("option", key.String()).Int64("contracts", contracts).Msg("Inserted option position")
		return id, nil

	default:
		return 0, fmt.Errorf("failed to look up option %s: %w", key, err)
	}
}

// UpsertShare updates the most recently opened open row for symbol, or inserts one
func (r *Repository) UpsertShare(ctx context.Context, symbol string, shares int64, buyPrice float64, opened time.Time) (int64, error) {
	if err := r.ensureSymbol(ctx, symbol); err != nil {
		return 0, err
	}

	ids, err := r.openShareIDs(ctx, symbol)
	if err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		result, err := r.db.ExecContext(ctx, `
			INSERT INTO long_positions (symbol, opened, shares, buy_price)
			VALUES (?, ?, ?, ?)
		`, symbol, opened.Format(domain.DateLayout), shares, buyPrice)
		if err != nil {
			return 0, fmt.Errorf("failed to insert long position %s: %w", symbol, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read inserted long position id: %w", err)
		}
		r.log.Info().Int64("id", id).Str("symbol", symbol).Int64("shares", shares).Msg("Inserted long position")
		return id, nil
	}

	if len(ids) > 1 {
		// Multiple lots collapse onto the newest one; older lots keep stale values
		r.log.Warn().Str("symbol", symbol).Int("open_rows", len(ids)).Msg("Multiple open long positions, updating most recent")
	}

	id := ids[0]
	_, err = r.db.ExecContext(ctx, `
		UPDATE long_positions
		SET shares = ?, buy_price = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, shares, buyPrice, id)
	if err != nil {
		return 0, fmt.Errorf("failed to update long position %s: %w", symbol, err)
	}
	r.log.Info().Int64("id", id).Str("symbol", symbol).Int64("shares", shares).Msg("Updated long position")
	return id, nil
}

func (r *Repository) openShareIDs(ctx context.Context, symbol string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM long_positions
		WHERE symbol = ? AND closed IS NULL
		ORDER BY opened DESC, id DESC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to look up long position %s: %w", symbol, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan long position id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating long positions: %w", err)
	}
	return ids, nil
}

// CloseOptionsExcept closes every open option row whose id is not in keep.
// An empty keep set closes all open option rows.
func (r *Repository) CloseOptionsExcept(ctx context.Context, keep []int64, closed time.Time) (int, error) {
	if keep == nil {
		keep = []int64{}
	}
	return r.closeExcept(ctx, "options", "id", keep, closed)
}

// CloseSharesExcept closes every open long position whose symbol is not in keep.
// An empty keep set closes all open long positions.
func (r *Repository) CloseSharesExcept(ctx context.Context, keep []string, closed time.Time) (int, error) {
	if keep == nil {
		keep = []string{}
	}
	return r.closeExcept(ctx, "long_positions", "symbol", keep, closed)
}

// closeExcept passes the keep set as one JSON array parameter so its size is not bound
// by SQLite's host parameter limit
func (r *Repository) closeExcept(ctx context.Context, table, column string, keep interface{}, closed time.Time) (int, error) {
	keepJSON, err := json.Marshal(keep)
	if err != nil {
		return 0, fmt.Errorf("failed to encode keep set: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET closed = ?, updated_at = CURRENT_TIMESTAMP
		WHERE closed IS NULL AND %s NOT IN (SELECT value FROM json_each(?))
	`, table, column)

	result, err := r.db.ExecContext(ctx, query, closed.Format(domain.DateLayout), string(keepJSON))
	if err != nil {
		return 0, fmt.Errorf("failed to close %s: %w", table, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count closed %s: %w", table, err)
	}

	if n > 0 {
		r.log.Info().Str("table", table).Int64("closed", n).Msg("Closed positions missing from broker")
	}
	return int(n), nil
}

// OpenCounts returns live open-row counts
func (r *Repository) OpenCounts(ctx context.Context) (domain.StoreSummary, error) {
	var summary domain.StoreSummary

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM options WHERE closed IS NULL`).Scan(&summary.OpenOptions); err != nil {
		return domain.StoreSummary{}, fmt.Errorf("failed to count open options: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM long_positions WHERE closed IS NULL`).Scan(&summary.OpenShares); err != nil {
		return domain.StoreSummary{}, fmt.Errorf("failed to count open long positions: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT symbol) FROM symbols`).Scan(&summary.DistinctSymbols); err != nil {
		return domain.StoreSummary{}, fmt.Errorf("failed to count symbols: %w", err)
	}

	return summary, nil
}

// ListOpenOptions returns open option rows ordered by expiration
func (r *Repository) ListOpenOptions(ctx context.Context) ([]domain.StoredOptionPosition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, symbol, type, strike, expiration, contracts, premium, opened, closed, updated_at
		FROM options
		WHERE closed IS NULL
		ORDER BY expiration, symbol, strike
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open options: %w", err)
	}
	defer rows.Close()

	options := make([]domain.StoredOptionPosition, 0)
	for rows.Next() {
		var (
			opt                                   domain.StoredOptionPosition
			right                                 string
			expiration, opened, closed, updatedAt sql.NullString
		)
		if err := rows.Scan(&opt.ID, &opt.Symbol, &right, &opt.Strike, &expiration, &opt.Contracts,
			&opt.Premium, &opened, &closed, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		opt.Right = domain.OptionRight(right)
		opt.Expiration = parseStoredTime(expiration.String)
		opt.Opened = parseStoredTime(opened.String)
		opt.Closed = parseStoredTimePtr(closed)
		opt.UpdatedAt = parseStoredTime(updatedAt.String)
		options = append(options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating options: %w", err)
	}

	return options, nil
}

// ListOpenShares returns open long positions ordered by symbol
func (r *Repository) ListOpenShares(ctx context.Context) ([]domain.StoredSharePosition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, symbol, shares, buy_price, opened, closed, updated_at
		FROM long_positions
		WHERE closed IS NULL
		ORDER BY symbol, opened DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open long positions: %w", err)
	}
	defer rows.Close()

	shares := make([]domain.StoredSharePosition, 0)
	for rows.Next() {
		var (
			pos                       domain.StoredSharePosition
			opened, closed, updatedAt sql.NullString
		)
		if err := rows.Scan(&pos.ID, &pos.Symbol, &pos.Shares, &pos.BuyPrice, &opened, &closed, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan long position: %w", err)
		}
		pos.Opened = parseStoredTime(opened.String)
		pos.Closed = parseStoredTimePtr(closed)
		pos.UpdatedAt = parseStoredTime(updatedAt.String)
		shares = append(shares, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating long positions: %w", err)
	}

	return shares, nil
}

var storedTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	domain.DateLayout,
}

// parseStoredTime parses DATE/DATETIME column text. Drivers may hand back either the
// stored text or a formatted time.Time, so several layouts are accepted.
func parseStoredTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range storedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseStoredTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseStoredTime(s.String)
	return &t
}
