// Package reconciliation brings the local position store in line with a broker snapshot.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/algo-dude/wheeler/internal/domain"
)

// Result is the outcome of one reconciliation of a snapshot against the store.
// Inserts and updates both count as synced.
type Result struct {
	OptionsSynced   int
	PositionsSynced int
	OptionsClosed   int
	PositionsClosed int
	Errors          []string
}

// Engine applies snapshots to a PositionStore
type Engine struct {
	store domain.PositionStore
	now   func() time.Time
	log   zerolog.Logger
}

// NewEngine creates an engine writing through store
func NewEngine(store domain.PositionStore, log zerolog.Logger) *Engine {
	return &Engine{
		store: store,
		now:   time.Now,
		log:   log.With().Str("component", "reconciliation_engine").Logger(),
	}
}

// SetClock replaces the clock used for opened and closed dates
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Reconcile upserts every snapshot item in order, then closes open rows the snapshot no
// longer contains. Per-item faults are collected in Result.Errors and never stop the pass.
// The snapshot must come from a successful fetch: an empty snapshot closes everything.
func (e *Engine) Reconcile(ctx context.Context, snapshot []domain.ExternalPosition) Result {
	today := domain.Day(e.now())
	result := Result{Errors: []string{}}

	openOptionIDs := make([]int64, 0)
	openSymbols := make([]string, 0)
	seenSymbols := make(map[string]struct{})

	e.log.Info().Int("items", len(snapshot)).Str("date", today.Format(domain.DateLayout)).Msg("Reconciling snapshot")

	for _, pos := range snapshot {
		switch pos.Kind {
		case domain.InstrumentOption:
			id, err := e.syncOption(ctx, pos, today)
			if err != nil {
				result.Errors = append(result.Errors, e.itemError(pos, err))
				continue
			}
			openOptionIDs = append(openOptionIDs, id)
			result.OptionsSynced++

		case domain.InstrumentShare:
			if err := e.syncShare(ctx, pos, today); err != nil {
				result.Errors = append(result.Errors, e.itemError(pos, err))
				continue
			}
			if _, ok := seenSymbols[pos.Symbol]; !ok {
				seenSymbols[pos.Symbol] = struct{}{}
				openSymbols = append(openSymbols, pos.Symbol)
			}
			result.PositionsSynced++

		default:
			e.log.Debug().Str("kind", string(pos.Kind)).Str("symbol", pos.Symbol).Msg("Skipping unsupported instrument")
		}
	}

	closed, err := e.store.CloseOptionsExcept(ctx, openOptionIDs, today)
	if err != nil {
		msg := fmt.Sprintf("Error closing options: %v", err)
		e.log.Error().Err(err).Msg("Failed to close missing options")
		result.Errors = append(result.Errors, msg)
	} else {
		result.OptionsClosed = closed
	}

	closed, err = e.store.CloseSharesExcept(ctx, openSymbols, today)
	if err != nil {
		msg := fmt.Sprintf("Error closing positions: %v", err)
		e.log.Error().Err(err).Msg("Failed to close missing long positions")
		result.Errors = append(result.Errors, msg)
	} else {
		result.PositionsClosed = closed
	}

	e.log.Info().
		Int("options_synced", result.OptionsSynced).
		Int("positions_synced", result.PositionsSynced).
		Int("options_closed", result.OptionsClosed).
		Int("positions_closed", result.PositionsClosed).
		Int("errors", len(result.Errors)).
		Msg("Reconciliation finished")

	return result
}

func (e *Engine) itemError(pos domain.ExternalPosition, err error) string {
	itemErr := domain.NewItemError(pos.Symbol, err)
	e.log.Error().Err(err).Str("symbol", itemErr.Symbol).Str("kind", string(pos.Kind)).Msg("Failed to sync position")
	return itemErr.Error()
}

func (e *Engine) syncOption(ctx context.Context, pos domain.ExternalPosition, today time.Time) (int64, error) {
	key, contracts, premium, err := optionFields(pos)
	if err != nil {
		return 0, err
	}
	return e.store.UpsertOption(ctx, key, contracts, premium, today)
}

func (e *Engine) syncShare(ctx context.Context, pos domain.ExternalPosition, today time.Time) error {
	if pos.Symbol == "" {
		return errors.New("missing symbol")
	}
	if !finite(pos.CostBasis) {
		return fmt.Errorf("invalid cost basis %v", pos.CostBasis)
	}
	_, err := e.store.UpsertShare(ctx, pos.Symbol, pos.Quantity, pos.CostBasis, today)
	return err
}

// optionFields derives the identity key, unsigned contract count and per-contract premium.
// Short positions are tracked by contract count only.
func optionFields(pos domain.ExternalPosition) (domain.OptionKey, int64, float64, error) {
	if pos.Symbol == "" {
		return domain.OptionKey{}, 0, 0, errors.New("missing symbol")
	}
	if pos.Option == nil {
		return domain.OptionKey{}, 0, 0, errors.New("missing option contract details")
	}

	detail := pos.Option
	if !finite(detail.Strike) || detail.Strike <= 0 {
		return domain.OptionKey{}, 0, 0, fmt.Errorf("invalid strike %v", detail.Strike)
	}
	multiplier := detail.EffectiveMultiplier()
	if multiplier <= 0 {
		return domain.OptionKey{}, 0, 0, fmt.Errorf("invalid contract multiplier %d", multiplier)
	}
	if !finite(pos.CostBasis) {
		return domain.OptionKey{}, 0, 0, fmt.Errorf("invalid cost basis %v", pos.CostBasis)
	}

	expiration, err := ParseExpiration(detail.Expiration)
	if err != nil {
		return domain.OptionKey{}, 0, 0, err
	}

	contracts := pos.Quantity
	if contracts < 0 {
		contracts = -contracts
	}

	premium, _ := decimal.NewFromFloat(pos.CostBasis).
		Div(decimal.NewFromInt(int64(multiplier))).
		Float64()

	key := domain.OptionKey{
		Symbol:     pos.Symbol,
		Right:      detail.Right(),
		Strike:     detail.Strike,
		Expiration: expiration,
	}
	return key, contracts, premium, nil
}

var expirationLayouts = []string{"20060102", domain.DateLayout}

// ParseExpiration parses a broker expiration in YYYYMMDD (or YYYY-MM-DD) form
func ParseExpiration(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range expirationLayouts {
		if len(s) != len(layout) {
			continue
		}
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid expiration date %q", s)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
