// Package handlers provides read-only HTTP handlers for stored positions.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/algo-dude/wheeler/internal/domain"
)

// PositionLister lists open rows
type PositionLister interface {
	ListOpenOptions(ctx context.Context) ([]domain.StoredOptionPosition, error)
	ListOpenShares(ctx context.Context) ([]domain.StoredSharePosition, error)
}

// Handler handles position HTTP requests
type Handler struct {
	repo PositionLister
	log  zerolog.Logger
}

// NewHandler creates a new positions handler
func NewHandler(repo PositionLister, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "positions").Logger(),
	}
}

type optionResponse struct {
	ID         int64   `json:"id"`
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"`
	Strike     float64 `json:"strike"`
	Expiration string  `json:"expiration"`
	Contracts  int64   `json:"contracts"`
	Premium    float64 `json:"premium"`
	Opened     string  `json:"opened"`
}

type shareResponse struct {
	ID       int64   `json:"id"`
	Symbol   string  `json:"symbol"`
	Shares   int64   `json:"shares"`
	BuyPrice float64 `json:"buy_price"`
	Opened   string  `json:"opened"`
}

// HandleGetOpenOptions handles GET /api/positions/options
func (h *Handler) HandleGetOpenOptions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.repo.ListOpenOptions(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list open options")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]optionResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, optionResponse{
			ID:         row.ID,
			Symbol:     row.Symbol,
			Type:       string(row.Right),
			Strike:     row.Strike,
			Expiration: row.Expiration.Format(domain.DateLayout),
			Contracts:  row.Contracts,
			Premium:    row.Premium,
			Opened:     row.Opened.Format(domain.DateLayout),
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

// HandleGetOpenShares handles GET /api/positions/shares
func (h *Handler) HandleGetOpenShares(w http.ResponseWriter, r *http.Request) {
	rows, err := h.repo.ListOpenShares(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list open long positions")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]shareResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, shareResponse{
			ID:       row.ID,
			Symbol:   row.Symbol,
			Shares:   row.Shares,
			BuyPrice: row.BuyPrice,
			Opened:   row.Opened.Format(domain.DateLayout),
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
