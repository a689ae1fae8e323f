// Package handlers provides HTTP handlers for IBKR connection and sync operations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/algo-dude/wheeler/internal/domain"
)

// SyncService is the orchestrator surface the handlers use
type SyncService interface {
	Sync(ctx context.Context, cfg domain.ConnectionConfig) (*domain.SyncRun, error)
	Status(ctx context.Context) domain.StatusView
	TestConnection(ctx context.Context, cfg domain.ConnectionConfig) (*domain.ConnectionTestResult, error)
	Disconnect()
}

// HistoryReader lists recorded sync runs
type HistoryReader interface {
	Latest(ctx context.Context, limit int) ([]domain.SyncRun, error)
}

// Handler handles IBKR HTTP requests
type Handler struct {
	service SyncService
	history HistoryReader
	log     zerolog.Logger
}

// NewHandler creates a new IBKR handler. history may be nil.
func NewHandler(service SyncService, history HistoryReader, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		history: history,
		log:     log.With().Str("handler", "ibkr").Logger(),
	}
}

// TestConnectionResponse is the body of POST /api/ibkr/test
type TestConnectionResponse struct {
	Success       bool     `json:"success"`
	Connected     bool     `json:"connected"`
	Accounts      []string `json:"accounts,omitempty"`
	ServerVersion string   `json:"server_version,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// SyncResponse is the wire form of a sync run
type SyncResponse struct {
	RunID           string   `json:"run_id"`
	Success         bool     `json:"success"`
	StartedAt       string   `json:"started_at,omitempty"`
	SyncedAt        *string  `json:"synced_at"`
	OptionsSynced   int      `json:"options_synced"`
	PositionsSynced int      `json:"positions_synced"`
	OptionsClosed   int      `json:"options_closed"`
	PositionsClosed int      `json:"positions_closed"`
	Errors          []string `json:"errors"`
}

// StatusResponse is the body of GET /api/ibkr/status
type StatusResponse struct {
	Connected      bool                   `json:"connected"`
	State          string                 `json:"state"`
	LastSync       *string                `json:"last_sync"`
	LastSyncResult *SyncResponse          `json:"last_sync_result"`
	Database       map[string]interface{} `json:"database"`
}

func toSyncResponse(run domain.SyncRun) SyncResponse {
	resp := SyncResponse{
		RunID:           run.ID,
		Success:         run.Success,
		OptionsSynced:   run.OptionsSynced,
		PositionsSynced: run.PositionsSynced,
		OptionsClosed:   run.OptionsClosed,
		PositionsClosed: run.PositionsClosed,
		Errors:          run.Errors,
	}
	if resp.Errors == nil {
		resp.Errors = []string{}
	}
	if !run.StartedAt.IsZero() {
		resp.StartedAt = run.StartedAt.Format(time.RFC3339)
	}
	// Only completed passes carry a sync time
	if run.Success {
		syncedAt := run.FinishedAt.Format(time.RFC3339)
		resp.SyncedAt = &syncedAt
	}
	return resp
}

// decodeConnectionConfig reads an optional JSON body. An empty body means "use defaults".
func decodeConnectionConfig(r *http.Request) (domain.ConnectionConfig, error) {
	var cfg domain.ConnectionConfig
	if r.Body == nil {
		return cfg, nil
	}
	err := json.NewDecoder(r.Body).Decode(&cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return domain.ConnectionConfig{}, err
	}
	return cfg, nil
}

// HandleTestConnection handles POST /api/ibkr/test
func (h *Handler) HandleTestConnection(w http.ResponseWriter, r *http.Request) {
	cfg, err := decodeConnectionConfig(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.service.TestConnection(r.Context(), cfg)
	if err != nil {
		h.log.Error().Err(err).Msg("Test connection error")
		h.writeJSON(w, http.StatusOK, TestConnectionResponse{Error: err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, TestConnectionResponse{
		Success:       result.Connected,
		Connected:     result.Connected,
		Accounts:      result.Accounts,
		ServerVersion: result.ServerVersion,
		Error:         result.Error,
	})
}

// HandleSync handles POST /api/ibkr/sync
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	cfg, err := decodeConnectionConfig(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	// A client hanging up must not abort a pass halfway through its writes
	run, err := h.service.Sync(context.WithoutCancel(r.Context()), cfg)
	if errors.Is(err, domain.ErrSyncInProgress) {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Sync error")
		h.writeJSON(w, http.StatusOK, SyncResponse{Errors: []string{err.Error()}})
		return
	}

	h.writeJSON(w, http.StatusOK, toSyncResponse(*run))
}

// HandleGetStatus handles GET /api/ibkr/status
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	view := h.service.Status(r.Context())

	resp := StatusResponse{
		Connected: view.Connected,
		State:     string(view.State),
	}
	if view.LastSync != nil {
		lastSync := view.LastSync.Format(time.RFC3339)
		resp.LastSync = &lastSync
	}
	if view.LastRun != nil {
		last := toSyncResponse(*view.LastRun)
		resp.LastSyncResult = &last
	}
	if view.StoreError != "" {
		resp.Database = map[string]interface{}{"error": view.StoreError}
	} else {
		resp.Database = map[string]interface{}{
			"open_options":   view.Store.OpenOptions,
			"open_positions": view.Store.OpenShares,
			"total_symbols":  view.Store.DistinctSymbols,
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleGetHistory handles GET /api/ibkr/history?limit=N
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusServiceUnavailable, "sync history not available")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			h.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := h.history.Latest(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load sync history")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]SyncResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toSyncResponse(run))
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  out,
		"count": len(out),
	})
}

// HandleDisconnect handles POST /api/ibkr/disconnect
func (h *Handler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	h.service.Disconnect()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Disconnected from IBKR",
	})
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
