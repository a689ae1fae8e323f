package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/algo-dude/wheeler/internal/database"
	"github.com/algo-dude/wheeler/internal/domain"
	"github.com/algo-dude/wheeler/internal/scheduler"
)

// SyncStateReader exposes the orchestrator state
type SyncStateReader interface {
	State() domain.SyncState
	IsRunning() bool
}

// JobRunner lists and triggers scheduled jobs
type JobRunner interface {
	Jobs() []scheduler.JobInfo
	Trigger(name string) error
}

// SystemHandlers serves process and database status and manual job triggers
type SystemHandlers struct {
	db        *database.DB
	sync      SyncStateReader
	jobs      JobRunner
	startedAt time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates new system handlers. jobs may be nil.
func NewSystemHandlers(db *database.DB, sync SyncStateReader, jobs JobRunner, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		db:        db,
		sync:      sync,
		jobs:      jobs,
		startedAt: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status        string          `json:"status"`
	SyncState     string          `json:"sync_state"`
	SyncRunning   bool            `json:"sync_running"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	CPUPercent    float64         `json:"cpu_percent"`
	RAMPercent    float64         `json:"ram_percent"`
	Goroutines    int             `json:"goroutines"`
	Database      *database.Stats `json:"database,omitempty"`
	DatabaseError string          `json:"database_error,omitempty"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.hostUsage()

	resp := SystemStatusResponse{
		Status:        "healthy",
		SyncState:     string(h.sync.State()),
		SyncRunning:   h.sync.IsRunning(),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		Goroutines:    runtime.NumGoroutine(),
	}

	stats, err := h.db.GetStats(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get database stats")
		resp.Status = "degraded"
		resp.DatabaseError = err.Error()
	} else {
		resp.Database = stats
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleListJobs handles GET /api/system/jobs
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.writeJSON(w, http.StatusOK, []scheduler.JobInfo{})
		return
	}
	h.writeJSON(w, http.StatusOK, h.jobs.Jobs())
}

// HandleTriggerJob handles POST /api/system/jobs/{name}/run
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.jobs == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": scheduler.ErrJobNotFound.Error()})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")

	err := h.jobs.Trigger(name)
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case err != nil:
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"job": name, "success": false, "error": err.Error()})
	default:
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"job": name, "success": true})
	}
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// hostUsage returns CPU and RAM usage percentages
func (h *SystemHandlers) hostUsage() (float64, float64) {
	// Short sample window keeps the endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
