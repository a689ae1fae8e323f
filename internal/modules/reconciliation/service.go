package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/algo-dude/wheeler/internal/domain"
	"github.com/algo-dude/wheeler/internal/events"
)

const (
	moduleName          = "reconciliation"
	DefaultFetchTimeout = 30 * time.Second

	// ConnectFailedMessage is the sole error of a run whose broker session could not be established
	ConnectFailedMessage = "Failed to connect to IBKR"
)

// HistoryRecorder persists finished runs
type HistoryRecorder interface {
	Record(ctx context.Context, run domain.SyncRun) error
}

// EventEmitter publishes typed events
type EventEmitter interface {
	EmitTyped(module string, data events.EventData)
	EmitError(module string, err error, context map[string]interface{})
}

// ServiceConfig holds orchestrator settings
type ServiceConfig struct {
	Defaults     domain.ConnectionConfig // endpoint used when a request leaves fields empty
	FetchTimeout time.Duration
}

// Service orchestrates one sync pass at a time:
// Idle → Connecting → Fetching → Reconciling → Finalizing → Idle.
//
// A connect or fetch failure ends the pass with Success=false and a single error and no
// store writes. Once the snapshot is fetched the pass always completes with Success=true;
// per-item problems are reported in the run's error list.
type Service struct {
	provider domain.SnapshotProvider
	store    domain.PositionStore
	engine   *Engine
	history  HistoryRecorder
	emitter  EventEmitter
	cfg      ServiceConfig
	now      func() time.Time
	log      zerolog.Logger

	running atomic.Bool

	mu      sync.RWMutex
	state   domain.SyncState
	lastRun *domain.SyncRun
}

// NewService creates a sync orchestrator. history and emitter may be nil.
func NewService(
	provider domain.SnapshotProvider,
	store domain.PositionStore,
	history HistoryRecorder,
	emitter EventEmitter,
	cfg ServiceConfig,
	log zerolog.Logger,
) *Service {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	return &Service{
		provider: provider,
		store:    store,
		engine:   NewEngine(store, log),
		history:  history,
		emitter:  emitter,
		cfg:      cfg,
		now:      time.Now,
		state:    domain.StateIdle,
		log:      log.With().Str("service", "ibkr_sync").Logger(),
	}
}

// SetClock replaces the clock used for run timestamps and store dates
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.engine.SetClock(now)
}

// State returns the current orchestrator state
func (s *Service) State() domain.SyncState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Service) setState(state domain.SyncState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.log.Debug().Str("state", string(state)).Msg("Sync state changed")
}

// LastRun returns a copy of the latest finished run, or nil before the first run
func (s *Service) LastRun() *domain.SyncRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastRun == nil {
		return nil
	}
	run := *s.lastRun
	run.Errors = append([]string(nil), s.lastRun.Errors...)
	return &run
}

// Sync runs one pass against the endpoint in cfg (empty fields use the configured defaults).
// It returns ErrSyncInProgress without side effects when another pass is running.
func (s *Service) Sync(ctx context.Context, cfg domain.ConnectionConfig) (*domain.SyncRun, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn().Msg("Sync requested while another pass is running")
		return nil, domain.ErrSyncInProgress
	}
	defer s.running.Store(false)
	defer s.setState(domain.StateIdle)

	cfg = cfg.WithDefaults(s.cfg.Defaults)
	run := &domain.SyncRun{
		ID:        uuid.New().String(),
		StartedAt: s.now(),
		Errors:    []string{},
	}
	log := s.log.With().Str("run_id", run.ID).Logger()
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Int("client_id", cfg.ClientID).Msg("Starting IBKR position sync")

	s.setState(domain.StateConnecting)
	if !s.provider.IsConnected() {
		connected, err := s.provider.Connect(ctx, cfg.Host, cfg.Port, cfg.ClientID)
		if err != nil {
			log.Error().Err(err).Msg("IBKR connect failed")
		}
		if err != nil || !connected {
			run.Errors = append(run.Errors, ConnectFailedMessage)
			s.emitBrokerStatus(false, cfg, ConnectFailedMessage)
			return s.finish(ctx, run), nil
		}
		s.emitBrokerStatus(true, cfg, "")
	}

	s.setState(domain.StateFetching)
	snapshot, err := s.fetch(ctx)
	if err != nil {
		msg := fmt.Sprintf("Failed to fetch positions: %v", err)
		log.Error().Err(err).Msg("Failed to fetch IBKR positions")
		run.Errors = append(run.Errors, msg)
		if errors.Is(err, domain.ErrNotConnected) {
			s.emitBrokerStatus(false, cfg, msg)
		}
		if s.emitter != nil {
			s.emitter.EmitError(moduleName, err, map[string]interface{}{"run_id": run.ID, "step": "fetch"})
		}
		return s.finish(ctx, run), nil
	}
	log.Info().Int("positions", len(snapshot)).Msg("Fetched positions from IBKR")

	s.setState(domain.StateReconciling)
	result := s.engine.Reconcile(ctx, snapshot)

	s.setState(domain.StateFinalizing)
	run.OptionsSynced = result.OptionsSynced
	run.PositionsSynced = result.PositionsSynced
	run.OptionsClosed = result.OptionsClosed
	run.PositionsClosed = result.PositionsClosed
	run.Errors = append(run.Errors, result.Errors...)
	run.Success = true

	return s.finish(ctx, run), nil
}

// fetch requests the snapshot under the configured timeout
func (s *Service) fetch(ctx context.Context) ([]domain.ExternalPosition, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	snapshot, err := s.provider.FetchPositions(fetchCtx)
	if err != nil {
		return nil, err
	}
	if fetchCtx.Err() != nil {
		return nil, &domain.ProviderError{Op: "fetch positions", Err: fetchCtx.Err()}
	}
	return snapshot, nil
}

// finish stamps the run, publishes it as the latest run, records and announces it
func (s *Service) finish(ctx context.Context, run *domain.SyncRun) *domain.SyncRun {
	run.FinishedAt = s.now()

	published := *run
	s.mu.Lock()
	s.lastRun = &published
	s.mu.Unlock()

	event := s.log.Info()
	if !run.Success {
		event = s.log.Warn()
	}
	event.
		Str("run_id", run.ID).
		Bool("success", run.Success).
		Int("options_synced", run.OptionsSynced).
		Int("positions_synced", run.PositionsSynced).
		Int("options_closed", run.OptionsClosed).
		Int("positions_closed", run.PositionsClosed).
		Int("errors", len(run.Errors)).
		Dur("duration", run.FinishedAt.Sub(run.StartedAt)).
		Msg("IBKR position sync finished")

	if s.history != nil {
		// The pass is over; a cancelled request must not lose the audit record
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := s.history.Record(recordCtx, *run); err != nil {
			s.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to record sync run")
		}
		cancel()
	}

	if s.emitter != nil {
		s.emitter.EmitTyped(moduleName, &events.SyncCompletedData{
			RunID:           run.ID,
			Success:         run.Success,
			FinishedAt:      run.FinishedAt,
			OptionsSynced:   run.OptionsSynced,
			PositionsSynced: run.PositionsSynced,
			OptionsClosed:   run.OptionsClosed,
			PositionsClosed: run.PositionsClosed,
			ErrorCount:      len(run.Errors),
		})
	}

	return run
}

func (s *Service) emitBrokerStatus(connected bool, cfg domain.ConnectionConfig, reason string) {
	if s.emitter == nil {
		return
	}
	s.emitter.EmitTyped(moduleName, &events.BrokerStatusData{
		Connected: connected,
		Host:      cfg.Host,
		Port:      cfg.Port,
		Reason:    reason,
	})
}

// Status reports the session flag, the latest run and live store counts. It never syncs.
func (s *Service) Status(ctx context.Context) domain.StatusView {
	view := domain.StatusView{
		Connected: s.provider.IsConnected(),
		State:     s.State(),
		LastRun:   s.LastRun(),
	}
	if view.LastRun != nil {
		finished := view.LastRun.FinishedAt
		view.LastSync = &finished
	}

	summary, err := s.store.OpenCounts(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Error getting sync status")
		view.StoreError = err.Error()
	} else {
		view.Store = summary
	}

	return view
}

// TestConnection checks the endpoint in cfg (empty fields use the configured defaults)
func (s *Service) TestConnection(ctx context.Context, cfg domain.ConnectionConfig) (*domain.ConnectionTestResult, error) {
	cfg = cfg.WithDefaults(s.cfg.Defaults)

	if tester, ok := s.provider.(domain.ConnectionTester); ok {
		result, err := tester.TestConnection(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.emitBrokerStatus(result.Connected, cfg, result.Error)
		return result, nil
	}

	connected, err := s.provider.Connect(ctx, cfg.Host, cfg.Port, cfg.ClientID)
	if err != nil {
		return nil, err
	}
	result := &domain.ConnectionTestResult{Connected: connected}
	if !connected {
		result.Error = ConnectFailedMessage
	}
	s.emitBrokerStatus(connected, cfg, result.Error)
	return result, nil
}

// Disconnect drops the broker session
func (s *Service) Disconnect() {
	s.provider.Disconnect()
	s.log.Info().Msg("Disconnected from IBKR")
	s.emitBrokerStatus(false, s.cfg.Defaults, "disconnected")
}

// IsRunning reports whether a pass is in progress
func (s *Service) IsRunning() bool {
	return s.running.Load()
}
