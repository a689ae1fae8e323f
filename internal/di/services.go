package di

import (
	"github.com/rs/zerolog"

	"github.com/algo-dude/wheeler/internal/clients/ibkr"
	"github.com/algo-dude/wheeler/internal/config"
	"github.com/algo-dude/wheeler/internal/events"
	"github.com/algo-dude/wheeler/internal/modules/reconciliation"
	"github.com/algo-dude/wheeler/internal/scheduler"
)

// InitializeServices creates the event bus, broker client and sync orchestrator
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) {
	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)

	container.BrokerClient = ibkr.NewClient(ibkr.Config{
		Scheme:    cfg.GatewayScheme,
		Insecure:  cfg.GatewayInsecure,
		AccountID: cfg.AccountID,
	}, log)

	container.SyncService = reconciliation.NewService(
		container.BrokerClient,
		container.PositionRepo,
		container.HistoryRepo,
		container.EventManager,
		reconciliation.ServiceConfig{
			Defaults:     cfg.Connection(),
			FetchTimeout: cfg.FetchTimeout,
		},
		log,
	)

	container.Scheduler = scheduler.New(log)
}
