package di

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algo-dude/wheeler/internal/config"
	"github.com/algo-dude/wheeler/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		TWSHost:       "127.0.0.1",
		TWSPort:       5000,
		ClientID:      1,
		GatewayScheme: "http",
		DatabasePath:  filepath.Join(t.TempDir(), "wheeler.db"),
		Port:          8081,
		FetchTimeout:  time.Second,
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.DB)
	assert.NotNil(t, container.BrokerClient)
	assert.NotNil(t, container.PositionRepo)
	assert.NotNil(t, container.HistoryRepo)
	assert.NotNil(t, container.EventBus)
	assert.NotNil(t, container.EventManager)
	assert.NotNil(t, container.SyncService)
	assert.NotNil(t, container.Scheduler)

	require.NotNil(t, jobs)
	assert.NotNil(t, jobs.PositionSync)
	assert.NotNil(t, jobs.CheckWALCheckpoints)
	assert.NotNil(t, jobs.CheckDatabaseHealth)

	// No sync schedule: only maintenance jobs are registered
	assert.Equal(t, 2, container.Scheduler.JobCount())

	// Schema is applied
	counts, err := container.PositionRepo.OpenCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StoreSummary{}, counts)

	assert.Equal(t, domain.StateIdle, container.SyncService.State())
}

func TestWire_WithSyncSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.SyncSchedule = "*/15 * * * *"

	container, _, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.Equal(t, 3, container.Scheduler.JobCount())
}

func TestWire_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.SyncSchedule = "every now and then"

	_, _, err := Wire(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to register jobs")
}
