package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/algo-dude/wheeler/internal/database"
	"github.com/algo-dude/wheeler/internal/domain"
	testingpkg "github.com/algo-dude/wheeler/internal/testing"
)

type mockSyncRunner struct {
	mock.Mock
}

func (m *mockSyncRunner) Sync(ctx context.Context, cfg domain.ConnectionConfig) (*domain.SyncRun, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SyncRun), args.Error(1)
}

func TestPositionSyncJob_Name(t *testing.T) {
	assert.Equal(t, "ibkr_position_sync", NewPositionSyncJob(nil, 0).Name())
}

func TestPositionSyncJob_Run(t *testing.T) {
	tests := []struct {
		name    string
		run     *domain.SyncRun
		err     error
		wantErr string
	}{
		{
			name: "completed pass",
			run:  &domain.SyncRun{ID: "r1", Success: true, OptionsSynced: 2},
		},
		{
			name: "completed with item errors",
			run:  &domain.SyncRun{ID: "r2", Success: true, Errors: []string{"Error syncing position X: bad"}},
		},
		{
			name:    "connect failure",
			run:     &domain.SyncRun{ID: "r3", Errors: []string{"Failed to connect to IBKR"}},
			wantErr: "position sync failed: Failed to connect to IBKR",
		},
		{
			name: "already running",
			err:  domain.ErrSyncInProgress,
		},
		{
			name:    "unexpected error",
			err:     errors.New("boom"),
			wantErr: "failed to sync positions: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := new(mockSyncRunner)
			runner.On("Sync", mock.Anything, domain.ConnectionConfig{}).Return(tt.run, tt.err).Once()

			job := NewPositionSyncJob(runner, 0)
			job.SetLogger(zerolog.Nop())

			err := job.Run()
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			runner.AssertExpectations(t)
		})
	}
}

func TestPositionSyncJob_RunAppliesTimeout(t *testing.T) {
	runner := new(mockSyncRunner)
	runner.On("Sync", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), domain.ConnectionConfig{}).Return(&domain.SyncRun{Success: true}, nil).Once()

	require.NoError(t, NewPositionSyncJob(runner, time.Second).Run())
	runner.AssertExpectations(t)
}

type stubWAL struct {
	status database.WALStatus
	err    error
	mode   string
}

func (s *stubWAL) Name() string { return "wheeler" }

func (s *stubWAL) WALCheckpoint(_ context.Context, mode string) (database.WALStatus, error) {
	s.mode = mode
	return s.status, s.err
}

func TestCheckWALCheckpointsJob(t *testing.T) {
	assert.Equal(t, "check_wal_checkpoints", NewCheckWALCheckpointsJob(nil).Name())

	// Nil database is skipped
	assert.NoError(t, NewCheckWALCheckpointsJob(nil).Run())

	db := &stubWAL{status: database.WALStatus{LogFrames: 5000}}
	assert.NoError(t, NewCheckWALCheckpointsJob(db).Run())
	assert.Equal(t, "PASSIVE", db.mode)

	// Checkpoint failures are logged, not returned
	failing := &stubWAL{err: errors.New("database is locked")}
	assert.NoError(t, NewCheckWALCheckpointsJob(failing).Run())
}

func TestCheckWALCheckpointsJob_RealDatabase(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "wal")
	defer cleanup()

	job := NewCheckWALCheckpointsJob(db)
	job.SetLogger(zerolog.Nop())
	assert.NoError(t, job.Run())
}

type stubHealth struct {
	err error
}

func (s *stubHealth) Name() string { return "wheeler" }

func (s *stubHealth) HealthCheck(context.Context) error { return s.err }

func TestCheckDatabaseHealthJob(t *testing.T) {
	assert.Equal(t, "check_database_health", NewCheckDatabaseHealthJob(nil).Name())
	assert.NoError(t, NewCheckDatabaseHealthJob(nil).Run())
	assert.NoError(t, NewCheckDatabaseHealthJob(&stubHealth{}).Run())

	err := NewCheckDatabaseHealthJob(&stubHealth{err: errors.New("malformed")}).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database wheeler failed health check")
}
