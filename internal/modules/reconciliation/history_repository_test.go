package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algo-dude/wheeler/internal/domain"
)

func TestHistoryRepository_RecordAndLatest(t *testing.T) {
	_, db := setupStore(t)
	repo := NewHistoryRepository(db, zerolog.Nop())
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		started := base.Add(time.Duration(i) * time.Hour)
		err := repo.Record(ctx, domain.SyncRun{
			ID:            id,
			StartedAt:     started,
			FinishedAt:    started.Add(1500 * time.Millisecond),
			OptionsSynced: i,
			Errors:        []string{},
			Success:       i != 1,
		})
		require.NoError(t, err)
	}

	runs, err := repo.Latest(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third", runs[0].ID)
	assert.Equal(t, "second", runs[1].ID)
	assert.False(t, runs[1].Success)
	assert.Equal(t, 2, runs[0].OptionsSynced)
	assert.Equal(t, base.Add(2*time.Hour+1500*time.Millisecond), runs[0].FinishedAt)
	assert.Equal(t, []string{}, runs[0].Errors)
}

func TestHistoryRepository_NilErrorsStoredAsEmpty(t *testing.T) {
	_, db := setupStore(t)
	repo := NewHistoryRepository(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, domain.SyncRun{ID: "x", StartedAt: time.Now(), FinishedAt: time.Now()}))
	require.NoError(t, repo.Record(ctx, domain.SyncRun{
		ID:     "y",
		Errors: []string{"Failed to connect to IBKR"},
	}))

	runs, err := repo.Latest(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byID := map[string]domain.SyncRun{}
	for _, r := range runs {
		byID[r.ID] = r
	}
	assert.Equal(t, []string{}, byID["x"].Errors)
	assert.Equal(t, []string{"Failed to connect to IBKR"}, byID["y"].Errors)
}

func TestHistoryRepository_DuplicateIDFails(t *testing.T) {
	_, db := setupStore(t)
	repo := NewHistoryRepository(db, zerolog.Nop())

	run := domain.SyncRun{ID: "dup", StartedAt: time.Now(), FinishedAt: time.Now()}
	require.NoError(t, repo.Record(context.Background(), run))
	assert.Error(t, repo.Record(context.Background(), run))
}
