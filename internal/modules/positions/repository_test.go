package positions

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"

	"github.com/algo-dude/wheeler/internal/database"
	"github.com/algo-dude/wheeler/internal/domain"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	schema, err := database.Schema()
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)

	return db
}

func newTestRepository(t *testing.T) (*Repository, *sql.DB) {
	db := setupTestDB(t)
	return NewRepository(db, zerolog.New(nil).Level(zerolog.Disabled)), db
}

var (
	jan2  = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	jan3  = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	jun21 = time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)
)

func aaplPut() domain.OptionKey {
	return domain.OptionKey{Symbol: "AAPL", Right: domain.RightPut, Strike: 150, Expiration: jun21}
}

func TestUpsertOption_InsertThenUpdate(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	id, err := repo.UpsertOption(ctx, aaplPut(), 2, 3.5, jan2)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	var symbolCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM symbols WHERE symbol = 'AAPL'`).Scan(&symbolCount))
	assert.Equal(t, 1, symbolCount)

	again, err := repo.UpsertOption(ctx, aaplPut(), 3, 4.25, jan3)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	var (
		contracts int64
		premium   float64
		opened    string
		count     int
	)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM options`).Scan(&count))
	assert.Equal(t, 1, count)
	require.NoError(t, db.QueryRow(`SELECT contracts, premium, substr(opened, 1, 10) FROM options WHERE id = ?`, id).
		Scan(&contracts, &premium, &opened))
	assert.Equal(t, int64(3), contracts)
	assert.Equal(t, 4.25, premium)
	assert.Equal(t, "2024-01-02", opened, "opened date is preserved on update")
}

func TestUpsertOption_DistinctKeysInsertSeparately(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	put, err := repo.UpsertOption(ctx, aaplPut(), 1, 3.5, jan2)
	require.NoError(t, err)

	callKey := aaplPut()
	callKey.Right = domain.RightCall
	call, err := repo.UpsertOption(ctx, callKey, 1, 2.0, jan2)
	require.NoError(t, err)

	otherStrike := aaplPut()
	otherStrike.Strike = 145
	other, err := repo.UpsertOption(ctx, otherStrike, 1, 2.0, jan2)
	require.NoError(t, err)

	assert.NotEqual(t, put, call)
	assert.NotEqual(t, put, other)
	assert.NotEqual(t, call, other)
}

func TestUpsertOption_ClosedRowIsNotReused(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	first, err := repo.UpsertOption(ctx, aaplPut(), 1, 3.5, jan2)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE options SET closed = '2024-01-02' WHERE id = ?`, first)
	require.NoError(t, err)

	second, err := repo.UpsertOption(ctx, aaplPut(), 1, 3.5, jan3)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestUpsertShare_UpdatesMostRecentOpenRow(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	_, err := db.Exec(`INSERT INTO symbols (symbol) VALUES ('MSFT')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO long_positions (symbol, opened, shares, buy_price) VALUES
		('MSFT', '2023-05-01', 50, 300),
		('MSFT', '2023-09-01', 50, 320),
		('MSFT', '2023-12-01', 100, 350)`)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE long_positions SET closed = '2023-12-15' WHERE opened = '2023-12-01'`)
	require.NoError(t, err)

	id, err := repo.UpsertShare(ctx, "MSFT", 100, 310, jan2)
	require.NoError(t, err)

	var opened string
	var shares int64
	require.NoError(t, db.QueryRow(`SELECT substr(opened, 1, 10), shares FROM long_positions WHERE id = ?`, id).Scan(&opened, &shares))
	assert.Equal(t, "2023-09-01", opened)
	assert.Equal(t, int64(100), shares)

	var untouched int64
	require.NoError(t, db.QueryRow(`SELECT shares FROM long_positions WHERE substr(opened, 1, 10) = '2023-05-01'`).Scan(&untouched))
	assert.Equal(t, int64(50), untouched)
}

func TestUpsertShare_InsertsWhenNoOpenRow(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	id, err := repo.UpsertShare(ctx, "KO", 200, 58.1, jan2)
	require.NoError(t, err)

	shares, err := repo.ListOpenShares(ctx)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Equal(t, id, shares[0].ID)
	assert.Equal(t, "KO", shares[0].Symbol)
	assert.Equal(t, int64(200), shares[0].Shares)
	assert.Equal(t, jan2, shares[0].Opened)
	assert.Nil(t, shares[0].Closed)
}

func TestCloseOptionsExcept(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	keep, err := repo.UpsertOption(ctx, aaplPut(), 1, 3.5, jan2)
	require.NoError(t, err)
	other := aaplPut()
	other.Strike = 140
	_, err = repo.UpsertOption(ctx, other, 1, 1.5, jan2)
	require.NoError(t, err)

	closed, err := repo.CloseOptionsExcept(ctx, []int64{keep}, jan3)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	open, err := repo.ListOpenOptions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, keep, open[0].ID)
	assert.Equal(t, jun21, open[0].Expiration)
	assert.Equal(t, domain.RightPut, open[0].Right)

	// Already closed rows are not closed again
	closed, err = repo.CloseOptionsExcept(ctx, []int64{keep}, jan3)
	require.NoError(t, err)
	assert.Equal(t, 0, closed)
}

func TestCloseOptionsExcept_EmptySetClosesAll(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.UpsertOption(ctx, aaplPut(), 1, 3.5, jan2)
	require.NoError(t, err)

	closed, err := repo.CloseOptionsExcept(ctx, nil, jan3)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	counts, err := repo.OpenCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.OpenOptions)
}

func TestCloseSharesExcept(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.UpsertShare(ctx, "MSFT", 100, 310, jan2)
	require.NoError(t, err)
	_, err = repo.UpsertShare(ctx, "KO", 200, 58, jan2)
	require.NoError(t, err)

	closed, err := repo.CloseSharesExcept(ctx, []string{"MSFT"}, jan3)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	var closedOn string
	require.NoError(t, db.QueryRow(`SELECT substr(closed, 1, 10) FROM long_positions WHERE symbol = 'KO'`).Scan(&closedOn))
	assert.Equal(t, "2024-01-03", closedOn)

	closed, err = repo.CloseSharesExcept(ctx, []string{}, jan3)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
}

func TestOpenCounts(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.UpsertOption(ctx, aaplPut(), 1, 3.5, jan2)
	require.NoError(t, err)
	_, err = repo.UpsertShare(ctx, "MSFT", 100, 310, jan2)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO symbols (symbol) VALUES ('TSLA')`)
	require.NoError(t, err)

	counts, err := repo.OpenCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StoreSummary{OpenOptions: 1, OpenShares: 1, DistinctSymbols: 3}, counts)
}

func TestOpenCounts_StoreUnavailable(t *testing.T) {
	repo, db := newTestRepository(t)
	require.NoError(t, db.Close())

	_, err := repo.OpenCounts(context.Background())
	assert.Error(t, err)
}

func TestParseStoredTime(t *testing.T) {
	assert.Equal(t, jun21, parseStoredTime("2024-06-21"))
	assert.Equal(t, jun21, parseStoredTime("2024-06-21T00:00:00Z"))
	assert.Equal(t, time.Date(2024, 6, 21, 13, 5, 0, 0, time.UTC), parseStoredTime("2024-06-21 13:05:00"))
	assert.True(t, parseStoredTime("garbage").IsZero())
}
