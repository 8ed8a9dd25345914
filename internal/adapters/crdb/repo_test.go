package crdb_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/adapters/crdb"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/auction"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newRepository(t *testing.T) *crdb.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("cockroach container skipped in short mode")
	}
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { crdbContainer.Terminate(ctx) })

	host, err := crdbContainer.Host(ctx)
	require.NoError(t, err)
	port, err := crdbContainer.MappedPort(ctx, "26257")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgresql://root@%s:%s/defaultdb?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := crdb.NewRepository(pool)
	require.NoError(t, repo.Migrate(ctx))
	return repo
}

func seed(t *testing.T, repo *crdb.Repository, startsAt, endsAt time.Time) domain.Auction {
	t.Helper()
	buyNow := decimal.NewFromInt(25000)
	a, err := domain.NewAuction(domain.NewAuctionParams{
		Car:            domain.CarSnapshot{CarID: "car-1", Brand: "BMW", Model: "320d", Year: 2019, IssueTags: []string{"scratch"}},
		StartsAt:       startsAt,
		EndsAt:         endsAt,
		StartPriceEur:  decimal.NewFromInt(10000),
		BuyNowPriceEur: &buyNow,
	}, startsAt.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.CreateAuction(context.Background(), a))
	return a
}

func TestRepository_CommitBidAndSnapshot(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	a := seed(t, repo, now.Add(-time.Minute), now.Add(time.Hour))

	b := domain.NewBid(a.ID, domain.Bidder{ID: "u1", DisplayName: "Ana"}, decimal.NewFromInt(10300), "key-00000001", now)
	require.NoError(t, repo.CommitBid(ctx, auction.Commit{ExpectedVersion: 0, Bid: b}))

	stale := domain.NewBid(a.ID, domain.Bidder{ID: "u2"}, decimal.NewFromInt(10300), "", now)
	err := repo.CommitBid(ctx, auction.Commit{ExpectedVersion: 0, Bid: stale})
	assert.True(t, errors.Is(err, domain.ErrVersionConflict), "got %v", err)

	got, bids, err := repo.Snapshot(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, got.CurrentPriceEur.Equal(decimal.NewFromInt(10300)))
	assert.Equal(t, []string{"scratch"}, got.Car.IssueTags)
	require.Len(t, bids, 1)
	assert.Equal(t, b.ID, bids[0].ID)

	replay, err := repo.FindBidByKey(ctx, a.ID, "u1", "key-00000001")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, b.ID, replay.ID)

	records, err := repo.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, crdb.EventBidAccepted, records[0].EventType)
	require.NoError(t, repo.MarkPublished(ctx, records[0].ID, now))
}

func TestRepository_CommitRejectedOutsideWindow(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()
	a := seed(t, repo, now.Add(-time.Hour), now.Add(time.Minute))

	late := domain.NewBid(a.ID, domain.Bidder{ID: "u1"}, decimal.NewFromInt(10300), "", a.EndsAt)
	err := repo.CommitBid(ctx, auction.Commit{ExpectedVersion: 0, Bid: late})
	assert.True(t, errors.Is(err, domain.ErrVersionConflict), "got %v", err)
}

func TestRepository_ConcurrentCommitsSingleWinner(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()
	a := seed(t, repo, now.Add(-time.Minute), now.Add(time.Hour))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := domain.NewBid(a.ID, domain.Bidder{ID: uuid.NewString()}, decimal.NewFromInt(10300), "", time.Now().UTC())
			if err := repo.CommitBid(ctx, auction.Commit{ExpectedVersion: 0, Bid: b}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRepository_AnnounceClose(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()
	a := seed(t, repo, now.Add(-2*time.Hour), now.Add(-time.Hour))

	ended, err := repo.EndedUnannounced(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, ended, 1)
	assert.Equal(t, a.ID, ended[0].ID)

	ok, err := repo.AnnounceClose(ctx, a.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.AnnounceClose(ctx, a.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	ended, err = repo.EndedUnannounced(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, ended)
}
