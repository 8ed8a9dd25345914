package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/adapters/sqlite"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/auction"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/observability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func memdb(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *sqlite.Store) domain.Auction {
	t.Helper()
	buyNow := decimal.RequireFromString("24999.99")
	a, err := domain.NewAuction(domain.NewAuctionParams{
		Car: domain.CarSnapshot{
			CarID: "car-7", Brand: "Audi", Model: "A4", Year: 2018, MileageKm: 91000,
			ImageURLs: []string{"https://img/1.jpg"}, IssueTags: []string{"dent", "windshield"},
		},
		StartsAt:       t0,
		EndsAt:         t0.Add(time.Hour),
		StartPriceEur:  decimal.NewFromInt(10000),
		BuyNowPriceEur: &buyNow,
	}, t0.Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, s.CreateAuction(context.Background(), a))
	return a
}

func TestStore_RoundTrip(t *testing.T) {
	s := memdb(t)
	a := seed(t, s)

	got, err := s.LoadAuction(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Car, got.Car)
	assert.True(t, got.StartsAt.Equal(a.StartsAt))
	assert.True(t, got.EndsAt.Equal(a.EndsAt))
	require.NotNil(t, got.BuyNowPriceEur)
	assert.Equal(t, "24999.99", got.BuyNowPriceEur.StringFixed(2))
	assert.Equal(t, int64(0), got.Version)

	_, err = s.LoadAuction(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_CommitBidGuards(t *testing.T) {
	s := memdb(t)
	a := seed(t, s)
	ctx := context.Background()

	first := domain.NewBid(a.ID, domain.Bidder{ID: "u1", DisplayName: "Ana"}, decimal.NewFromInt(10300), "key-0000001", t0.Add(time.Minute))
	require.NoError(t, s.CommitBid(ctx, auction.Commit{ExpectedVersion: 0, Bid: first}))

	stale := domain.NewBid(a.ID, domain.Bidder{ID: "u2"}, decimal.NewFromInt(10300), "", t0.Add(time.Minute))
	err := s.CommitBid(ctx, auction.Commit{ExpectedVersion: 0, Bid: stale})
	assert.True(t, errors.Is(err, domain.ErrVersionConflict), "got %v", err)

	atEnd := domain.NewBid(a.ID, domain.Bidder{ID: "u2"}, decimal.NewFromInt(10600), "", a.EndsAt)
	err = s.CommitBid(ctx, auction.Commit{ExpectedVersion: 1, Bid: atEnd})
	assert.True(t, errors.Is(err, domain.ErrVersionConflict), "got %v", err)

	dup := domain.NewBid(a.ID, domain.Bidder{ID: "u1"}, decimal.NewFromInt(10600), "key-0000001", t0.Add(2*time.Minute))
	err = s.CommitBid(ctx, auction.Commit{ExpectedVersion: 1, Bid: dup})
	assert.True(t, errors.Is(err, domain.ErrDuplicateKey), "got %v", err)

	got, bids, err := s.Snapshot(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, got.CurrentPriceEur.Equal(decimal.NewFromInt(10300)))
	require.Len(t, bids, 1)
	assert.Equal(t, first.ID, bids[0].ID)
	assert.True(t, bids[0].CreatedAt.Equal(first.CreatedAt))

	found, err := s.FindBidByKey(ctx, a.ID, "u1", "key-0000001")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)

	missing, err := s.FindBidByKey(ctx, a.ID, "u2", "key-0000001")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_SnapshotOrdersByAmountNumerically(t *testing.T) {
	s := memdb(t)
	a := seed(t, s)
	ctx := context.Background()

	amounts := []int64{10300, 10600, 100000}
	for i, amt := range amounts {
		b := domain.NewBid(a.ID, domain.Bidder{ID: "u"}, decimal.NewFromInt(amt), "", t0.Add(time.Duration(i+1)*time.Minute))
		require.NoError(t, s.CommitBid(ctx, auction.Commit{ExpectedVersion: int64(i), Bid: b}))
	}
	_, bids, err := s.Snapshot(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.True(t, bids[0].AmountEur.Equal(decimal.NewFromInt(100000)))
	assert.True(t, bids[2].AmountEur.Equal(decimal.NewFromInt(10300)))
}

func TestStore_EngineConcurrentBids(t *testing.T) {
	s := memdb(t)
	a := seed(t, s)
	now := t0.Add(10 * time.Minute)

	cfg := auction.DefaultConfig()
	cfg.RetryBackoff = 0
	cfg.MaxCommitAttempts = 50
	engine := auction.NewEngine(s, cfg, observability.NewLoggerWithLevel("error"),
		auction.WithClock(func() time.Time { return now }))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = engine.PlaceBid(context.Background(), auction.BidRequest{
				AuctionID: a.ID,
				Amount:    decimal.NewFromInt(int64(10300 + i*300)),
				Bidder:    domain.Bidder{ID: "bidder"},
			})
		}(i)
	}
	wg.Wait()

	p, err := engine.GetAuction(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(p.Bids)), p.Version)
	if len(p.Bids) > 0 {
		assert.Equal(t, p.Bids[0].AmountEur.String(), p.CurrentPriceEur.String())
	}
	for i := 1; i < len(p.Bids); i++ {
		assert.True(t, p.Bids[i-1].AmountEur.GreaterThan(p.Bids[i].AmountEur))
	}
}
