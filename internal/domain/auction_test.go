package domain_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuction(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	buyNow := decimal.NewFromInt(9000)

	a, err := domain.NewAuction(domain.NewAuctionParams{
		Car:            domain.CarSnapshot{CarID: "car-1", Brand: "Volkswagen", Model: "Golf"},
		StartsAt:       now.Add(time.Hour),
		EndsAt:         now.Add(3 * time.Hour),
		StartPriceEur:  decimal.NewFromInt(1000),
		BuyNowPriceEur: &buyNow,
	}, now)
	require.NoError(t, err)

	assert.True(t, a.CurrentPriceEur.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, int64(0), a.Version)
	assert.True(t, a.LiveMinimum(decimal.NewFromInt(300)).Equal(decimal.NewFromInt(1300)))
}

func TestNewAuction_Invalid(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	low := decimal.NewFromInt(500)

	tests := []struct {
		name string
		p    domain.NewAuctionParams
	}{
		{"missing car", domain.NewAuctionParams{StartsAt: now, EndsAt: now.Add(time.Hour), StartPriceEur: decimal.NewFromInt(1)}},
		{"end before start", domain.NewAuctionParams{Car: domain.CarSnapshot{CarID: "c"}, StartsAt: now, EndsAt: now, StartPriceEur: decimal.NewFromInt(1)}},
		{"zero start price", domain.NewAuctionParams{Car: domain.CarSnapshot{CarID: "c"}, StartsAt: now, EndsAt: now.Add(time.Hour)}},
		{"buy now below start", domain.NewAuctionParams{Car: domain.CarSnapshot{CarID: "c"}, StartsAt: now, EndsAt: now.Add(time.Hour), StartPriceEur: decimal.NewFromInt(1000), BuyNowPriceEur: &low}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewAuction(tt.p, now)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, domain.ValidateAmount(decimal.RequireFromString("1300.50")))
	assert.Error(t, domain.ValidateAmount(decimal.Zero))
	assert.Error(t, domain.ValidateAmount(decimal.NewFromInt(-5)))
	assert.Error(t, domain.ValidateAmount(decimal.RequireFromString("10.001")))

	assert.NoError(t, domain.ValidateAmount(domain.MaxAmountEur))
	err := domain.ValidateAmount(decimal.RequireFromString("10000000000"))
	assert.True(t, errors.Is(err, domain.ErrInvalidInput), "got %v", err)
}

func TestNewBid_DisplayNameFallsBackToID(t *testing.T) {
	b := domain.NewBid(uuid.Nil, domain.Bidder{ID: "u-1"}, decimal.NewFromInt(1300), "", time.Now())
	assert.Equal(t, "u-1", b.BidderDisplayName)
}

func TestErrorsUnwrapToSentinels(t *testing.T) {
	var err error = &domain.NotOpenError{State: domain.Closed}
	assert.True(t, errors.Is(err, domain.ErrAuctionNotOpen))
	assert.Equal(t, "ends_at", err.(*domain.NotOpenError).Boundary())

	err = errors.Wrap(&domain.BidTooLowError{LiveMinimum: decimal.NewFromInt(1600)}, "place bid")
	assert.True(t, errors.Is(err, domain.ErrBidTooLow))
	var tooLow *domain.BidTooLowError
	require.True(t, errors.As(err, &tooLow))
	assert.Equal(t, "1600.00", tooLow.LiveMinimum.StringFixed(2))
}
