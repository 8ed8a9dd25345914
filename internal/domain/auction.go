package domain

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EurCents is the number of fractional digits accepted for EUR amounts.
const EurCents int32 = 2

// MaxAmountEur is the largest amount the ledger columns (NUMERIC(12,2)) can hold.
var MaxAmountEur = decimal.RequireFromString("9999999999.99")

type NewAuctionParams struct {
	Car            CarSnapshot
	StartsAt       time.Time
	EndsAt         time.Time
	StartPriceEur  decimal.Decimal
	BuyNowPriceEur *decimal.Decimal
}

func NewAuction(p NewAuctionParams, now time.Time) (Auction, error) {
	if strings.TrimSpace(p.Car.CarID) == "" {
		return Auction{}, errors.Wrap(ErrInvalidInput, "car id is required")
	}
	if !p.StartsAt.Before(p.EndsAt) {
		return Auction{}, errors.Wrap(ErrInvalidInput, "starts_at must be before ends_at")
	}
	if err := ValidateAmount(p.StartPriceEur); err != nil {
		return Auction{}, errors.Wrap(err, "start price")
	}
	if p.BuyNowPriceEur != nil {
		if err := ValidateAmount(*p.BuyNowPriceEur); err != nil {
			return Auction{}, errors.Wrap(err, "buy now price")
		}
		if !p.BuyNowPriceEur.GreaterThan(p.StartPriceEur) {
			return Auction{}, errors.Wrap(ErrInvalidInput, "buy now price must exceed start price")
		}
	}
	return Auction{
		ID:              uuid.New(),
		Car:             p.Car,
		StartsAt:        p.StartsAt.UTC(),
		EndsAt:          p.EndsAt.UTC(),
		StartPriceEur:   p.StartPriceEur,
		BuyNowPriceEur:  p.BuyNowPriceEur,
		CurrentPriceEur: p.StartPriceEur,
		Version:         0,
		CreatedAt:       now.UTC(),
	}, nil
}

// ValidateAmount accepts strictly positive amounts up to MaxAmountEur with at most cent
// precision.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.Wrap(ErrInvalidInput, "amount must be positive")
	}
	if amount.GreaterThan(MaxAmountEur) {
		return errors.Wrapf(ErrInvalidInput, "amount must not exceed %s", MaxAmountEur.StringFixed(EurCents))
	}
	if !amount.Equal(amount.Round(EurCents)) {
		return errors.Wrap(ErrInvalidInput, "amount must not have more than 2 decimal places")
	}
	return nil
}

func NewBid(auctionID uuid.UUID, bidder Bidder, amount decimal.Decimal, key string, at time.Time) Bid {
	name := strings.TrimSpace(bidder.DisplayName)
	if name == "" {
		name = bidder.ID
	}
	return Bid{
		ID:                uuid.New(),
		AuctionID:         auctionID,
		BidderID:          bidder.ID,
		BidderDisplayName: name,
		AmountEur:         amount,
		CreatedAt:         at.UTC(),
		IdempotencyKey:    key,
	}
}
