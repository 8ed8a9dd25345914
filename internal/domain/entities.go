package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CarSnapshot is the catalog data copied into an auction at creation time.
type CarSnapshot struct {
	CarID        string   `json:"car_id"`
	Brand        string   `json:"brand"`
	Model        string   `json:"model"`
	Year         int      `json:"year"`
	MileageKm    int      `json:"mileage_km"`
	BodyStyle    string   `json:"body_style"`
	Transmission string   `json:"transmission"`
	FuelType     string   `json:"fuel_type"`
	ImageURLs    []string `json:"image_urls"`
	VideoURLs    []string `json:"video_urls"`
	IssueTags    []string `json:"issue_tags"`
}

type Auction struct {
	ID              uuid.UUID
	Car             CarSnapshot
	StartsAt        time.Time
	EndsAt          time.Time
	StartPriceEur   decimal.Decimal
	BuyNowPriceEur  *decimal.Decimal
	CurrentPriceEur decimal.Decimal
	Version         int64
	CreatedAt       time.Time
}

// LiveMinimum is the smallest amount a bid must have to be accepted against this state.
func (a Auction) LiveMinimum(increment decimal.Decimal) decimal.Decimal {
	return a.CurrentPriceEur.Add(increment)
}

type Bid struct {
	ID                uuid.UUID
	AuctionID         uuid.UUID
	BidderID          string
	BidderDisplayName string
	AmountEur         decimal.Decimal
	CreatedAt         time.Time
	IdempotencyKey    string
}

// Bidder is the verified identity handed over by the identity service.
type Bidder struct {
	ID          string
	DisplayName string
	Roles       []string
}

func (b Bidder) HasRole(role string) bool {
	for _, r := range b.Roles {
		if r == role {
			return true
		}
	}
	return false
}
