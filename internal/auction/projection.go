package auction

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Projection is the read view of one auction, built fresh for every query.
type Projection struct {
	ID                   uuid.UUID             `json:"id"`
	Car                  domain.CarSnapshot    `json:"car"`
	StartsAt             time.Time             `json:"starts_at"`
	EndsAt               time.Time             `json:"ends_at"`
	StartPriceEur        decimal.Decimal       `json:"start_price_eur"`
	BuyNowPriceEur       *decimal.Decimal      `json:"buy_now_price_eur,omitempty"`
	CurrentPriceEur      decimal.Decimal       `json:"current_price_eur"`
	MinIncrementEur      decimal.Decimal       `json:"min_increment_eur"`
	LiveMinimumEur       decimal.Decimal       `json:"live_minimum_eur"`
	Version              int64                 `json:"version"`
	State                domain.LifecycleState `json:"state"`
	TimeRemaining        time.Duration         `json:"-"`
	TimeRemainingSeconds int64                 `json:"time_remaining_seconds"`
	Countdown            string                `json:"countdown"`
	Bids                 []BidView             `json:"bids"`
	AsOf                 time.Time             `json:"as_of"`
}

type BidView struct {
	ID                uuid.UUID       `json:"id"`
	BidderID          string          `json:"bidder_id"`
	BidderDisplayName string          `json:"bidder_display_name"`
	AmountEur         decimal.Decimal `json:"amount_eur"`
	CreatedAt         time.Time       `json:"created_at"`
}

// BuildProjection assembles the view for a consistent (auction, bids) snapshot.
// The ledger length must match the version, otherwise the snapshot was torn.
func BuildProjection(a domain.Auction, bids []domain.Bid, increment decimal.Decimal, now time.Time) (Projection, error) {
	if int64(len(bids)) != a.Version {
		return Projection{}, errors.AssertionFailedf(
			"auction %s: version %d does not match %d ledger entries", a.ID, a.Version, len(bids))
	}

	views := make([]BidView, 0, len(bids))
	for _, b := range bids {
		views = append(views, BidView{
			ID:                b.ID,
			BidderID:          b.BidderID,
			BidderDisplayName: b.BidderDisplayName,
			AmountEur:         b.AmountEur,
			CreatedAt:         b.CreatedAt,
		})
	}
	sortBids(views)

	remaining := domain.Remaining(now, a.StartsAt, a.EndsAt)
	return Projection{
		ID:                   a.ID,
		Car:                  a.Car,
		StartsAt:             a.StartsAt,
		EndsAt:               a.EndsAt,
		StartPriceEur:        a.StartPriceEur,
		BuyNowPriceEur:       a.BuyNowPriceEur,
		CurrentPriceEur:      a.CurrentPriceEur,
		MinIncrementEur:      increment,
		LiveMinimumEur:       a.LiveMinimum(increment),
		Version:              a.Version,
		State:                domain.StateAt(now, a.StartsAt, a.EndsAt),
		TimeRemaining:        remaining,
		TimeRemainingSeconds: int64(remaining / time.Second),
		Countdown:            domain.Countdown(now, a.StartsAt, a.EndsAt),
		Bids:                 views,
		AsOf:                 now.UTC(),
	}, nil
}

// sortBids orders by amount desc, then created_at desc.
func sortBids(bids []BidView) {
	sort.SliceStable(bids, func(i, j int) bool {
		if !bids[i].AmountEur.Equal(bids[j].AmountEur) {
			return bids[i].AmountEur.GreaterThan(bids[j].AmountEur)
		}
		return bids[i].CreatedAt.After(bids[j].CreatedAt)
	})
}
