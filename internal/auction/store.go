package auction

import (
	"context"

	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/google/uuid"
)

// Commit is a guarded write of one accepted bid. It must only apply when the auction's
// version still equals ExpectedVersion and Bid.CreatedAt falls inside [StartsAt, EndsAt).
type Commit struct {
	ExpectedVersion int64
	Bid             domain.Bid
}

// Store persists auctions and their bid ledgers.
//
// CommitBid sets current price to Bid.AmountEur, increments version and appends the bid
// in one atomic unit. It returns domain.ErrVersionConflict when the guard fails and
// domain.ErrDuplicateKey when the bidder already used the idempotency key on this auction.
// Snapshot returns the auction and its bids as of a single consistent read.
type Store interface {
	CreateAuction(ctx context.Context, a domain.Auction) error
	LoadAuction(ctx context.Context, id uuid.UUID) (domain.Auction, error)
	Snapshot(ctx context.Context, id uuid.UUID) (domain.Auction, []domain.Bid, error)
	ListAuctions(ctx context.Context) ([]domain.Auction, error)
	CommitBid(ctx context.Context, c Commit) error
	FindBidByKey(ctx context.Context, auctionID uuid.UUID, bidderID, key string) (*domain.Bid, error)
}

// Catalog supplies the immutable car snapshot an auction is created from.
type Catalog interface {
	Snapshot(ctx context.Context, carID string) (domain.CarSnapshot, error)
}

// Notifier receives the fresh projection after every accepted bid.
type Notifier interface {
	AuctionUpdated(ctx context.Context, p Projection) error
}

type Auditor interface {
	LogBid(ctx context.Context, bid domain.Bid) error
	LogAuctionCreated(ctx context.Context, a domain.Auction) error
}
