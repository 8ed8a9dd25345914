package mongo

import (
	"context"
	"time"

	"github.com/dailyplatform-io/dailydrive-sub000/internal/auction"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/observability"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

var _ auction.Auditor = (*AuditLogger)(nil)

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	ActorID   string    `bson:"actor_id"`
	AuctionID string    `bson:"auction_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action, actorID string, auctionID uuid.UUID, data bson.M) error {
	log := AuditLog{
		ID:        uuid.NewString(),
		Action:    action,
		ActorID:   actorID,
		AuctionID: auctionID.String(),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.WithError(err).WithField("action", action).Error("failed to insert audit log")
		return err
	}
	return nil
}

func (a *AuditLogger) LogBid(ctx context.Context, bid domain.Bid) error {
	data := bson.M{
		"bid_id":     bid.ID.String(),
		"amount_eur": bid.AmountEur.StringFixed(domain.EurCents),
		"created_at": bid.CreatedAt.Format(time.RFC3339Nano),
	}
	if bid.IdempotencyKey != "" {
		data["idempotency_key"] = bid.IdempotencyKey
	}
	return a.LogEvent(ctx, "bid.accepted", bid.BidderID, bid.AuctionID, data)
}

func (a *AuditLogger) LogAuctionCreated(ctx context.Context, au domain.Auction) error {
	data := bson.M{
		"car_id":          au.Car.CarID,
		"starts_at":       au.StartsAt.Format(time.RFC3339),
		"ends_at":         au.EndsAt.Format(time.RFC3339),
		"start_price_eur": au.StartPriceEur.StringFixed(domain.EurCents),
	}
	if au.BuyNowPriceEur != nil {
		data["buy_now_price_eur"] = au.BuyNowPriceEur.StringFixed(domain.EurCents)
	}
	return a.LogEvent(ctx, "auction.created", "", au.ID, data)
}
