package redis

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/auction"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/observability"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func channel(auctionID uuid.UUID) string {
	return "auction:" + auctionID.String()
}

// Broadcaster fans accepted-bid projections out to every API node over pub/sub.
type Broadcaster struct {
	client *redis.Client
	logger observability.Logger
}

var _ auction.Notifier = (*Broadcaster)(nil)

func NewBroadcaster(client *redis.Client, logger observability.Logger) *Broadcaster {
	return &Broadcaster{client: client, logger: logger}
}

func (b *Broadcaster) AuctionUpdated(ctx context.Context, p auction.Projection) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel(p.ID), data).Err()
}

// Subscribe delivers raw projection payloads for one auction until ctx is done. It
// returns once Redis has confirmed the subscription, so nothing published afterwards
// is missed.
func (b *Broadcaster) Subscribe(ctx context.Context, auctionID uuid.UUID) (<-chan []byte, error) {
	sub := b.client.Subscribe(ctx, channel(auctionID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, errors.Wrap(err, "subscribe to auction updates")
	}
	out := make(chan []byte, 16)

	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					b.logger.WithField("auction_id", auctionID).Warn("subscriber too slow, dropping update")
				}
			}
		}
	}()
	return out, nil
}
