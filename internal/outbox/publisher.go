package outbox

import (
	"context"
	"time"

	"github.com/dailyplatform-io/dailydrive-sub000/internal/adapters/crdb"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/observability"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Source interface {
	GetUnpublishedOutbox(ctx context.Context, limit int) ([]crdb.OutboxRecord, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
	OldestUnpublishedAge(ctx context.Context, now time.Time) (time.Duration, error)
}

type Sink interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

// Publisher relays outbox rows to the broker in creation order. Delivery is at least
// once; consumers dedupe on MessageId, which carries the row's dedupe key.
type Publisher struct {
	repo       Source
	rabbitPub  Sink
	logger     observability.Logger
	batchSize  int
	maxRetries int
	backoff    time.Duration
}

func NewPublisher(repo Source, rabbitPub Sink, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger, batchSize: 50, maxRetries: 3, backoff: time.Second}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Drain(ctx); err != nil && ctx.Err() == nil {
				p.logger.WithError(err).Error("outbox drain failed")
			}
		}
	}
}

// Drain publishes one batch and returns how many rows were marked published. It stops
// at the first row that cannot be published so ordering per batch is kept.
func (p *Publisher) Drain(ctx context.Context) (int, error) {
	defer p.recordLag(ctx)

	records, err := p.repo.GetUnpublishedOutbox(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Type:        rec.EventType,
			Timestamp:   rec.CreatedAt,
			Body:        rec.Payload,
		}
		if err := p.publishWithRetry(ctx, rec.EventType, msg); err != nil {
			return published, err
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now().UTC()); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

func (p *Publisher) publishWithRetry(ctx context.Context, key string, msg amqp.Publishing) error {
	var err error
	for i := 0; i < p.maxRetries; i++ {
		if err = p.rabbitPub.Publish(ctx, key, msg); err == nil {
			return nil
		}
		observability.RabbitPublishRetries.Inc()
		p.logger.WithError(err).WithField("message_id", msg.MessageId).Warn("publish failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(1<<i) * p.backoff):
		}
	}
	return err
}

func (p *Publisher) recordLag(ctx context.Context) {
	lag, err := p.repo.OldestUnpublishedAge(ctx, time.Now().UTC())
	if err != nil {
		return
	}
	observability.OutboxLag.Set(lag.Seconds())
}
