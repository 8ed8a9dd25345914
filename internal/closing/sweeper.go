package closing

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/observability"
	"github.com/google/uuid"
)

type Repository interface {
	EndedUnannounced(ctx context.Context, now time.Time, limit int) ([]domain.Auction, error)
	AnnounceClose(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error)
}

// Sweeper announces auctions whose end has passed. Closing itself needs no write:
// lifecycle state comes from the clock, and the commit guard already rejects late bids.
type Sweeper struct {
	repo       Repository
	logger     observability.Logger
	now        func() time.Time
	batchSize  int
	maxRetries int
	backoff    time.Duration
}

func NewSweeper(repo Repository, logger observability.Logger) *Sweeper {
	return &Sweeper{repo: repo, logger: logger, now: time.Now, batchSize: 100, maxRetries: 3, backoff: time.Second}
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Error("close sweep failed")
				continue
			}
			if n > 0 {
				s.logger.WithField("announced", n).Info("announced closed auctions")
			}
		}
	}
}

// Sweep announces one batch and returns how many auctions this call announced.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	ended, err := s.repo.EndedUnannounced(ctx, now, s.batchSize)
	if err != nil {
		return 0, err
	}
	announced := 0
	for _, a := range ended {
		ok, err := s.announceWithRetry(ctx, a.ID, now)
		if err != nil {
			s.logger.WithError(err).WithField("auction_id", a.ID).Error("failed to announce close after retries")
			continue
		}
		if ok {
			announced++
		}
	}
	return announced, nil
}

func (s *Sweeper) announceWithRetry(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	var err error
	for i := 0; i < s.maxRetries; i++ {
		var ok bool
		if ok, err = s.repo.AnnounceClose(ctx, id, now); err == nil {
			return ok, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Duration(1<<i) * s.backoff):
		}
	}
	return false, errors.Wrapf(err, "after %d attempts", s.maxRetries)
}
