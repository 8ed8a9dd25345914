package auction

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/observability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	MinIncrement      decimal.Decimal
	MaxCommitAttempts int
	StoreTimeout      time.Duration
	RetryBackoff      time.Duration
	ProjectionWorkers int
}

func DefaultConfig() Config {
	return Config{
		MinIncrement:      decimal.NewFromInt(300),
		MaxCommitAttempts: 5,
		StoreTimeout:      2 * time.Second,
		RetryBackoff:      2 * time.Millisecond,
		ProjectionWorkers: 8,
	}
}

// Engine is the only writer of auction prices and bid ledgers.
type Engine struct {
	store    Store
	cfg      Config
	logger   observability.Logger
	tracer   trace.Tracer
	now      func() time.Time
	catalog  Catalog
	notifier Notifier
	auditor  Auditor
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithCatalog(c Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithAuditor(a Auditor) Option {
	return func(e *Engine) { e.auditor = a }
}

func NewEngine(store Store, cfg Config, logger observability.Logger, opts ...Option) *Engine {
	def := DefaultConfig()
	if !cfg.MinIncrement.IsPositive() {
		cfg.MinIncrement = def.MinIncrement
	}
	if cfg.MaxCommitAttempts < 1 {
		cfg.MaxCommitAttempts = def.MaxCommitAttempts
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	if cfg.ProjectionWorkers < 1 {
		cfg.ProjectionWorkers = def.ProjectionWorkers
	}
	e := &Engine{
		store:  store,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("auction"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type BidRequest struct {
	AuctionID      uuid.UUID
	Amount         decimal.Decimal
	Bidder         domain.Bidder
	IdempotencyKey string
}

type BidResult struct {
	Bid        domain.Bid
	Projection Projection
	// Replayed is set when the idempotency key matched a bid accepted earlier.
	Replayed bool
	Attempts int
}

// PlaceBid validates and commits one bid. Version conflicts are retried with a reloaded
// state; each retry re-checks the lifecycle and the live minimum.
func (e *Engine) PlaceBid(ctx context.Context, req BidRequest) (*BidResult, error) {
	ctx, span := e.tracer.Start(ctx, "auction.PlaceBid", trace.WithAttributes(
		attribute.String("auction.id", req.AuctionID.String()),
		attribute.String("bid.amount_eur", req.Amount.String()),
	))
	defer span.End()

	res, err := e.placeBid(ctx, req)
	observability.BidsTotal.WithLabelValues(bidOutcome(res, err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("bid.attempts", res.Attempts), attribute.Bool("bid.replayed", res.Replayed))
	return res, nil
}

func (e *Engine) placeBid(ctx context.Context, req BidRequest) (*BidResult, error) {
	logger := observability.FromContext(ctx, e.logger).WithFields(map[string]interface{}{
		"auction_id": req.AuctionID.String(),
		"bidder_id":  req.Bidder.ID,
	})

	if err := validateBidRequest(req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		res, err := e.replay(ctx, req)
		if err != nil || res != nil {
			return res, err
		}
	}

	for attempt := 1; attempt <= e.cfg.MaxCommitAttempts; attempt++ {
		var a domain.Auction
		err := e.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			a, err = e.store.LoadAuction(ctx, req.AuctionID)
			return err
		})
		if err != nil {
			return nil, err
		}

		now := e.now()
		if state := domain.StateAt(now, a.StartsAt, a.EndsAt); state != domain.Live {
			return nil, &domain.NotOpenError{State: state, StartsAt: a.StartsAt, EndsAt: a.EndsAt}
		}

		minimum := a.LiveMinimum(e.cfg.MinIncrement)
		if req.Amount.LessThan(minimum) {
			return nil, &domain.BidTooLowError{LiveMinimum: minimum, CurrentPrice: a.CurrentPriceEur}
		}

		bid := domain.NewBid(a.ID, req.Bidder, req.Amount, req.IdempotencyKey, now)
		err = e.withTimeout(ctx, func(ctx context.Context) error {
			return e.store.CommitBid(ctx, Commit{ExpectedVersion: a.Version, Bid: bid})
		})
		switch {
		case err == nil:
			observability.BidCommitAttempts.Observe(float64(attempt))
			logger.WithFields(map[string]interface{}{
				"bid_id":     bid.ID.String(),
				"amount_eur": bid.AmountEur.String(),
				"version":    a.Version + 1,
				"attempt":    attempt,
			}).Info("bid accepted")
			return e.accepted(ctx, bid, attempt)
		case errors.Is(err, domain.ErrVersionConflict):
			logger.WithField("attempt", attempt).Debug("version conflict, reloading auction")
			if err := e.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		case errors.Is(err, domain.ErrDuplicateKey):
			res, err := e.replay(ctx, req)
			if err != nil {
				return nil, err
			}
			if res == nil {
				return nil, errors.Wrap(domain.ErrConflict, "idempotency key collided but no bid found")
			}
			return res, nil
		default:
			return nil, err
		}
	}

	observability.BidCommitAttempts.Observe(float64(e.cfg.MaxCommitAttempts))
	logger.WithField("attempts", e.cfg.MaxCommitAttempts).Warn("bid gave up after repeated version conflicts")
	return nil, errors.Wrapf(domain.ErrContention, "%d commit attempts", e.cfg.MaxCommitAttempts)
}

func (e *Engine) accepted(ctx context.Context, bid domain.Bid, attempts int) (*BidResult, error) {
	p, err := e.GetAuction(ctx, bid.AuctionID)
	if err != nil {
		// The bid is committed; the caller learns about it by re-reading.
		return nil, errors.Wrap(err, "bid accepted but projection failed")
	}
	if e.notifier != nil {
		if err := e.notifier.AuctionUpdated(ctx, p); err != nil {
			observability.FromContext(ctx, e.logger).WithError(err).Warn("failed to publish auction update")
		}
	}
	if e.auditor != nil {
		if err := e.auditor.LogBid(ctx, bid); err != nil {
			observability.FromContext(ctx, e.logger).WithError(err).Warn("failed to audit bid")
		}
	}
	return &BidResult{Bid: bid, Projection: p, Attempts: attempts}, nil
}

func (e *Engine) replay(ctx context.Context, req BidRequest) (*BidResult, error) {
	var bid *domain.Bid
	err := e.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		bid, err = e.store.FindBidByKey(ctx, req.AuctionID, req.Bidder.ID, req.IdempotencyKey)
		return err
	})
	if err != nil || bid == nil {
		return nil, err
	}
	if !bid.AmountEur.Equal(req.Amount) {
		return nil, errors.Wrap(domain.ErrConflict, "idempotency key reused with a different amount")
	}
	p, err := e.GetAuction(ctx, req.AuctionID)
	if err != nil {
		return nil, err
	}
	return &BidResult{Bid: *bid, Projection: p, Replayed: true}, nil
}

func (e *Engine) GetAuction(ctx context.Context, id uuid.UUID) (Projection, error) {
	var (
		a    domain.Auction
		bids []domain.Bid
	)
	err := e.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		a, bids, err = e.store.Snapshot(ctx, id)
		return err
	})
	if err != nil {
		return Projection{}, err
	}
	return BuildProjection(a, bids, e.cfg.MinIncrement, e.now())
}

// ListAuctions returns projections ordered by end time. A nil state returns every auction.
func (e *Engine) ListAuctions(ctx context.Context, state *domain.LifecycleState) ([]Projection, error) {
	var auctions []domain.Auction
	err := e.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		auctions, err = e.store.ListAuctions(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	now := e.now()
	if state != nil {
		kept := auctions[:0]
		for _, a := range auctions {
			if domain.StateAt(now, a.StartsAt, a.EndsAt) == *state {
				kept = append(kept, a)
			}
		}
		auctions = kept
	}

	projections := make([]Projection, len(auctions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.ProjectionWorkers)
	for i, a := range auctions {
		i, id := i, a.ID
		g.Go(func() error {
			p, err := e.GetAuction(gctx, id)
			if err != nil {
				return errors.Wrapf(err, "auction %s", id)
			}
			projections[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(projections, func(i, j int) bool {
		if !projections[i].EndsAt.Equal(projections[j].EndsAt) {
			return projections[i].EndsAt.Before(projections[j].EndsAt)
		}
		return projections[i].ID.String() < projections[j].ID.String()
	})
	return projections, nil
}

type CreateRequest struct {
	CarID          string
	StartsAt       time.Time
	EndsAt         time.Time
	StartPriceEur  decimal.Decimal
	BuyNowPriceEur *decimal.Decimal
}

// CreateAuction copies the car from the catalog and persists a new auction.
func (e *Engine) CreateAuction(ctx context.Context, req CreateRequest) (Projection, error) {
	if e.catalog == nil {
		return Projection{}, errors.New("no catalog configured")
	}
	carID := strings.TrimSpace(req.CarID)
	if carID == "" {
		return Projection{}, errors.Wrap(domain.ErrInvalidInput, "car id is required")
	}

	var car domain.CarSnapshot
	err := e.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		car, err = e.catalog.Snapshot(ctx, carID)
		return err
	})
	if err != nil {
		return Projection{}, err
	}
	car.CarID = carID

	a, err := domain.NewAuction(domain.NewAuctionParams{
		Car:            car,
		StartsAt:       req.StartsAt,
		EndsAt:         req.EndsAt,
		StartPriceEur:  req.StartPriceEur,
		BuyNowPriceEur: req.BuyNowPriceEur,
	}, e.now())
	if err != nil {
		return Projection{}, err
	}

	if err := e.withTimeout(ctx, func(ctx context.Context) error {
		return e.store.CreateAuction(ctx, a)
	}); err != nil {
		return Projection{}, err
	}

	if e.auditor != nil {
		if err := e.auditor.LogAuctionCreated(ctx, a); err != nil {
			observability.FromContext(ctx, e.logger).WithError(err).Warn("failed to audit auction creation")
		}
	}
	return BuildProjection(a, nil, e.cfg.MinIncrement, e.now())
}

// withTimeout bounds a single store call. Hitting the bound surfaces as domain.ErrBusy;
// cancellation by the caller is returned unchanged.
func (e *Engine) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()

	err := fn(cctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return errors.Wrapf(domain.ErrBusy, "store call exceeded %s", e.cfg.StoreTimeout)
	}
	return err
}

func (e *Engine) backoff(ctx context.Context, attempt int) error {
	if e.cfg.RetryBackoff == 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(attempt) * e.cfg.RetryBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func validateBidRequest(req BidRequest) error {
	if req.AuctionID == uuid.Nil {
		return errors.Wrap(domain.ErrInvalidInput, "auction id is required")
	}
	if strings.TrimSpace(req.Bidder.ID) == "" {
		return errors.Wrap(domain.ErrInvalidInput, "bidder id is required")
	}
	if n := len(req.IdempotencyKey); n > 0 && (n < 8 || n > 128) {
		return errors.Wrap(domain.ErrInvalidInput, "idempotency key must be 8 to 128 characters")
	}
	return domain.ValidateAmount(req.Amount)
}

func bidOutcome(res *BidResult, err error) string {
	switch {
	case err == nil && res.Replayed:
		return observability.BidOutcomeReplayed
	case err == nil:
		return observability.BidOutcomeAccepted
	case errors.Is(err, domain.ErrBidTooLow):
		return observability.BidOutcomeTooLow
	case errors.Is(err, domain.ErrAuctionNotOpen):
		return observability.BidOutcomeNotOpen
	case errors.Is(err, domain.ErrContention):
		return observability.BidOutcomeContention
	case errors.Is(err, domain.ErrBusy):
		return observability.BidOutcomeBusy
	default:
		return observability.BidOutcomeError
	}
}
