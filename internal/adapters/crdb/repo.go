package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/auction"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
	NumericOverflowCode      = "22003"
)

type Repository struct {
	pool *pgxpool.Pool
}

var _ auction.Store = (*Repository)(nil)

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return mapPgError(err)
	}
	return mapPgError(tx.Commit(ctx))
}

func (r *Repository) withReadTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case SerializationFailureCode:
			return errors.Mark(errors.Wrap(err, "commit"), domain.ErrSerializationFailure)
		case UniqueViolationCode:
			return errors.Mark(errors.Wrap(err, "insert"), domain.ErrDuplicateKey)
		case NumericOverflowCode:
			return errors.Mark(errors.Wrap(err, "amount out of range"), domain.ErrInvalidInput)
		}
	}
	return err
}

func (r *Repository) CreateAuction(ctx context.Context, a domain.Auction) error {
	car, err := json.Marshal(a.Car)
	if err != nil {
		return errors.Wrap(err, "encode car snapshot")
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO auctions (id, car_snapshot, starts_at, ends_at, start_price_eur, buy_now_price_eur,
			current_price_eur, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, car, a.StartsAt, a.EndsAt, a.StartPriceEur, a.BuyNowPriceEur, a.CurrentPriceEur, a.Version, a.CreatedAt)
	return errors.Wrap(err, "insert auction")
}

const auctionColumns = `id, car_snapshot, starts_at, ends_at, start_price_eur, buy_now_price_eur,
	current_price_eur, version, created_at`

func scanAuction(row pgx.Row) (domain.Auction, error) {
	var (
		a      domain.Auction
		car    []byte
		buyNow decimal.NullDecimal
	)
	err := row.Scan(&a.ID, &car, &a.StartsAt, &a.EndsAt, &a.StartPriceEur, &buyNow,
		&a.CurrentPriceEur, &a.Version, &a.CreatedAt)
	if err == pgx.ErrNoRows {
		return domain.Auction{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Auction{}, err
	}
	if err := json.Unmarshal(car, &a.Car); err != nil {
		return domain.Auction{}, errors.Wrap(err, "decode car snapshot")
	}
	if buyNow.Valid {
		a.BuyNowPriceEur = &buyNow.Decimal
	}
	a.StartsAt, a.EndsAt, a.CreatedAt = a.StartsAt.UTC(), a.EndsAt.UTC(), a.CreatedAt.UTC()
	return a, nil
}

func (r *Repository) LoadAuction(ctx context.Context, id uuid.UUID) (domain.Auction, error) {
	return scanAuction(r.pool.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id))
}

func (r *Repository) ListAuctions(ctx context.Context) ([]domain.Auction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+auctionColumns+` FROM auctions ORDER BY ends_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

// Snapshot reads the auction row and its ledger inside one read-only transaction.
func (r *Repository) Snapshot(ctx context.Context, id uuid.UUID) (domain.Auction, []domain.Bid, error) {
	var (
		a    domain.Auction
		bids []domain.Bid
	)
	err := r.withReadTx(ctx, func(tx pgx.Tx) error {
		var err error
		a, err = scanAuction(tx.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id))
		if err != nil {
			return err
		}
		bids, err = queryBids(ctx, tx, `
			SELECT id, auction_id, bidder_id, bidder_display_name, amount_eur, created_at, idempotency_key
			FROM bids WHERE auction_id = $1
			ORDER BY amount_eur DESC, created_at DESC
		`, id)
		return err
	})
	if err != nil {
		return domain.Auction{}, nil, err
	}
	return a, bids, nil
}

func queryBids(ctx context.Context, tx pgx.Tx, sql string, args ...any) ([]domain.Bid, error) {
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

func scanBid(row pgx.Row) (domain.Bid, error) {
	var (
		b   domain.Bid
		key *string
	)
	if err := row.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.BidderDisplayName, &b.AmountEur, &b.CreatedAt, &key); err != nil {
		return domain.Bid{}, err
	}
	if key != nil {
		b.IdempotencyKey = *key
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

// CommitBid applies the version-guarded price update, the ledger append and the
// bid.accepted outbox row in one serializable transaction.
func (r *Repository) CommitBid(ctx context.Context, c auction.Commit) error {
	bid := c.Bid
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE auctions SET current_price_eur = $1, version = version + 1
			WHERE id = $2 AND version = $3 AND starts_at <= $4 AND ends_at > $4
		`, bid.AmountEur, bid.AuctionID, c.ExpectedVersion, bid.CreatedAt)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return domain.ErrVersionConflict
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO bids (id, auction_id, bidder_id, bidder_display_name, amount_eur, created_at, idempotency_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, bid.ID, bid.AuctionID, bid.BidderID, bid.BidderDisplayName, bid.AmountEur, bid.CreatedAt, nullable(bid.IdempotencyKey))
		if err != nil {
			return err
		}

		payload, err := json.Marshal(BidAcceptedEvent{
			AuctionID: bid.AuctionID,
			BidID:     bid.ID,
			BidderID:  bid.BidderID,
			AmountEur: bid.AmountEur,
			Version:   c.ExpectedVersion + 1,
			At:        bid.CreatedAt,
		})
		if err != nil {
			return err
		}
		return r.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "auction",
			AggregateID:   bid.AuctionID,
			EventType:     EventBidAccepted,
			Payload:       payload,
			DedupeKey:     bid.ID.String(),
		})
	})
	if errors.Is(err, domain.ErrSerializationFailure) {
		return errors.Mark(err, domain.ErrVersionConflict)
	}
	return err
}

func (r *Repository) FindBidByKey(ctx context.Context, auctionID uuid.UUID, bidderID, key string) (*domain.Bid, error) {
	b, err := scanBid(r.pool.QueryRow(ctx, `
		SELECT id, auction_id, bidder_id, bidder_display_name, amount_eur, created_at, idempotency_key
		FROM bids WHERE auction_id = $1 AND bidder_id = $2 AND idempotency_key = $3
	`, auctionID, bidderID, key))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// EndedUnannounced lists auctions past their end that have no auction.closed event yet.
func (r *Repository) EndedUnannounced(ctx context.Context, now time.Time, limit int) ([]domain.Auction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+auctionColumns+` FROM auctions
		WHERE ends_at <= $1 AND close_announced_at IS NULL
		ORDER BY ends_at LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

// AnnounceClose stamps close_announced_at and enqueues auction.closed with the winning
// bid. It reports false when another worker announced the auction first.
func (r *Repository) AnnounceClose(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error) {
	announced := false
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE auctions SET close_announced_at = $2
			WHERE id = $1 AND ends_at <= $2 AND close_announced_at IS NULL
		`, auctionID, now)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return nil
		}

		a, err := scanAuction(tx.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, auctionID))
		if err != nil {
			return err
		}
		top, err := queryBids(ctx, tx, `
			SELECT id, auction_id, bidder_id, bidder_display_name, amount_eur, created_at, idempotency_key
			FROM bids WHERE auction_id = $1
			ORDER BY amount_eur DESC, created_at DESC LIMIT 1
		`, auctionID)
		if err != nil {
			return err
		}

		ev := AuctionClosedEvent{
			AuctionID:     a.ID,
			CarID:         a.Car.CarID,
			EndsAt:        a.EndsAt,
			FinalPriceEur: a.CurrentPriceEur,
			BidCount:      a.Version,
		}
		if len(top) == 1 {
			ev.WinningBidID = &top[0].ID
			ev.WinnerID = top[0].BidderID
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if err := r.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "auction",
			AggregateID:   a.ID,
			EventType:     EventAuctionClosed,
			Payload:       payload,
			DedupeKey:     "closed:" + a.ID.String(),
		}); err != nil {
			return err
		}
		announced = true
		return nil
	})
	return announced, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
