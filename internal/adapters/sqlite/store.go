package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/auction"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store keeps auctions and bids in a single SQLite file. Times are unix nanoseconds
// and amounts are decimal strings.
type Store struct{ db *sqlx.DB }

var _ auction.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one connection: :memory: databases are per connection and SQLite has a single writer
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		return nil, errors.Wrap(err, "apply schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func ensureSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS auctions(
  id TEXT PRIMARY KEY,
  car_snapshot TEXT NOT NULL,
  starts_at INTEGER NOT NULL,
  ends_at INTEGER NOT NULL,
  start_price_eur TEXT NOT NULL,
  buy_now_price_eur TEXT,
  current_price_eur TEXT NOT NULL,
  version INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  CHECK (starts_at < ends_at)
);
CREATE INDEX IF NOT EXISTS idx_auctions_ends_at ON auctions(ends_at);

CREATE TABLE IF NOT EXISTS bids(
  id TEXT PRIMARY KEY,
  auction_id TEXT NOT NULL REFERENCES auctions(id),
  bidder_id TEXT NOT NULL,
  bidder_display_name TEXT NOT NULL,
  amount_eur TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  idempotency_key TEXT
);
CREATE INDEX IF NOT EXISTS idx_bids_auction ON bids(auction_id, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_bids_idempotency ON bids(auction_id, bidder_id, idempotency_key)
  WHERE idempotency_key IS NOT NULL;
`)
	return err
}

type auctionRow struct {
	ID              uuid.UUID           `db:"id"`
	CarSnapshot     string              `db:"car_snapshot"`
	StartsAt        int64               `db:"starts_at"`
	EndsAt          int64               `db:"ends_at"`
	StartPriceEur   decimal.Decimal     `db:"start_price_eur"`
	BuyNowPriceEur  decimal.NullDecimal `db:"buy_now_price_eur"`
	CurrentPriceEur decimal.Decimal     `db:"current_price_eur"`
	Version         int64               `db:"version"`
	CreatedAt       int64               `db:"created_at"`
}

func (r auctionRow) toDomain() (domain.Auction, error) {
	a := domain.Auction{
		ID:              r.ID,
		StartsAt:        fromNanos(r.StartsAt),
		EndsAt:          fromNanos(r.EndsAt),
		StartPriceEur:   r.StartPriceEur,
		CurrentPriceEur: r.CurrentPriceEur,
		Version:         r.Version,
		CreatedAt:       fromNanos(r.CreatedAt),
	}
	if r.BuyNowPriceEur.Valid {
		v := r.BuyNowPriceEur.Decimal
		a.BuyNowPriceEur = &v
	}
	if err := json.Unmarshal([]byte(r.CarSnapshot), &a.Car); err != nil {
		return domain.Auction{}, errors.Wrap(err, "decode car snapshot")
	}
	return a, nil
}

type bidRow struct {
	ID                uuid.UUID       `db:"id"`
	AuctionID         uuid.UUID       `db:"auction_id"`
	BidderID          string          `db:"bidder_id"`
	BidderDisplayName string          `db:"bidder_display_name"`
	AmountEur         decimal.Decimal `db:"amount_eur"`
	CreatedAt         int64           `db:"created_at"`
	IdempotencyKey    sql.NullString  `db:"idempotency_key"`
}

func (r bidRow) toDomain() domain.Bid {
	return domain.Bid{
		ID:                r.ID,
		AuctionID:         r.AuctionID,
		BidderID:          r.BidderID,
		BidderDisplayName: r.BidderDisplayName,
		AmountEur:         r.AmountEur,
		CreatedAt:         fromNanos(r.CreatedAt),
		IdempotencyKey:    r.IdempotencyKey.String,
	}
}

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func (s *Store) CreateAuction(ctx context.Context, a domain.Auction) error {
	car, err := json.Marshal(a.Car)
	if err != nil {
		return errors.Wrap(err, "encode car snapshot")
	}
	var buyNow any
	if a.BuyNowPriceEur != nil {
		buyNow = a.BuyNowPriceEur.String()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO auctions(id, car_snapshot, starts_at, ends_at, start_price_eur, buy_now_price_eur,
			current_price_eur, version, created_at)
		VALUES(?,?,?,?,?,?,?,?,?)
	`, a.ID.String(), string(car), a.StartsAt.UnixNano(), a.EndsAt.UnixNano(), a.StartPriceEur.String(), buyNow,
		a.CurrentPriceEur.String(), a.Version, a.CreatedAt.UnixNano())
	return errors.Wrap(err, "insert auction")
}

const selectAuction = `SELECT id, car_snapshot, starts_at, ends_at, start_price_eur, buy_now_price_eur,
	current_price_eur, version, created_at FROM auctions`

func (s *Store) LoadAuction(ctx context.Context, id uuid.UUID) (domain.Auction, error) {
	return getAuction(ctx, s.db, id)
}

func getAuction(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (domain.Auction, error) {
	var row auctionRow
	err := sqlx.GetContext(ctx, q, &row, selectAuction+` WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Auction{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Auction{}, err
	}
	return row.toDomain()
}

func (s *Store) ListAuctions(ctx context.Context) ([]domain.Auction, error) {
	var rows []auctionRow
	if err := s.db.SelectContext(ctx, &rows, selectAuction+` ORDER BY ends_at, id`); err != nil {
		return nil, err
	}
	out := make([]domain.Auction, 0, len(rows))
	for _, r := range rows {
		a, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) Snapshot(ctx context.Context, id uuid.UUID) (domain.Auction, []domain.Bid, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Auction{}, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	a, err := getAuction(ctx, tx, id)
	if err != nil {
		return domain.Auction{}, nil, err
	}
	var rows []bidRow
	err = tx.SelectContext(ctx, &rows, `
		SELECT id, auction_id, bidder_id, bidder_display_name, amount_eur, created_at, idempotency_key
		FROM bids WHERE auction_id = ?
		ORDER BY CAST(amount_eur AS REAL) DESC, created_at DESC
	`, id.String())
	if err != nil {
		return domain.Auction{}, nil, err
	}
	bids := make([]domain.Bid, 0, len(rows))
	for _, r := range rows {
		bids = append(bids, r.toDomain())
	}
	return a, bids, tx.Commit()
}

func (s *Store) CommitBid(ctx context.Context, c auction.Commit) error {
	bid := c.Bid
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE auctions SET current_price_eur = ?, version = version + 1
		WHERE id = ? AND version = ? AND starts_at <= ? AND ends_at > ?
	`, bid.AmountEur.String(), bid.AuctionID.String(), c.ExpectedVersion, bid.CreatedAt.UnixNano(), bid.CreatedAt.UnixNano())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrVersionConflict
	}

	var key any
	if bid.IdempotencyKey != "" {
		key = bid.IdempotencyKey
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO bids(id, auction_id, bidder_id, bidder_display_name, amount_eur, created_at, idempotency_key)
		VALUES(?,?,?,?,?,?,?)
	`, bid.ID.String(), bid.AuctionID.String(), bid.BidderID, bid.BidderDisplayName, bid.AmountEur.String(),
		bid.CreatedAt.UnixNano(), key)
	if isUniqueViolation(err) {
		return errors.Mark(errors.Wrap(err, "insert bid"), domain.ErrDuplicateKey)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) FindBidByKey(ctx context.Context, auctionID uuid.UUID, bidderID, key string) (*domain.Bid, error) {
	var row bidRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, auction_id, bidder_id, bidder_display_name, amount_eur, created_at, idempotency_key
		FROM bids WHERE auction_id = ? AND bidder_id = ? AND idempotency_key = ?
	`, auctionID.String(), bidderID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b := row.toDomain()
	return &b, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlitedriver.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
