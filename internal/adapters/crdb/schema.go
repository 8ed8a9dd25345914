package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Schema is idempotent and safe to apply on every start.
const Schema = `
CREATE TABLE IF NOT EXISTS auctions (
	id UUID PRIMARY KEY,
	car_snapshot JSONB NOT NULL,
	starts_at TIMESTAMPTZ NOT NULL,
	ends_at TIMESTAMPTZ NOT NULL,
	start_price_eur NUMERIC(12,2) NOT NULL,
	buy_now_price_eur NUMERIC(12,2),
	current_price_eur NUMERIC(12,2) NOT NULL,
	version INT8 NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	close_announced_at TIMESTAMPTZ,
	CHECK (starts_at < ends_at),
	CHECK (current_price_eur >= start_price_eur)
);
CREATE INDEX IF NOT EXISTS auctions_by_end ON auctions (ends_at);

CREATE TABLE IF NOT EXISTS bids (
	id UUID PRIMARY KEY,
	auction_id UUID NOT NULL REFERENCES auctions (id),
	bidder_id TEXT NOT NULL,
	bidder_display_name TEXT NOT NULL,
	amount_eur NUMERIC(12,2) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	idempotency_key TEXT
);
CREATE INDEX IF NOT EXISTS bids_by_amount ON bids (auction_id, amount_eur DESC, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS bids_idempotency ON bids (auction_id, bidder_id, idempotency_key)
	WHERE idempotency_key IS NOT NULL;

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED')),
	dedupe_key TEXT NOT NULL UNIQUE
);
CREATE INDEX IF NOT EXISTS outbox_pending ON outbox (status, created_at);
`

func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, Schema)
	return errors.Wrap(err, "apply schema")
}
