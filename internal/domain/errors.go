package domain

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")

	ErrAuctionNotOpen  = errors.New("auction not open")
	ErrBidTooLow       = errors.New("bid too low")
	ErrVersionConflict = errors.New("version conflict")
	ErrContention      = errors.New("too much contention, resubmit the bid")
	ErrBusy            = errors.New("storage busy, retry later")
	ErrDuplicateKey    = errors.New("duplicate idempotency key")
)

// NotOpenError reports which lifecycle boundary a bid violated.
type NotOpenError struct {
	State    LifecycleState
	StartsAt time.Time
	EndsAt   time.Time
}

func (e *NotOpenError) Error() string {
	if e.State == Scheduled {
		return fmt.Sprintf("auction not open: starts at %s", e.StartsAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("auction not open: ended at %s", e.EndsAt.Format(time.RFC3339))
}

func (e *NotOpenError) Unwrap() error { return ErrAuctionNotOpen }

// Boundary names the schedule field the bid fell outside of.
func (e *NotOpenError) Boundary() string {
	if e.State == Scheduled {
		return "starts_at"
	}
	return "ends_at"
}

type BidTooLowError struct {
	LiveMinimum  decimal.Decimal
	CurrentPrice decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid too low: minimum is %s", e.LiveMinimum.StringFixed(EurCents))
}

func (e *BidTooLowError) Unwrap() error { return ErrBidTooLow }
