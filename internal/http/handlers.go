package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/auction"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/idempotency"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Subscriber streams raw projection payloads for one auction until ctx ends. Subscribe
// returns only once the subscription is active.
type Subscriber interface {
	Subscribe(ctx context.Context, auctionID uuid.UUID) (<-chan []byte, error)
}

// Check is a named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type Handlers struct {
	engine     *auction.Engine
	idemp      *idempotency.Idempotency
	subscriber Subscriber
	checks     []Check
	logger     observability.Logger
}

type HandlersOption func(*Handlers)

func WithIdempotency(i *idempotency.Idempotency) HandlersOption {
	return func(h *Handlers) { h.idemp = i }
}

func WithSubscriber(s Subscriber) HandlersOption {
	return func(h *Handlers) { h.subscriber = s }
}

func WithChecks(checks ...Check) HandlersOption {
	return func(h *Handlers) { h.checks = append(h.checks, checks...) }
}

func NewHandlers(engine *auction.Engine, logger observability.Logger, opts ...HandlersOption) *Handlers {
	h := &Handlers{engine: engine, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func auctionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, errors.Wrap(domain.ErrInvalidInput, "invalid auction id")
	}
	return id, nil
}

func (h *Handlers) ListAuctions(w http.ResponseWriter, r *http.Request) {
	var filter *domain.LifecycleState
	if raw := r.URL.Query().Get("state"); raw != "" {
		state, ok := domain.ParseLifecycleState(raw)
		if !ok {
			writeError(w, r, h.logger, errors.Wrapf(domain.ErrInvalidInput, "unknown state %q", raw))
			return
		}
		filter = &state
	}

	projections, err := h.engine.ListAuctions(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if projections == nil {
		projections = []auction.Projection{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"auctions": projections})
}

func (h *Handlers) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := auctionID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.engine.GetAuction(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type placeBidRequest struct {
	AmountEur decimal.Decimal `json:"amount_eur"`
}

type placeBidResponse struct {
	BidID    uuid.UUID          `json:"bid_id"`
	Replayed bool               `json:"replayed"`
	Auction  auction.Projection `json:"auction"`
}

func (h *Handlers) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id, err := auctionID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	bidder, ok := BidderFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, errUnauthenticated)
		return
	}

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, errors.Wrap(domain.ErrInvalidInput, "malformed body"))
		return
	}

	key := r.Header.Get(IdempotencyHeader)
	scope := "bid:" + id.String() + ":" + bidder.ID
	fingerprint := req.AmountEur.StringFixed(2)
	if key != "" && h.idemp != nil {
		stored, err := h.idemp.Begin(r.Context(), scope, key, fingerprint)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if stored != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replay", "true")
			w.WriteHeader(stored.Status)
			w.Write(stored.Result)
			return
		}
	}

	res, err := h.engine.PlaceBid(r.Context(), auction.BidRequest{
		AuctionID:      id,
		Amount:         req.AmountEur,
		Bidder:         bidder,
		IdempotencyKey: key,
	})
	if err != nil {
		if key != "" && h.idemp != nil {
			if aerr := h.idemp.Abort(r.Context(), scope, key); aerr != nil {
				observability.FromContext(r.Context(), h.logger).WithError(aerr).Warn("failed to release idempotency claim")
			}
		}
		writeError(w, r, h.logger, err)
		return
	}

	data, err := json.Marshal(placeBidResponse{BidID: res.Bid.ID, Replayed: res.Replayed, Auction: res.Projection})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)

	if key != "" && h.idemp != nil {
		if err := h.idemp.Complete(r.Context(), scope, key, idempotency.Response{Status: http.StatusCreated, Result: data, Fingerprint: fingerprint}); err != nil {
			observability.FromContext(r.Context(), h.logger).WithError(err).Warn("failed to store idempotent response")
		}
	}
}

type createAuctionRequest struct {
	CarID          string           `json:"car_id"`
	StartsAt       time.Time        `json:"starts_at"`
	EndsAt         time.Time        `json:"ends_at"`
	StartPriceEur  decimal.Decimal  `json:"start_price_eur"`
	BuyNowPriceEur *decimal.Decimal `json:"buy_now_price_eur,omitempty"`
}

func (h *Handlers) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, errors.Wrap(domain.ErrInvalidInput, "malformed body"))
		return
	}
	p, err := h.engine.CreateAuction(r.Context(), auction.CreateRequest{
		CarID:          req.CarID,
		StartsAt:       req.StartsAt,
		EndsAt:         req.EndsAt,
		StartPriceEur:  req.StartPriceEur,
		BuyNowPriceEur: req.BuyNowPriceEur,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for _, c := range h.checks {
		if err := c.Probe(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "unavailable", "failed": failed})
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
