package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/idempotency"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/identity"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/observability"
	"github.com/shopspring/decimal"
)

const retryAfterSeconds = 1

type errorBody struct {
	Error       string           `json:"error"`
	Message     string           `json:"message"`
	LiveMinimum *decimal.Decimal `json:"live_minimum_eur,omitempty"`
	State       string           `json:"state,omitempty"`
	Boundary    string           `json:"boundary,omitempty"`
	BoundaryAt  *time.Time       `json:"boundary_at,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors onto status codes. Unknown errors are logged and
// reported as 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, logger observability.Logger, err error) {
	var (
		tooLow  *domain.BidTooLowError
		notOpen *domain.NotOpenError
	)
	switch {
	case errors.As(err, &tooLow):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:       "bid_too_low",
			Message:     tooLow.Error(),
			LiveMinimum: &tooLow.LiveMinimum,
		})
	case errors.As(err, &notOpen):
		at := notOpen.EndsAt
		if notOpen.Boundary() == "starts_at" {
			at = notOpen.StartsAt
		}
		writeJSON(w, http.StatusConflict, errorBody{
			Error:      "auction_not_open",
			Message:    notOpen.Error(),
			State:      string(notOpen.State),
			Boundary:   notOpen.Boundary(),
			BoundaryAt: &at,
		})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "auction not found"})
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, idempotency.ErrInvalidKey):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: err.Error()})
	case errors.Is(err, identity.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthenticated", Message: "valid bearer token required"})
	case errors.Is(err, domain.ErrContention):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeJSON(w, http.StatusConflict, errorBody{Error: "contention", Message: domain.ErrContention.Error()})
	case errors.Is(err, domain.ErrBusy):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "busy", Message: domain.ErrBusy.Error()})
	case errors.Is(err, idempotency.ErrInFlight):
		writeJSON(w, http.StatusConflict, errorBody{Error: "in_flight", Message: err.Error()})
	case errors.Is(err, domain.ErrConflict), errors.Is(err, idempotency.ErrKeyReused):
		writeJSON(w, http.StatusConflict, errorBody{Error: "idempotency_conflict", Message: err.Error()})
	default:
		observability.FromContext(r.Context(), logger).WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
	}
}
