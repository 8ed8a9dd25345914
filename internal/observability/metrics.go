package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dd_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	BidsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dd_bids_total",
			Help: "Bid submissions by outcome",
		},
		[]string{"outcome"},
	)

	BidCommitAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dd_bid_commit_attempts",
			Help:    "Compare-and-swap attempts needed per bid submission",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dd_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dd_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dd_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dd_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)

const (
	BidOutcomeAccepted   = "accepted"
	BidOutcomeReplayed   = "replayed"
	BidOutcomeTooLow     = "too_low"
	BidOutcomeNotOpen    = "not_open"
	BidOutcomeContention = "contention"
	BidOutcomeBusy       = "busy"
	BidOutcomeError      = "error"
)
