package http

import (
	"github.com/dailyplatform-io/dailydrive-sub000/internal/identity"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/observability"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	Verifier       *identity.Verifier
	RateLimiter    *ratelimit.RateLimiter
	BidsPerMinute  int
	AllowedOrigins []string
}

func SetupRouter(h *Handlers, logger observability.Logger, rc RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	origins := rc.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", IdempotencyHeader},
		ExposedHeaders: []string{"Retry-After", "Idempotent-Replay"},
		MaxAge:         300,
	}))
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1/auctions", func(r chi.Router) {
		r.Use(TracingMiddleware)
		r.Get("/", h.ListAuctions)
		r.Get("/{id}", h.GetAuction)
		if h.subscriber != nil {
			r.Get("/{id}/stream", h.StreamAuction)
		}

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(rc.Verifier, logger))
			r.With(RequireRole("catalog", "admin")).Post("/", h.CreateAuction)

			bid := r.With(IdempotencyMiddleware)
			if rc.RateLimiter != nil {
				bid = bid.With(RateLimitMiddleware(rc.RateLimiter, rc.BidsPerMinute))
			}
			bid.Post("/{id}/bids", h.PlaceBid)
		})
	})

	return r
}
