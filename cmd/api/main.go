package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dailyplatform-io/dailydrive-sub000/internal/adapters/crdb"
	mongoadapter "github.com/dailyplatform-io/dailydrive-sub000/internal/adapters/mongo"
	redisadapter "github.com/dailyplatform-io/dailydrive-sub000/internal/adapters/redis"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/adapters/sqlite"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/auction"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/config"
	httphandler "github.com/dailyplatform-io/dailydrive-sub000/internal/http"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/idempotency"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/identity"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/observability"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/ratelimit"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint, "dailydrive-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLoggerWithLevel(cfg.LogLevel)

	var (
		store  auction.Store
		checks []httphandler.Check
	)
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		s, err := sqlite.Open(cfg.SQLiteDSN)
		if err != nil {
			log.Fatalf("failed to open sqlite: %v", err)
		}
		defer s.Close()
		store = s
		checks = append(checks, httphandler.Check{Name: "store", Probe: s.Ping})
	default:
		pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
		if err != nil {
			log.Fatalf("failed to connect to crdb: %v", err)
		}
		defer pool.Close()
		repo := crdb.NewRepository(pool)
		if err := repo.Migrate(context.Background()); err != nil {
			log.Fatalf("failed to migrate crdb: %v", err)
		}
		store = repo
		checks = append(checks, httphandler.Check{Name: "store", Probe: repo.Ping})
	}

	engineCfg := auction.DefaultConfig()
	engineCfg.MinIncrement = cfg.MinIncrementEur
	engineCfg.MaxCommitAttempts = cfg.MaxCommitAttempts
	engineCfg.StoreTimeout = cfg.StoreTimeout
	var engineOpts []auction.Option
	var handlerOpts []httphandler.HandlersOption
	routerCfg := httphandler.RouterConfig{
		Verifier:       identity.NewVerifier(cfg.JWTSecret),
		BidsPerMinute:  cfg.BidRatePerMinute,
		AllowedOrigins: cfg.AllowedOrigins,
	}

	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		defer mongoClient.Disconnect(context.Background())
		mongoDB := mongoClient.Database(cfg.MongoDB)
		catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
		engineOpts = append(engineOpts,
			auction.WithCatalog(catalog),
			auction.WithAuditor(mongoadapter.NewAuditLogger(mongoDB, logger)),
		)
		checks = append(checks, httphandler.Check{Name: "mongo", Probe: catalog.Ping})
	} else {
		logger.Warn("MONGO_URI not set, auction creation and audit logging disabled")
	}

	if cfg.RedisAddr != "" {
		redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		redisCache := redisadapter.NewCache(redisClient)
		broadcaster := redisadapter.NewBroadcaster(redisClient, logger)
		idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)

		engineOpts = append(engineOpts, auction.WithNotifier(broadcaster))
		handlerOpts = append(handlerOpts, httphandler.WithIdempotency(idemp), httphandler.WithSubscriber(broadcaster))
		routerCfg.RateLimiter = ratelimit.NewRateLimiter(redisCache, logger)
		checks = append(checks, httphandler.Check{Name: "redis", Probe: redisCache.Ping})
	} else {
		logger.Warn("REDIS_ADDR not set, streaming, response replay and rate limiting disabled")
	}

	engine := auction.NewEngine(store, engineCfg, logger, engineOpts...)
	handlers := httphandler.NewHandlers(engine, logger, append(handlerOpts, httphandler.WithChecks(checks...))...)

	r := httphandler.SetupRouter(handlers, logger, routerCfg)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).WithField("store", cfg.StoreDriver).Info("API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
