package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dailyplatform-io/dailydrive-sub000/internal/adapters/crdb"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/closing"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/config"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/observability"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.StoreDriver != config.StoreDriverCRDB {
		log.Fatal("close-worker requires STORE_DRIVER=crdb")
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint, "dailydrive-close-worker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLoggerWithLevel(cfg.LogLevel)

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	sweeper := closing.NewSweeper(repo, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweeper.Run(ctx, cfg.CloseSweepInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown close worker")
}
