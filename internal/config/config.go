package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StoreDriverCRDB   = "crdb"
	StoreDriverSQLite = "sqlite"
)

type Config struct {
	HTTPAddr     string
	StoreDriver  string
	CRDBDSN      string
	SQLiteDSN    string
	MongoURI     string
	MongoDB      string
	RedisAddr    string
	RabbitURL    string
	JWTSecret    string
	OTLPEndpoint string
	LogLevel     string

	AllowedOrigins []string

	MinIncrementEur   decimal.Decimal
	MaxCommitAttempts int
	StoreTimeout      time.Duration

	IdempotencyTTL     time.Duration
	CloseSweepInterval time.Duration
	OutboxPollInterval time.Duration
	BidRatePerMinute   int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		StoreDriver:  getEnv("STORE_DRIVER", StoreDriverCRDB),
		CRDBDSN:      os.Getenv("CRDB_DSN"),
		SQLiteDSN:    getEnv("SQLITE_DSN", "file:dailydrive.db"),
		MongoURI:     os.Getenv("MONGO_URI"),
		MongoDB:      getEnv("MONGO_DB", "dailydrive"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RabbitURL:    os.Getenv("RABBIT_URL"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	var err error
	if cfg.MinIncrementEur, err = decimal.NewFromString(getEnv("MIN_INCREMENT_EUR", "300")); err != nil {
		return nil, errors.Wrap(err, "MIN_INCREMENT_EUR")
	}
	if !cfg.MinIncrementEur.IsPositive() {
		return nil, errors.New("MIN_INCREMENT_EUR must be positive")
	}
	if cfg.MaxCommitAttempts, err = intEnv("MAX_COMMIT_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.MaxCommitAttempts < 1 {
		return nil, errors.New("MAX_COMMIT_ATTEMPTS must be at least 1")
	}
	if cfg.BidRatePerMinute, err = intEnv("BID_RATE_PER_MINUTE", 30); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout, err = durationEnv("STORE_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.CloseSweepInterval, err = durationEnv("CLOSE_SWEEP_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.OutboxPollInterval, err = durationEnv("OUTBOX_POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}

	switch cfg.StoreDriver {
	case StoreDriverCRDB:
		if cfg.CRDBDSN == "" {
			return nil, errors.New("CRDB_DSN is required when STORE_DRIVER=crdb")
		}
	case StoreDriverSQLite:
	default:
		return nil, errors.Newf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", key)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", key)
	}
	if d <= 0 {
		return 0, errors.Newf("%s must be positive", key)
	}
	return d, nil
}
