package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/rulecache"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/scheduling"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/migrations"
)

func loadPolicy() (policy.Policy, error) {
	p := policy.DefaultPolicy()
	var err error
	if p.Duration.MinMinutes, err = config.Int("POLICY_MIN_DURATION_MINUTES", p.Duration.MinMinutes); err != nil {
		return p, err
	}
	if p.Duration.MaxMinutes, err = config.Int("POLICY_MAX_DURATION_MINUTES", p.Duration.MaxMinutes); err != nil {
		return p, err
	}
	if p.AdvanceNotice.MinHours, err = config.Float("POLICY_MIN_NOTICE_HOURS", p.AdvanceNotice.MinHours); err != nil {
		return p, err
	}
	if p.MaxAdvance.MaxDays, err = config.Float("POLICY_MAX_ADVANCE_DAYS", p.MaxAdvance.MaxDays); err != nil {
		return p, err
	}
	return p, nil
}

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	ctx, stop := runtime.SignalContext(logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pol, err := loadPolicy()
	if err != nil {
		panic(err)
	}
	slotMinutes, err := config.Int("DEFAULT_SLOT_MINUTES", 30)
	if err != nil {
		panic(err)
	}
	cacheTTL, err := config.Duration("RULE_CACHE_TTL", 5*time.Minute)
	if err != nil {
		panic(err)
	}
	rateLimit, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		panic(err)
	}
	brokers := config.String("KAFKA_BROKERS", "")
	m := metrics.New(nil)

	var (
		store       scheduling.Store
		pool        *db.Pool
		readyChecks []runtime.ReadyCheck
	)
	switch driver := config.String("STORAGE_DRIVER", "postgres"); driver {
	case "memory":
		mem := storage.NewMemoryStore()
		if err := storage.SeedDemo(mem, config.String("SEED_TIMEZONE", "America/Mexico_City"), time.Now()); err != nil {
			panic(err)
		}
		store = mem
		logger.Info("using in-memory storage with demo data")
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			panic(err)
		}
		if config.Bool("MIGRATE_ON_START", true) {
			if err := db.Migrate(dbURL, migrations.FS); err != nil {
				logger.Error("migrations failed", "err", err)
				panic(err)
			}
		}
		pool, err = db.Open(ctx, dbURL, db.PoolOptions{})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		store = storage.NewPostgresStore(pool, outbox.NewRepository())
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	default:
		panic("STORAGE_DRIVER must be postgres or memory, got " + driver)
	}

	var (
		rdb   *redis.Client
		cache *rulecache.Store
	)
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer func() { _ = rdb.Close() }()
		cache = rulecache.New(store, rdb, cacheTTL, logger, m)
		store = cache
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	engine := scheduling.NewEngine(store, policy.NewStaticProvider(pol),
		scheduling.WithLogger(logger),
		scheduling.WithMetrics(m),
		scheduling.WithDefaultSlotMinutes(slotMinutes),
	)

	if pool != nil {
		publisher := outbox.NewPublisher(pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go publisher.Run(ctx)
	}
	if brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		startAvailabilityConsumer(ctx, logger, pool, cache, brokers)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/metrics", promhttp.Handler())

	api := http.NewServeMux()
	handlers.NewBookingHandler(engine, logger).Register(api)
	mux.Handle("/api/", apiMiddleware(api, logger, rdb, rateLimit))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.CSV("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", httpx.RequestIDHeader},
			ExposedHeaders: []string{httpx.RequestIDHeader, "Retry-After"},
			MaxAge:         10 * time.Minute,
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// apiMiddleware rate limits the API routes. Redis backs the limiter when configured so
// replicas share counters.
func apiMiddleware(api http.Handler, logger *slog.Logger, rdb *redis.Client, perMinute int) http.Handler {
	mws := []httpx.Middleware{httpx.WithBodyLimit(1 << 20), httpx.WithTimeout(15 * time.Second)}
	if perMinute > 0 {
		if rdb != nil {
			mws = append(mws, httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "slotbook:ratelimit").Middleware(logger, true))
		} else {
			mws = append(mws, httpx.NewRateLimiter(perMinute, time.Minute).Middleware())
		}
	}
	return httpx.Chain(api, mws...)
}

// startAvailabilityConsumer drops cached rules when the catalogue owner announces a
// schedule change. Without a cache there is nothing to invalidate.
func startAvailabilityConsumer(ctx context.Context, logger *slog.Logger, pool *db.Pool, cache *rulecache.Store, brokers string) {
	if cache == nil {
		return
	}
	var dedupe consumer.Inbox
	if pool != nil {
		dedupe = inbox.NewRepository(pool)
	}
	c := consumer.New(logger, dedupe, consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
		Topic:   config.String("KAFKA_AVAILABILITY_TOPIC", "business.availability.changed.v1"),
	}, consumer.AvailabilityChangedHandler(logger, cache))
	go c.Run(ctx)
}
