package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/photobook/bookings-and-payments/internal/adapters/mongo"
	"github.com/photobook/bookings-and-payments/internal/adapters/postgres"
	redisadapter "github.com/photobook/bookings-and-payments/internal/adapters/redis"
	"github.com/photobook/bookings-and-payments/internal/config"
	"github.com/photobook/bookings-and-payments/internal/geo"
	httpapi "github.com/photobook/bookings-and-payments/internal/http"
	"github.com/photobook/bookings-and-payments/internal/idempotency"
	"github.com/photobook/bookings-and-payments/internal/observability"
	"github.com/photobook/bookings-and-payments/internal/payments"
	"github.com/photobook/bookings-and-payments/internal/rateLimit"
)

func main() {
	logger := observability.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to set up tracing", err)
		os.Exit(1)
	}
	defer shutdownTracing()

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("failed to connect to postgres", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to ensure schema", err)
		os.Exit(1)
	}
	repo := postgres.NewRepository(pool)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Error("failed to connect to mongo", err)
		os.Exit(1)
	}
	defer mongoClient.Disconnect(ctx)
	mongoDB := mongoClient.Database("photobook")
	profiles := mongoadapter.NewProfileRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	cache := redisadapter.NewCache(redisClient)
	if err := cache.Healthy(ctx); err != nil {
		// idempotency replay and rate limiting degrade without redis, but
		// the booking flow itself still works
		logger.Warn("redis unavailable at startup", err)
	}
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(cache)

	processor := payments.NewClient(payments.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
	})

	geocoder := geo.NewClient(cfg.MapsAPIKey)

	handlers := httpapi.NewHandlers(cfg, repo, processor, profiles, audit, idemp, geocoder, logger)
	router := httpapi.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.ListenAddr).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", err)
	}
}
