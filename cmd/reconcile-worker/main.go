package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/photobook/bookings-and-payments/internal/adapters/mongo"
	"github.com/photobook/bookings-and-payments/internal/adapters/postgres"
	"github.com/photobook/bookings-and-payments/internal/config"
	"github.com/photobook/bookings-and-payments/internal/observability"
	"github.com/photobook/bookings-and-payments/internal/payments"
	"github.com/photobook/bookings-and-payments/internal/reconcile"
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

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("failed to connect to postgres", err)
		os.Exit(1)
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Error("failed to connect to mongo", err)
		os.Exit(1)
	}
	defer mongoClient.Disconnect(ctx)
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("photobook"), logger)

	processor := payments.NewClient(payments.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
	})

	logger.Info("reconcile worker started")
	if err := reconcile.NewWorker(repo, processor, audit, logger).Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", err)
		os.Exit(1)
	}
}
