package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/photobook/bookings-and-payments/internal/adapters/postgres"
	"github.com/photobook/bookings-and-payments/internal/adapters/rabbit"
	"github.com/photobook/bookings-and-payments/internal/config"
	"github.com/photobook/bookings-and-payments/internal/observability"
	"github.com/photobook/bookings-and-payments/internal/outbox"
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

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", err)
		os.Exit(1)
	}
	defer conn.Close()

	publisher, err := rabbit.NewPublisher(conn)
	if err != nil {
		logger.Error("failed to set up publisher", err)
		os.Exit(1)
	}

	logger.Info("outbox publisher started")
	if err := outbox.NewPublisher(repo, publisher, logger).Run(ctx); err != nil && err != context.Canceled {
		logger.Error("publisher stopped", err)
		os.Exit(1)
	}
}
