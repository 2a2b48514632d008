package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/photobook/bookings-and-payments/internal/adapters/postgres"
	"github.com/photobook/bookings-and-payments/internal/adapters/rabbit"
	"github.com/photobook/bookings-and-payments/internal/observability"
)

const (
	pollInterval = time.Second
	batchSize    = 10
)

// Publisher drains the outbox table into the message broker. Records are
// published at least once: a crash between Publish and MarkPublished means
// a redelivery, which consumers dedupe on MessageId.
type Publisher struct {
	repo      *postgres.Repository
	publisher *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *postgres.Repository, publisher *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, publisher: publisher, logger: logger}
}

func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.drain(ctx); err != nil {
				p.logger.Error("outbox drain failed", err)
			}
		}
	}
}

func (p *Publisher) drain(ctx context.Context) error {
	records, err := p.repo.GetUnpublishedOutbox(ctx, batchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		observability.OutboxLag.Set(0)
		return nil
	}

	observability.OutboxLag.Set(time.Since(records[0].CreatedAt).Seconds())

	for _, rec := range records {
		err := p.publisher.Publish(ctx, rec.EventType, amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    rec.DedupeKey,
			Timestamp:    rec.CreatedAt,
			Type:         rec.EventType,
			Body:         rec.Payload,
			DeliveryMode: amqp.Persistent,
		})
		if err != nil {
			// leave the record NEW; the next tick retries it
			p.logger.WithField("outbox_id", rec.ID.String()).Error("publish failed", err)
			return err
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now().UTC()); err != nil {
			return err
		}
		p.logger.WithField("event_type", rec.EventType).
			WithField("aggregate_id", rec.AggregateID.String()).
			Debug("outbox record published")
	}
	return nil
}
