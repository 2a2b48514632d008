package reconcile

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/photobook/bookings-and-payments/internal/domain"
	"github.com/photobook/bookings-and-payments/internal/observability"
)

const (
	pollInterval = 5 * time.Minute
	pendingAge   = 30 * time.Minute
	batchSize    = 50
	maxAttempts  = 3
	maxInFlight  = 4
)

var retryBackoff = time.Second

type StaleBookingSource interface {
	GetStalePendingBookings(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error)
}

type IntentStatusSource interface {
	IntentStatus(ctx context.Context, paymentIntentID string) (string, error)
}

type DivergenceLog interface {
	LogStatusDivergence(ctx context.Context, bookingID, paymentIntentID, processorStatus, localStatus string) error
}

// Worker flags bookings stuck in pending whose processor-side intent has
// already settled, which usually means a lost webhook delivery. It only
// reports; status still moves exclusively through the webhook path, so a
// redelivery triggered by an operator goes through the same verification
// and idempotency as a live one.
type Worker struct {
	store     StaleBookingSource
	processor IntentStatusSource
	audit     DivergenceLog
	logger    observability.Logger
}

func NewWorker(store StaleBookingSource, processor IntentStatusSource, audit DivergenceLog, logger observability.Logger) *Worker {
	return &Worker{store: store, processor: processor, audit: audit, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger.Error("reconcile sweep failed", err)
			}
		}
	}
}

func (w *Worker) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-pendingAge)
	stale, err := w.store.GetStalePendingBookings(ctx, cutoff, batchSize)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)
	for _, b := range stale {
		b := b
		g.Go(func() error {
			processorStatus, err := w.intentStatusWithRetry(ctx, b.PaymentIntentID)
			if err != nil {
				w.logger.WithField("booking_id", b.ID.String()).Error("intent lookup failed", err)
				return nil
			}

			settled, recognized := domain.StatusForIntentStatus(processorStatus)
			if !recognized {
				// still in flight on the processor side, nothing to report
				return nil
			}
			if settled == b.Status {
				return nil
			}

			w.logger.WithField("booking_id", b.ID.String()).
				WithField("processor_status", processorStatus).
				Warn("booking diverged from processor")
			return w.audit.LogStatusDivergence(ctx, b.ID.String(), b.PaymentIntentID, processorStatus, string(b.Status))
		})
	}
	return g.Wait()
}

func (w *Worker) intentStatusWithRetry(ctx context.Context, intentID string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryBackoff << attempt):
			}
		}
		status, err := w.processor.IntentStatus(ctx, intentID)
		if err == nil {
			return status, nil
		}
		lastErr = err
	}
	return "", lastErr
}
