package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/photobook/bookings-and-payments/internal/observability"
)

// AuditLogger records operator-visible anomalies: webhook deliveries with
// no matching booking, client/processor status divergence, refunds. These
// never surface to the request that produced them; webhook callers in
// particular must always see success for well-signed events.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}

// LogUnmatchedIntent quarantines a correctly-signed event whose payment
// intent matches no booking row.
func (a *AuditLogger) LogUnmatchedIntent(ctx context.Context, eventType, paymentIntentID string) error {
	return a.LogEvent(ctx, "webhook.unmatched_intent", map[string]interface{}{
		"event_type":        eventType,
		"payment_intent_id": paymentIntentID,
	})
}

// LogClientConfirmation records what the payment UI reported, next to what
// is actually persisted. The two disagreeing is expected while the webhook
// is in flight; it staying that way is what operators look for.
func (a *AuditLogger) LogClientConfirmation(ctx context.Context, bookingID, reportedStatus, persistedStatus string) error {
	return a.LogEvent(ctx, "client.confirmation", map[string]interface{}{
		"booking_id":       bookingID,
		"reported_status":  reportedStatus,
		"persisted_status": persistedStatus,
	})
}

func (a *AuditLogger) LogStatusDivergence(ctx context.Context, bookingID, paymentIntentID, processorStatus, localStatus string) error {
	return a.LogEvent(ctx, "reconcile.divergence", map[string]interface{}{
		"booking_id":        bookingID,
		"payment_intent_id": paymentIntentID,
		"processor_status":  processorStatus,
		"local_status":      localStatus,
	})
}
