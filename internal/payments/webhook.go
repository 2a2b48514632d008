package payments

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/photobook/bookings-and-payments/internal/domain"
)

// MaxWebhookBodyBytes bounds the raw body read before verification.
const MaxWebhookBodyBytes = int64(65536)

// SignatureError means the event body failed cryptographic verification
// against the shared secret. Such events must never mutate state.
type SignatureError struct {
	cause error
}

func (e *SignatureError) Error() string {
	return "webhook signature verification failed: " + e.cause.Error()
}

func (e *SignatureError) Unwrap() error { return e.cause }

// WebhookEvent is the decoded envelope of one processor delivery.
// Recognized is false for event types outside the payment-intent lifecycle;
// those are acknowledged without any state change.
type WebhookEvent struct {
	Type            string
	Kind            domain.PaymentEventKind
	Recognized      bool
	PaymentIntentID string
	AmountCents     int64
}

// ParseEvent verifies the signature over the raw payload before decoding
// anything. Verification failures come back as *SignatureError; a payload
// that verifies but does not decode is ErrInvalidInput.
func ParseEvent(payload []byte, sigHeader, secret string) (WebhookEvent, error) {
	ev, err := webhook.ConstructEvent(payload, sigHeader, secret)
	if err != nil {
		if isSignatureFailure(err) {
			return WebhookEvent{}, &SignatureError{cause: err}
		}
		return WebhookEvent{}, errors.Wrap(domain.ErrInvalidInput, err.Error())
	}

	out := WebhookEvent{Type: string(ev.Type)}

	kind := domain.PaymentEventKind(ev.Type)
	switch kind {
	case domain.PaymentSucceeded, domain.PaymentFailed, domain.PaymentCanceled:
		out.Kind = kind
		out.Recognized = true
	default:
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return WebhookEvent{}, errors.Wrap(domain.ErrInvalidInput, "malformed payment intent payload")
	}
	if pi.ID == "" {
		return WebhookEvent{}, errors.Wrap(domain.ErrInvalidInput, "event carries no payment intent id")
	}
	out.PaymentIntentID = pi.ID
	out.AmountCents = pi.Amount
	return out, nil
}

func isSignatureFailure(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
