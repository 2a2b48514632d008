package domain

type Status string

const (
	StatusPending       Status = "pending"
	StatusConfirmed     Status = "confirmed"
	StatusPaymentFailed Status = "payment_failed"
	StatusCanceled      Status = "canceled"
)

// Terminal reports whether no further automated transition is defined for s.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusPaymentFailed || s == StatusCanceled
}

// PaymentEventKind is a processor webhook event type that drives the booking
// status machine.
type PaymentEventKind string

const (
	PaymentSucceeded PaymentEventKind = "payment_intent.succeeded"
	PaymentFailed    PaymentEventKind = "payment_intent.payment_failed"
	PaymentCanceled  PaymentEventKind = "payment_intent.canceled"
)

var eventStatus = map[PaymentEventKind]Status{
	PaymentSucceeded: StatusConfirmed,
	PaymentFailed:    StatusPaymentFailed,
	PaymentCanceled:  StatusCanceled,
}

// ApplyPaymentEvent returns the status a booking moves to when the given
// event is applied, and whether that is a change. Terminal statuses never
// move, so redelivered and out-of-order events collapse to no-ops.
func ApplyPaymentEvent(current Status, kind PaymentEventKind) (Status, bool) {
	next, ok := eventStatus[kind]
	if !ok {
		return current, false
	}
	if current.Terminal() {
		return current, false
	}
	return next, true
}

// StatusForIntentStatus maps a processor-side payment-intent status to the
// local terminal status it implies, if any. Intents still in flight
// (processing, requires_action, ...) imply nothing locally.
func StatusForIntentStatus(s string) (Status, bool) {
	switch s {
	case "succeeded":
		return StatusConfirmed, true
	case "canceled":
		return StatusCanceled, true
	default:
		return "", false
	}
}
