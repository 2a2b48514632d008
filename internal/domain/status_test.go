package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyPaymentEvent_FromPending(t *testing.T) {
	cases := []struct {
		kind PaymentEventKind
		next Status
	}{
		{PaymentSucceeded, StatusConfirmed},
		{PaymentFailed, StatusPaymentFailed},
		{PaymentCanceled, StatusCanceled},
	}
	for _, tc := range cases {
		next, changed := ApplyPaymentEvent(StatusPending, tc.kind)
		assert.True(t, changed, string(tc.kind))
		assert.Equal(t, tc.next, next, string(tc.kind))
	}
}

func TestApplyPaymentEvent_RedeliveryIsNoop(t *testing.T) {
	next, changed := ApplyPaymentEvent(StatusConfirmed, PaymentSucceeded)
	assert.False(t, changed)
	assert.Equal(t, StatusConfirmed, next)
}

func TestApplyPaymentEvent_TerminalStatusesNeverMove(t *testing.T) {
	terminals := []Status{StatusConfirmed, StatusPaymentFailed, StatusCanceled}
	kinds := []PaymentEventKind{PaymentSucceeded, PaymentFailed, PaymentCanceled}
	for _, s := range terminals {
		for _, k := range kinds {
			next, changed := ApplyPaymentEvent(s, k)
			assert.False(t, changed, "%s + %s", s, k)
			assert.Equal(t, s, next, "%s + %s", s, k)
		}
	}
}

func TestApplyPaymentEvent_UnrecognizedKind(t *testing.T) {
	next, changed := ApplyPaymentEvent(StatusPending, PaymentEventKind("charge.refunded"))
	assert.False(t, changed)
	assert.Equal(t, StatusPending, next)
}

func TestStatusForIntentStatus(t *testing.T) {
	s, ok := StatusForIntentStatus("succeeded")
	assert.True(t, ok)
	assert.Equal(t, StatusConfirmed, s)

	s, ok = StatusForIntentStatus("canceled")
	assert.True(t, ok)
	assert.Equal(t, StatusCanceled, s)

	_, ok = StatusForIntentStatus("processing")
	assert.False(t, ok)
	_, ok = StatusForIntentStatus("requires_payment_method")
	assert.False(t, ok)
}
